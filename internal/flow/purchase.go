package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/events"
	"stockbot/internal/inline"
)

// purchaseHandler drives the multi-item purchase receipt flow.
type purchaseHandler struct {
	f *Flow
}

func (h *purchaseHandler) Kind() domain.DraftKind { return domain.KindPurchase }

func (f *Flow) startPurchase(ctx context.Context, s *Session) ([]Action, error) {
	now := f.now().UTC()
	draft := domain.Draft{
		Kind:  domain.KindPurchase,
		Stage: domain.StagePRSupplier,
		Purchase: &domain.PurchaseDraft{
			PostingDate: now.Format("2006-01-02"),
			PostingTime: now.Format("15:04"),
		},
	}
	if err := f.Repo.SaveDraft(ctx, s.User.ID, draft); err != nil {
		return nil, err
	}
	s.Draft = &draft
	f.audit(ctx, events.DraftStarted, s.User.ID, erp.DoctypePurchaseReceipt, events.EventPayload{"kind": domain.KindPurchase})

	intro := fmt.Sprintf("🧾 Yangi Purchase Receipt seriyasi: %s\nChop etish sanasi: %s, vaqt: %s.\nIltimos, yetkazib beruvchini tanlang.",
		f.Cfg.Series.PurchaseReceipt, draft.Purchase.PostingDate, draft.Purchase.PostingTime)
	return []Action{
		answer("", false),
		msg(s.ChatID, "Yangi Purchase Receipt yaratishni boshlaymiz."),
		msg(s.ChatID, intro),
		promptPurchaseSupplier(s.ChatID),
	}, nil
}

func skipButton(prefix string) Button {
	return Button{Label: "⏭ Skip", Data: prefix + ":skip"}
}

func skipMarkup(prefix string) [][]Button {
	return [][]Button{{skipButton(prefix)}, {cancelButton(prefix)}}
}

func yesNoMarkup(prefix string) [][]Button {
	return [][]Button{
		{
			{Label: "Ha", Data: prefix + ":yn:yes"},
			{Label: "Yo'q", Data: prefix + ":yn:no"},
		},
		{cancelButton(prefix)},
	}
}

func promptPurchaseSupplier(chatID int64) Action {
	kb := [][]Button{
		{{Label: "👤 Yetkazib beruvchi oynasi", SwitchInline: "supplier "}},
		{cancelButton(purchaseCreatePrefix)},
	}
	return msgKB(chatID, "Yetkazib beruvchini tanlang. Inline oynadan qidirib tanlang.", kb)
}

func promptSupplierNote(chatID int64) Action {
	return msgKB(chatID, "Supplier Delivery Note ni kiriting (ixtiyoriy). 'Skip' tugmasini bosib o'tkazib yuborishingiz mumkin.", skipMarkup(purchaseCreatePrefix))
}

func promptPostingDate(chatID int64, prefix, current string) Action {
	text := fmt.Sprintf("Posting sanasi hozir %s.\nAgar o'zgartirmoqchi bo'lsangiz YYYY-MM-DD formatida yuboring yoki 'Skip' tugmasini bosing.", current)
	return msgKB(chatID, text, skipMarkup(prefix))
}

func promptPostingTime(chatID int64, prefix, current string) Action {
	text := fmt.Sprintf("Posting vaqti hozir %s.\nHH:MM formatida vaqt yuboring yoki 'Skip' tugmasini bosing.", current)
	return msgKB(chatID, text, skipMarkup(prefix))
}

func promptPutaway(chatID int64) Action {
	return msgKB(chatID, "Apply Putaway Rule qo'llansinmi?", yesNoMarkup(purchaseCreatePrefix))
}

func promptPurchaseReturn(chatID int64) Action {
	return msgKB(chatID, "Bu qaytariluvchi (Is Return) receiptmi?", yesNoMarkup(purchaseCreatePrefix))
}

func promptAcceptedWarehouse(chatID int64) Action {
	kb := [][]Button{
		{{Label: "🏬 Qabul qiluvchi ombor", SwitchInline: "warehouse "}},
		{cancelButton(purchaseCreatePrefix)},
	}
	return msgKB(chatID, "Qabul qilingan tovarlar qaysi omborga keladi?", kb)
}

func promptRejectedWarehouse(chatID int64) Action {
	kb := [][]Button{
		{{Label: "🏬 Qaytarilgan omborni tanlash", SwitchInline: "warehouse "}},
		{skipButton(purchaseCreatePrefix)},
		{cancelButton(purchaseCreatePrefix)},
	}
	return msgKB(chatID, "Rejected Warehouse kerak bo'lsa tanlang, aks holda 'Skip' tugmasini bosing.", kb)
}

func purchaseItemsMarkup() [][]Button {
	return [][]Button{
		{{Label: "📦 Item qidirish", SwitchInline: "pritem "}},
		{{Label: "✅ Receiptni yaratish", Data: purchaseCreatePrefix + ":finish"}},
		{cancelButton(purchaseCreatePrefix)},
	}
}

func purchaseItemsMenu(chatID int64, pr *domain.PurchaseDraft) Action {
	summary := "Hozircha item qo'shilmagan."
	if len(pr.Items) > 0 {
		lines := []string{"Tanlangan itemlar:"}
		for i, it := range pr.Items {
			lines = append(lines, fmt.Sprintf("%d. %s — Qabul: %s (%s)", i+1, it.ItemName, it.AcceptedQty.String(), it.UOM))
		}
		summary = strings.Join(lines, "\n")
	}
	return msgKB(chatID, summary+"\nYangi item qo'shish yoki yakunlash uchun pastdagi tugmalardan foydalaning.", purchaseItemsMarkup())
}

const purchaseRatePrompt = "Narxni kiriting (masalan: 12000). Agar kerak bo'lmasa 0 deb yozing."

func (h *purchaseHandler) HandleMessage(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	f := h.f
	pr := s.Draft.Purchase
	text := strings.TrimSpace(ev.Text)

	save := func() error { return f.advance(ctx, s) }

	switch s.Draft.Stage {
	case domain.StagePRSupplier:
		ref := inline.ParseSupplier(text)
		if ref == nil {
			if ev.FromInline {
				return nil, nil
			}
			return []Action{msg(s.ChatID, "Inline oynadan yetkazib beruvchini tanlang.")}, nil
		}
		pr.Supplier, pr.SupplierName = ref.Code, ref.Label
		s.Draft.Stage = domain.StagePRSupplierNote
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{msg(s.ChatID, ref.Label+" tanlandi."), promptSupplierNote(s.ChatID)}, nil

	case domain.StagePRSupplierNote:
		if IsSkip(text) {
			pr.SupplierNote = ""
		} else {
			pr.SupplierNote = text
		}
		s.Draft.Stage = domain.StagePRDate
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptPostingDate(s.ChatID, purchaseCreatePrefix, pr.PostingDate)}, nil

	case domain.StagePRDate:
		if !IsSkip(text) {
			date, err := ParseDate(text)
			if err != nil {
				return []Action{msg(s.ChatID, "Sana formatini YYYY-MM-DD ko'rinishida yuboring.")}, nil
			}
			pr.PostingDate = date
		}
		s.Draft.Stage = domain.StagePRTime
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptPostingTime(s.ChatID, purchaseCreatePrefix, pr.PostingTime)}, nil

	case domain.StagePRTime:
		if !IsSkip(text) {
			clock, err := ParseClock(text)
			if err != nil {
				return []Action{msg(s.ChatID, "Vaqt formatini HH:MM ko'rinishida yuboring.")}, nil
			}
			pr.PostingTime = clock
		}
		s.Draft.Stage = domain.StagePRPutaway
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptPutaway(s.ChatID)}, nil

	case domain.StagePRPutaway:
		decision, ok := ParseYesNo(text)
		if !ok {
			return []Action{msg(s.ChatID, "Iltimos 'ha' yoki 'yo'q' deb yozing.")}, nil
		}
		pr.ApplyPutawayRule = decision
		s.Draft.Stage = domain.StagePRIsReturn
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptPurchaseReturn(s.ChatID)}, nil

	case domain.StagePRIsReturn:
		decision, ok := ParseYesNo(text)
		if !ok {
			return []Action{msg(s.ChatID, "Iltimos 'ha' yoki 'yo'q' deb yozing.")}, nil
		}
		pr.IsReturn = decision
		s.Draft.Stage = domain.StagePRAcceptedWH
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptAcceptedWarehouse(s.ChatID)}, nil

	case domain.StagePRAcceptedWH:
		ref := inline.ParseWarehouse(text)
		if ref == nil {
			if ev.FromInline {
				return nil, nil
			}
			return []Action{msg(s.ChatID, "Inline oynadan ombor tanlang.")}, nil
		}
		pr.AcceptedWarehouse = ref.Code
		s.Draft.Stage = domain.StagePRRejectedWH
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{
			msg(s.ChatID, ref.Label+" qabul qiluvchi ombor sifatida tanlandi."),
			promptRejectedWarehouse(s.ChatID),
		}, nil

	case domain.StagePRRejectedWH:
		var acts []Action
		switch {
		case IsSkip(text) && !ev.FromInline:
			pr.RejectedWarehouse = ""
		default:
			ref := inline.ParseWarehouse(text)
			if ref == nil {
				if ev.FromInline {
					return nil, nil
				}
				return []Action{msg(s.ChatID, "Inline oynadan ombor tanlang yoki 'skip' deb yozing.")}, nil
			}
			pr.RejectedWarehouse = ref.Code
			acts = append(acts, msg(s.ChatID, ref.Label+" rejected ombor sifatida tanlandi."))
		}
		s.Draft.Stage = domain.StagePRItemsMenu
		if err := save(); err != nil {
			return nil, err
		}
		return append(acts, purchaseItemsMenu(s.ChatID, pr)), nil

	case domain.StagePRItemsMenu:
		ref := inline.ParseItem(inline.TagPurchaseItem, text, true)
		if ref == nil {
			if ev.FromInline {
				return nil, nil
			}
			return []Action{msg(s.ChatID, "Item tanlash uchun inline tugmasidan foydalaning.")}, nil
		}
		pr.Pending = &domain.PurchaseItem{ItemCode: ref.Code, ItemName: ref.Name, UOM: ref.UOM}
		s.Draft.Stage = domain.StagePRItemQty
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{msgKB(s.ChatID, ref.Name+" uchun qabul qilingan miqdorni kiriting.", cancelMarkup(purchaseCreatePrefix))}, nil

	case domain.StagePRItemQty:
		qty, err := ParseQty(text)
		if err != nil {
			return []Action{msg(s.ChatID, "Miqdor noto'g'ri. Masalan: 25")}, nil
		}
		if !qty.IsPositive() {
			return []Action{msg(s.ChatID, "Miqdor musbat bo'lishi kerak.")}, nil
		}
		if pr.Pending == nil {
			pr.Pending = &domain.PurchaseItem{}
		}
		pr.Pending.AcceptedQty = qty
		s.Draft.Stage = domain.StagePRItemRejected
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{msgKB(s.ChatID, "Rejected Quantity ni kiriting. Kerak bo'lmasa 'Skip' tugmasini bosing.", skipMarkup(purchaseCreatePrefix))}, nil

	case domain.StagePRItemRejected:
		rejected := decimal.Zero
		if !IsSkip(text) {
			var err error
			rejected, err = ParseQty(text)
			if err != nil {
				return []Action{msg(s.ChatID, "Miqdor noto'g'ri. Masalan: 0 yoki 1.5")}, nil
			}
			if rejected.IsNegative() {
				return []Action{msg(s.ChatID, "Miqdor manfiy bo'lmasligi kerak.")}, nil
			}
		}
		if pr.Pending == nil {
			pr.Pending = &domain.PurchaseItem{}
		}
		pr.Pending.RejectedQty = rejected
		s.Draft.Stage = domain.StagePRItemRate
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{msgKB(s.ChatID, purchaseRatePrompt, cancelMarkup(purchaseCreatePrefix))}, nil

	case domain.StagePRItemRate:
		rate, err := ParseQty(text)
		if err != nil {
			return []Action{msg(s.ChatID, "Narx noto'g'ri. Masalan: 12000")}, nil
		}
		if rate.IsNegative() {
			return []Action{msg(s.ChatID, "Narx manfiy bo'lmasligi kerak.")}, nil
		}
		if pr.Pending == nil {
			return nil, nil
		}
		item := *pr.Pending
		item.Rate = rate
		item.Amount = rate.Mul(item.AcceptedQty)
		pr.Items = append(pr.Items, item)
		pr.Pending = nil
		s.Draft.Stage = domain.StagePRItemsMenu
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{
			msgKB(s.ChatID, item.ItemName+" qo'shildi.", cancelMarkup(purchaseCreatePrefix)),
			purchaseItemsMenu(s.ChatID, pr),
		}, nil
	}

	return []Action{msg(s.ChatID, "Jarayon holati eskirgan. Iltimos, qaytadan boshlang.")}, nil
}

func (h *purchaseHandler) HandleCallback(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	f := h.f
	pr := s.Draft.Purchase
	_, rest, _ := strings.Cut(ev.Data, ":")
	action, value, _ := strings.Cut(rest, ":")

	save := func() error { return f.advance(ctx, s) }

	switch action {
	case "cancel":
		acts := f.cancelDraft(ctx, s)
		return append([]Action{answer("Jarayon bekor qilindi.", false)}, acts...), nil

	case "finish":
		if s.Draft.Stage != domain.StagePRItemsMenu && s.Draft.Stage != domain.StagePRItemRate {
			return []Action{answer("Jarayon hali to'liq emas.", true)}, nil
		}
		if pr.Supplier == "" {
			return []Action{answer("Avval supplier tanlang.", true)}, nil
		}
		if pr.AcceptedWarehouse == "" {
			return []Action{answer("Avval qabul qiluvchi omborni tanlang.", true)}, nil
		}
		if len(pr.Items) == 0 {
			return []Action{answer("Hech bo'lmaganda bitta item qo'shing.", true)}, nil
		}
		s.Draft.Stage = domain.StagePRSubmitting
		if err := save(); err != nil {
			return nil, err
		}
		acts := []Action{
			answer("Yaratilmoqda…", false),
			msg(s.ChatID, "⏳ Purchase Receipt yaratilmoqda..."),
		}
		return append(acts, h.finalize(ctx, s)...), nil

	case "yn":
		decision := value == "yes"
		switch s.Draft.Stage {
		case domain.StagePRPutaway:
			pr.ApplyPutawayRule = decision
			s.Draft.Stage = domain.StagePRIsReturn
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("Tanlandi.", false), promptPurchaseReturn(s.ChatID)}, nil
		case domain.StagePRIsReturn:
			pr.IsReturn = decision
			s.Draft.Stage = domain.StagePRAcceptedWH
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("Tanlandi.", false), promptAcceptedWarehouse(s.ChatID)}, nil
		}
		return []Action{answer("Bu bosqichda ha/yo'q tugmasi mavjud emas.", true)}, nil

	case "skip":
		switch s.Draft.Stage {
		case domain.StagePRSupplierNote:
			pr.SupplierNote = ""
			s.Draft.Stage = domain.StagePRDate
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("O'tkazildi.", false), promptPostingDate(s.ChatID, purchaseCreatePrefix, pr.PostingDate)}, nil
		case domain.StagePRDate:
			s.Draft.Stage = domain.StagePRTime
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("O'tkazildi.", false), promptPostingTime(s.ChatID, purchaseCreatePrefix, pr.PostingTime)}, nil
		case domain.StagePRTime:
			s.Draft.Stage = domain.StagePRPutaway
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("O'tkazildi.", false), promptPutaway(s.ChatID)}, nil
		case domain.StagePRRejectedWH:
			pr.RejectedWarehouse = ""
			s.Draft.Stage = domain.StagePRItemsMenu
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("O'tkazildi.", false), purchaseItemsMenu(s.ChatID, pr)}, nil
		case domain.StagePRItemRejected:
			if pr.Pending == nil {
				pr.Pending = &domain.PurchaseItem{}
			}
			pr.Pending.RejectedQty = decimal.Zero
			s.Draft.Stage = domain.StagePRItemRate
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{
				answer("O'tkazildi.", false),
				msgKB(s.ChatID, purchaseRatePrompt, cancelMarkup(purchaseCreatePrefix)),
			}, nil
		}
		return []Action{answer("Bu bosqichda Skip tugmasi mavjud emas.", true)}, nil
	}

	return []Action{answer("Noma'lum tanlov.", true)}, nil
}

// finalize submits the receipt. Gateway rejection rewinds the draft to
// the items menu so nothing already collected is lost.
func (h *purchaseHandler) finalize(ctx context.Context, s *Session) []Action {
	f := h.f
	pr := s.Draft.Purchase
	if pr.Supplier == "" || pr.AcceptedWarehouse == "" || len(pr.Items) == 0 {
		s.Draft.Stage = domain.StagePRItemsMenu
		if err := f.Repo.SaveDraft(ctx, s.User.ID, *s.Draft); err != nil {
			f.Log.Error().Int64("user", s.User.ID).Err(err).Msg("rewind draft save failed")
		}
		return []Action{msgKB(s.ChatID, "Ma'lumotlar yetarli emas. Supplier, ombor va kamida 1 ta item tanlang.", cancelMarkup(purchaseCreatePrefix))}
	}

	items := make([]erp.PurchaseReceiptItemInput, 0, len(pr.Items))
	for _, it := range pr.Items {
		accepted := it.AcceptedQty.InexactFloat64()
		rejected := it.RejectedQty.InexactFloat64()
		row := erp.PurchaseReceiptItemInput{
			ItemCode:    it.ItemCode,
			ItemName:    it.ItemName,
			Qty:         accepted,
			ReceivedQty: accepted + rejected,
			AcceptedQty: accepted,
			RejectedQty: rejected,
			Warehouse:   pr.AcceptedWarehouse,
			UOM:         it.UOM,
			Rate:        it.Rate.InexactFloat64(),
			Amount:      it.Amount.InexactFloat64(),
		}
		if pr.RejectedWarehouse != "" {
			row.RejectedWarehouse = pr.RejectedWarehouse
		}
		items = append(items, row)
	}
	input := erp.PurchaseReceiptInput{
		Supplier:             pr.Supplier,
		PostingDate:          pr.PostingDate,
		PostingTime:          pr.PostingTime,
		SupplierDeliveryNote: pr.SupplierNote,
		ApplyPutawayRule:     boolToInt(pr.ApplyPutawayRule),
		IsReturn:             boolToInt(pr.IsReturn),
		SetWarehouse:         pr.AcceptedWarehouse,
		Company:              f.Cfg.ERP.Company,
		NamingSeries:         f.Cfg.Series.PurchaseReceipt,
		Items:                items,
	}

	docname, err := f.Gateway.CreatePurchaseReceipt(ctx, s.Creds, input)
	if err != nil {
		s.Draft.Stage = domain.StagePRItemsMenu
		if saveErr := f.Repo.SaveDraft(ctx, s.User.ID, *s.Draft); saveErr != nil {
			f.Log.Error().Int64("user", s.User.ID).Err(saveErr).Msg("rewind draft save failed")
		}
		f.audit(ctx, events.DraftFailed, s.User.ID, "", events.EventPayload{"kind": domain.KindPurchase, "error": erp.ErrorDetail(err)})
		text := erp.FormatCreateError(err) + "\nJarayonni davom ettirish yoki bekor qilish mumkin."
		return []Action{msgKB(s.ChatID, text, cancelMarkup(purchaseCreatePrefix))}
	}

	_ = f.Repo.DeleteDraft(ctx, s.User.ID)
	s.Draft = nil
	f.audit(ctx, events.DocumentCreated, s.User.ID, docname, events.EventPayload{"doctype": erp.DoctypePurchaseReceipt})

	supplier := pr.SupplierName
	if supplier == "" {
		supplier = pr.Supplier
	}
	if docname == "" {
		docname = "ERPNext"
	}
	text := fmt.Sprintf("✅ Purchase Receipt yaratildi.\nNom: %s\nSupplier: %s\nOmbor: %s\nItemlar soni: %d",
		docname, supplier, pr.AcceptedWarehouse, len(pr.Items))
	return []Action{msg(s.ChatID, text)}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
