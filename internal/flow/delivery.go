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

// deliveryHandler drives the multi-item delivery note flow.
type deliveryHandler struct {
	f *Flow
}

func (h *deliveryHandler) Kind() domain.DraftKind { return domain.KindDelivery }

func (f *Flow) startDelivery(ctx context.Context, s *Session) ([]Action, error) {
	now := f.now().UTC()
	draft := domain.Draft{
		Kind:  domain.KindDelivery,
		Stage: domain.StageDNCustomer,
		Delivery: &domain.DeliveryDraft{
			PostingDate: now.Format("2006-01-02"),
			PostingTime: now.Format("15:04"),
		},
	}
	if err := f.Repo.SaveDraft(ctx, s.User.ID, draft); err != nil {
		return nil, err
	}
	s.Draft = &draft
	f.audit(ctx, events.DraftStarted, s.User.ID, erp.DoctypeDeliveryNote, events.EventPayload{"kind": domain.KindDelivery})

	intro := fmt.Sprintf("🚚 Yangi chiqim hujjati (Delivery Note) seriyasi: %s\nSana: %s %s\nAvval mijozni tanlang.",
		f.Cfg.Series.DeliveryNote, draft.Delivery.PostingDate, draft.Delivery.PostingTime)
	return []Action{
		answer("", false),
		msg(s.ChatID, intro),
		promptDeliveryCustomer(s.ChatID),
	}, nil
}

func deliverySkipMarkup() [][]Button {
	return [][]Button{
		{{Label: "⏭ O'tkazib yuborish", Data: deliveryCreatePrefix + ":skip"}},
		{cancelButton(deliveryCreatePrefix)},
	}
}

func promptDeliveryCustomer(chatID int64) Action {
	kb := [][]Button{
		{{Label: "👤 Mijoz qidirish", SwitchInline: "dncustomer "}},
		{cancelButton(deliveryCreatePrefix)},
	}
	return msgKB(chatID, "Mijozni tanlang. Inline qidiruvdan foydalaning.", kb)
}

func promptDeliveryDate(chatID int64, current string) Action {
	text := fmt.Sprintf("Posting sanasi hozir %s.\nO'zgartirmoqchi bo'lsangiz YYYY-MM-DD formatida yuboring yoki \"O'tkazib yuborish\"ni bosing.", current)
	return msgKB(chatID, text, deliverySkipMarkup())
}

func promptDeliveryTime(chatID int64, current string) Action {
	text := fmt.Sprintf("Posting vaqti hozir %s.\nHH:MM formatida yuboring yoki \"O'tkazib yuborish\"ni bosing.", current)
	return msgKB(chatID, text, deliverySkipMarkup())
}

func promptDeliveryReturn(chatID int64) Action {
	return msgKB(chatID, "Bu qaytariluvchi chiqim hujjatimi?", yesNoMarkup(deliveryCreatePrefix))
}

func promptDeliverySourceWarehouse(chatID int64) Action {
	kb := [][]Button{
		{{Label: "🏬 Ombor tanlash", SwitchInline: "warehouse "}},
		{cancelButton(deliveryCreatePrefix)},
	}
	return msgKB(chatID, "Qaysi ombordan chiqarilyapti?", kb)
}

func deliveryItemsMarkup() [][]Button {
	return [][]Button{
		{{Label: "📦 Buyum qidirish", SwitchInline: "dnitem "}},
		{{Label: "✅ Rasmiylashtirishni yakunlash", Data: deliveryCreatePrefix + ":finish"}},
		{cancelButton(deliveryCreatePrefix)},
	}
}

func deliveryItemsMenu(chatID int64, dn *domain.DeliveryDraft) Action {
	summary := "Hozircha item qo'shilmagan."
	if len(dn.Items) > 0 {
		lines := []string{"Tanlangan itemlar:"}
		for i, it := range dn.Items {
			lines = append(lines, fmt.Sprintf("%d. %s — %s %s (Narx: %s)", i+1, it.ItemName, it.Qty.String(), it.UOM, it.Rate.String()))
		}
		summary = strings.Join(lines, "\n")
	}
	return msgKB(chatID, summary+"\nYangi item qo'shish yoki hujjatni yakunlash uchun pastdagi tugmalardan foydalaning.", deliveryItemsMarkup())
}

func (h *deliveryHandler) HandleMessage(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	f := h.f
	dn := s.Draft.Delivery
	text := strings.TrimSpace(ev.Text)

	save := func() error { return f.advance(ctx, s) }

	switch s.Draft.Stage {
	case domain.StageDNCustomer:
		ref := inline.ParseCustomer(text)
		if ref == nil {
			if ev.FromInline {
				return nil, nil
			}
			return []Action{msg(s.ChatID, "Inline oynadan mijozni tanlang.")}, nil
		}
		dn.Customer, dn.CustomerName = ref.Code, ref.Label
		s.Draft.Stage = domain.StageDNDate
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{
			msg(s.ChatID, ref.Label+" tanlandi."),
			promptDeliveryDate(s.ChatID, dn.PostingDate),
		}, nil

	case domain.StageDNDate:
		if !IsSkipDelivery(text) {
			date, err := ParseDate(text)
			if err != nil {
				return []Action{msg(s.ChatID, "Sana formatini YYYY-MM-DD ko'rinishida yuboring.")}, nil
			}
			dn.PostingDate = date
		}
		s.Draft.Stage = domain.StageDNTime
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptDeliveryTime(s.ChatID, dn.PostingTime)}, nil

	case domain.StageDNTime:
		if !IsSkipDelivery(text) {
			clock, err := ParseClock(text)
			if err != nil {
				return []Action{msg(s.ChatID, "Vaqt formatini HH:MM ko'rinishida yuboring.")}, nil
			}
			dn.PostingTime = clock
		}
		s.Draft.Stage = domain.StageDNIsReturn
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptDeliveryReturn(s.ChatID)}, nil

	case domain.StageDNIsReturn:
		decision, ok := ParseYesNo(text)
		if !ok {
			return []Action{msg(s.ChatID, "Iltimos 'ha' yoki 'yo'q' deb yozing.")}, nil
		}
		dn.IsReturn = decision
		s.Draft.Stage = domain.StageDNSourceWH
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{promptDeliverySourceWarehouse(s.ChatID)}, nil

	case domain.StageDNSourceWH:
		ref := inline.ParseWarehouse(text)
		if ref == nil {
			if ev.FromInline {
				return nil, nil
			}
			return []Action{msg(s.ChatID, "Inline oynadan omborni tanlang.")}, nil
		}
		dn.SourceWarehouse = ref.Code
		s.Draft.Stage = domain.StageDNItemsMenu
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{
			msg(s.ChatID, ref.Label+" tanlandi."),
			deliveryItemsMenu(s.ChatID, dn),
		}, nil

	case domain.StageDNItemsMenu:
		ref := inline.ParseItem(inline.TagDeliveryItem, text, true)
		if ref == nil {
			if ev.FromInline {
				return nil, nil
			}
			return []Action{msg(s.ChatID, "Buyum tanlash uchun inline tugmasidan foydalaning.")}, nil
		}
		dn.Pending = &domain.DeliveryItem{ItemCode: ref.Code, ItemName: ref.Name, UOM: ref.UOM}
		s.Draft.Stage = domain.StageDNItemQty
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{msgKB(s.ChatID, ref.Name+" uchun miqdorni kiriting.", cancelMarkup(deliveryCreatePrefix))}, nil

	case domain.StageDNItemQty:
		qty, err := ParseQty(text)
		if err != nil {
			return []Action{msg(s.ChatID, "Miqdor noto'g'ri. Masalan: 25")}, nil
		}
		if !qty.IsPositive() {
			return []Action{msg(s.ChatID, "Miqdor musbat bo'lishi kerak.")}, nil
		}
		if dn.Pending == nil {
			dn.Pending = &domain.DeliveryItem{}
		}
		dn.Pending.Qty = qty
		s.Draft.Stage = domain.StageDNItemRate
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{msgKB(s.ChatID, "Narxni kiriting (masalan: 12000). Kerak bo'lmasa 0 deb yozing yoki 'skip'.", cancelMarkup(deliveryCreatePrefix))}, nil

	case domain.StageDNItemRate:
		rate := decimal.Zero
		if !IsSkipDelivery(text) {
			var err error
			rate, err = ParseQty(text)
			if err != nil {
				return []Action{msg(s.ChatID, "Narx noto'g'ri. Masalan: 12000")}, nil
			}
			if rate.IsNegative() {
				return []Action{msg(s.ChatID, "Narx manfiy bo'lmasligi kerak.")}, nil
			}
		}
		if dn.Pending == nil {
			return nil, nil
		}
		item := *dn.Pending
		item.Rate = rate
		item.Amount = rate.Mul(item.Qty)
		dn.Items = append(dn.Items, item)
		dn.Pending = nil
		s.Draft.Stage = domain.StageDNItemsMenu
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{
			msgKB(s.ChatID, item.ItemName+" qo'shildi.", cancelMarkup(deliveryCreatePrefix)),
			deliveryItemsMenu(s.ChatID, dn),
		}, nil
	}

	return []Action{msg(s.ChatID, "Jarayon holati eskirgan. Iltimos, qaytadan boshlang.")}, nil
}

func (h *deliveryHandler) HandleCallback(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	f := h.f
	dn := s.Draft.Delivery
	_, rest, _ := strings.Cut(ev.Data, ":")
	action, value, _ := strings.Cut(rest, ":")

	save := func() error { return f.advance(ctx, s) }

	switch action {
	case "cancel":
		acts := f.cancelDraft(ctx, s)
		return append([]Action{answer("Jarayon bekor qilindi.", false)}, acts...), nil

	case "finish":
		if dn.Customer == "" {
			return []Action{answer("Avval mijoz tanlang.", true)}, nil
		}
		if dn.SourceWarehouse == "" {
			return []Action{answer("Avval omborni tanlang.", true)}, nil
		}
		if len(dn.Items) == 0 {
			return []Action{answer("Hech bo'lmaganda bitta buyum qo'shing.", true)}, nil
		}
		s.Draft.Stage = domain.StageDNSubmitting
		if err := save(); err != nil {
			return nil, err
		}
		acts := []Action{
			answer("Yaratilmoqda…", false),
			msg(s.ChatID, "⏳ Chiqqan mahsulot hujjati yaratilmoqda..."),
		}
		return append(acts, h.finalize(ctx, s)...), nil

	case "yn":
		if s.Draft.Stage != domain.StageDNIsReturn {
			return []Action{answer("Bu bosqichda Ha/Yo'q tugmalari mavjud emas.", true)}, nil
		}
		dn.IsReturn = value == "yes"
		s.Draft.Stage = domain.StageDNSourceWH
		if err := save(); err != nil {
			return nil, err
		}
		return []Action{answer("Tanlandi.", false), promptDeliverySourceWarehouse(s.ChatID)}, nil

	case "skip":
		switch s.Draft.Stage {
		case domain.StageDNDate:
			s.Draft.Stage = domain.StageDNTime
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("O'tkazildi.", false), promptDeliveryTime(s.ChatID, dn.PostingTime)}, nil
		case domain.StageDNTime:
			s.Draft.Stage = domain.StageDNIsReturn
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{answer("O'tkazildi.", false), promptDeliveryReturn(s.ChatID)}, nil
		case domain.StageDNItemRate:
			if dn.Pending == nil {
				return []Action{answer("Buyum topilmadi.", true)}, nil
			}
			item := *dn.Pending
			item.Rate = decimal.Zero
			item.Amount = decimal.Zero
			dn.Items = append(dn.Items, item)
			dn.Pending = nil
			s.Draft.Stage = domain.StageDNItemsMenu
			if err := save(); err != nil {
				return nil, err
			}
			return []Action{
				answer("0 narx bilan qo'shildi.", false),
				msgKB(s.ChatID, "Buyum qo'shildi.", cancelMarkup(deliveryCreatePrefix)),
				deliveryItemsMenu(s.ChatID, dn),
			}, nil
		}
		return []Action{answer("Bu bosqichda o'tkazib yuborish tugmasi mavjud emas.", true)}, nil
	}

	return []Action{answer("Noma'lum tanlov.", true)}, nil
}

// finalize submits the note. On success the created document is fetched
// back so the confirmation carries live totals and lifecycle buttons;
// rejection rewinds to the items menu.
func (h *deliveryHandler) finalize(ctx context.Context, s *Session) []Action {
	f := h.f
	dn := s.Draft.Delivery
	if dn.Customer == "" || dn.SourceWarehouse == "" || len(dn.Items) == 0 {
		s.Draft.Stage = domain.StageDNItemsMenu
		if err := f.Repo.SaveDraft(ctx, s.User.ID, *s.Draft); err != nil {
			f.Log.Error().Int64("user", s.User.ID).Err(err).Msg("rewind draft save failed")
		}
		return []Action{msgKB(s.ChatID, "Ma'lumotlar yetarli emas. Mijoz, ombor va kamida bitta buyumni tanlang.", cancelMarkup(deliveryCreatePrefix))}
	}

	items := make([]erp.DeliveryNoteItemInput, 0, len(dn.Items))
	for _, it := range dn.Items {
		items = append(items, erp.DeliveryNoteItemInput{
			ItemCode:  it.ItemCode,
			ItemName:  it.ItemName,
			Qty:       it.Qty.InexactFloat64(),
			UOM:       it.UOM,
			Rate:      it.Rate.InexactFloat64(),
			Amount:    it.Amount.InexactFloat64(),
			Warehouse: dn.SourceWarehouse,
		})
	}
	input := erp.DeliveryNoteInput{
		Customer:     dn.Customer,
		PostingDate:  dn.PostingDate,
		PostingTime:  dn.PostingTime,
		Company:      f.Cfg.ERP.Company,
		SetWarehouse: dn.SourceWarehouse,
		IsReturn:     boolToInt(dn.IsReturn),
		NamingSeries: f.Cfg.Series.DeliveryNote,
		Items:        items,
	}

	docname, err := f.Gateway.CreateDeliveryNote(ctx, s.Creds, input)
	if err != nil {
		s.Draft.Stage = domain.StageDNItemsMenu
		if saveErr := f.Repo.SaveDraft(ctx, s.User.ID, *s.Draft); saveErr != nil {
			f.Log.Error().Int64("user", s.User.ID).Err(saveErr).Msg("rewind draft save failed")
		}
		f.audit(ctx, events.DraftFailed, s.User.ID, "", events.EventPayload{"kind": domain.KindDelivery, "error": erp.ErrorDetail(err)})
		text := erp.FormatCreateError(err) + "\nJarayonni davom ettirish yoki bekor qilish mumkin."
		return []Action{msgKB(s.ChatID, text, cancelMarkup(deliveryCreatePrefix))}
	}

	_ = f.Repo.DeleteDraft(ctx, s.User.ID)
	s.Draft = nil
	f.audit(ctx, events.DocumentCreated, s.User.ID, docname, events.EventPayload{"doctype": erp.DoctypeDeliveryNote})

	if docname != "" {
		if detail, detailErr := f.Gateway.DeliveryNoteDetail(ctx, s.Creds, docname); detailErr == nil {
			return []Action{msgKB(s.ChatID, formatDeliveryNote(detail), deliveryActionButtons(detail))}
		}
	}
	customer := dn.CustomerName
	if customer == "" {
		customer = dn.Customer
	}
	if docname == "" {
		docname = "ERPNext"
	}
	text := fmt.Sprintf("✅ Chiqqan mahsulotni rasmiylashtirish yakunlandi.\nNom: %s\nMijoz: %s\nOmbor: %s\nBuyumlar soni: %d",
		docname, customer, dn.SourceWarehouse, len(dn.Items))
	return []Action{msg(s.ChatID, text)}
}
