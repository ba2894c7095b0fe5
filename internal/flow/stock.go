package flow

import (
	"context"
	"fmt"
	"strings"

	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/events"
	"stockbot/internal/inline"
)

// movementOption binds a movement key to its ERPNext stock entry type
// and to which side of the movement the single warehouse sits on.
type movementOption struct {
	Label     string
	EntryType string
	Target    bool // warehouse receives the goods
}

var movementOptions = map[string]movementOption{
	"receipt": {Label: "Material kiridi", EntryType: "Material Receipt", Target: true},
	"issue":   {Label: "Material chiqdi", EntryType: "Material Issue", Target: false},
}

// stockHandler drives the single-item stock entry flow: movement type,
// item, warehouse, quantity, submit.
type stockHandler struct {
	f *Flow
}

func (h *stockHandler) Kind() domain.DraftKind { return domain.KindStock }

func (f *Flow) startStock(ctx context.Context, s *Session) ([]Action, error) {
	draft := domain.Draft{
		Kind:  domain.KindStock,
		Stage: domain.StageAwaitType,
		Stock: &domain.StockDraft{},
	}
	if err := f.Repo.SaveDraft(ctx, s.User.ID, draft); err != nil {
		return nil, err
	}
	s.Draft = &draft
	f.audit(ctx, events.DraftStarted, s.User.ID, erp.DoctypeStockEntry, events.EventPayload{"kind": domain.KindStock})

	intro := fmt.Sprintf("📄 Yangi Stock Entry seriyasi: %s\nIltimos, harakat turini tanlang.\nJarayonni to'xtatish uchun 'Bekor qilish' tugmasidan foydalanishingiz mumkin.",
		f.Cfg.Series.StockEntry)
	return []Action{
		answer("", false),
		msg(s.ChatID, intro),
		msgKB(s.ChatID, "Harakat turini tanlang:", movementMarkup()),
	}, nil
}

func movementMarkup() [][]Button {
	kb := [][]Button{
		{{Label: movementOptions["receipt"].Label, Data: entryCreatePrefix + ":type:receipt"}},
		{{Label: movementOptions["issue"].Label, Data: entryCreatePrefix + ":type:issue"}},
	}
	return append(kb, []Button{cancelButton(entryCreatePrefix)})
}

func (h *stockHandler) HandleCallback(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	f := h.f
	_, rest, _ := strings.Cut(ev.Data, ":")
	action, value, _ := strings.Cut(rest, ":")

	switch action {
	case "cancel":
		acts := f.cancelDraft(ctx, s)
		return append([]Action{answer("Jarayon bekor qilindi.", false)}, acts...), nil
	case "type":
		opt, ok := movementOptions[value]
		if !ok {
			return []Action{answer("Noto'g'ri tur tanlandi.", true)}, nil
		}
		st := s.Draft.Stock
		st.MovementType = opt.EntryType
		st.ItemCode, st.ItemName, st.UOM = "", "", ""
		st.SourceWarehouse, st.TargetWarehouse = "", ""
		s.Draft.Stage = domain.StageAwaitItem
		if err := f.advance(ctx, s); err != nil {
			return nil, err
		}
		return []Action{
			answer(opt.Label+" tanlandi.", false),
			promptEntryItem(s.ChatID),
		}, nil
	}
	return []Action{answer("Noma'lum tanlov.", true)}, nil
}

func promptEntryItem(chatID int64) Action {
	kb := [][]Button{
		{{Label: "📦 Item oynasini ochish", SwitchInline: "entryitem "}},
		{cancelButton(entryCreatePrefix)},
	}
	return msgKB(chatID, "Qaysi item keldi/ketyapti?\nInline menyudan tanlagach xabar shu chatda paydo bo'ladi.", kb)
}

func promptEntryWarehouse(chatID int64, target bool) Action {
	prompt := "Qaysi ombordan chiqyapti?"
	if target {
		prompt = "Qaysi omborga kelgan?"
	}
	kb := [][]Button{
		{{Label: "🏬 Ombor oynasini ochish", SwitchInline: "entrywarehouse "}},
		{cancelButton(entryCreatePrefix)},
	}
	return msgKB(chatID, prompt, kb)
}

func (h *stockHandler) HandleMessage(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	f := h.f
	st := s.Draft.Stock
	text := strings.TrimSpace(ev.Text)

	switch s.Draft.Stage {
	case domain.StageAwaitType:
		return []Action{msgKB(s.ChatID, "Harakat turini tanlang:", movementMarkup())}, nil

	case domain.StageAwaitItem:
		ref := inline.ParseItem(inline.TagEntryItem, text, false)
		if ref == nil {
			return []Action{msg(s.ChatID, "Inline menyudan item tanlab shu chatga yuboring. Xabar tarkibida \"Item Code:\" bo'lishi kerak.")}, nil
		}
		st.ItemCode, st.ItemName, st.UOM = ref.Code, ref.Name, ref.UOM
		s.Draft.Stage = domain.StageAwaitWarehouse
		if err := f.advance(ctx, s); err != nil {
			return nil, err
		}
		return []Action{
			msg(s.ChatID, ref.Name+" tanlandi."),
			promptEntryWarehouse(s.ChatID, h.targetRole(st)),
		}, nil

	case domain.StageAwaitWarehouse:
		ref := inline.ParseWarehouse(text)
		if ref == nil {
			return []Action{msg(s.ChatID, "Inline menyudan ombor tanlab shu chatga yuboring. Xabar ichida ombor nomi ko'rinishi kerak.")}, nil
		}
		target := h.targetRole(st)
		if target {
			st.TargetWarehouse = ref.Code
		} else {
			st.SourceWarehouse = ref.Code
		}
		s.Draft.Stage = domain.StageAwaitQty
		if err := f.advance(ctx, s); err != nil {
			return nil, err
		}
		prompt := "Qancha miqdorda chiqayotganini kiriting. Masalan: 10"
		if target {
			prompt = "Qancha miqdorda kelganini kiriting. Masalan: 25"
		}
		return []Action{msgKB(s.ChatID, ref.Code+" tanlandi.\n"+prompt, cancelMarkup(entryCreatePrefix))}, nil

	case domain.StageAwaitQty:
		qty, err := ParseQty(text)
		if err != nil {
			return []Action{msgKB(s.ChatID, "Miqdor noto'g'ri. Masalan: 12.5\nJarayonni to'xtatish uchun 'Bekor qilish' tugmasini tanlang.", cancelMarkup(entryCreatePrefix))}, nil
		}
		if !qty.IsPositive() {
			return []Action{msgKB(s.ChatID, "Miqdor musbat bo'lishi kerak.\nJarayonni to'xtatish uchun 'Bekor qilish' tugmasini tanlang.", cancelMarkup(entryCreatePrefix))}, nil
		}
		st.Qty = qty
		s.Draft.Stage = domain.StageSubmitting
		if err := f.advance(ctx, s); err != nil {
			return nil, err
		}
		acts := []Action{msg(s.ChatID, "⏳ Stock Entry yaratilmoqda...")}
		return append(acts, h.finalize(ctx, s)...), nil
	}

	return []Action{msg(s.ChatID, "Jarayon holati eskirgan. Iltimos, qaytadan boshlang.")}, nil
}

func (h *stockHandler) targetRole(st *domain.StockDraft) bool {
	return st.MovementType != movementOptions["issue"].EntryType
}

// finalize builds the single-item payload and submits it. On a gateway
// rejection the draft rewinds to the quantity stage so the user can
// retry without restarting.
func (h *stockHandler) finalize(ctx context.Context, s *Session) []Action {
	f := h.f
	st := s.Draft.Stock
	target := h.targetRole(st)
	warehouse := st.SourceWarehouse
	if target {
		warehouse = st.TargetWarehouse
	}
	if st.ItemCode == "" || warehouse == "" || !st.Qty.IsPositive() || st.MovementType == "" {
		_ = f.Repo.DeleteDraft(ctx, s.User.ID)
		s.Draft = nil
		return []Action{msg(s.ChatID, "Jarayon ma'lumotlari yetarli emas. Iltimos, /entry orqali qaytadan boshlang.")}
	}

	uom := st.UOM
	if uom == "" || uom == "-" {
		uom = "Nos"
	}
	item := erp.StockEntryItemInput{
		ItemCode: st.ItemCode,
		ItemName: st.ItemName,
		Qty:      st.Qty.InexactFloat64(),
		UOM:      uom,
		StockUOM: uom,
	}
	input := erp.StockEntryInput{
		Company:        f.Cfg.ERP.Company,
		StockEntryType: st.MovementType,
		NamingSeries:   f.Cfg.Series.StockEntry,
		Items:          []erp.StockEntryItemInput{item},
	}
	if target {
		input.Items[0].TargetWarehouse = warehouse
		input.ToWarehouse = warehouse
	} else {
		input.Items[0].SourceWarehouse = warehouse
		input.FromWarehouse = warehouse
	}

	docname, err := f.Gateway.CreateStockEntry(ctx, s.Creds, input)
	if err != nil {
		s.Draft.Stage = domain.StageAwaitQty
		if saveErr := f.Repo.SaveDraft(ctx, s.User.ID, *s.Draft); saveErr != nil {
			f.Log.Error().Int64("user", s.User.ID).Err(saveErr).Msg("rewind draft save failed")
		}
		f.audit(ctx, events.DraftFailed, s.User.ID, "", events.EventPayload{"kind": domain.KindStock, "error": erp.ErrorDetail(err)})
		text := erp.FormatCreateError(err) +
			"\n\nYangi miqdor yuboring yoki jarayonni to'xtatish uchun 'Bekor qilish' tugmasidan foydalaning."
		return []Action{msgKB(s.ChatID, text, cancelMarkup(entryCreatePrefix))}
	}

	_ = f.Repo.DeleteDraft(ctx, s.User.ID)
	s.Draft = nil
	f.audit(ctx, events.DocumentCreated, s.User.ID, docname, events.EventPayload{"doctype": erp.DoctypeStockEntry})

	label := movementOptions["receipt"].Label
	if !target {
		label = movementOptions["issue"].Label
	}
	if docname == "" {
		docname = "ERPNext"
	}
	text := fmt.Sprintf("✅ Stock Entry yaratildi.\nNom: %s\nTur: %s\nItem: %s (%s)\nOmbor: %s\nMiqdor: %s",
		docname, label, st.ItemName, st.ItemCode, warehouse, st.Qty.String())
	return []Action{msg(s.ChatID, text)}
}
