package flow

import (
	"context"
	"fmt"

	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/events"
	"stockbot/internal/inline"
)

type docOp int

const (
	actionApprove docOp = iota
	actionCancel
	actionDelete
)

// confirmHandler waits for the user to pick an existing document via
// the inline approve search, then shows it with lifecycle buttons.
type confirmHandler struct {
	f *Flow
}

func (h *confirmHandler) Kind() domain.DraftKind { return domain.KindConfirm }

func confirmSearchMode(doctype string) (mode, label string) {
	switch doctype {
	case erp.DoctypePurchaseReceipt:
		return "purchaseapprove", "Purchase Receipt"
	case erp.DoctypeDeliveryNote:
		return "deliveryapprove", "Delivery Note"
	}
	return "entryapprove", "Stock Entry"
}

func (f *Flow) startConfirm(ctx context.Context, s *Session, doctype string) ([]Action, error) {
	draft := domain.Draft{
		Kind:    domain.KindConfirm,
		Stage:   domain.StageConfirm,
		Confirm: &domain.ConfirmDraft{Doctype: doctype},
	}
	if err := f.Repo.SaveDraft(ctx, s.User.ID, draft); err != nil {
		return nil, err
	}
	s.Draft = &draft
	f.audit(ctx, events.DraftStarted, s.User.ID, doctype, events.EventPayload{"kind": domain.KindConfirm})

	mode, label := confirmSearchMode(doctype)
	kb := [][]Button{{{Label: "📋 " + label + " oynasini ochish", SwitchInline: mode}}}
	return []Action{
		answer("Inline oynani oching.", false),
		msgKB(s.ChatID, "Tasdiqlash uchun quyidagi oynani ochib qidiruvdan foydalaning.", kb),
	}, nil
}

func (h *confirmHandler) HandleMessage(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	f := h.f
	doctype := erp.DoctypeStockEntry
	if s.Draft.Confirm != nil && s.Draft.Confirm.Doctype != "" {
		doctype = s.Draft.Confirm.Doctype
	}

	var trackPrefix string
	switch doctype {
	case erp.DoctypePurchaseReceipt:
		trackPrefix = inline.PurchaseApprovePrefix
	case erp.DoctypeDeliveryNote:
		trackPrefix = inline.DeliveryApprovePrefix
	default:
		trackPrefix = inline.EntryApprovePrefix
	}
	docname := inline.ParseApproval(trackPrefix, ev.Text)
	if docname == "" {
		_, label := confirmSearchMode(doctype)
		return []Action{msg(s.ChatID, "Hujjat topilmadi. Inline qidiruvdan " + label + " tanlang yoki /cancel deb yozing.")}, nil
	}

	var (
		text string
		kb   [][]Button
	)
	switch doctype {
	case erp.DoctypePurchaseReceipt:
		receipt, err := f.Gateway.PurchaseReceiptDetail(ctx, s.Creds, docname)
		if err != nil {
			return []Action{msg(s.ChatID, "Tasdiqlashda xatolik:\n"+erp.ErrorDetail(err))}, nil
		}
		text, kb = formatPurchaseReceipt(receipt), purchaseActionButtons(receipt)
	case erp.DoctypeDeliveryNote:
		note, err := f.Gateway.DeliveryNoteDetail(ctx, s.Creds, docname)
		if err != nil {
			return []Action{msg(s.ChatID, "Tasdiqlashda xatolik:\n"+erp.ErrorDetail(err))}, nil
		}
		text, kb = formatDeliveryNote(note), deliveryActionButtons(note)
	default:
		entry, err := f.Gateway.StockEntryDetail(ctx, s.Creds, docname)
		if err != nil {
			return []Action{msg(s.ChatID, "Tasdiqlashda xatolik:\n"+erp.ErrorDetail(err))}, nil
		}
		text, kb = formatStockEntry(entry), entryActionButtons(entry)
	}

	_ = f.Repo.DeleteDraft(ctx, s.User.ID)
	s.Draft = nil
	return []Action{msgKB(s.ChatID, text, kb)}, nil
}

func (h *confirmHandler) HandleCallback(ctx context.Context, s *Session, ev Event) ([]Action, error) {
	return []Action{answer("Noma'lum tanlov.", true)}, nil
}

// docAction runs one lifecycle action against an existing document and
// reports the outcome both as a callback answer and a chat message.
func (f *Flow) docAction(ctx context.Context, s *Session, doctype string, op docOp, docname string) ([]Action, error) {
	if docname == "" {
		return []Action{answer("Hujjat nomi topilmadi.", true)}, nil
	}
	var (
		err     error
		success string
		label   string
		evtType string
	)
	switch op {
	case actionApprove:
		err = f.Gateway.SubmitDoc(ctx, s.Creds, doctype, docname)
		success = fmt.Sprintf("✅ %s tasdiqlandi.", docname)
		label = docname + " ni tasdiqlash"
		evtType = events.DocumentSubmitted
	case actionCancel:
		err = f.Gateway.CancelDoc(ctx, s.Creds, doctype, docname)
		success = fmt.Sprintf("❌ %s bekor qilindi.", docname)
		label = docname + " ni bekor qilish"
		evtType = events.DocumentCancelled
	default:
		err = f.Gateway.DeleteDoc(ctx, s.Creds, doctype, docname)
		success = fmt.Sprintf("🗑️ %s o'chirildi.", docname)
		label = docname + " ni o'chirish"
		evtType = events.DocumentDeleted
	}
	if err != nil {
		f.Log.Warn().Int64("user", s.User.ID).Str("doc", docname).Err(err).Msg("document action failed")
		return []Action{
			answer("Amal bajarilmadi.", true),
			msg(s.ChatID, erp.FormatActionError(label, err)),
		}, nil
	}
	f.audit(ctx, evtType, s.User.ID, docname, events.EventPayload{"doctype": doctype})
	return []Action{answer(success, false), msg(s.ChatID, success)}, nil
}
