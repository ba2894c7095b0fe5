package flow

import (
	"context"
	"errors"
	"strings"

	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/events"
	"stockbot/internal/inline"
	"stockbot/internal/repo"
)

const (
	menuItems    = "📦 Itemlar"
	menuEntries  = "📋 Harakatlar"
	menuPurchase = "🧾 Purchase Receipt"
	menuDelivery = "🚚 Delivery Note"
	menuClearAPI = "♻️ API ni tozalash"
)

// MainMenu is the persistent reply keyboard layout.
func MainMenu() [][]string {
	return [][]string{
		{menuItems, menuEntries},
		{menuPurchase, menuDelivery},
		{menuClearAPI},
	}
}

// Callback data prefixes. The creation prefixes carry stage actions
// (type, skip, yn, finish, cancel); the lifecycle prefixes carry a
// docname.
const (
	entryCreatePrefix    = "entrycreate"
	purchaseCreatePrefix = "purchasecreate"
	deliveryCreatePrefix = "deliverycreate"

	entryCancelPrefix    = "entry-cancel"
	entryDeletePrefix    = "entry-delete"
	purchaseCancelPrefix = "purchase-cancel"
	purchaseDeletePrefix = "purchase-delete"
	deliveryCancelPrefix = "delivery-cancel"
	deliveryDeletePrefix = "delivery-delete"
)

const needStartText = "Avval /start orqali API kalit va secret ni tasdiqlang."

func cancelButton(prefix string) Button {
	return Button{Label: "❌ Jarayonni bekor qilish", Data: prefix + ":cancel"}
}

func cancelMarkup(prefix string) [][]Button {
	return [][]Button{{cancelButton(prefix)}}
}

func (f *Flow) session(ctx context.Context, ev Event) (*Session, error) {
	user := domain.User{ID: ev.UserID, Username: ev.Username, FirstName: ev.FirstName, LastName: ev.LastName}
	if err := f.Repo.RecordUser(ctx, user); err != nil {
		return nil, err
	}
	s := &Session{User: user, ChatID: ev.ChatID, Status: domain.CredentialPendingKey}
	cred, err := f.Repo.Credentials(ctx, ev.UserID)
	if err == nil {
		s.Status = cred.Status
		s.Creds = erp.Credentials{Key: cred.APIKey, Secret: cred.APISecret}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	draft, err := f.Repo.Draft(ctx, ev.UserID)
	if err == nil {
		s.Draft = &draft
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return s, nil
}

// HandleMessage routes one private text message.
func (f *Flow) HandleMessage(ctx context.Context, ev Event) ([]Action, error) {
	unlock := f.lockUser(ev.UserID)
	defer unlock()

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return nil, nil
	}
	s, err := f.session(ctx, ev)
	if err != nil {
		return nil, err
	}
	stage := "-"
	if s.Draft != nil {
		stage = string(s.Draft.Stage)
	}
	f.Log.Info().
		Int64("user", ev.UserID).
		Str("status", string(s.Status)).
		Str("stage", stage).
		Bool("inline", ev.FromInline).
		Str("text", SafePreview(text)).
		Msg("private message")

	if strings.HasPrefix(text, "/") {
		if acts, handled := f.handleCommand(ctx, s, text); handled {
			return acts, nil
		}
	}

	// Inline-result echoes only matter while a draft is collecting them.
	if ev.FromInline && s.Draft == nil {
		return nil, nil
	}

	if s.Draft != nil {
		if IsCancel(text) {
			return f.cancelDraft(ctx, s), nil
		}
		h := f.handlers[s.Draft.Kind]
		if h == nil {
			_ = f.Repo.DeleteDraft(ctx, s.User.ID)
			return []Action{msg(s.ChatID, "Jarayon holati eskirgan. Iltimos, qaytadan boshlang.")}, nil
		}
		return h.HandleMessage(ctx, s, ev)
	}

	if acts, handled := f.handleMenuText(ctx, s, text); handled {
		return acts, nil
	}
	return f.handleCredentialText(ctx, s, text)
}

// HandleCallback routes one inline keyboard press.
func (f *Flow) HandleCallback(ctx context.Context, ev Event) ([]Action, error) {
	unlock := f.lockUser(ev.UserID)
	defer unlock()

	s, err := f.session(ctx, ev)
	if err != nil {
		return nil, err
	}
	data := ev.Data
	prefix, rest, _ := strings.Cut(data, ":")

	f.Log.Info().Int64("user", ev.UserID).Str("data", data).Msg("callback")

	// Everything except the credential hint needs an active pair.
	if s.Status != domain.CredentialActive {
		return []Action{answer("Avval /start orqali API kalitlarini sozlang.", true)}, nil
	}

	switch data {
	case "entry:create":
		return f.startStock(ctx, s)
	case "purchase:create":
		return f.startPurchase(ctx, s)
	case "delivery:create":
		return f.startDelivery(ctx, s)
	case "entry:confirm":
		return f.startConfirm(ctx, s, erp.DoctypeStockEntry)
	case "purchase:confirm":
		return f.startConfirm(ctx, s, erp.DoctypePurchaseReceipt)
	case "delivery:confirm":
		return f.startConfirm(ctx, s, erp.DoctypeDeliveryNote)
	}

	switch prefix {
	case "item":
		return f.itemDetailCallback(ctx, s, rest)
	case "entry-detail":
		return f.entryDetailCallback(ctx, s, rest)
	case inline.EntryApprovePrefix:
		return f.docAction(ctx, s, erp.DoctypeStockEntry, actionApprove, rest)
	case entryCancelPrefix:
		return f.docAction(ctx, s, erp.DoctypeStockEntry, actionCancel, rest)
	case entryDeletePrefix:
		return f.docAction(ctx, s, erp.DoctypeStockEntry, actionDelete, rest)
	case inline.PurchaseApprovePrefix:
		return f.docAction(ctx, s, erp.DoctypePurchaseReceipt, actionApprove, rest)
	case purchaseCancelPrefix:
		return f.docAction(ctx, s, erp.DoctypePurchaseReceipt, actionCancel, rest)
	case purchaseDeletePrefix:
		return f.docAction(ctx, s, erp.DoctypePurchaseReceipt, actionDelete, rest)
	case inline.DeliveryApprovePrefix:
		return f.docAction(ctx, s, erp.DoctypeDeliveryNote, actionApprove, rest)
	case deliveryCancelPrefix:
		return f.docAction(ctx, s, erp.DoctypeDeliveryNote, actionCancel, rest)
	case deliveryDeletePrefix:
		return f.docAction(ctx, s, erp.DoctypeDeliveryNote, actionDelete, rest)
	}

	var kind domain.DraftKind
	switch prefix {
	case entryCreatePrefix:
		kind = domain.KindStock
	case purchaseCreatePrefix:
		kind = domain.KindPurchase
	case deliveryCreatePrefix:
		kind = domain.KindDelivery
	default:
		return []Action{answer("Noma'lum tanlov.", true)}, nil
	}
	if s.Draft == nil || s.Draft.Kind != kind {
		return []Action{answer("Jarayon topilmadi. Menyudan qayta boshlang.", true)}, nil
	}
	return f.handlers[kind].HandleCallback(ctx, s, ev)
}

func (f *Flow) handleCommand(ctx context.Context, s *Session, text string) ([]Action, bool) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	cmd, _, _ = strings.Cut(cmd, "@")
	switch cmd {
	case "/start":
		return f.startCommand(s), true
	case "/help":
		return []Action{msg(s.ChatID, helpText)}, true
	case "/cancel":
		return f.cancelDraft(ctx, s), true
	case "/clear":
		return f.clearCredentials(ctx, s), true
	case "/items":
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, needStartText)}, true
		}
		return f.itemsMenu(ctx, s), true
	case "/entry":
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, needStartText)}, true
		}
		return f.entryMenu(ctx, s), true
	case "/purchase":
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, needStartText)}, true
		}
		return f.purchaseMenu(ctx, s), true
	case "/delivery":
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, needStartText)}, true
		}
		return f.deliveryMenu(ctx, s), true
	}
	return nil, false
}

const helpText = "Jarayon:\n" +
	"1. /start ni shaxsiy chatda yuboring.\n" +
	"2. 14-18 belgidan iborat API kalitni, keyin secretni kiriting.\n" +
	"3. Tasdiqdan so'ng menyudan Itemlar, Harakatlar, Purchase Receipt va Delivery Note bo'limlari ochiladi.\n\n" +
	"Har doim yangi kalit kiritish uchun ♻️ API ni tozalash tugmasidan foydalaning."

func (f *Flow) startCommand(s *Session) []Action {
	var text string
	switch s.Status {
	case domain.CredentialPendingSecret:
		text = "🔐 API kalit saqlandi.\nEndi xuddi shunday uzunlikdagi API secret ni yuboring. Masalan: JKLMNOPQ7890ABCD"
	case domain.CredentialActive:
		text = "✅ API kalit va secret tasdiqlandi.\nQuyidagi menyudan foydalanib ERPNext bilan ishlang."
	default:
		text = "👋 Assalomu alaykum!\nSiz uchun ERPNext stock paneli tayyor. Davom etish uchun 14-18 belgilik API kalitni yuboring.\nMasalan: AB12CD34EF56GH78"
	}
	acts := []Action{{ChatID: s.ChatID, Text: text, MainMenu: true}}
	if s.Status == domain.CredentialActive {
		acts = append(acts, msgKB(s.ChatID, "📦 Itemlar bo'limini ochish uchun tugmani bosing.", itemsMarkup()))
	}
	return acts
}

func itemsMarkup() [][]Button {
	return [][]Button{{{Label: "📦 Itemlarni ko'rish", SwitchInline: "items"}}}
}

func (f *Flow) handleMenuText(ctx context.Context, s *Session, text string) ([]Action, bool) {
	normalized := strings.ToLower(text)
	switch {
	case text == menuItems:
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, "Avval API kalit va secretni kiriting.")}, true
		}
		return f.itemsMenu(ctx, s), true
	case text == menuEntries || normalized == "harakatlar":
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, "Avval API kalit va secretni kiriting.")}, true
		}
		return f.entryMenu(ctx, s), true
	case text == menuPurchase || normalized == "purchase receipt" || normalized == "purchase":
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, "Avval API kalit va secretni kiriting.")}, true
		}
		return f.purchaseMenu(ctx, s), true
	case text == menuDelivery || normalized == "delivery note" || normalized == "delivery":
		if s.Status != domain.CredentialActive {
			return []Action{msg(s.ChatID, "Avval API kalit va secretni kiriting.")}, true
		}
		return f.deliveryMenu(ctx, s), true
	case text == menuClearAPI:
		return f.clearCredentials(ctx, s), true
	}
	return nil, false
}

func (f *Flow) cancelDraft(ctx context.Context, s *Session) []Action {
	if s.Draft == nil {
		f.Log.Info().Int64("user", s.User.ID).Msg("cancel with no draft")
		return []Action{msg(s.ChatID, "Bekor qiladigan jarayon topilmadi.")}
	}
	kind := s.Draft.Kind
	stage := s.Draft.Stage
	var confirmDoctype string
	if s.Draft.Confirm != nil {
		confirmDoctype = s.Draft.Confirm.Doctype
	}
	_ = f.Repo.DeleteDraft(ctx, s.User.ID)
	s.Draft = nil
	f.audit(ctx, events.DraftCancelled, s.User.ID, "", events.EventPayload{"kind": kind, "stage": stage})

	notice := "Yangi Stock Entry jarayoni bekor qilindi."
	switch kind {
	case domain.KindPurchase:
		notice = "Purchase Receipt jarayoni bekor qilindi."
	case domain.KindDelivery:
		notice = "Delivery Note jarayoni bekor qilindi."
	case domain.KindConfirm:
		switch confirmDoctype {
		case erp.DoctypePurchaseReceipt:
			notice = "Purchase Receipt tasdiqlash jarayoni bekor qilindi."
		case erp.DoctypeDeliveryNote:
			notice = "Delivery Note tasdiqlash jarayoni bekor qilindi."
		default:
			notice = "Stock Entry tasdiqlash jarayoni bekor qilindi."
		}
	}
	return []Action{msg(s.ChatID, notice)}
}
