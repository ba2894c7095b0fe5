package flow

import (
	"context"

	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/events"
)

// handleCredentialText is the fallback for private text while no draft
// is active: during onboarding it collects the API key and secret, and
// once active it nudges the user back to the menu.
func (f *Flow) handleCredentialText(ctx context.Context, s *Session, text string) ([]Action, error) {
	switch s.Status {
	case domain.CredentialPendingKey:
		if !ValidToken(text) {
			return []Action{msg(s.ChatID, "API kalit 14-18 ta lotin harf yoki raqamdan iborat bo'lishi kerak. Qaytadan yuboring.")}, nil
		}
		if err := f.Repo.StoreAPIKey(ctx, s.User.ID, text); err != nil {
			return nil, err
		}
		return []Action{msg(s.ChatID, "🔐 API kalit saqlandi.\nEndi API secret ni yuboring (yana 14-18 belgi).")}, nil

	case domain.CredentialPendingSecret:
		if !ValidToken(text) {
			return []Action{msg(s.ChatID, "API secret 14-18 ta lotin harf yoki raqamdan iborat bo'lishi kerak. Qaytadan yuboring.")}, nil
		}
		creds := erp.Credentials{Key: s.Creds.Key, Secret: text}
		if err := f.Gateway.VerifyCredentials(ctx, creds); err != nil {
			f.Log.Warn().Int64("user", s.User.ID).Err(err).Msg("credential verify failed")
			return []Action{msg(s.ChatID, "❌ API kalit yoki secret noto'g'ri.\nERP javobi: "+erp.ErrorDetail(err)+"\nSecret ni qaytadan yuboring yoki ♻️ API ni tozalash orqali boshidan boshlang.")}, nil
		}
		if err := f.Repo.StoreAPISecret(ctx, s.User.ID, text); err != nil {
			return nil, err
		}
		f.audit(ctx, events.CredentialsSet, s.User.ID, "", nil)
		return []Action{
			{ChatID: s.ChatID, Text: "✅ API kalit va secret tasdiqlandi.\nQuyidagi menyudan foydalanib ERPNext bilan ishlang.", MainMenu: true},
			msgKB(s.ChatID, "📦 Itemlar bo'limini ochish uchun tugmani bosing.", itemsMarkup()),
		}, nil
	}

	return []Action{msg(s.ChatID, "API kalitlari allaqachon saqlangan. Menyudan bo'lim tanlang yoki /help ni yuboring.")}, nil
}

// clearCredentials wipes the stored pair and restarts onboarding. Any
// in-flight draft is dropped with it.
func (f *Flow) clearCredentials(ctx context.Context, s *Session) []Action {
	if err := f.Repo.ResetCredentials(ctx, s.User.ID); err != nil {
		f.Log.Error().Int64("user", s.User.ID).Err(err).Msg("reset credentials")
		return []Action{msg(s.ChatID, "API kalitlarini tozalashda xatolik yuz berdi. Keyinroq urinib ko'ring.")}
	}
	if s.Draft != nil {
		_ = f.Repo.DeleteDraft(ctx, s.User.ID)
		s.Draft = nil
	}
	s.Status = domain.CredentialPendingKey
	s.Creds = erp.Credentials{}
	f.audit(ctx, events.CredentialsReset, s.User.ID, "", nil)
	return []Action{{
		ChatID:   s.ChatID,
		Text:     "♻️ API kalit va secret o'chirildi.\nYangi 14-18 belgilik API kalitni yuboring.",
		MainMenu: true,
	}}
}
