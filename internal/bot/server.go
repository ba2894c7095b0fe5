package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Handler returns the webhook router. Telegram posts updates to
// /webhook/{token}; the token path segment is checked against the bot
// token so strangers cannot inject updates.
func (b *Bot) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Post("/webhook/{token}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "token") != b.Cfg.Telegram.Token {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var update tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
			b.Log.Warn().Err(err).Msg("webhook decode failed")
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := b.sem.Acquire(req.Context(), 1); err != nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		go func() {
			defer b.sem.Release(1)
			// Detached from the request context: Telegram only needs
			// the 200, the work continues in the background.
			b.HandleUpdate(context.Background(), update)
		}()
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// Serve registers the webhook with Telegram and blocks on the HTTP
// listener.
func (b *Bot) Serve(ctx context.Context) error {
	hook, err := tgbotapi.NewWebhook(b.Cfg.Telegram.WebhookURL + "/webhook/" + b.Cfg.Telegram.Token)
	if err != nil {
		return err
	}
	if _, err := b.API.Request(hook); err != nil {
		return err
	}
	b.Log.Info().
		Str("addr", b.Cfg.Telegram.ListenAddr).
		Str("username", b.API.Self.UserName).
		Msg("webhook server listening")
	srv := &http.Server{Addr: b.Cfg.Telegram.ListenAddr, Handler: b.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
