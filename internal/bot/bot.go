// Package bot adapts Telegram updates to the flow package and renders
// its actions back through the Bot API.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"stockbot/internal/config"
	"stockbot/internal/flow"
)

// Bot pumps updates into the flow and sends the resulting actions.
type Bot struct {
	API  *tgbotapi.BotAPI
	Flow *flow.Flow
	Cfg  *config.Config
	Log  zerolog.Logger

	sem *semaphore.Weighted
}

// New connects to the Bot API and wires the update pump.
func New(api *tgbotapi.BotAPI, fl *flow.Flow, cfg *config.Config, log zerolog.Logger) *Bot {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Bot{
		API:  api,
		Flow: fl,
		Cfg:  cfg,
		Log:  log,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

// Run long-polls updates until ctx is cancelled. Each update is handled
// on its own goroutine, bounded by the worker semaphore; per-user
// ordering is enforced inside the flow.
func (b *Bot) Run(ctx context.Context) error {
	b.Log.Info().Str("username", b.API.Self.UserName).Msg("bot connected")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.API.GetUpdatesChan(u)
	defer b.API.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			go func(update tgbotapi.Update) {
				defer b.sem.Release(1)
				b.HandleUpdate(ctx, update)
			}(update)
		}
	}
}

// HandleUpdate dispatches one update. Exposed so the webhook server can
// feed updates through the same path as long polling.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()

	switch {
	case update.InlineQuery != nil:
		b.handleInlineQuery(ctx, update.InlineQuery)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		if m.Chat != nil && !m.Chat.IsPrivate() && m.IsCommand() {
			b.send(flow.Action{ChatID: m.Chat.ID, Text: "Iltimos, men bilan shaxsiy chatda gaplashing: /start"})
		}
		return
	}
	ev := flow.Event{
		UserID:     m.From.ID,
		ChatID:     m.Chat.ID,
		Username:   m.From.UserName,
		FirstName:  m.From.FirstName,
		LastName:   m.From.LastName,
		Text:       m.Text,
		FromInline: m.ViaBot != nil && m.ViaBot.ID == b.API.Self.ID,
	}
	acts, err := b.Flow.HandleMessage(ctx, ev)
	if err != nil {
		b.Log.Error().Int64("user", ev.UserID).Err(err).Msg("message handling failed")
		b.send(flow.Action{ChatID: ev.ChatID, Text: "Ichki xatolik yuz berdi. Birozdan so'ng qayta urinib ko'ring."})
		return
	}
	b.sendAll("", acts)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	chatID := q.From.ID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	ev := flow.Event{
		UserID:     q.From.ID,
		ChatID:     chatID,
		Username:   q.From.UserName,
		FirstName:  q.From.FirstName,
		LastName:   q.From.LastName,
		Data:       q.Data,
		CallbackID: q.ID,
	}
	acts, err := b.Flow.HandleCallback(ctx, ev)
	if err != nil {
		b.Log.Error().Int64("user", ev.UserID).Err(err).Msg("callback handling failed")
		b.answerCallback(q.ID, "Ichki xatolik yuz berdi.", true)
		return
	}
	answered := false
	for _, a := range acts {
		if a.Answer != nil {
			answered = true
		}
	}
	if !answered {
		b.answerCallback(q.ID, "", false)
	}
	b.sendAll(q.ID, acts)
}

func (b *Bot) handleInlineQuery(ctx context.Context, q *tgbotapi.InlineQuery) {
	if q.From == nil {
		return
	}
	reply := b.Flow.HandleInline(ctx, q.From.ID, q.Query)

	cfg := tgbotapi.InlineConfig{
		InlineQueryID: q.ID,
		IsPersonal:    true,
		CacheTime:     0,
	}
	if reply.Hint != "" {
		cfg.CacheTime = 3
		cfg.SwitchPMText = reply.Hint
		cfg.SwitchPMParameter = "start"
	}
	for _, res := range reply.Results {
		article := tgbotapi.NewInlineQueryResultArticle(uuid.NewString(), res.Title, res.Message)
		article.Description = res.Description
		cfg.Results = append(cfg.Results, article)
	}
	if _, err := b.API.Request(cfg); err != nil {
		b.Log.Warn().Int64("user", q.From.ID).Err(err).Msg("inline answer failed")
	}
}

func (b *Bot) sendAll(callbackID string, acts []flow.Action) {
	for _, a := range acts {
		if a.Answer != nil {
			if callbackID != "" {
				b.answerCallback(callbackID, a.Answer.Text, a.Answer.Alert)
			}
			continue
		}
		b.send(a)
	}
}

func (b *Bot) send(a flow.Action) {
	if a.ChatID == 0 || a.Text == "" {
		return
	}
	msg := tgbotapi.NewMessage(a.ChatID, a.Text)
	switch {
	case a.MainMenu:
		msg.ReplyMarkup = mainMenuMarkup()
	case len(a.Keyboard) > 0:
		msg.ReplyMarkup = inlineMarkup(a.Keyboard)
	}
	if _, err := b.API.Send(msg); err != nil {
		b.Log.Warn().Int64("chat", a.ChatID).Err(err).Msg("send failed")
	}
}

func (b *Bot) answerCallback(id, text string, alert bool) {
	cb := tgbotapi.NewCallback(id, text)
	cb.ShowAlert = alert
	if _, err := b.API.Request(cb); err != nil {
		b.Log.Warn().Err(err).Msg("callback answer failed")
	}
}

func mainMenuMarkup() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for _, row := range flow.MainMenu() {
		var buttons []tgbotapi.KeyboardButton
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

func inlineMarkup(kb [][]flow.Button) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range kb {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			switch {
			case btn.SwitchInline != "":
				query := btn.SwitchInline
				buttons = append(buttons, tgbotapi.InlineKeyboardButton{
					Text:                         btn.Label,
					SwitchInlineQueryCurrentChat: &query,
				})
			default:
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
			}
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Describe returns a short identity line for CLI output.
func (b *Bot) Describe() string {
	return fmt.Sprintf("@%s (%d)", b.API.Self.UserName, b.API.Self.ID)
}
