// Package flow implements the conversational draft state machine. It is
// transport-agnostic: updates arrive as Events, replies leave as Actions,
// and the Telegram adapter in internal/bot does the wire work.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockbot/internal/config"
	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/events"
	"stockbot/internal/repo"
)

// Event is one normalized inbound update.
type Event struct {
	UserID     int64
	ChatID     int64
	Username   string
	FirstName  string
	LastName   string
	Text       string // message text, empty for callbacks
	Data       string // callback data, empty for messages
	CallbackID string
	FromInline bool // message was injected by one of our inline results
}

// Button describes one inline keyboard button.
type Button struct {
	Label        string
	Data         string
	SwitchInline string // opens the inline search box pre-filled
}

// CallbackAnswer acknowledges a callback query.
type CallbackAnswer struct {
	Text  string
	Alert bool
}

// Action is one outbound effect.
type Action struct {
	ChatID   int64
	Text     string
	Keyboard [][]Button
	MainMenu bool // attach the persistent reply menu
	Answer   *CallbackAnswer
}

// Gateway is the slice of the ERP client the flow needs. *erp.Gateway
// satisfies it; tests plug a stub.
type Gateway interface {
	VerifyCredentials(ctx context.Context, creds erp.Credentials) error
	SearchItems(ctx context.Context, creds erp.Credentials, query string, limit int) ([]erp.Item, error)
	ItemDetail(ctx context.Context, creds erp.Credentials, name string) (erp.Item, error)
	SearchWarehouses(ctx context.Context, creds erp.Credentials, query string, limit int) ([]erp.Warehouse, error)
	SearchSuppliers(ctx context.Context, creds erp.Credentials, query string, limit int) ([]erp.Supplier, error)
	SearchCustomers(ctx context.Context, creds erp.Credentials, query string, limit int) ([]erp.Customer, error)
	ListStockEntries(ctx context.Context, creds erp.Credentials, query string, limit int) ([]erp.StockEntry, error)
	StockEntryDetail(ctx context.Context, creds erp.Credentials, docname string) (erp.StockEntry, error)
	ListPurchaseReceipts(ctx context.Context, creds erp.Credentials, query string, limit int) ([]erp.PurchaseReceipt, error)
	PurchaseReceiptDetail(ctx context.Context, creds erp.Credentials, docname string) (erp.PurchaseReceipt, error)
	ListDeliveryNotes(ctx context.Context, creds erp.Credentials, query string, limit int) ([]erp.DeliveryNote, error)
	DeliveryNoteDetail(ctx context.Context, creds erp.Credentials, docname string) (erp.DeliveryNote, error)
	CreateStockEntry(ctx context.Context, creds erp.Credentials, input erp.StockEntryInput) (string, error)
	CreatePurchaseReceipt(ctx context.Context, creds erp.Credentials, input erp.PurchaseReceiptInput) (string, error)
	CreateDeliveryNote(ctx context.Context, creds erp.Credentials, input erp.DeliveryNoteInput) (string, error)
	SubmitDoc(ctx context.Context, creds erp.Credentials, doctype, docname string) error
	CancelDoc(ctx context.Context, creds erp.Credentials, doctype, docname string) error
	DeleteDoc(ctx context.Context, creds erp.Credentials, doctype, docname string) error
}

// Session is the per-update working state the dispatcher hands to
// handlers. Draft is nil when the user has no flow in progress.
type Session struct {
	User   domain.User
	ChatID int64
	Creds  erp.Credentials
	Status domain.CredentialStatus
	Draft  *domain.Draft
}

// Handler owns one draft kind's state graph.
type Handler interface {
	Kind() domain.DraftKind
	HandleMessage(ctx context.Context, s *Session, ev Event) ([]Action, error)
	HandleCallback(ctx context.Context, s *Session, ev Event) ([]Action, error)
}

// Flow wires the handlers to storage and the ERP gateway.
type Flow struct {
	Repo    repo.Repo
	Events  events.Writer
	Gateway Gateway
	Cfg     *config.Config
	Log     zerolog.Logger
	Now     func() time.Time

	handlers map[domain.DraftKind]Handler

	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

// New builds a Flow with the standard handler set.
func New(r repo.Repo, ev events.Writer, gw Gateway, cfg *config.Config, log zerolog.Logger) *Flow {
	f := &Flow{
		Repo:    r,
		Events:  ev,
		Gateway: gw,
		Cfg:     cfg,
		Log:     log,
		Now:     time.Now,
		users:   make(map[int64]*sync.Mutex),
	}
	f.handlers = map[domain.DraftKind]Handler{}
	for _, h := range []Handler{
		&stockHandler{f},
		&purchaseHandler{f},
		&deliveryHandler{f},
		&confirmHandler{f},
	} {
		f.handlers[h.Kind()] = h
	}
	return f
}

// lockUser serializes update handling per user so a draft's
// read-modify-write cycle never interleaves with another update.
func (f *Flow) lockUser(id int64) func() {
	f.mu.Lock()
	mu, ok := f.users[id]
	if !ok {
		mu = &sync.Mutex{}
		f.users[id] = mu
	}
	f.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func (f *Flow) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Flow) audit(ctx context.Context, evtType string, userID int64, entity string, payload events.EventPayload) {
	if f.Events.DB == nil {
		return
	}
	if err := f.Events.Append(ctx, evtType, userID, entity, payload); err != nil {
		f.Log.Warn().Err(err).Str("type", evtType).Msg("audit append failed")
	}
}

// advance persists the draft after an accepted input and records the
// stage it moved to.
func (f *Flow) advance(ctx context.Context, s *Session) error {
	if err := f.Repo.SaveDraft(ctx, s.User.ID, *s.Draft); err != nil {
		return err
	}
	f.audit(ctx, events.DraftAdvanced, s.User.ID, "", events.EventPayload{"kind": s.Draft.Kind, "stage": s.Draft.Stage})
	return nil
}

func msg(chatID int64, text string) Action {
	return Action{ChatID: chatID, Text: text}
}

func msgKB(chatID int64, text string, kb [][]Button) Action {
	return Action{ChatID: chatID, Text: text, Keyboard: kb}
}

func answer(text string, alert bool) Action {
	return Action{Answer: &CallbackAnswer{Text: text, Alert: alert}}
}
