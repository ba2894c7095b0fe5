package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

const (
	DraftStarted      = "draft.started"
	DraftAdvanced     = "draft.advanced"
	DraftCancelled    = "draft.cancelled"
	DraftFailed       = "draft.failed"
	DocumentCreated   = "document.created"
	DocumentSubmitted = "document.submitted"
	DocumentCancelled = "document.cancelled"
	DocumentDeleted   = "document.deleted"
	CredentialsSet    = "credentials.activated"
	CredentialsReset  = "credentials.reset"
)

func (w Writer) Append(ctx context.Context, evtType string, userID int64, entity string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,telegram_id,entity,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, userID, nullable(entity), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
