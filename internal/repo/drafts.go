package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"stockbot/internal/domain"
)

type DraftRow struct {
	UserID    int64
	Draft     domain.Draft
	UpdatedAt string
}

// Draft loads the single in-progress draft for a user. A payload that no
// longer parses is treated as absent so a stuck user can always restart.
func (r Repo) Draft(ctx context.Context, userID int64) (domain.Draft, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload FROM entry_drafts WHERE telegram_id=?`, userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Draft{}, ErrNotFound
	}
	if err != nil {
		return domain.Draft{}, err
	}
	var d domain.Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return domain.Draft{}, ErrNotFound
	}
	if d.Kind == "" {
		return domain.Draft{}, ErrNotFound
	}
	return d, nil
}

// SaveDraft overwrites the user's draft atomically.
func (r Repo) SaveDraft(ctx context.Context, userID int64, d domain.Draft) error {
	d.UpdatedAt = r.now()
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO entry_drafts(telegram_id,payload,updated_at) VALUES (?,?,?)
		ON CONFLICT(telegram_id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		userID, string(payload), d.UpdatedAt)
	return err
}

func (r Repo) DeleteDraft(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM entry_drafts WHERE telegram_id=?`, userID)
	return err
}

func (r Repo) ListDrafts(ctx context.Context) ([]DraftRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT telegram_id,payload,updated_at FROM entry_drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DraftRow
	for rows.Next() {
		var row DraftRow
		var payload string
		if err := rows.Scan(&row.UserID, &payload, &row.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &row.Draft); err != nil {
			continue
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
