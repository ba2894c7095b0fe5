package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"stockbot/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// RecordUser upserts the sender's profile so admin tooling can resolve
// telegram ids to names.
func (r Repo) RecordUser(ctx context.Context, u domain.User) error {
	ts := r.now()
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(telegram_id,username,first_name,last_name,created_at,updated_at) VALUES (?,?,?,?,?,?)
		ON CONFLICT(telegram_id) DO UPDATE SET username=excluded.username, first_name=excluded.first_name, last_name=excluded.last_name, updated_at=excluded.updated_at`,
		u.ID, nullable(u.Username), nullable(u.FirstName), nullable(u.LastName), ts, ts)
	return err
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	var username, first, last sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT telegram_id,username,first_name,last_name,created_at,updated_at FROM users WHERE telegram_id=?`, id).
		Scan(&u.ID, &username, &first, &last, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Username = username.String
	u.FirstName = first.String
	u.LastName = last.String
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT telegram_id,COALESCE(username,''),COALESCE(first_name,''),COALESCE(last_name,''),created_at,updated_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) ListEvents(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,telegram_id,COALESCE(entity,''),payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.Entity, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
