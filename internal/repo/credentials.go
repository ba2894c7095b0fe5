package repo

import (
	"context"
	"database/sql"

	"stockbot/internal/domain"
)

func (r Repo) Credentials(ctx context.Context, userID int64) (domain.Credential, error) {
	var c domain.Credential
	err := r.DB.QueryRowContext(ctx, `SELECT telegram_id,api_key,api_secret,status,updated_at FROM credentials WHERE telegram_id=?`, userID).
		Scan(&c.UserID, &c.APIKey, &c.APISecret, &c.Status, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// StoreAPIKey records the key and moves the pair to pending_secret,
// discarding any previously stored secret.
func (r Repo) StoreAPIKey(ctx context.Context, userID int64, key string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO credentials(telegram_id,api_key,api_secret,status,updated_at) VALUES (?,?,'',?,?)
		ON CONFLICT(telegram_id) DO UPDATE SET api_key=excluded.api_key, api_secret='', status=excluded.status, updated_at=excluded.updated_at`,
		userID, key, domain.CredentialPendingSecret, r.now())
	return err
}

// StoreAPISecret activates the pair. The caller verifies the secret
// against the gateway first; an unverified secret never reaches here.
func (r Repo) StoreAPISecret(ctx context.Context, userID int64, secret string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE credentials SET api_secret=?, status=?, updated_at=? WHERE telegram_id=?`,
		secret, domain.CredentialActive, r.now(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetCredentials clears the pair back to pending_key. The row is kept
// so the onboarding history survives resets.
func (r Repo) ResetCredentials(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO credentials(telegram_id,api_key,api_secret,status,updated_at) VALUES (?,'','',?,?)
		ON CONFLICT(telegram_id) DO UPDATE SET api_key='', api_secret='', status=excluded.status, updated_at=excluded.updated_at`,
		userID, domain.CredentialPendingKey, r.now())
	return err
}

func (r Repo) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT telegram_id,api_key,api_secret,status,updated_at FROM credentials ORDER BY telegram_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Credential
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(&c.UserID, &c.APIKey, &c.APISecret, &c.Status, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
