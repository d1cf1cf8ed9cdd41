package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"workhub/internal/domain"
)

// APIKeyPrefixLen is how much of a raw key is stored in clear for listings.
const APIKeyPrefixLen = 7

const apiKeyColumns = `id, actor_id, COALESCE(name,''), prefix, key_hash, created_at, last_used_at`

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the displayable head of a raw key.
func KeyPrefix(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > APIKeyPrefixLen {
		return raw[:APIKeyPrefixLen]
	}
	return raw
}

// InsertAPIKey stores a key by hash. The raw key never reaches the database.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("id required")
	case key.ActorID == "":
		return errors.New("actor_id required")
	case key.KeyHash == "":
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = FormatTime(time.Now())
	}
	_, err := r.on(tx).ExecContext(ctx, r.q(`INSERT INTO api_keys(id, actor_id, name, prefix, key_hash, created_at) VALUES (?,?,?,?,?,?)`),
		key.ID, key.ActorID, nullable(key.Name), key.Prefix, key.KeyHash, key.CreatedAt)
	return err
}

func scanAPIKey(row interface{ Scan(...any) error }) (domain.APIKey, error) {
	var key domain.APIKey
	var lastUsed sql.NullString
	if err := row.Scan(&key.ID, &key.ActorID, &key.Name, &key.Prefix, &key.KeyHash, &key.CreatedAt, &lastUsed); err != nil {
		return domain.APIKey{}, err
	}
	key.LastUsedAt = stringPtr(lastUsed)
	return key, nil
}

// GetAPIKeyByHash returns the key whose hash matches.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`), hash)
	key, err := scanAPIKey(row)
	if err != nil {
		return domain.APIKey{}, notFound(err)
	}
	return key, nil
}

// TouchAPIKey records that a key was just used to authenticate.
func (r Repo) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, r.q(`UPDATE api_keys SET last_used_at=? WHERE id=?`), FormatTime(at), id)
	return err
}

// ListAPIKeys returns keys newest first. An empty actorID lists every actor's keys.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys`
	var args []any
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey revokes a key by id.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := r.DB.ExecContext(ctx, r.q(`DELETE FROM api_keys WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
