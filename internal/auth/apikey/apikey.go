// Package apikey manages the keys that authorise writes through the HTTP
// API. Raw keys are generated with crypto/rand and shown once; only their
// SHA-256 digest is stored in PostgreSQL.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id         BIGSERIAL PRIMARY KEY,
    key_hash   TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ
);
`

// KeyInfo describes a key without revealing it.
type KeyInfo struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Validator checks and administers keys in the api_keys table.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Migrate creates the api_keys table if it does not exist.
func (v *Validator) Migrate(ctx context.Context) error {
	if err := v.db.Migrate(ctx, "api_keys", schema); err != nil {
		return fmt.Errorf("migrating api_keys: %w", err)
	}
	return nil
}

// Validate looks up an active key by the digest of rawKey.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
	)
	err := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.IsActive, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		if expiresAt.Time.Before(time.Now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// CreateKey stores a new key and returns it with its raw value, which cannot
// be retrieved again.
func (v *Validator) CreateKey(ctx context.Context, name string, expiresAt *time.Time) (string, *KeyInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, errors.New("api key name must not be empty")
	}
	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	info := KeyInfo{Name: name, IsActive: true, ExpiresAt: expiresAt}
	err = v.db.DB.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, name, expires_at) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		HashKey(rawKey), name, expiry,
	).Scan(&info.ID, &info.CreatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "id", info.ID, "name", name)
	return rawKey, &info, nil
}

// RevokeKey deactivates the key with the given id.
func (v *Validator) RevokeKey(ctx context.Context, id int64) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE id = $1 AND is_active = true`,
		id,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked", "id", id)
	return nil
}

// ListKeys returns the active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, is_active, created_at, expires_at
		 FROM api_keys WHERE is_active = true ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k         KeyInfo
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return "md_" + hex.EncodeToString(b), nil
}
