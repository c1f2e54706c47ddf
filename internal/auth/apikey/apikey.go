// Package apikey manages the admin keys that guard model-management
// endpoints. Raw keys are random, shown once and stored only as SHA-256
// digests in PostgreSQL.
//
// It requires an `admin_keys` table:
//
//	CREATE TABLE admin_keys (
//	    id         UUID        PRIMARY KEY,
//	    name       TEXT        NOT NULL,
//	    key_hash   TEXT        NOT NULL UNIQUE,
//	    scopes     TEXT[]      NOT NULL,
//	    active     BOOLEAN     NOT NULL DEFAULT TRUE,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    expires_at TIMESTAMPTZ
//	);
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
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
)

// Scopes a key can carry.
const (
	ScopeReload  = "models:reload"
	ScopeAll     = "*"
	rawKeyPrefix = "mk_"
)

var (
	ErrInvalidKey = fmt.Errorf("%w: invalid admin key", apperrors.ErrUnauthorized)
	ErrExpiredKey = fmt.Errorf("%w: admin key expired", apperrors.ErrUnauthorized)
	ErrScope      = fmt.Errorf("%w: admin key lacks scope", apperrors.ErrForbidden)
)

// KeyInfo describes a stored key. The raw key is never part of it.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Allows reports whether the key grants scope.
func (k *KeyInfo) Allows(scope string) bool {
	return slices.Contains(k.Scopes, ScopeAll) || slices.Contains(k.Scopes, scope)
}

// Store validates and manages admin keys.
type Store struct {
	db     *postgres.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a Store over db.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		logger: logger.WithComponent("admin-keys"),
	}
}

// Validate looks up rawKey and checks that it is active, unexpired and
// grants scope.
func (s *Store) Validate(ctx context.Context, rawKey, scope string) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, scopes, active, created_at, expires_at
		FROM admin_keys WHERE key_hash = $1 AND active`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, pq.Array(&info.Scopes), &info.Active, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin key: %w", err)
	}
	if expiresAt.Valid {
		if !expiresAt.Time.After(s.now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	if !info.Allows(scope) {
		return nil, ErrScope
	}
	return &info, nil
}

// Create stores a new key and returns its raw value, which cannot be
// recovered later. A zero ttl means the key never expires.
func (s *Store) Create(ctx context.Context, name string, scopes []string, ttl time.Duration) (string, *KeyInfo, error) {
	if name == "" || len(scopes) == 0 {
		return "", nil, fmt.Errorf("%w: admin key needs a name and at least one scope", apperrors.ErrInvalidInput)
	}
	raw, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}
	info := &KeyInfo{
		ID:        uuid.NewString(),
		Name:      name,
		Scopes:    scopes,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	var expiry sql.NullTime
	if ttl > 0 {
		t := info.CreatedAt.Add(ttl)
		info.ExpiresAt = &t
		expiry = sql.NullTime{Time: t, Valid: true}
	}

	if _, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO admin_keys (id, name, key_hash, scopes, active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		info.ID, name, HashKey(raw), pq.Array(scopes), info.CreatedAt, expiry,
	); err != nil {
		return "", nil, fmt.Errorf("creating admin key: %w", err)
	}
	s.logger.Info("admin key created", "id", info.ID, "name", name, "scopes", scopes)
	return raw, info, nil
}

// Revoke deactivates the key with the given id.
func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE admin_keys SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("revoking admin key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: no active admin key %s", apperrors.ErrInvalidInput, id)
	}
	s.logger.Info("admin key revoked", "id", id)
	return nil
}

// List returns the active keys, newest first.
func (s *Store) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, scopes, active, created_at, expires_at
		FROM admin_keys WHERE active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing admin keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k         KeyInfo
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, pq.Array(&k.Scopes), &k.Active, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning admin key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the hex SHA-256 digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating admin key: %w", err)
	}
	return rawKeyPrefix + hex.EncodeToString(b), nil
}
