package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
)

// PostgresStore keeps versioned artifacts in PostgreSQL. Exactly one
// version per name is active.
//
// It requires a `model_artifacts` table:
//
//	CREATE TABLE model_artifacts (
//	    name         TEXT        NOT NULL,
//	    version      INT         NOT NULL,
//	    kind         TEXT        NOT NULL,
//	    payload      JSONB       NOT NULL,
//	    class_names  TEXT[],
//	    content_hash TEXT        NOT NULL,
//	    active       BOOLEAN     NOT NULL DEFAULT FALSE,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (name, version)
//	);
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "model-store"),
	}
}

// Version describes one stored artifact version.
type Version struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Kind      string    `json:"kind"`
	Hash      string    `json:"content_hash"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Fetch returns the active version of every model.
func (s *PostgresStore) Fetch(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT name, version, kind, payload, class_names
		FROM model_artifacts WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying active models: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.Name, &e.Version, &kind, &e.Payload, pq.Array(&e.ClassNames)); err != nil {
			return nil, fmt.Errorf("scanning model row: %w", err)
		}
		if e.Kind, err = artifact.ParseKind(kind); err != nil {
			s.logger.Warn("skipping model with unknown kind", "name", e.Name, "kind", kind)
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Publish validates payload, stores it as the next version of name and
// makes it the active one. Publishing a payload identical to the active
// version is a no-op that returns the existing version number.
func (s *PostgresStore) Publish(ctx context.Context, name string, kind artifact.Kind, payload []byte, classNames []string) (int, error) {
	if err := validatePayload(kind, payload); err != nil {
		return 0, err
	}
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	var version int
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var activeHash string
		err := tx.QueryRowContext(ctx,
			`SELECT version, content_hash FROM model_artifacts
			WHERE name = $1 AND active FOR UPDATE`, name).Scan(&version, &activeHash)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("reading active version: %w", err)
		case activeHash == hash:
			return nil
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM model_artifacts WHERE name = $1`, name,
		).Scan(&version); err != nil {
			return fmt.Errorf("allocating version: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_artifacts SET active = FALSE WHERE name = $1 AND active`, name,
		); err != nil {
			return fmt.Errorf("deactivating previous version: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO model_artifacts (name, version, kind, payload, class_names, content_hash, active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)`,
			name, version, string(kind), payload, pq.Array(classNames), hash,
		); err != nil {
			return fmt.Errorf("inserting version: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("publishing %s: %w", name, err)
	}
	s.logger.Info("model published", "name", name, "version", version, "kind", kind)
	return version, nil
}

// Activate makes an existing version the active one.
func (s *PostgresStore) Activate(ctx context.Context, name string, version int) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_artifacts SET active = FALSE WHERE name = $1 AND active`, name,
		); err != nil {
			return fmt.Errorf("deactivating %s: %w", name, err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE model_artifacts SET active = TRUE WHERE name = $1 AND version = $2`, name, version)
		if err != nil {
			return fmt.Errorf("activating %s v%d: %w", name, version, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s v%d does not exist", name, version)
		}
		return nil
	})
}

// Versions lists every stored version of name, newest first.
func (s *PostgresStore) Versions(ctx context.Context, name string) ([]Version, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT name, version, kind, content_hash, active, created_at
		FROM model_artifacts WHERE name = $1 ORDER BY version DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", name, err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.Name, &v.Version, &v.Kind, &v.Hash, &v.Active, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func validatePayload(kind artifact.Kind, payload []byte) error {
	var err error
	switch kind {
	case artifact.KindDocument:
		_, err = artifact.DecodeDocument(payload)
	case artifact.KindToken:
		_, err = artifact.DecodeToken(payload)
	default:
		err = fmt.Errorf("unknown artifact kind %q", kind)
	}
	return err
}
