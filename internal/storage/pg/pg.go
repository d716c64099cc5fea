// Package pg persists the room document as a single JSONB row.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/config"
	"github.com/ninechan-dev/ninechan/shared/logger"
	sharedpg "github.com/ninechan-dev/ninechan/shared/storage/pg"
)

// ErrStaleVersion means the stored row is already at or past the version
// being saved, i.e. another process wrote the document.
var ErrStaleVersion = errors.New("stored document is newer")

var documentsTable = sharedpg.TableName("room", "documents")

type Storage struct {
	db  *sql.DB
	key string
}

var _ room.Persister = (*Storage)(nil)

func New(ctx context.Context, cfg config.Pg, key string) (*Storage, error) {
	logger.Log.Info("connecting to db", "host", cfg.Host, "dbname", cfg.Dbname)
	db, err := sharedpg.Connect(ctx, cfg, sharedpg.DefaultConnectionConfig())
	if err != nil {
		return nil, err
	}
	s := NewWithDB(db, key)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Log.Info("successfully connected to db")
	return s, nil
}

func NewWithDB(db *sql.DB, key string) *Storage {
	return &Storage{db: db, key: key}
}

// Migrate creates the documents table when missing.
func (s *Storage) Migrate(ctx context.Context) error {
	return sharedpg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				key        TEXT PRIMARY KEY,
				doc        JSONB NOT NULL,
				version    BIGINT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, documentsTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS room_documents_updated_at_idx ON %s (updated_at)`, documentsTable),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate documents table: %w", err)
			}
		}
		return nil
	})
}

// Load returns an empty document at version 0 when the row does not exist yet.
func (s *Storage) Load(ctx context.Context) (map[string]any, int64, error) {
	return loadDocument(ctx, s.db, s.key)
}

// Save upserts the document. Versions only move forward.
func (s *Storage) Save(ctx context.Context, doc map[string]any, version int64) error {
	return saveDocument(ctx, s.db, s.key, doc, version)
}

func (s *Storage) Cleanup() error {
	return s.db.Close()
}

func loadDocument(ctx context.Context, q sharedpg.Querier, key string) (map[string]any, int64, error) {
	var (
		raw     []byte
		version int64
	)
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc, version FROM %s WHERE key = $1`, documentsTable), key,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load document %s: %w", key, err)
	}

	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode document %s: %w", key, err)
	}
	return doc, version, nil
}

func saveDocument(ctx context.Context, q sharedpg.Querier, key string, doc map[string]any, version int64) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	res, err := q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (key, doc, version, updated_at)
		VALUES ($1, $2::jsonb, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET doc = EXCLUDED.doc, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
		WHERE %[1]s.version < EXCLUDED.version`, documentsTable),
		key, raw, version,
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}
	if n == 0 {
		logger.Log.Warn("document save rejected", "key", key, "version", version)
		return fmt.Errorf("save document %s at version %d: %w", key, version, ErrStaleVersion)
	}
	return nil
}
