// Package metastore implements the Metadata Store (C3): a durable
// sentence→vector and sentence→label key-value store acting as a
// write-through cache in front of the ANN Index.
package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
	"github.com/embedsvc/sentencehnsw/pkg/logging"
	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

const schema = `
CREATE TABLE IF NOT EXISTS key_value_store (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS key_label_store (
	key   TEXT PRIMARY KEY,
	label TEXT NOT NULL
);
`

// Store is the C3 Metadata Store. A single *Store is shared by every
// request handler under its own mutex; the store is not used across a
// suspension point on the Embedding Provider.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dim    int
	logger logging.Logger
	closed bool
}

// Open opens (creating if absent) the SQLite file at path in WAL mode and
// ensures both tables exist.
func Open(ctx context.Context, path string, dim int, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap("metastore.Open", apperr.ErrStoreUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.Wrap("metastore.Open", apperr.ErrStoreUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperr.Wrap("metastore.Open", apperr.ErrStoreUnavailable, err)
	}

	logger.Info("metadata store opened", "path", path, "dim", dim)
	return &Store{db: db, dim: dim, logger: logger}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// GetVector returns the cached vector for sentence, or ok=false if absent.
// A value that fails to deserialize to the configured dimension is treated
// as a miss (Corrupt is logged but not returned), per the pipeline's
// "corrupt cache entry behaves like a miss" contract.
func (s *Store) GetVector(ctx context.Context, sentence string) (vector.Vector, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, apperr.Wrap("metastore.GetVector", apperr.ErrStoreUnavailable, fmt.Errorf("store is closed"))
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM key_value_store WHERE key = ?`, sentence).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap("metastore.GetVector", apperr.ErrStoreUnavailable, err)
	}

	v, perr := vector.ParseJSON([]byte(raw), s.dim)
	if perr != nil {
		s.logger.Warn("corrupt cached vector treated as miss", "sentence", sentence, "error", perr)
		return nil, false, nil
	}
	return v, true, nil
}

// PutVector upserts the vector cached for sentence.
func (s *Store) PutVector(ctx context.Context, sentence string, v vector.Vector) error {
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return apperr.Wrap("metastore.PutVector", apperr.ErrBadInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.Wrap("metastore.PutVector", apperr.ErrStoreUnavailable, fmt.Errorf("store is closed"))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO key_value_store(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		sentence, string(data))
	if err != nil {
		return apperr.Wrap("metastore.PutVector", apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// GetLabel returns the label attached to sentence, or ok=false if absent.
func (s *Store) GetLabel(ctx context.Context, sentence string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, apperr.Wrap("metastore.GetLabel", apperr.ErrStoreUnavailable, fmt.Errorf("store is closed"))
	}

	var label string
	err := s.db.QueryRowContext(ctx, `SELECT label FROM key_label_store WHERE key = ?`, sentence).Scan(&label)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap("metastore.GetLabel", apperr.ErrStoreUnavailable, err)
	}
	return label, true, nil
}

// PutLabel upserts the label for sentence.
func (s *Store) PutLabel(ctx context.Context, sentence, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.Wrap("metastore.PutLabel", apperr.ErrStoreUnavailable, fmt.Errorf("store is closed"))
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO key_label_store(key, label) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET label = excluded.label`,
		sentence, label)
	if err != nil {
		return apperr.Wrap("metastore.PutLabel", apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// Truncate removes every row from both tables.
func (s *Store) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.Wrap("metastore.Truncate", apperr.ErrStoreUnavailable, fmt.Errorf("store is closed"))
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM key_value_store`); err != nil {
		return apperr.Wrap("metastore.Truncate", apperr.ErrStoreUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM key_label_store`); err != nil {
		return apperr.Wrap("metastore.Truncate", apperr.ErrStoreUnavailable, err)
	}
	return nil
}
