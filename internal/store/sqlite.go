// Package store provides the durable note catalog for voxnote.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/voxnote/voxnote/pkg/models"
)

// SQLiteConfig holds SQLite persistence configuration.
type SQLiteConfig struct {
	Path     string
	MaxConns int
}

// SQLitePersistence stores the serialized catalog as a single blob row in a
// SQLite key-value table.
type SQLitePersistence struct {
	db *sql.DB
}

// NewSQLitePersistence opens (creating if needed) the catalog database.
func NewSQLitePersistence(cfg SQLiteConfig) (*SQLitePersistence, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)

	const schema = `
		CREATE TABLE IF NOT EXISTS catalog (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			updated_at_epoch INTEGER NOT NULL
		)
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog table: %w", err)
	}

	return &SQLitePersistence{db: db}, nil
}

// Save serializes the full catalog and replaces the stored blob.
func (p *SQLitePersistence) Save(ctx context.Context, notes []models.Note) error {
	if notes == nil {
		notes = []models.Note{}
	}
	blob, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	now := time.Now()
	const query = `
		INSERT INTO catalog (key, value, updated_at, updated_at_epoch)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			updated_at_epoch = excluded.updated_at_epoch
	`
	_, err = p.db.ExecContext(ctx, query,
		CatalogKey, blob,
		now.Format(time.RFC3339), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// Load deserializes the stored catalog. A missing key or an undecodable blob
// yields an empty catalog: corruption is treated as "no notes yet" rather
// than a fatal error.
func (p *SQLitePersistence) Load(ctx context.Context) ([]models.Note, error) {
	const query = `SELECT value FROM catalog WHERE key = ?`

	var blob []byte
	err := p.db.QueryRowContext(ctx, query, CatalogKey).Scan(&blob)
	if err == sql.ErrNoRows {
		return []models.Note{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var notes []models.Note
	if err := json.Unmarshal(blob, &notes); err != nil {
		log.Warn().Err(err).Msg("Catalog blob failed to decode, starting empty")
		return []models.Note{}, nil
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

// Close closes the underlying database.
func (p *SQLitePersistence) Close() error {
	return p.db.Close()
}
