// Package sqlite keeps group documents in a single SQLite table. The version
// column carries the compare-and-swap.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/partybot/internal/adapters/repo/document"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL,
	document   BLOB NOT NULL
)`

type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func DefaultConfig() Config {
	return Config{BusyTimeout: 5 * time.Second, MaxOpenConns: 1}
}

type Repository struct {
	db *sql.DB
}

var _ ports.GroupRepository = (*Repository)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, cfg Config) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT document FROM groups WHERE id = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GroupRecord{}, document.NotFound(id)
	}
	if err != nil {
		return domain.GroupRecord{}, unavailable("get", err)
	}
	return document.Unmarshal(data)
}

func (r *Repository) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	stored := document.Stamp(record)
	data, err := document.Marshal(stored)
	if err != nil {
		return domain.GroupRecord{}, err
	}
	updatedAt := stored.UpdatedAt.Format(time.RFC3339Nano)

	var res sql.Result
	if record.Version == 0 {
		res, err = r.db.ExecContext(ctx,
			`INSERT INTO groups (id, version, updated_at, document) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			string(record.ID), stored.Version, updatedAt, data)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE groups SET version = ?, updated_at = ?, document = ? WHERE id = ? AND version = ?`,
			stored.Version, updatedAt, data, string(record.ID), record.Version)
	}
	if err != nil {
		return domain.GroupRecord{}, unavailable("upsert", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.GroupRecord{}, unavailable("upsert", err)
	}
	if n == 0 {
		return domain.GroupRecord{}, r.conflict(ctx, record)
	}
	return stored, nil
}

func (r *Repository) conflict(ctx context.Context, record domain.GroupRecord) error {
	var current int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM groups WHERE id = ?`, string(record.ID)).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return unavailable("read version", err)
	}
	return document.ConflictError(record.ID, record.Version, current)
}

func (r *Repository) Delete(ctx context.Context, id domain.GroupID) (domain.GroupRecord, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `DELETE FROM groups WHERE id = ? RETURNING document`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GroupRecord{}, false, nil
	}
	if err != nil {
		return domain.GroupRecord{}, false, unavailable("delete", err)
	}
	record, err := document.Unmarshal(data)
	if err != nil {
		return domain.GroupRecord{}, false, err
	}
	return record, true, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.GroupRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document FROM groups ORDER BY id`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer func() { _ = rows.Close() }()

	records := []domain.GroupRecord{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable("list", err)
		}
		record, err := document.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return records, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: sqlite %s: %w", domain.ErrStoreUnavailable, op, err)
}
