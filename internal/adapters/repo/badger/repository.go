// Package badger keeps group documents in an embedded badger database. The
// compare-and-swap runs inside one read-write transaction.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/partybot/internal/adapters/repo/document"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "group:"

type Repository struct {
	db *badger.DB
}

var _ ports.GroupRepository = (*Repository)(nil)

// Open opens the database at path. An empty path keeps everything in memory.
func Open(path string) (*Repository, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Repository{db: db}, nil
}

func key(id domain.GroupID) []byte {
	return []byte(keyPrefix + string(id))
}

func readRecord(txn *badger.Txn, id domain.GroupID) (domain.GroupRecord, error) {
	item, err := txn.Get(key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.GroupRecord{}, document.NotFound(id)
	}
	if err != nil {
		return domain.GroupRecord{}, unavailable("get", err)
	}
	var record domain.GroupRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = document.Unmarshal(val)
		return err
	})
	return record, err
}

func (r *Repository) Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, err
	}
	var record domain.GroupRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = readRecord(txn, id)
		return err
	})
	return record, err
}

func (r *Repository) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, err
	}
	stored := document.Stamp(record)
	data, err := document.Marshal(stored)
	if err != nil {
		return domain.GroupRecord{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		var current int64
		existing, err := readRecord(txn, record.ID)
		switch {
		case errors.Is(err, domain.ErrGroupNotFound):
		case err != nil:
			return err
		default:
			current = existing.Version
		}
		if current != record.Version {
			return document.ConflictError(record.ID, record.Version, current)
		}
		return txn.Set(key(record.ID), data)
	})

	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, badger.ErrConflict):
		return domain.GroupRecord{}, fmt.Errorf("%w: group %s changed during write", domain.ErrVersionConflict, record.ID)
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrStoreUnavailable):
		return domain.GroupRecord{}, err
	default:
		return domain.GroupRecord{}, unavailable("upsert", err)
	}
}

func (r *Repository) Delete(ctx context.Context, id domain.GroupID) (domain.GroupRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, false, err
	}
	var record domain.GroupRecord
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		record, err = readRecord(txn, id)
		if err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
	if errors.Is(err, domain.ErrGroupNotFound) {
		return domain.GroupRecord{}, false, nil
	}
	if err != nil {
		return domain.GroupRecord{}, false, err
	}
	return record, true, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := []domain.GroupRecord{}
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				record, err := document.Unmarshal(val)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: badger %s: %w", domain.ErrStoreUnavailable, op, err)
}
