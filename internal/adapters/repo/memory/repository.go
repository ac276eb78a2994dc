// Package memory keeps group records in process memory. It backs tests and
// the "memory" store backend.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/bnema/partybot/internal/adapters/repo/document"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
)

type Repository struct {
	mu     sync.RWMutex
	groups map[domain.GroupID]domain.GroupRecord
}

var _ ports.GroupRepository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{groups: map[domain.GroupID]domain.GroupRecord{}}
}

func (r *Repository) Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.groups[id]
	if !ok {
		return domain.GroupRecord{}, document.NotFound(id)
	}
	return record.Clone(), nil
}

func (r *Repository) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var current int64
	if existing, ok := r.groups[record.ID]; ok {
		current = existing.Version
	}
	if current != record.Version {
		return domain.GroupRecord{}, document.ConflictError(record.ID, record.Version, current)
	}

	stored := document.Stamp(record)
	r.groups[record.ID] = stored
	return stored.Clone(), nil
}

func (r *Repository) Delete(ctx context.Context, id domain.GroupID) (domain.GroupRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.groups[id]
	if !ok {
		return domain.GroupRecord{}, false, nil
	}
	delete(r.groups, id)
	return record, true, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.GroupRecord, 0, len(r.groups))
	for _, record := range r.groups {
		records = append(records, record.Clone())
	}
	slices.SortFunc(records, func(a, b domain.GroupRecord) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return records, nil
}

func (r *Repository) Close() error {
	return nil
}
