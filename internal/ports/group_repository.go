package ports

import (
	"context"

	"github.com/bnema/partybot/internal/domain"
)

// GroupRepository persists one document per group.
//
// Upsert is a compare-and-swap on Version: the stored version must equal
// record.Version (zero meaning "no document yet"), otherwise it fails with
// domain.ErrVersionConflict and nothing is written. On success the stored
// version is record.Version+1 and the persisted record is returned.
type GroupRepository interface {
	Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error)
	Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error)
	Delete(ctx context.Context, id domain.GroupID) (domain.GroupRecord, bool, error)
	List(ctx context.Context) ([]domain.GroupRecord, error)
	Close() error
}
