package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
)

const maxConflictAttempts = 8

// errSkipWrite lets a Mutate callback end the read-modify-write without
// persisting anything.
var errSkipWrite = errors.New("skip write")

// SessionStore is the application's view of the group repository. Reads and
// writes are retried while the backend is unavailable and read-modify-write
// cycles are retried on version conflicts.
type SessionStore struct {
	repo    ports.GroupRepository
	retry   StoreRetry
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger
}

func NewSessionStore(repo ports.GroupRepository, retry StoreRetry, clock ports.Clock, m *metrics.Collector, logger zerolog.Logger) *SessionStore {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &SessionStore{repo: repo, retry: retry, clock: clock, metrics: m, logger: logger}
}

func (s *SessionStore) Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error) {
	return storeDo(ctx, s.retry, s.metrics, func() (domain.GroupRecord, error) {
		return s.repo.Get(ctx, id)
	})
}

// GetOrCreateGroup returns the group document, creating it owned by admin
// when it does not exist. With a nil admin a missing group is an error.
func (s *SessionStore) GetOrCreateGroup(ctx context.Context, id domain.GroupID, admin *domain.UserID) (domain.GroupRecord, error) {
	record, err := s.Get(ctx, id)
	if err == nil || !errors.Is(err, domain.ErrGroupNotFound) || admin == nil {
		return record, err
	}

	created := domain.NewGroupRecord(id, *admin)
	created.UpdatedAt = s.clock.Now()
	record, err = s.Upsert(ctx, created)
	if errors.Is(err, domain.ErrVersionConflict) {
		// created concurrently by another writer
		return s.Get(ctx, id)
	}
	if err == nil {
		s.logger.Info().Str("group", string(id)).Str("admin", string(*admin)).Msg("group record created")
	}
	return record, err
}

func (s *SessionStore) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	return storeDo(ctx, s.retry, s.metrics, func() (domain.GroupRecord, error) {
		return s.repo.Upsert(ctx, record)
	})
}

func (s *SessionStore) Delete(ctx context.Context, id domain.GroupID) (domain.GroupRecord, bool, error) {
	type result struct {
		record domain.GroupRecord
		found  bool
	}
	res, err := storeDo(ctx, s.retry, s.metrics, func() (result, error) {
		record, found, err := s.repo.Delete(ctx, id)
		return result{record: record, found: found}, err
	})
	return res.record, res.found, err
}

func (s *SessionStore) List(ctx context.Context) ([]domain.GroupRecord, error) {
	return storeDo(ctx, s.retry, s.metrics, func() ([]domain.GroupRecord, error) {
		return s.repo.List(ctx)
	})
}

// HasActiveSessionOwnedBy reports whether owner already runs a party in the
// group. A group without a document has no parties.
func (s *SessionStore) HasActiveSessionOwnedBy(ctx context.Context, id domain.GroupID, owner domain.UserID) (bool, error) {
	record, err := s.GetOrCreateGroup(ctx, id, nil)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.HasPartyOwnedBy(owner), nil
}

func (s *SessionStore) Party(ctx context.Context, id domain.GroupID, owner domain.UserID) (domain.Party, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return domain.Party{}, err
	}
	party, ok := record.Party(owner)
	if !ok {
		return domain.Party{}, fmt.Errorf("%w: owner %s", domain.ErrPartyNotFound, owner)
	}
	return party, nil
}

// Mutate applies fn to a fresh copy of the group document and writes it back.
// On a version conflict the document is re-read and fn runs again, so fn must
// derive every change from the record it is given. Returning errSkipWrite
// from fn ends the cycle without writing and without error.
func (s *SessionStore) Mutate(ctx context.Context, id domain.GroupID, fn func(*domain.GroupRecord) error) (domain.GroupRecord, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return domain.GroupRecord{}, err
		}

		next := current.Clone()
		if err := fn(&next); err != nil {
			if errors.Is(err, errSkipWrite) {
				return current, nil
			}
			return current, err
		}
		next.UpdatedAt = s.clock.Now()

		saved, err := s.write(ctx, next)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxConflictAttempts {
			s.metrics.StoreRetried()
			s.logger.Debug().Str("group", string(id)).Int("attempt", attempt).Msg("version conflict, re-reading group")
			continue
		}
		return saved, err
	}
}

// write upserts next for Mutate. An attempt that failed as unavailable may
// still have committed, in which case the retry hits its own write as a
// version conflict. That conflict is resolved against the stored record so
// fn is never applied twice.
func (s *SessionStore) write(ctx context.Context, next domain.GroupRecord) (domain.GroupRecord, error) {
	uncertain := false
	saved, err := storeDo(ctx, s.retry, s.metrics, func() (domain.GroupRecord, error) {
		saved, err := s.repo.Upsert(ctx, next)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			uncertain = true
		}
		return saved, err
	})
	if !uncertain || !errors.Is(err, domain.ErrVersionConflict) {
		return saved, err
	}

	stored, getErr := s.Get(ctx, next.ID)
	if getErr == nil && stored.Version == next.Version+1 && stored.SameContent(next) {
		s.logger.Debug().Str("group", string(next.ID)).Int64("version", stored.Version).Msg("unacknowledged write found in store")
		return stored, nil
	}
	return saved, err
}

// UpdateParty is Mutate scoped to the party owned by owner. The returned
// party reflects what is stored after the call.
func (s *SessionStore) UpdateParty(ctx context.Context, id domain.GroupID, owner domain.UserID, fn func(*domain.Party) error) (domain.Party, error) {
	record, err := s.Mutate(ctx, id, func(record *domain.GroupRecord) error {
		party, ok := record.Party(owner)
		if !ok {
			return fmt.Errorf("%w: owner %s", domain.ErrPartyNotFound, owner)
		}
		if err := fn(&party); err != nil {
			return err
		}
		record.ReplaceParty(party)
		return nil
	})
	if err != nil {
		return domain.Party{}, err
	}
	party, ok := record.Party(owner)
	if !ok {
		return domain.Party{}, fmt.Errorf("%w: owner %s", domain.ErrPartyNotFound, owner)
	}
	return party, nil
}

// RemoveParty deletes the owner's party from the group document. It reports
// whether a party was removed.
func (s *SessionStore) RemoveParty(ctx context.Context, id domain.GroupID, owner domain.UserID) (bool, error) {
	removed := false
	_, err := s.Mutate(ctx, id, func(record *domain.GroupRecord) error {
		removed = record.RemoveParty(owner)
		if !removed {
			return errSkipWrite
		}
		return nil
	})
	if errors.Is(err, domain.ErrGroupNotFound) {
		return false, nil
	}
	return removed, err
}
