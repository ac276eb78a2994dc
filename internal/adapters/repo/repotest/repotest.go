// Package repotest is the behaviour every ports.GroupRepository backend must
// share. Backend tests call Run with a factory for a fresh, empty repository.
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Factory func(t *testing.T) ports.GroupRepository

func Run(t *testing.T, newRepo Factory) {
	t.Helper()

	t.Run("round trip", func(t *testing.T) { testRoundTrip(t, newRepo(t)) })
	t.Run("get missing", func(t *testing.T) { testGetMissing(t, newRepo(t)) })
	t.Run("create conflict", func(t *testing.T) { testCreateConflict(t, newRepo(t)) })
	t.Run("stale write", func(t *testing.T) { testStaleWrite(t, newRepo(t)) })
	t.Run("replay leaves document unchanged", func(t *testing.T) { testReplay(t, newRepo(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("list", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("concurrent writers", func(t *testing.T) { testConcurrentWriters(t, newRepo(t)) })
}

func SampleRecord(id domain.GroupID) domain.GroupRecord {
	created := time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC)
	party := domain.NewParty("owner-1", 4, "Ranked night", "Valorant", domain.Resources{
		VoiceChannel: "voice-1",
		TextChannel:  "text-1",
		Role:         "role-1",
	})
	party.OwnerIcon = "https://cdn.example.test/avatar.png"
	party.AddMember("u-1", "Alice")
	party.AddMember("u-2", "Bob")
	party.Countdown = 3
	party.CreatedAt = created
	party.Origin = domain.Origin{Channel: "lobby", Command: "msg-1", Announcement: "msg-2"}

	empty := domain.NewParty("owner-2", 2, "Duo", "Chess", domain.Resources{Role: "role-2"})
	empty.CreatedAt = created.Add(time.Minute)

	record := domain.NewGroupRecord(id, "admin-1")
	record.UpdatedAt = created.Add(2 * time.Minute)
	record.Parties = []domain.Party{party, empty}
	return record
}

func testRoundTrip(t *testing.T, repo ports.GroupRepository) {
	ctx := context.Background()
	record := SampleRecord("g-1")

	stored, err := repo.Upsert(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	got, err := repo.Get(ctx, "g-1")
	require.NoError(t, err)
	if diff := cmp.Diff(stored, got); diff != "" {
		t.Fatalf("stored record mismatch (-want +got):\n%s", diff)
	}

	want := record
	want.Version = 1
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip changed the record (-want +got):\n%s", diff)
	}
}

func testGetMissing(t *testing.T, repo ports.GroupRepository) {
	_, err := repo.Get(context.Background(), "absent")
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func testCreateConflict(t *testing.T, repo ports.GroupRepository) {
	ctx := context.Background()
	_, err := repo.Upsert(ctx, domain.NewGroupRecord("g-1", "admin-1"))
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, domain.NewGroupRecord("g-1", "admin-2"))
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := repo.Get(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("admin-1"), got.Admin)
}

func testStaleWrite(t *testing.T, repo ports.GroupRepository) {
	ctx := context.Background()
	first, err := repo.Upsert(ctx, SampleRecord("g-1"))
	require.NoError(t, err)

	a := first.Clone()
	a.Parties[0].Countdown = 2
	_, err = repo.Upsert(ctx, a)
	require.NoError(t, err)

	b := first.Clone()
	b.Parties[0].Countdown = 1
	_, err = repo.Upsert(ctx, b)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := repo.Get(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 2, got.Parties[0].Countdown)
}

func testReplay(t *testing.T, repo ports.GroupRepository) {
	ctx := context.Background()
	record := SampleRecord("g-1")
	stored, err := repo.Upsert(ctx, record)
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, record)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := repo.Get(ctx, "g-1")
	require.NoError(t, err)
	if diff := cmp.Diff(stored, got); diff != "" {
		t.Fatalf("replayed write changed the document (-want +got):\n%s", diff)
	}
}

func testDelete(t *testing.T, repo ports.GroupRepository) {
	ctx := context.Background()
	stored, err := repo.Upsert(ctx, SampleRecord("g-1"))
	require.NoError(t, err)

	deleted, found, err := repo.Delete(ctx, "g-1")
	require.NoError(t, err)
	assert.True(t, found)
	if diff := cmp.Diff(stored, deleted); diff != "" {
		t.Fatalf("deleted record mismatch (-want +got):\n%s", diff)
	}

	_, err = repo.Get(ctx, "g-1")
	require.ErrorIs(t, err, domain.ErrGroupNotFound)

	_, found, err = repo.Delete(ctx, "g-1")
	require.NoError(t, err)
	assert.False(t, found)

	// a deleted group starts again from version zero
	recreated, err := repo.Upsert(ctx, domain.NewGroupRecord("g-1", "admin-3"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recreated.Version)
}

func testList(t *testing.T, repo ports.GroupRepository) {
	ctx := context.Background()
	for _, id := range []domain.GroupID{"g-b", "g-a", "g-c"} {
		_, err := repo.Upsert(ctx, domain.NewGroupRecord(id, "admin"))
		require.NoError(t, err)
	}

	records, err := repo.List(ctx)
	require.NoError(t, err)
	ids := make([]domain.GroupID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []domain.GroupID{"g-a", "g-b", "g-c"}, ids)
}

// Every writer increments a counter through read-modify-write loops. No
// increment may be lost.
func testConcurrentWriters(t *testing.T, repo ports.GroupRepository) {
	ctx := context.Background()
	base := domain.NewGroupRecord("g-1", "admin")
	base.Parties = []domain.Party{domain.NewParty("owner", 20, "t", "g", domain.Resources{})}
	base.Parties[0].Countdown = 0
	_, err := repo.Upsert(ctx, base)
	require.NoError(t, err)

	const writers, increments = 4, 5
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				for {
					current, err := repo.Get(ctx, "g-1")
					if err != nil {
						errs <- err
						return
					}
					current.Parties[0].Countdown++
					_, err = repo.Upsert(ctx, current)
					if errors.Is(err, domain.ErrVersionConflict) {
						continue
					}
					if err != nil {
						errs <- err
						return
					}
					break
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.Get(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, writers*increments, got.Parties[0].Countdown)
	assert.Equal(t, int64(1+writers*increments), got.Version)
}
