package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bnema/partybot/internal/adapters/repo/repotest"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, path string) *Repository {
	t.Helper()

	config := viper.New()
	config.Set("store.toml.path", path)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo
}

func TestRepositoryConformance(t *testing.T) {
	t.Parallel()

	repotest.Run(t, func(t *testing.T) ports.GroupRepository {
		return newTestRepository(t, filepath.Join(t.TempDir(), "groups.toml"))
	})
}

func TestRepositoryCreatesDefaultPathAndEnforcesPermissions(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	repo, err := NewRepository(viper.New())
	require.NoError(t, err)

	_, err = repo.Upsert(context.Background(), domain.NewGroupRecord("g-1", "admin-1"))
	require.NoError(t, err)

	groupsPath := filepath.Join(homeDir, ".partybot", "groups.toml")
	info, err := os.Stat(groupsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRepositoryMissingFileBehaviors(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "missing", "groups.toml"))

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = repo.Get(context.Background(), "g-1")
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestRepositoryReadsHandWrittenFile(t *testing.T) {
	t.Parallel()

	groupsPath := filepath.Join(t.TempDir(), "groups.toml")
	require.NoError(t, os.WriteFile(groupsPath, []byte(strings.Join([]string{
		"version = 1",
		"",
		"[[groups]]",
		"id = \"g-1\"",
		"owner_id = \"admin-1\"",
		"version = 3",
		"",
		"[[groups.parties]]",
		"owner = \"owner-1\"",
		"occupancy = 1",
		"capacity = 5",
		"title = \"Raid\"",
		"game = \"WoW\"",
		"countdown = 4",
		"",
		"[[groups.parties.members]]",
		"id = \"u-1\"",
		"name = \"Alice\"",
		"",
	}, "\n")), 0o600))

	repo := newTestRepository(t, groupsPath)

	record, err := repo.Get(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), record.Version)
	require.Len(t, record.Parties, 1)
	party := record.Parties[0]
	assert.Equal(t, []domain.UserID{"u-1"}, party.Members)
	assert.Equal(t, []string{"Alice"}, party.MemberNames)
	assert.Equal(t, 4, party.Countdown)
	assert.True(t, party.CreatedAt.IsZero())
}

func TestRepositoryListMalformedTOMLReturnsError(t *testing.T) {
	t.Parallel()

	groupsPath := filepath.Join(t.TempDir(), "groups.toml")
	require.NoError(t, os.WriteFile(groupsPath, []byte("groups = ["), 0o600))

	repo := newTestRepository(t, groupsPath)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode groups file")
}

func TestRepositoryUpsertCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "groups.toml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Upsert(ctx, domain.NewGroupRecord("g-1", "admin-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRepositoryConcurrentWritesAcrossInstancesPreserveBothGroups(t *testing.T) {
	t.Parallel()

	groupsPath := filepath.Join(t.TempDir(), "groups.toml")
	repoA := newTestRepository(t, groupsPath)
	repoB := newTestRepository(t, groupsPath)

	const perRepoWrites = 50
	start := make(chan struct{})
	errCh := make(chan error, perRepoWrites*2)
	var wg sync.WaitGroup
	wg.Add(2)

	write := func(repo *Repository, prefix string) {
		defer wg.Done()
		<-start
		for i := range perRepoWrites {
			id := domain.GroupID(prefix + strings.Repeat("x", i))
			_, err := repo.Upsert(context.Background(), domain.NewGroupRecord(id, "admin"))
			errCh <- err
		}
	}
	go write(repoA, "a-")
	go write(repoB, "b-")

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	records, err := repoA.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, perRepoWrites*2)
}

func TestRepositorySerializedTOMLIncludesVersion(t *testing.T) {
	t.Parallel()

	groupsPath := filepath.Join(t.TempDir(), "groups.toml")
	repo := newTestRepository(t, groupsPath)

	_, err := repo.Upsert(context.Background(), domain.NewGroupRecord("g-1", "admin-1"))
	require.NoError(t, err)

	data, err := os.ReadFile(groupsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
}

func TestRepositoryFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	groupsPath := filepath.Join(t.TempDir(), "groups.toml")
	require.NoError(t, os.WriteFile(groupsPath, []byte(strings.Join([]string{
		"version = 999",
		"",
		"groups = []",
		"",
	}, "\n")), 0o600))

	repo := newTestRepository(t, groupsPath)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported groups schema version")
}
