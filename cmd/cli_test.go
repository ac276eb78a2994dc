package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/bnema/partybot/internal/adapters/repo/repotest"
	tomlrepo "github.com/bnema/partybot/internal/adapters/repo/toml"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/version"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionPrintsBuildVersion(t *testing.T) {
	home := newHome(t)

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", stdout)
}

func TestStatusWithoutGroups(t *testing.T) {
	home := newHome(t)

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "groups: 0  parties: 0")
	assert.Contains(t, stdout, "No groups recorded.")
}

func TestStatusShowsStoredParties(t *testing.T) {
	home := newHome(t)
	seedGroups(t, home, repotest.SampleRecord("g-1"))

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "groups: 1  parties: 2")
	assert.Contains(t, stdout, "Group g-1 (admin admin-1)")
	assert.Contains(t, stdout, "Ranked night")
	assert.Contains(t, stdout, "members: Alice, Bob")
}

func TestStatusJSONOutput(t *testing.T) {
	home := newHome(t)
	seedGroups(t, home, repotest.SampleRecord("g-1"))

	stdout, _, err := executeCLI(t, home, "status", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"ID\": \"g-1\"")
	assert.Contains(t, stdout, "\"Title\": \"Ranked night\"")
}

func TestPartyListRequiresGroup(t *testing.T) {
	home := newHome(t)

	_, _, err := executeCLI(t, home, "party", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"group\" not set")
}

func TestPartyListShowsOneGroup(t *testing.T) {
	home := newHome(t)
	seedGroups(t, home, repotest.SampleRecord("g-1"), repotest.SampleRecord("g-2"))

	stdout, _, err := executeCLI(t, home, "party", "list", "--group", "g-2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "groups: 1  parties: 2")
	assert.Contains(t, stdout, "Group g-2")
	assert.NotContains(t, stdout, "Group g-1")
}

func TestPartyListUnknownGroup(t *testing.T) {
	home := newHome(t)

	_, _, err := executeCLI(t, home, "party", "list", "--group", "nope")
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestPartyDeleteUnknownPartyNeedsNoToken(t *testing.T) {
	home := newHome(t)
	seedGroups(t, home, repotest.SampleRecord("g-1"))

	_, _, err := executeCLI(t, home, "party", "delete", "--group", "g-1", "--owner", "someone-else")
	require.ErrorIs(t, err, domain.ErrPartyNotFound)
}

func TestPartyDeleteWithoutTokenFails(t *testing.T) {
	home := newHome(t)
	seedGroups(t, home, repotest.SampleRecord("g-1"))

	_, _, err := executeCLI(t, home, "party", "delete", "--group", "g-1", "--owner", "owner-1")
	require.ErrorIs(t, err, errTokenMissing)
}

func TestGroupDeleteRemovesEmptyGroup(t *testing.T) {
	home := newHome(t)
	t.Setenv("PARTYBOT_DISCORD_TOKEN", "test-token")
	seedGroups(t, home, domain.NewGroupRecord("g-9", "admin-9"), repotest.SampleRecord("g-1"))

	stdout, _, err := executeCLI(t, home, "group", "delete", "--group", "g-9")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Deleted group g-9 (0 parties)")

	stdout, _, err = executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "groups: 1")
	assert.NotContains(t, stdout, "g-9")
}

func TestTokenLifecycle(t *testing.T) {
	home := newHome(t)

	_, _, err := executeCLI(t, home, "token", "show")
	require.ErrorIs(t, err, errTokenMissing)

	stdout, _, err := executeCLI(t, home, "token", "set", "--value", "MTIzNDU2Nzg5.abcdef")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Stored token under partybot/discord/token")

	stdout, _, err = executeCLI(t, home, "token", "show")
	require.NoError(t, err)
	assert.Equal(t, "MTIz***********cdef\n", stdout)

	stdout, _, err = executeCLI(t, home, "token", "show", "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "MTIzNDU2Nzg5.abcdef\n", stdout)

	_, _, err = executeCLI(t, home, "token", "remove")
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "token", "show")
	require.ErrorIs(t, err, errTokenMissing)
}

func TestTokenSetReadsStdin(t *testing.T) {
	home := newHome(t)

	_, _, err := executeCLIWithInput(t, home, strings.NewReader("piped-token-value\n"), "token", "set")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "token", "show", "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "piped-token-value\n", stdout)
}

func TestTokenSetRejectsEmptyInput(t *testing.T) {
	home := newHome(t)

	_, _, err := executeCLIWithInput(t, home, strings.NewReader("\n"), "token", "set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is empty")
}

func TestEnvTokenWinsOverStoredToken(t *testing.T) {
	home := newHome(t)
	_, _, err := executeCLI(t, home, "token", "set", "--value", "stored-token")
	require.NoError(t, err)

	t.Setenv("PARTYBOT_DISCORD_TOKEN", "env-token")
	stdout, _, err := executeCLI(t, home, "token", "show", "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "env-token\n", stdout)
}

func TestInvalidBackendIsRejected(t *testing.T) {
	home := newHome(t)
	t.Setenv("PARTYBOT_STORE_BACKEND", "mongo")

	_, _, err := executeCLI(t, home, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store backend")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("abcd"))
	assert.Equal(t, "abcd*efgh", maskToken("abcdXefgh"))
}

// newHome isolates HOME and hides any pass binary so secrets land in the
// file fallback below HOME.
func newHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PATH", t.TempDir())
	t.Setenv("PARTYBOT_STORE_BACKEND", "toml")
	t.Setenv("PARTYBOT_LOG_LEVEL", "error")
	return home
}

func seedGroups(t *testing.T, home string, records ...domain.GroupRecord) {
	t.Helper()
	v := viper.New()
	v.Set("store.toml.path", home+"/.partybot/groups.toml")
	repo, err := tomlrepo.NewRepository(v)
	require.NoError(t, err)
	for _, record := range records {
		_, err := repo.Upsert(context.Background(), record)
		require.NoError(t, err)
	}
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, home, strings.NewReader(""), args...)
}

func executeCLIWithInput(t *testing.T, home string, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
