package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRecordAllowsOnePartyPerOwner(t *testing.T) {
	g := NewGroupRecord("guild", "admin")

	require.NoError(t, g.AddParty(NewParty("o1", 4, "a", "g", Resources{})))
	require.NoError(t, g.AddParty(NewParty("o2", 4, "b", "g", Resources{})))

	err := g.AddParty(NewParty("o1", 6, "c", "g", Resources{}))
	require.ErrorIs(t, err, ErrPartyExists)
	assert.Len(t, g.Parties, 2)
	assert.True(t, g.HasPartyOwnedBy("o1"))
	assert.False(t, g.HasPartyOwnedBy("o3"))
}

func TestGroupRecordReplaceKeepsOrder(t *testing.T) {
	g := NewGroupRecord("guild", "admin")
	require.NoError(t, g.AddParty(NewParty("o1", 4, "first", "g", Resources{})))
	require.NoError(t, g.AddParty(NewParty("o2", 4, "second", "g", Resources{})))

	p, ok := g.Party("o1")
	require.True(t, ok)
	p.Title = "renamed"
	require.True(t, g.ReplaceParty(p))

	assert.Equal(t, "renamed", g.Parties[0].Title)
	assert.Equal(t, "second", g.Parties[1].Title)
	assert.False(t, g.ReplaceParty(NewParty("nobody", 2, "x", "y", Resources{})))
}

func TestGroupRecordRemoveParty(t *testing.T) {
	g := NewGroupRecord("guild", "admin")
	require.NoError(t, g.AddParty(NewParty("o1", 4, "a", "g", Resources{})))

	assert.True(t, g.RemoveParty("o1"))
	assert.False(t, g.RemoveParty("o1"))
	_, ok := g.Party("o1")
	assert.False(t, ok)
}

func TestGroupRecordPartyReturnsCopy(t *testing.T) {
	g := NewGroupRecord("guild", "admin")
	require.NoError(t, g.AddParty(NewParty("o1", 4, "a", "g", Resources{})))

	p, _ := g.Party("o1")
	p.AddMember("x", "X")

	stored, _ := g.Party("o1")
	assert.Equal(t, 0, stored.Occupancy)
	assert.Empty(t, g.Parties[0].Members)
}

func TestGroupRecordSameContentIgnoresVersionAndTimestamp(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	party := NewParty("o1", 4, "a", "g", Resources{Role: "r1"})
	party.CreatedAt = created
	party.AddMember("u1", "one")

	g := NewGroupRecord("guild", "admin")
	require.NoError(t, g.AddParty(party))

	stored := g.Clone()
	stored.Version = 7
	stored.UpdatedAt = created.Add(time.Hour)
	stored.Parties[0].CreatedAt = created.Truncate(time.Microsecond).In(time.FixedZone("x", 3600))
	assert.True(t, g.SameContent(stored))

	stored.Parties[0].Countdown--
	assert.False(t, g.SameContent(stored))

	other := g.Clone()
	other.Parties[0].AddMember("u2", "two")
	assert.False(t, g.SameContent(other))
}
