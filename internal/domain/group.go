package domain

import (
	"slices"
	"time"
)

// GroupRecord is the persisted document for one community space. Version is
// bumped by the store on every accepted write.
type GroupRecord struct {
	ID        GroupID
	Admin     UserID
	Parties   []Party
	Version   int64
	UpdatedAt time.Time
}

func NewGroupRecord(id GroupID, admin UserID) GroupRecord {
	return GroupRecord{ID: id, Admin: admin, Parties: []Party{}}
}

func (g GroupRecord) partyIndex(owner UserID) int {
	return slices.IndexFunc(g.Parties, func(p Party) bool { return p.Owner == owner })
}

func (g GroupRecord) HasPartyOwnedBy(owner UserID) bool {
	return g.partyIndex(owner) >= 0
}

// Party returns a copy of the party owned by owner.
func (g GroupRecord) Party(owner UserID) (Party, bool) {
	idx := g.partyIndex(owner)
	if idx < 0 {
		return Party{}, false
	}
	return g.Parties[idx].Clone(), true
}

// AddParty appends party, refusing a second party for the same owner.
func (g *GroupRecord) AddParty(party Party) error {
	if g.HasPartyOwnedBy(party.Owner) {
		return ErrPartyExists
	}
	g.Parties = append(g.Parties, party)
	return nil
}

// ReplaceParty swaps the stored party in place, keeping display order.
func (g *GroupRecord) ReplaceParty(party Party) bool {
	idx := g.partyIndex(party.Owner)
	if idx < 0 {
		return false
	}
	g.Parties[idx] = party
	return true
}

func (g *GroupRecord) RemoveParty(owner UserID) bool {
	idx := g.partyIndex(owner)
	if idx < 0 {
		return false
	}
	g.Parties = slices.Delete(g.Parties, idx, idx+1)
	return true
}

// Clone returns a deep copy of the record.
func (g GroupRecord) Clone() GroupRecord {
	parties := make([]Party, 0, len(g.Parties))
	for _, p := range g.Parties {
		parties = append(parties, p.Clone())
	}
	g.Parties = parties
	return g
}

// SameContent reports whether other holds the same group state as g,
// ignoring Version and UpdatedAt.
func (g GroupRecord) SameContent(other GroupRecord) bool {
	return g.ID == other.ID && g.Admin == other.Admin &&
		slices.EqualFunc(g.Parties, other.Parties, Party.Equal)
}
