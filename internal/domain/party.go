package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	MinCapacity = 2
	MaxCapacity = 20

	// SurvivalThreshold is the occupancy at which the reclamation countdown
	// stops decrementing.
	SurvivalThreshold = 2

	// DefaultCountdown is the number of reclamation ticks a party may spend
	// below SurvivalThreshold before it is torn down.
	DefaultCountdown = 5

	EmptyMemberList = "None"
)

// Party is the live state of one party session. Members and MemberNames are
// parallel slices and are always mutated together.
type Party struct {
	Owner       UserID
	OwnerIcon   string
	Members     []UserID
	MemberNames []string
	Occupancy   int
	Capacity    int
	Title       string
	Game        string
	Resources   Resources
	Origin      Origin
	Countdown   int
	CreatedAt   time.Time
}

// NewParty builds an empty party. Capacity is validated by the caller.
func NewParty(owner UserID, capacity int, title, game string, resources Resources) Party {
	return Party{
		Owner:       owner,
		Members:     []UserID{},
		MemberNames: []string{},
		Capacity:    capacity,
		Title:       title,
		Game:        game,
		Resources:   resources,
		Countdown:   DefaultCountdown,
	}
}

func (p Party) IsFull() bool {
	return p.Occupancy == p.Capacity
}

// Healthy reports whether occupancy holds the countdown frozen.
func (p Party) Healthy() bool {
	return p.Occupancy >= SurvivalThreshold
}

func (p Party) ContainsMember(id UserID) bool {
	return slices.Contains(p.Members, id)
}

// AddMember appends id and its display name. It returns false and leaves the
// party untouched when id is already a member or the party is full.
func (p *Party) AddMember(id UserID, displayName string) bool {
	if p.IsFull() || p.ContainsMember(id) {
		return false
	}

	p.Members = append(p.Members, id)
	p.MemberNames = append(p.MemberNames, displayName)
	p.Occupancy++
	return true
}

// RemoveMember drops id together with the display name stored at the same
// position. It returns false when id is not a member and ErrPartyCorrupt,
// leaving the party untouched, when the member slices are out of lock-step.
func (p *Party) RemoveMember(id UserID) (bool, error) {
	if err := p.CheckMembers(); err != nil {
		return false, err
	}
	idx := slices.Index(p.Members, id)
	if idx < 0 {
		return false, nil
	}

	p.Members = slices.Delete(p.Members, idx, idx+1)
	p.MemberNames = slices.Delete(p.MemberNames, idx, idx+1)
	p.Occupancy--
	return true, nil
}

// CheckMembers verifies that ids, display names and occupancy agree.
func (p Party) CheckMembers() error {
	if len(p.Members) != len(p.MemberNames) || len(p.Members) != p.Occupancy {
		return fmt.Errorf("%w: owner %s has %d members, %d names, occupancy %d",
			ErrPartyCorrupt, p.Owner, len(p.Members), len(p.MemberNames), p.Occupancy)
	}
	return nil
}

// MemberList renders display names in join order.
func (p Party) MemberList() string {
	if len(p.MemberNames) == 0 {
		return EmptyMemberList
	}
	return strings.Join(p.MemberNames, ", ")
}

// Tick advances the reclamation countdown by one tick and reports whether
// the party has expired. Healthy parties keep their countdown frozen.
func (p *Party) Tick() bool {
	if p.Healthy() {
		return false
	}
	if p.Countdown > 0 {
		p.Countdown--
	}
	return p.Countdown == 0
}

// Equal compares every persisted field. CreatedAt is compared at millisecond
// precision because not every backend keeps nanoseconds.
func (p Party) Equal(other Party) bool {
	return p.Owner == other.Owner &&
		p.OwnerIcon == other.OwnerIcon &&
		slices.Equal(p.Members, other.Members) &&
		slices.Equal(p.MemberNames, other.MemberNames) &&
		p.Occupancy == other.Occupancy &&
		p.Capacity == other.Capacity &&
		p.Title == other.Title &&
		p.Game == other.Game &&
		p.Resources == other.Resources &&
		p.Origin == other.Origin &&
		p.Countdown == other.Countdown &&
		p.CreatedAt.Truncate(time.Millisecond).Equal(other.CreatedAt.Truncate(time.Millisecond))
}

// Clone returns a deep copy so snapshots never share backing arrays.
func (p Party) Clone() Party {
	p.Members = slices.Clone(p.Members)
	p.MemberNames = slices.Clone(p.MemberNames)
	if p.Members == nil {
		p.Members = []UserID{}
	}
	if p.MemberNames == nil {
		p.MemberNames = []string{}
	}
	return p
}

// ValidatePartyRequest checks the create command arguments.
func ValidatePartyRequest(title, game string, capacity int) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Reason: "a party needs a title"}
	}
	if strings.TrimSpace(game) == "" {
		return &ValidationError{Field: "game", Reason: "a party needs a game"}
	}
	if capacity < MinCapacity || capacity > MaxCapacity {
		return &ValidationError{
			Field:  "capacity",
			Reason: fmt.Sprintf("the player limit must be between %d and %d", MinCapacity, MaxCapacity),
		}
	}
	return nil
}
