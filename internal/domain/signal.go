package domain

// SignalKind is the closed set of membership intents.
type SignalKind int

const (
	SignalGrant SignalKind = iota + 1
	SignalRevoke
)

func (k SignalKind) String() string {
	switch k {
	case SignalGrant:
		return "grant"
	case SignalRevoke:
		return "revoke"
	default:
		return "unknown"
	}
}

// DefaultJoinMarker is the only reaction that toggles membership.
const DefaultJoinMarker = "👍"

// Signal is one reaction toggle observed on a party announcement.
type Signal struct {
	Actor     UserID
	ActorName string
	Kind      SignalKind
	Marker    string
}

// Announcement is the platform-neutral view of a party announcement.
type Announcement struct {
	Title      string
	Game       string
	Members    string
	Occupancy  int
	Capacity   int
	Full       bool
	AuthorIcon string
}

// Announcement renders the current party state for the announcement message.
func (p Party) Announcement() Announcement {
	return Announcement{
		Title:      p.Title,
		Game:       p.Game,
		Members:    p.MemberList(),
		Occupancy:  p.Occupancy,
		Capacity:   p.Capacity,
		Full:       p.IsFull(),
		AuthorIcon: p.OwnerIcon,
	}
}
