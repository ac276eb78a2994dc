package application

import (
	"context"
	"time"

	"github.com/bnema/partybot/internal/domain"
)

// PartyRef identifies one running party and the announcement it listens on.
type PartyRef struct {
	Group        domain.GroupID
	Owner        domain.UserID
	Channel      domain.ChannelID
	Announcement domain.MessageID
}

func RefFor(group domain.GroupID, party domain.Party) PartyRef {
	return PartyRef{
		Group:        group,
		Owner:        party.Owner,
		Channel:      party.Origin.Channel,
		Announcement: party.Origin.Announcement,
	}
}

type PartyView struct {
	Owner     domain.UserID
	Title     string
	Game      string
	Members   []string
	Occupancy int
	Capacity  int
	Countdown int
	Frozen    bool
	CreatedAt time.Time
}

type GroupView struct {
	ID        domain.GroupID
	Admin     domain.UserID
	Version   int64
	UpdatedAt time.Time
	Parties   []PartyView
}

func viewOfParty(p domain.Party) PartyView {
	return PartyView{
		Owner:     p.Owner,
		Title:     p.Title,
		Game:      p.Game,
		Members:   append([]string(nil), p.MemberNames...),
		Occupancy: p.Occupancy,
		Capacity:  p.Capacity,
		Countdown: p.Countdown,
		Frozen:    p.Healthy(),
		CreatedAt: p.CreatedAt,
	}
}

func viewOfGroup(g domain.GroupRecord) GroupView {
	view := GroupView{ID: g.ID, Admin: g.Admin, Version: g.Version, UpdatedAt: g.UpdatedAt}
	for _, p := range g.Parties {
		view.Parties = append(view.Parties, viewOfParty(p))
	}
	return view
}

// Queries is the read side used by the CLI and the HTTP surface. It never
// touches the platform.
type Queries struct {
	store *SessionStore
}

func NewQueries(store *SessionStore) *Queries {
	return &Queries{store: store}
}

func (q *Queries) ListGroups(ctx context.Context) ([]GroupView, error) {
	records, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]GroupView, 0, len(records))
	for _, record := range records {
		views = append(views, viewOfGroup(record))
	}
	return views, nil
}

func (q *Queries) ListParties(ctx context.Context, group domain.GroupID) ([]PartyView, error) {
	record, err := q.store.Get(ctx, group)
	if err != nil {
		return nil, err
	}
	return viewOfGroup(record).Parties, nil
}

func (q *Queries) Group(ctx context.Context, group domain.GroupID) (GroupView, error) {
	record, err := q.store.Get(ctx, group)
	if err != nil {
		return GroupView{}, err
	}
	return viewOfGroup(record), nil
}
