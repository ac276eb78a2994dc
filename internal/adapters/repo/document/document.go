// Package document is the persisted layout of a group record shared by the
// key-value and SQL backends.
package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnema/partybot/internal/domain"
)

type Group struct {
	ID        string    `json:"_id"`
	OwnerID   string    `json:"owner_id"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Parties   []Party   `json:"parties"`
}

type Party struct {
	Owner               string    `json:"owner"`
	OwnerIcon           string    `json:"owner_icon,omitempty"`
	Members             []string  `json:"members"`
	MemberNames         []string  `json:"member_names"`
	Occupancy           int       `json:"occupancy"`
	Capacity            int       `json:"capacity"`
	Title               string    `json:"title"`
	Game                string    `json:"game"`
	VoiceChannel        string    `json:"voice_channel"`
	TextChannel         string    `json:"text_channel"`
	Role                string    `json:"role"`
	OriginChannel       string    `json:"origin_channel"`
	CommandMessage      string    `json:"command_message"`
	AnnouncementMessage string    `json:"announcement_message"`
	Countdown           int       `json:"countdown"`
	CreatedAt           time.Time `json:"created_at"`
}

func FromDomain(record domain.GroupRecord) Group {
	doc := Group{
		ID:        string(record.ID),
		OwnerID:   string(record.Admin),
		Version:   record.Version,
		UpdatedAt: record.UpdatedAt.UTC(),
		Parties:   make([]Party, 0, len(record.Parties)),
	}
	for _, p := range record.Parties {
		members := make([]string, len(p.Members))
		for i, m := range p.Members {
			members[i] = string(m)
		}
		doc.Parties = append(doc.Parties, Party{
			Owner:               string(p.Owner),
			OwnerIcon:           p.OwnerIcon,
			Members:             members,
			MemberNames:         append([]string{}, p.MemberNames...),
			Occupancy:           p.Occupancy,
			Capacity:            p.Capacity,
			Title:               p.Title,
			Game:                p.Game,
			VoiceChannel:        string(p.Resources.VoiceChannel),
			TextChannel:         string(p.Resources.TextChannel),
			Role:                string(p.Resources.Role),
			OriginChannel:       string(p.Origin.Channel),
			CommandMessage:      string(p.Origin.Command),
			AnnouncementMessage: string(p.Origin.Announcement),
			Countdown:           p.Countdown,
			CreatedAt:           p.CreatedAt.UTC(),
		})
	}
	return doc
}

func (g Group) ToDomain() domain.GroupRecord {
	record := domain.GroupRecord{
		ID:        domain.GroupID(g.ID),
		Admin:     domain.UserID(g.OwnerID),
		Version:   g.Version,
		UpdatedAt: g.UpdatedAt,
		Parties:   make([]domain.Party, 0, len(g.Parties)),
	}
	for _, p := range g.Parties {
		members := make([]domain.UserID, len(p.Members))
		for i, m := range p.Members {
			members[i] = domain.UserID(m)
		}
		names := append([]string{}, p.MemberNames...)
		record.Parties = append(record.Parties, domain.Party{
			Owner:       domain.UserID(p.Owner),
			OwnerIcon:   p.OwnerIcon,
			Members:     members,
			MemberNames: names,
			Occupancy:   p.Occupancy,
			Capacity:    p.Capacity,
			Title:       p.Title,
			Game:        p.Game,
			Resources: domain.Resources{
				VoiceChannel: domain.ChannelID(p.VoiceChannel),
				TextChannel:  domain.ChannelID(p.TextChannel),
				Role:         domain.RoleID(p.Role),
			},
			Origin: domain.Origin{
				Channel:      domain.ChannelID(p.OriginChannel),
				Command:      domain.MessageID(p.CommandMessage),
				Announcement: domain.MessageID(p.AnnouncementMessage),
			},
			Countdown: p.Countdown,
			CreatedAt: p.CreatedAt,
		})
	}
	return record
}

func Marshal(record domain.GroupRecord) ([]byte, error) {
	data, err := json.Marshal(FromDomain(record))
	if err != nil {
		return nil, fmt.Errorf("encode group %s: %w", record.ID, err)
	}
	return data, nil
}

func Unmarshal(data []byte) (domain.GroupRecord, error) {
	var doc Group
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.GroupRecord{}, fmt.Errorf("decode group document: %w", err)
	}
	return doc.ToDomain(), nil
}

// Stamp returns record as it is stored after a successful upsert.
func Stamp(record domain.GroupRecord) domain.GroupRecord {
	stored := record.Clone()
	stored.Version = record.Version + 1
	stored.UpdatedAt = record.UpdatedAt.UTC()
	return stored
}

// ConflictError reports a compare-and-swap mismatch.
func ConflictError(id domain.GroupID, want, got int64) error {
	return fmt.Errorf("%w: group %s at version %d, write expected %d", domain.ErrVersionConflict, id, got, want)
}

func NotFound(id domain.GroupID) error {
	return fmt.Errorf("%w: %s", domain.ErrGroupNotFound, id)
}
