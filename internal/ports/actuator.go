package ports

import (
	"context"

	"github.com/bnema/partybot/internal/domain"
)

// Provisioner creates and removes the platform resources backing a party.
// Calls on a resource that no longer exists fail with
// domain.ErrResourceNotFound. Requests the platform refuses outright fail
// with domain.ErrPlatformRejected.
type Provisioner interface {
	CreateRole(ctx context.Context, group domain.GroupID, name string) (domain.RoleID, error)
	DeleteRole(ctx context.Context, group domain.GroupID, role domain.RoleID) error
	CreateTextChannel(ctx context.Context, group domain.GroupID, name, topic string, role domain.RoleID) (domain.ChannelID, error)
	CreateVoiceChannel(ctx context.Context, group domain.GroupID, name string, userLimit int, role domain.RoleID) (domain.ChannelID, error)
	DeleteChannel(ctx context.Context, channel domain.ChannelID) error
	AddMemberRole(ctx context.Context, group domain.GroupID, user domain.UserID, role domain.RoleID) error
	RemoveMemberRole(ctx context.Context, group domain.GroupID, user domain.UserID, role domain.RoleID) error
}

// Messenger posts and maintains chat messages.
type Messenger interface {
	SendAnnouncement(ctx context.Context, channel domain.ChannelID, a domain.Announcement) (domain.MessageID, error)
	EditAnnouncement(ctx context.Context, channel domain.ChannelID, message domain.MessageID, a domain.Announcement) error
	SendNotice(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error)
	DeleteMessage(ctx context.Context, channel domain.ChannelID, message domain.MessageID) error
	AddReaction(ctx context.Context, channel domain.ChannelID, message domain.MessageID, marker string) error
	RemoveReaction(ctx context.Context, channel domain.ChannelID, message domain.MessageID, marker string, user domain.UserID) error
}

type Actuator interface {
	Provisioner
	Messenger
}
