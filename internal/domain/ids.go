package domain

// Platform snowflakes are kept as strings end to end; the store never does
// arithmetic on them.
type (
	GroupID   string
	UserID    string
	ChannelID string
	RoleID    string
	MessageID string
)

// Resources are the platform objects provisioned for a single party.
type Resources struct {
	VoiceChannel ChannelID
	TextChannel  ChannelID
	Role         RoleID
}

// Origin locates the chat messages a party was created from.
type Origin struct {
	Channel      ChannelID
	Command      MessageID
	Announcement MessageID
}
