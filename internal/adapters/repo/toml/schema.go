package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int           `toml:"version"`
	Groups  []groupSchema `toml:"groups"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported groups schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type groupSchema struct {
	ID        string        `toml:"id"`
	OwnerID   string        `toml:"owner_id"`
	Version   int64         `toml:"version"`
	UpdatedAt string        `toml:"updated_at"`
	Parties   []partySchema `toml:"parties"`
}

type partySchema struct {
	Owner     string          `toml:"owner"`
	OwnerIcon string          `toml:"owner_icon,omitempty"`
	Members   []memberSchema  `toml:"members,omitempty"`
	Occupancy int             `toml:"occupancy"`
	Capacity  int             `toml:"capacity"`
	Title     string          `toml:"title"`
	Game      string          `toml:"game"`
	Resources resourcesSchema `toml:"resources"`
	Origin    originSchema    `toml:"origin"`
	Countdown int             `toml:"countdown"`
	CreatedAt string          `toml:"created_at"`
}

type memberSchema struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

type resourcesSchema struct {
	VoiceChannel string `toml:"voice_channel"`
	TextChannel  string `toml:"text_channel"`
	Role         string `toml:"role"`
}

type originSchema struct {
	Channel      string `toml:"channel"`
	Command      string `toml:"command"`
	Announcement string `toml:"announcement"`
}
