package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/partybot/internal/domain"
)

type CommandKind int

const (
	CommandCreate CommandKind = iota + 1
	CommandStop
	CommandPing
)

func (k CommandKind) String() string {
	switch k {
	case CommandCreate:
		return "create"
	case CommandStop:
		return "stop"
	case CommandPing:
		return "ping"
	default:
		return "unknown"
	}
}

const pingContent = "!ping"

var groupAliases = []string{"party", "p"}

// Command is a parsed chat command.
type Command struct {
	Kind     CommandKind
	Title    string
	Capacity int
	Game     string
}

func usage(prefix string) string {
	return fmt.Sprintf("usage: %sparty create <title>, <players>, <game> or %sparty stop", prefix, prefix)
}

// ParseCommand reads a chat message. ok is false for messages that are not
// addressed to the bot; a malformed command returns a *domain.ValidationError.
func ParseCommand(prefix, content string) (cmd Command, ok bool, err error) {
	content = strings.TrimSpace(content)
	if content == pingContent {
		return Command{Kind: CommandPing}, true, nil
	}
	rest, found := strings.CutPrefix(content, prefix)
	if !found {
		return Command{}, false, nil
	}

	group, rest := nextWord(rest)
	if !isGroupAlias(group) {
		return Command{}, false, nil
	}

	sub, rest := nextWord(rest)
	switch strings.ToLower(sub) {
	case "create":
		cmd, err := parseCreate(prefix, rest)
		return cmd, true, err
	case "stop":
		return Command{Kind: CommandStop}, true, nil
	default:
		return Command{}, true, &domain.ValidationError{Reason: usage(prefix)}
	}
}

func parseCreate(prefix, raw string) (Command, error) {
	args := splitArgs(raw)
	if len(args) != 3 {
		return Command{}, &domain.ValidationError{Reason: usage(prefix)}
	}

	capacity, err := strconv.Atoi(args[1])
	if err != nil {
		return Command{}, &domain.ValidationError{Field: "capacity", Reason: "the player limit must be a whole number"}
	}

	return Command{Kind: CommandCreate, Title: args[0], Capacity: capacity, Game: args[2]}, nil
}

// splitArgs splits on commas and trims each argument.
func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func nextWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t\n")
	idx := strings.IndexAny(s, " \t\n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

func isGroupAlias(word string) bool {
	word = strings.ToLower(word)
	for _, alias := range groupAliases {
		if word == alias {
			return true
		}
	}
	return false
}
