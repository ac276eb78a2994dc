package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

// NewSession builds a bot session with the gateway intents partybot needs.
// The session is not connected yet.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = intents
	session.StateEnabled = true
	return session, nil
}

// Bot owns the gateway connection and routes its events.
type Bot struct {
	session *discordgo.Session
	router  *Router
	signals *SignalSource
	logger  zerolog.Logger
}

func NewBot(session *discordgo.Session, router *Router, signals *SignalSource, logger zerolog.Logger) *Bot {
	return &Bot{session: session, router: router, signals: signals, logger: logger}
}

// Run connects to the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	removers := []func(){
		b.session.AddHandler(b.router.Ready),
		b.session.AddHandler(b.router.GuildCreate),
		b.session.AddHandler(b.router.GuildDelete),
		b.session.AddHandler(b.router.MessageCreate),
		b.session.AddHandler(b.router.ReactionAdd),
		b.session.AddHandler(b.router.ReactionRemove),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	b.logger.Info().Msg("discord gateway connected")

	<-ctx.Done()

	b.router.Close()
	b.signals.Close()
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	b.logger.Info().Msg("discord gateway closed")
	return nil
}
