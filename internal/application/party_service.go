package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
)

// Lifecycle starts and stops the per-party loops. The CLI runs without one.
type Lifecycle interface {
	Subscribe(ref PartyRef) *Subscription
	LaunchWith(sub *Subscription) bool
	Stop(group domain.GroupID, owner domain.UserID)
	StopGroup(group domain.GroupID)
}

type PartyServiceConfig struct {
	Countdown int
	Marker    string
}

type PartyService struct {
	store     *SessionStore
	actuator  ports.Actuator
	retry     ActuatorRetry
	teardown  *Teardown
	lifecycle Lifecycle
	clock     ports.Clock
	cfg       PartyServiceConfig
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

func NewPartyService(store *SessionStore, actuator ports.Actuator, retry ActuatorRetry, teardown *Teardown, lifecycle Lifecycle, clock ports.Clock, cfg PartyServiceConfig, m *metrics.Collector, logger zerolog.Logger) *PartyService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = domain.DefaultCountdown
	}
	if cfg.Marker == "" {
		cfg.Marker = domain.DefaultJoinMarker
	}
	return &PartyService{
		store:     store,
		actuator:  actuator,
		retry:     retry,
		teardown:  teardown,
		lifecycle: lifecycle,
		clock:     clock,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// CreateParty validates the request, provisions the role and channels, posts
// the announcement, persists the party and starts its loops. Anything created
// before a failure is deleted again.
func (s *PartyService) CreateParty(ctx context.Context, cmd CreatePartyCommand) (domain.Party, error) {
	party, err := s.createParty(ctx, cmd)
	s.metrics.CommandInvoked("create", commandOutcome(err))
	return party, err
}

func (s *PartyService) createParty(ctx context.Context, cmd CreatePartyCommand) (domain.Party, error) {
	title := strings.TrimSpace(cmd.Title)
	game := strings.TrimSpace(cmd.Game)
	if err := domain.ValidatePartyRequest(title, game, cmd.Capacity); err != nil {
		return domain.Party{}, err
	}

	if cmd.GroupAdmin != "" {
		admin := cmd.GroupAdmin
		if _, err := s.store.GetOrCreateGroup(ctx, cmd.Group, &admin); err != nil {
			return domain.Party{}, fmt.Errorf("load group: %w", err)
		}
	}
	exists, err := s.store.HasActiveSessionOwnedBy(ctx, cmd.Group, cmd.Owner)
	if err != nil {
		return domain.Party{}, fmt.Errorf("check existing party: %w", err)
	}
	if exists {
		return domain.Party{}, domain.ErrPartyExists
	}

	party := domain.NewParty(cmd.Owner, cmd.Capacity, title, game, domain.Resources{})
	party.OwnerIcon = cmd.OwnerIcon
	party.Countdown = s.cfg.Countdown
	party.CreatedAt = s.clock.Now()
	party.Origin = domain.Origin{Channel: cmd.Channel, Command: cmd.Command}

	if err := s.provision(ctx, cmd, &party); err != nil {
		s.rollback(ctx, cmd.Group, party)
		return domain.Party{}, err
	}

	// listen before the join marker is offered so no early reaction is lost
	var sub *Subscription
	if s.lifecycle != nil {
		sub = s.lifecycle.Subscribe(RefFor(cmd.Group, party))
	}
	if err := s.activate(ctx, cmd, party); err != nil {
		sub.Cancel()
		s.rollback(ctx, cmd.Group, party)
		return domain.Party{}, err
	}
	if s.lifecycle != nil {
		s.lifecycle.LaunchWith(sub)
	}
	s.logger.Info().
		Str("group", string(cmd.Group)).
		Str("owner", string(cmd.Owner)).
		Str("title", title).
		Int("capacity", cmd.Capacity).
		Msg("party created")
	return party, nil
}

func (s *PartyService) provision(ctx context.Context, cmd CreatePartyCommand, party *domain.Party) error {
	var err error
	party.Resources.Role, err = ActuatorDo(ctx, s.retry, "create_role", func(ctx context.Context) (domain.RoleID, error) {
		return s.actuator.CreateRole(ctx, cmd.Group, party.Title)
	})
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("A party created for: %s", party.Game)
	party.Resources.TextChannel, err = ActuatorDo(ctx, s.retry, "create_text_channel", func(ctx context.Context) (domain.ChannelID, error) {
		return s.actuator.CreateTextChannel(ctx, cmd.Group, party.Title, topic, party.Resources.Role)
	})
	if err != nil {
		return err
	}

	party.Resources.VoiceChannel, err = ActuatorDo(ctx, s.retry, "create_voice_channel", func(ctx context.Context) (domain.ChannelID, error) {
		return s.actuator.CreateVoiceChannel(ctx, cmd.Group, party.Title, party.Capacity, party.Resources.Role)
	})
	if err != nil {
		return err
	}

	party.Origin.Announcement, err = ActuatorDo(ctx, s.retry, "send_announcement", func(ctx context.Context) (domain.MessageID, error) {
		return s.actuator.SendAnnouncement(ctx, cmd.Channel, party.Announcement())
	})
	return err
}

// activate offers the join marker and persists the party.
func (s *PartyService) activate(ctx context.Context, cmd CreatePartyCommand, party domain.Party) error {
	err := s.retry.Do(ctx, "add_reaction", func(ctx context.Context) error {
		return s.actuator.AddReaction(ctx, cmd.Channel, party.Origin.Announcement, s.cfg.Marker)
	})
	if err != nil {
		return err
	}

	_, err = s.store.Mutate(ctx, cmd.Group, func(record *domain.GroupRecord) error {
		return record.AddParty(party)
	})
	if err != nil {
		return fmt.Errorf("persist party: %w", err)
	}
	return nil
}

// rollback removes whatever provision managed to create. The user's command
// message is left alone.
func (s *PartyService) rollback(ctx context.Context, group domain.GroupID, party domain.Party) {
	party.Origin.Command = ""
	if _, err := s.teardown.Run(ctx, group, party); err != nil {
		s.logger.Error().Err(err).Str("group", string(group)).Str("owner", string(party.Owner)).Msg("rollback incomplete")
	}
}

// StopParty tears down the requester's own party immediately.
func (s *PartyService) StopParty(ctx context.Context, cmd StopPartyCommand) error {
	err := s.removeParty(ctx, cmd.Group, cmd.Requester)
	s.metrics.CommandInvoked("stop", commandOutcome(err))
	return err
}

// DeleteParty is the administrative removal of any owner's party.
func (s *PartyService) DeleteParty(ctx context.Context, cmd DeletePartyCommand) error {
	err := s.removeParty(ctx, cmd.Group, cmd.Owner)
	s.metrics.CommandInvoked("delete", commandOutcome(err))
	return err
}

func (s *PartyService) removeParty(ctx context.Context, group domain.GroupID, owner domain.UserID) error {
	party, err := s.store.Party(ctx, group, owner)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return fmt.Errorf("%w: owner %s", domain.ErrPartyNotFound, owner)
	}
	if err != nil {
		return err
	}

	if s.lifecycle != nil {
		s.lifecycle.Stop(group, owner)
	}
	if _, err := s.teardown.Run(ctx, group, party); err != nil {
		return err
	}
	if _, err := s.store.RemoveParty(ctx, group, owner); err != nil {
		return fmt.Errorf("remove party: %w", err)
	}
	s.logger.Info().Str("group", string(group)).Str("owner", string(owner)).Msg("party removed")
	return nil
}

// GroupJoined records the group document when the bot is added to a group.
func (s *PartyService) GroupJoined(ctx context.Context, group domain.GroupID, admin domain.UserID) error {
	_, err := s.store.GetOrCreateGroup(ctx, group, &admin)
	return err
}

// GroupRemoved stops every party in the group and deletes its document. The
// platform already removed the group's resources.
func (s *PartyService) GroupRemoved(ctx context.Context, group domain.GroupID) error {
	if s.lifecycle != nil {
		s.lifecycle.StopGroup(group)
	}
	record, found, err := s.store.Delete(ctx, group)
	if err != nil {
		return err
	}
	if found {
		s.logger.Info().Str("group", string(group)).Int("parties", len(record.Parties)).Msg("group record deleted")
	}
	return nil
}

// DeleteGroup is the administrative removal of a group: every party is torn
// down before the document is deleted.
func (s *PartyService) DeleteGroup(ctx context.Context, cmd DeleteGroupCommand) error {
	record, err := s.store.Get(ctx, cmd.Group)
	if err != nil {
		return err
	}
	if s.lifecycle != nil {
		s.lifecycle.StopGroup(cmd.Group)
	}
	var errs []error
	for _, party := range record.Parties {
		_, err := s.teardown.Run(ctx, cmd.Group, party)
		if err != nil {
			errs = append(errs, err)
		}
		if cmd.Progress != nil {
			cmd.Progress(party.Owner, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	_, _, err = s.store.Delete(ctx, cmd.Group)
	return err
}

// Notify posts a short notice through the actuator with the standard retry.
func (s *PartyService) Notify(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error) {
	return ActuatorDo(ctx, s.retry, "send_notice", func(ctx context.Context) (domain.MessageID, error) {
		return s.actuator.SendNotice(ctx, channel, text)
	})
}

func (s *PartyService) DeleteNotice(ctx context.Context, channel domain.ChannelID, message domain.MessageID) error {
	return s.retry.Do(ctx, "delete_notice", func(ctx context.Context) error {
		return ignoreMissing(s.actuator.DeleteMessage(ctx, channel, message))
	})
}

func commandOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsValidation(err):
		return "invalid"
	case errors.Is(err, domain.ErrPartyExists), errors.Is(err, domain.ErrPartyNotFound):
		return "rejected"
	default:
		return "error"
	}
}
