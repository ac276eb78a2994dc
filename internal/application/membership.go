package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeJoined       Outcome = "joined"
	OutcomeLeft         Outcome = "left"
	OutcomeRejectedFull Outcome = "rejected_full"
	OutcomeStripped     Outcome = "stripped"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeGone         Outcome = "gone"
	OutcomeFailed       Outcome = "failed"
)

type action int

const (
	actionJoin action = iota + 1
	actionLeave
	actionStrip
	actionIgnore
)

// MembershipProcessor turns reaction signals on an announcement into party
// membership changes. Signals for one party are handled one at a time.
type MembershipProcessor struct {
	store    *SessionStore
	actuator ports.Actuator
	retry    ActuatorRetry
	marker   string
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

func NewMembershipProcessor(store *SessionStore, actuator ports.Actuator, retry ActuatorRetry, marker string, m *metrics.Collector, logger zerolog.Logger) *MembershipProcessor {
	if marker == "" {
		marker = domain.DefaultJoinMarker
	}
	return &MembershipProcessor{store: store, actuator: actuator, retry: retry, marker: marker, metrics: m, logger: logger}
}

// Run consumes signals until the stream closes, the party disappears or ctx
// is cancelled.
func (p *MembershipProcessor) Run(ctx context.Context, ref PartyRef, signals <-chan domain.Signal) error {
	logger := p.logger.With().Str("group", string(ref.Group)).Str("owner", string(ref.Owner)).Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				logger.Debug().Msg("signal stream closed")
				return nil
			}
			outcome, err := p.Handle(ctx, ref, sig)
			if err != nil {
				logger.Warn().Err(err).Str("actor", string(sig.Actor)).Str("outcome", string(outcome)).Msg("signal handling failed")
			}
			if outcome == OutcomeGone {
				return nil
			}
		}
	}
}

func (p *MembershipProcessor) classify(sig domain.Signal) (action, error) {
	switch sig.Kind {
	case domain.SignalGrant:
		if sig.Marker != p.marker {
			return actionStrip, nil
		}
		return actionJoin, nil
	case domain.SignalRevoke:
		if sig.Marker != p.marker {
			return actionIgnore, nil
		}
		return actionLeave, nil
	default:
		return 0, fmt.Errorf("%w: %d", domain.ErrUnknownSignalKind, int(sig.Kind))
	}
}

// Handle applies one signal and reports what happened to it.
func (p *MembershipProcessor) Handle(ctx context.Context, ref PartyRef, sig domain.Signal) (Outcome, error) {
	outcome, err := p.handle(ctx, ref, sig)
	p.metrics.SignalHandled(sig.Kind.String(), string(outcome))
	return outcome, err
}

func (p *MembershipProcessor) handle(ctx context.Context, ref PartyRef, sig domain.Signal) (Outcome, error) {
	act, err := p.classify(sig)
	if err != nil {
		return OutcomeFailed, err
	}

	switch act {
	case actionIgnore:
		return OutcomeIgnored, nil
	case actionStrip:
		if err := p.stripReaction(ctx, ref, sig); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeStripped, nil
	case actionJoin:
		return p.join(ctx, ref, sig)
	case actionLeave:
		return p.leave(ctx, ref, sig)
	default:
		return OutcomeFailed, fmt.Errorf("unhandled action %d", act)
	}
}

func (p *MembershipProcessor) join(ctx context.Context, ref PartyRef, sig domain.Signal) (Outcome, error) {
	var outcome Outcome
	party, err := p.store.UpdateParty(ctx, ref.Group, ref.Owner, func(party *domain.Party) error {
		if err := party.CheckMembers(); err != nil {
			return err
		}
		switch {
		case party.ContainsMember(sig.Actor):
			outcome = OutcomeIgnored
			return errSkipWrite
		case party.IsFull():
			outcome = OutcomeRejectedFull
			return errSkipWrite
		}
		party.AddMember(sig.Actor, sig.ActorName)
		outcome = OutcomeJoined
		return nil
	})
	if gone(err) {
		return OutcomeGone, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}

	switch outcome {
	case OutcomeRejectedFull:
		return outcome, p.stripReaction(ctx, ref, sig)
	case OutcomeJoined:
		grantErr := p.retry.Do(ctx, "add_member_role", func(ctx context.Context) error {
			return p.actuator.AddMemberRole(ctx, ref.Group, sig.Actor, party.Resources.Role)
		})
		return outcome, errors.Join(grantErr, p.render(ctx, ref, party))
	default:
		return outcome, nil
	}
}

func (p *MembershipProcessor) leave(ctx context.Context, ref PartyRef, sig domain.Signal) (Outcome, error) {
	outcome := OutcomeIgnored
	party, err := p.store.UpdateParty(ctx, ref.Group, ref.Owner, func(party *domain.Party) error {
		removed, err := party.RemoveMember(sig.Actor)
		if err != nil {
			return err
		}
		if !removed {
			outcome = OutcomeIgnored
			return errSkipWrite
		}
		outcome = OutcomeLeft
		return nil
	})
	if gone(err) {
		return OutcomeGone, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	if outcome != OutcomeLeft {
		return outcome, nil
	}

	revokeErr := p.retry.Do(ctx, "remove_member_role", func(ctx context.Context) error {
		return ignoreMissing(p.actuator.RemoveMemberRole(ctx, ref.Group, sig.Actor, party.Resources.Role))
	})
	return outcome, errors.Join(revokeErr, p.render(ctx, ref, party))
}

func (p *MembershipProcessor) stripReaction(ctx context.Context, ref PartyRef, sig domain.Signal) error {
	return p.retry.Do(ctx, "remove_reaction", func(ctx context.Context) error {
		return ignoreMissing(p.actuator.RemoveReaction(ctx, ref.Channel, ref.Announcement, sig.Marker, sig.Actor))
	})
}

func (p *MembershipProcessor) render(ctx context.Context, ref PartyRef, party domain.Party) error {
	return p.retry.Do(ctx, "edit_announcement", func(ctx context.Context) error {
		return p.actuator.EditAnnouncement(ctx, ref.Channel, ref.Announcement, party.Announcement())
	})
}

// ignoreMissing treats a platform object that is already gone as removed.
func ignoreMissing(err error) error {
	if errors.Is(err, domain.ErrResourceNotFound) {
		return nil
	}
	return err
}

func gone(err error) bool {
	return errors.Is(err, domain.ErrPartyNotFound) || errors.Is(err, domain.ErrGroupNotFound)
}
