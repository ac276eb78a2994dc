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

type TeardownStep string

const (
	StepRole         TeardownStep = "role"
	StepTextChannel  TeardownStep = "text_channel"
	StepVoiceChannel TeardownStep = "voice_channel"
	StepCommand      TeardownStep = "command_message"
	StepAnnouncement TeardownStep = "announcement"
)

// TeardownPolicy decides whether teardown moves on after a step failed.
type TeardownPolicy interface {
	Continue(step TeardownStep, err error) bool
}

// LogAndContinue attempts every step regardless of earlier failures.
type LogAndContinue struct{}

func (LogAndContinue) Continue(TeardownStep, error) bool { return true }

// StopOnFailure aborts at the first failed step so the next pass retries it.
type StopOnFailure struct{}

func (StopOnFailure) Continue(TeardownStep, error) bool { return false }

// ErrTeardownAborted is returned when the policy stopped a teardown early.
var ErrTeardownAborted = errors.New("teardown aborted")

type TeardownReport struct {
	Deleted []TeardownStep
	Failed  map[TeardownStep]error
}

func (r TeardownReport) Clean() bool {
	return len(r.Failed) == 0
}

// Teardown deletes every platform resource a party owns. Deletes are
// idempotent so a teardown may be replayed after a partial failure.
type Teardown struct {
	actuator ports.Actuator
	retry    ActuatorRetry
	policy   TeardownPolicy
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

func NewTeardown(actuator ports.Actuator, retry ActuatorRetry, policy TeardownPolicy, m *metrics.Collector, logger zerolog.Logger) *Teardown {
	if policy == nil {
		policy = LogAndContinue{}
	}
	return &Teardown{actuator: actuator, retry: retry, policy: policy, metrics: m, logger: logger}
}

// Run deletes the party's role, channels and originating messages in that
// order, skipping anything that was never created. The error is non-nil
// only when the policy aborted the run.
func (t *Teardown) Run(ctx context.Context, group domain.GroupID, party domain.Party) (TeardownReport, error) {
	report := TeardownReport{Failed: map[TeardownStep]error{}}
	res := party.Resources
	origin := party.Origin

	steps := []struct {
		step TeardownStep
		skip bool
		fn   func(context.Context) error
	}{
		{StepRole, res.Role == "", func(ctx context.Context) error {
			return t.actuator.DeleteRole(ctx, group, res.Role)
		}},
		{StepTextChannel, res.TextChannel == "", func(ctx context.Context) error {
			return t.actuator.DeleteChannel(ctx, res.TextChannel)
		}},
		{StepVoiceChannel, res.VoiceChannel == "", func(ctx context.Context) error {
			return t.actuator.DeleteChannel(ctx, res.VoiceChannel)
		}},
		{StepCommand, origin.Channel == "" || origin.Command == "", func(ctx context.Context) error {
			return t.actuator.DeleteMessage(ctx, origin.Channel, origin.Command)
		}},
		{StepAnnouncement, origin.Channel == "" || origin.Announcement == "", func(ctx context.Context) error {
			return t.actuator.DeleteMessage(ctx, origin.Channel, origin.Announcement)
		}},
	}

	for _, s := range steps {
		if s.skip {
			continue
		}
		err := t.retry.Do(ctx, "delete_"+string(s.step), func(ctx context.Context) error {
			return ignoreMissing(s.fn(ctx))
		})
		if err == nil {
			report.Deleted = append(report.Deleted, s.step)
			continue
		}

		report.Failed[s.step] = err
		t.metrics.TeardownFailed(string(s.step))
		t.logger.Warn().Err(err).
			Str("group", string(group)).
			Str("owner", string(party.Owner)).
			Str("step", string(s.step)).
			Msg("teardown step failed")

		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !t.policy.Continue(s.step, err) {
			return report, fmt.Errorf("%w at %s: %w", ErrTeardownAborted, s.step, err)
		}
	}
	return report, nil
}
