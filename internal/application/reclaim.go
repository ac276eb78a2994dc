package application

import (
	"context"
	"errors"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
)

type Phase string

const (
	PhaseCounting Phase = "counting"
	PhaseFrozen   Phase = "frozen"
	PhaseExpired  Phase = "expired"
	PhaseGone     Phase = "gone"
)

type TickResult struct {
	Phase     Phase
	Countdown int
}

// Done reports whether the reclaimer has nothing left to watch.
func (r TickResult) Done() bool {
	return r.Phase == PhaseExpired || r.Phase == PhaseGone
}

// Reclaimer counts down under-occupied parties and tears them down once the
// countdown runs out. The countdown freezes while occupancy is at or above
// the survival threshold and resumes from the same value when it drops.
type Reclaimer struct {
	store    *SessionStore
	teardown *Teardown
	clock    ports.Clock
	interval time.Duration
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

func NewReclaimer(store *SessionStore, teardown *Teardown, clock ports.Clock, interval time.Duration, m *metrics.Collector, logger zerolog.Logger) *Reclaimer {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reclaimer{store: store, teardown: teardown, clock: clock, interval: interval, metrics: m, logger: logger}
}

// Run ticks every interval until the party is reclaimed, removed elsewhere
// or ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context, ref PartyRef) error {
	logger := r.logger.With().Str("group", string(ref.Group)).Str("owner", string(ref.Owner)).Logger()
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	phase := PhaseCounting
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}

		res, err := r.Tick(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Msg("reclaim tick failed")
			continue
		}
		if res.Phase != phase {
			logger.Info().Str("from", string(phase)).Str("to", string(res.Phase)).Int("countdown", res.Countdown).Msg("reclaim phase changed")
			phase = res.Phase
		}
		if res.Done() {
			return nil
		}
	}
}

// Tick runs one reclamation step.
func (r *Reclaimer) Tick(ctx context.Context, ref PartyRef) (TickResult, error) {
	var (
		res     TickResult
		expired domain.Party
	)
	_, err := r.store.UpdateParty(ctx, ref.Group, ref.Owner, func(party *domain.Party) error {
		if party.Healthy() {
			res = TickResult{Phase: PhaseFrozen, Countdown: party.Countdown}
			return errSkipWrite
		}
		if party.Tick() {
			// keep the last countdown stored until teardown succeeds
			res = TickResult{Phase: PhaseExpired}
			expired = party.Clone()
			return errSkipWrite
		}
		res = TickResult{Phase: PhaseCounting, Countdown: party.Countdown}
		return nil
	})
	if gone(err) {
		return TickResult{Phase: PhaseGone}, nil
	}
	if err != nil {
		return TickResult{}, err
	}
	r.metrics.ReclaimTick(string(res.Phase))

	if res.Phase != PhaseExpired {
		return res, nil
	}
	if err := r.reclaim(ctx, ref, expired); err != nil {
		return TickResult{Phase: PhaseCounting}, err
	}
	return res, nil
}

func (r *Reclaimer) reclaim(ctx context.Context, ref PartyRef, party domain.Party) error {
	report, err := r.teardown.Run(ctx, ref.Group, party)
	if err != nil {
		return err
	}

	removed, err := r.store.RemoveParty(ctx, ref.Group, ref.Owner)
	if err != nil {
		return errors.Join(errors.New("remove reclaimed party"), err)
	}
	if removed {
		r.metrics.PartyReclaimed()
	}
	r.logger.Info().
		Str("group", string(ref.Group)).
		Str("owner", string(ref.Owner)).
		Int("failed_steps", len(report.Failed)).
		Msg("party reclaimed")
	return nil
}
