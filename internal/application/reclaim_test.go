package application

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReclaimCountsDownAndTearsDownOnce(t *testing.T) {
	h := newHarness(t)
	ref, _ := h.seedParty(t, 4, "a")
	ctx := context.Background()

	for want := domain.DefaultCountdown - 1; want >= 1; want-- {
		res, err := h.reclaimer.Tick(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, PhaseCounting, res.Phase)
		assert.Equal(t, want, res.Countdown)

		party, ok := h.party(t)
		require.True(t, ok)
		assert.Equal(t, want, party.Countdown)
	}
	assert.Zero(t, h.actuator.count("delete_role"))

	res, err := h.reclaimer.Tick(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, PhaseExpired, res.Phase)
	assert.True(t, res.Done())

	_, ok := h.party(t)
	assert.False(t, ok)
	assert.Equal(t, [][]string{{string(testGroup), "role-1"}}, h.actuator.callsOf("delete_role"))
	assert.Equal(t, [][]string{{"text-1"}, {"voice-1"}}, h.actuator.callsOf("delete_channel"))
	assert.Equal(t, [][]string{{"lobby", "cmd-1"}, {"lobby", "ann-1"}}, h.actuator.callsOf("delete_message"))

	res, err = h.reclaimer.Tick(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, PhaseGone, res.Phase)
	assert.Equal(t, 1, h.actuator.count("delete_role"))

	assertExposition(t, h.metrics, "partybot_parties_reclaimed_total",
		"Parties torn down after their countdown expired.", "counter",
		"partybot_parties_reclaimed_total 1")
}

func TestReclaimFreezesAtThresholdAndResumes(t *testing.T) {
	h := newHarness(t)
	ref, _ := h.seedParty(t, 4, "a")
	ctx := context.Background()

	res, err := h.reclaimer.Tick(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Countdown)

	_, err = h.processor.Handle(ctx, ref, grant("b"))
	require.NoError(t, err)

	for range 10 {
		res, err = h.reclaimer.Tick(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, PhaseFrozen, res.Phase)
		assert.Equal(t, 4, res.Countdown)
	}

	_, err = h.processor.Handle(ctx, ref, revoke("b"))
	require.NoError(t, err)

	res, err = h.reclaimer.Tick(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, PhaseCounting, res.Phase)
	assert.Equal(t, 3, res.Countdown, "countdown resumes where it froze")
}

func TestReclaimEmptyPartyExpires(t *testing.T) {
	h := newHarness(t)
	ref, _ := h.seedParty(t, 2)

	var res TickResult
	var err error
	for range domain.DefaultCountdown {
		res, err = h.reclaimer.Tick(context.Background(), ref)
		require.NoError(t, err)
	}
	assert.Equal(t, PhaseExpired, res.Phase)
	_, ok := h.party(t)
	assert.False(t, ok)
}

func TestReclaimTeardownFailureStillRemovesParty(t *testing.T) {
	h := newHarness(t)
	ref, _ := h.seedParty(t, 4)
	_, err := h.store.UpdateParty(context.Background(), testGroup, "owner-1", func(p *domain.Party) error {
		p.Countdown = 1
		return nil
	})
	require.NoError(t, err)
	h.actuator.failNext("delete_role", -1)

	res, err := h.reclaimer.Tick(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, PhaseExpired, res.Phase)
	assert.Equal(t, 3, h.actuator.count("delete_role"))
	assert.Equal(t, 2, h.actuator.count("delete_channel"))
	assertMetric(t, h.metrics, "partybot_teardown_failures_total", 1)

	_, ok := h.party(t)
	assert.False(t, ok)
}

func TestReclaimAbortingPolicyKeepsPartyForNextTick(t *testing.T) {
	h := newHarness(t)
	h.teardown = NewTeardown(h.actuator, h.retry, StopOnFailure{}, h.metrics, h.reclaimer.logger)
	h.reclaimer = NewReclaimer(h.store, h.teardown, h.clock, time.Minute, h.metrics, h.reclaimer.logger)

	ref, _ := h.seedParty(t, 4)
	_, err := h.store.UpdateParty(context.Background(), testGroup, "owner-1", func(p *domain.Party) error {
		p.Countdown = 1
		return nil
	})
	require.NoError(t, err)
	h.actuator.failNext("delete_role", 3)

	_, err = h.reclaimer.Tick(context.Background(), ref)
	require.ErrorIs(t, err, ErrTeardownAborted)
	assert.Zero(t, h.actuator.count("delete_channel"))

	party, ok := h.party(t)
	require.True(t, ok)
	assert.Equal(t, 1, party.Countdown)

	res, err := h.reclaimer.Tick(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, PhaseExpired, res.Phase)
	_, ok = h.party(t)
	assert.False(t, ok)
}

func TestReclaimerRunExitsWhenPartyDisappears(t *testing.T) {
	h := newHarness(t)
	ref, _ := h.seedParty(t, 4, "a", "b")

	done := make(chan error, 1)
	go func() { done <- h.reclaimer.Run(context.Background(), ref) }()

	ticker := h.clock.nextTicker(t)
	ticker.tick()

	removed, err := h.store.RemoveParty(context.Background(), testGroup, "owner-1")
	require.NoError(t, err)
	require.True(t, removed)
	ticker.tick()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reclaimer did not exit")
	}
	<-ticker.stopped
}
