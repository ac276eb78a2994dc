package discord

import (
	"testing"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv(t *testing.T, ch <-chan domain.Signal) domain.Signal {
	t.Helper()
	select {
	case sig, ok := <-ch:
		require.True(t, ok, "stream closed early")
		return sig
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
		return domain.Signal{}
	}
}

func requireClosed(t *testing.T, ch <-chan domain.Signal) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream was not closed")
		}
	}
}

func TestSignalSourceDeliversInArrivalOrder(t *testing.T) {
	source := NewSignalSource(zerolog.Nop())
	t.Cleanup(source.Close)

	ch, cancel := source.Subscribe("c-1", "m-1", 0)
	defer cancel()

	// queued before anyone reads
	for _, actor := range []domain.UserID{"u-1", "u-2", "u-3"} {
		require.True(t, source.Dispatch("c-1", "m-1", domain.Signal{Actor: actor, Kind: domain.SignalGrant}))
	}
	require.True(t, source.Dispatch("c-1", "m-1", domain.Signal{Actor: "u-1", Kind: domain.SignalRevoke}))

	assert.Equal(t, domain.UserID("u-1"), recv(t, ch).Actor)
	assert.Equal(t, domain.UserID("u-2"), recv(t, ch).Actor)
	assert.Equal(t, domain.UserID("u-3"), recv(t, ch).Actor)
	last := recv(t, ch)
	assert.Equal(t, domain.SignalRevoke, last.Kind)
}

func TestSignalSourceDropsUnroutedSignals(t *testing.T) {
	source := NewSignalSource(zerolog.Nop())
	t.Cleanup(source.Close)

	_, cancel := source.Subscribe("c-1", "m-1", 0)
	defer cancel()

	assert.False(t, source.Dispatch("c-1", "m-2", domain.Signal{Actor: "u-1"}))
	assert.False(t, source.Dispatch("c-2", "m-1", domain.Signal{Actor: "u-1"}), "same message id in another channel")
}

func TestSignalSourceCancelClosesStream(t *testing.T) {
	source := NewSignalSource(zerolog.Nop())
	ch, cancel := source.Subscribe("c-1", "m-1", 0)

	cancel()
	cancel()
	requireClosed(t, ch)
	assert.False(t, source.Dispatch("c-1", "m-1", domain.Signal{Actor: "u-1"}))
}

func TestSignalSourceWindowClosesStream(t *testing.T) {
	source := NewSignalSource(zerolog.Nop())
	ch, cancel := source.Subscribe("c-1", "m-1", 20*time.Millisecond)
	defer cancel()

	requireClosed(t, ch)
	assert.False(t, source.Dispatch("c-1", "m-1", domain.Signal{Actor: "u-1"}))
}

func TestSignalSourceResubscribeReplacesStream(t *testing.T) {
	source := NewSignalSource(zerolog.Nop())
	t.Cleanup(source.Close)

	first, cancelFirst := source.Subscribe("c-1", "m-1", 0)
	second, cancelSecond := source.Subscribe("c-1", "m-1", 0)
	defer cancelSecond()

	requireClosed(t, first)
	// a stale cancel must not drop the replacement
	cancelFirst()

	require.True(t, source.Dispatch("c-1", "m-1", domain.Signal{Actor: "u-9"}))
	assert.Equal(t, domain.UserID("u-9"), recv(t, second).Actor)
}

func TestSignalSourceCloseEndsAllStreams(t *testing.T) {
	source := NewSignalSource(zerolog.Nop())
	a, _ := source.Subscribe("c-1", "m-1", 0)
	b, _ := source.Subscribe("c-2", "m-2", time.Hour)

	source.Close()
	requireClosed(t, a)
	requireClosed(t, b)
}
