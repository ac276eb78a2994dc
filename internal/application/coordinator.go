package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
)

type partyKey struct {
	group domain.GroupID
	owner domain.UserID
}

type partyTask struct {
	ref    PartyRef
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator owns the two concurrent loops of every running party: the
// membership processor and the reclaimer. The reclaimer's end ends the
// processor too.
type Coordinator struct {
	processor *MembershipProcessor
	reclaimer *Reclaimer
	source    ports.SignalSource
	window    time.Duration
	metrics   *metrics.Collector
	logger    zerolog.Logger

	base      context.Context
	cancelAll context.CancelFunc

	mu     sync.Mutex
	tasks  map[partyKey]*partyTask
	closed bool
	wg     sync.WaitGroup
}

func NewCoordinator(processor *MembershipProcessor, reclaimer *Reclaimer, source ports.SignalSource, window time.Duration, m *metrics.Collector, logger zerolog.Logger) *Coordinator {
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		processor: processor,
		reclaimer: reclaimer,
		source:    source,
		window:    window,
		metrics:   m,
		logger:    logger,
		base:      base,
		cancelAll: cancel,
		tasks:     map[partyKey]*partyTask{},
	}
}

// Subscription is a signal stream opened ahead of its party's loops.
type Subscription struct {
	ref     PartyRef
	signals <-chan domain.Signal
	cancel  func()
}

// Cancel closes the stream. It is safe on a nil subscription.
func (s *Subscription) Cancel() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

// Subscribe opens the signal stream for ref before the party is launched.
// Signals that arrive before LaunchWith are queued by the source.
func (c *Coordinator) Subscribe(ref PartyRef) *Subscription {
	signals, cancel := c.source.Subscribe(ref.Channel, ref.Announcement, c.window)
	return &Subscription{ref: ref, signals: signals, cancel: cancel}
}

// Launch starts the loops for ref. It returns false when the party is already
// running or the coordinator has shut down.
func (c *Coordinator) Launch(ref PartyRef) bool {
	return c.launch(ref, nil)
}

// LaunchWith starts the loops on a stream opened by Subscribe. The stream is
// cancelled when the party cannot be launched.
func (c *Coordinator) LaunchWith(sub *Subscription) bool {
	return c.launch(sub.ref, sub)
}

func (c *Coordinator) launch(ref PartyRef, sub *Subscription) bool {
	key := partyKey{group: ref.Group, owner: ref.Owner}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		sub.Cancel()
		return false
	}
	if _, ok := c.tasks[key]; ok {
		sub.Cancel()
		return false
	}
	if sub == nil {
		sub = c.Subscribe(ref)
	}
	signals, unsubscribe := sub.signals, sub.cancel

	ctx, cancel := context.WithCancel(c.base)
	task := &partyTask{ref: ref, cancel: cancel, done: make(chan struct{})}
	c.tasks[key] = task
	c.metrics.PartyStarted()

	logger := c.logger.With().Str("group", string(ref.Group)).Str("owner", string(ref.Owner)).Logger()
	logger.Info().Msg("party loops started")

	processorDone := make(chan struct{})
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		defer close(processorDone)
		if err := c.processor.Run(ctx, ref, signals); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("membership processor stopped")
		}
	}()
	go func() {
		defer c.wg.Done()
		defer close(task.done)
		err := c.reclaimer.Run(ctx, ref)
		cancel()
		unsubscribe()
		<-processorDone
		c.forget(key, task)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("reclaimer stopped")
			return
		}
		logger.Info().Msg("party loops stopped")
	}()
	return true
}

func (c *Coordinator) forget(key partyKey, task *partyTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tasks[key] == task {
		delete(c.tasks, key)
		c.metrics.PartyStopped()
	}
}

// Running reports whether loops are active for the owner's party.
func (c *Coordinator) Running(group domain.GroupID, owner domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[partyKey{group: group, owner: owner}]
	return ok
}

// Stop cancels the party's loops and waits for them to exit.
func (c *Coordinator) Stop(group domain.GroupID, owner domain.UserID) {
	c.mu.Lock()
	task, ok := c.tasks[partyKey{group: group, owner: owner}]
	c.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

// StopGroup stops every party running in the group.
func (c *Coordinator) StopGroup(group domain.GroupID) {
	c.mu.Lock()
	var tasks []*partyTask
	for key, task := range c.tasks {
		if key.group == group {
			tasks = append(tasks, task)
		}
	}
	c.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}

// Resume relaunches loops for every stored party that has an announcement to
// listen on. It returns the number of parties launched.
func (c *Coordinator) Resume(ctx context.Context, store *SessionStore) (int, error) {
	groups, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	launched := 0
	for _, group := range groups {
		for _, party := range group.Parties {
			if party.Origin.Announcement == "" {
				continue
			}
			if c.Launch(RefFor(group.ID, party)) {
				launched++
			}
		}
	}
	c.logger.Info().Int("parties", launched).Int("groups", len(groups)).Msg("resumed party loops")
	return launched, nil
}

// Shutdown cancels every party and waits for the loops to exit or ctx to end.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancelAll()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
