package discord

import (
	"sync"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
)

// SignalSource fans gateway reaction events out to the subscriber of the
// announcement they target. Each subscription has its own unbounded queue
// so a slow party never blocks the gateway or another party.
type SignalSource struct {
	mu     sync.Mutex
	subs   map[domain.MessageID]*subscription
	logger zerolog.Logger
}

var _ ports.SignalSource = (*SignalSource)(nil)

func NewSignalSource(logger zerolog.Logger) *SignalSource {
	return &SignalSource{subs: map[domain.MessageID]*subscription{}, logger: logger}
}

type subscription struct {
	channel domain.ChannelID
	out     chan domain.Signal
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once

	mu    sync.Mutex
	queue []domain.Signal
	timer *time.Timer
}

func (s *SignalSource) Subscribe(channel domain.ChannelID, message domain.MessageID, window time.Duration) (<-chan domain.Signal, func()) {
	sub := &subscription{
		channel: channel,
		out:     make(chan domain.Signal),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if previous, ok := s.subs[message]; ok {
		previous.stop()
	}
	s.subs[message] = sub
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if s.subs[message] == sub {
			delete(s.subs, message)
		}
		s.mu.Unlock()
		sub.stop()
	}
	if window > 0 {
		timer := time.AfterFunc(window, func() {
			s.logger.Debug().Str("message", string(message)).Msg("signal collection window elapsed")
			cancel()
		})
		sub.mu.Lock()
		sub.timer = timer
		sub.mu.Unlock()
	}

	go sub.pump()
	return sub.out, cancel
}

// Dispatch queues sig for the subscriber of message. Signals for messages
// nobody listens on are dropped.
func (s *SignalSource) Dispatch(channel domain.ChannelID, message domain.MessageID, sig domain.Signal) bool {
	s.mu.Lock()
	sub, ok := s.subs[message]
	s.mu.Unlock()
	if !ok || sub.channel != channel {
		return false
	}
	sub.push(sig)
	return true
}

// Close ends every subscription.
func (s *SignalSource) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = map[domain.MessageID]*subscription{}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func (sub *subscription) push(sig domain.Signal) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, sig)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscription) stop() {
	sub.once.Do(func() {
		sub.mu.Lock()
		if sub.timer != nil {
			sub.timer.Stop()
		}
		sub.mu.Unlock()
		close(sub.done)
	})
}

func (sub *subscription) pump() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.done:
				return
			}
		}
		next := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- next:
		case <-sub.done:
			return
		}
	}
}
