package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bnema/partybot/internal/adapters/repo/memory"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
)

var errPlatformDown = errors.New("platform unavailable")

type actuatorCall struct {
	op   string
	args []string
}

type fakeActuator struct {
	mu            sync.Mutex
	seq           int
	calls         []actuatorCall
	failures      map[string]int
	failErrs      map[string]error
	after         map[string]func(args []string)
	announcements map[domain.MessageID]domain.Announcement
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{
		failures:      map[string]int{},
		failErrs:      map[string]error{},
		after:         map[string]func(args []string){},
		announcements: map[domain.MessageID]domain.Announcement{},
	}
}

// failNext makes the next n calls of op fail. A negative n fails forever.
func (f *fakeActuator) failNext(op string, n int) {
	f.failNextWith(op, n, errPlatformDown)
}

func (f *fakeActuator) failNextWith(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = n
	f.failErrs[op] = err
}

// onCall runs fn with the arguments of every successful call of op.
func (f *fakeActuator) onCall(op string, fn func(args []string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after[op] = fn
}

func (f *fakeActuator) record(op string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, actuatorCall{op: op, args: args})
	var err error
	switch n := f.failures[op]; {
	case n < 0:
		err = f.failErrs[op]
	case n > 0:
		f.failures[op] = n - 1
		err = f.failErrs[op]
	}
	hook := f.after[op]
	f.mu.Unlock()

	if err == nil && hook != nil {
		hook(args)
	}
	return err
}

func (f *fakeActuator) nextID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeActuator) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeActuator) callsOf(op string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c.args)
		}
	}
	return out
}

func (f *fakeActuator) announcement(id domain.MessageID) domain.Announcement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.announcements[id]
}

func (f *fakeActuator) CreateRole(_ context.Context, group domain.GroupID, name string) (domain.RoleID, error) {
	if err := f.record("create_role", string(group), name); err != nil {
		return "", err
	}
	return domain.RoleID(f.nextID("role")), nil
}

func (f *fakeActuator) DeleteRole(_ context.Context, group domain.GroupID, role domain.RoleID) error {
	return f.record("delete_role", string(group), string(role))
}

func (f *fakeActuator) CreateTextChannel(_ context.Context, group domain.GroupID, name, topic string, role domain.RoleID) (domain.ChannelID, error) {
	if err := f.record("create_text_channel", string(group), name, topic, string(role)); err != nil {
		return "", err
	}
	return domain.ChannelID(f.nextID("text")), nil
}

func (f *fakeActuator) CreateVoiceChannel(_ context.Context, group domain.GroupID, name string, userLimit int, role domain.RoleID) (domain.ChannelID, error) {
	if err := f.record("create_voice_channel", string(group), name, fmt.Sprint(userLimit), string(role)); err != nil {
		return "", err
	}
	return domain.ChannelID(f.nextID("voice")), nil
}

func (f *fakeActuator) DeleteChannel(_ context.Context, channel domain.ChannelID) error {
	return f.record("delete_channel", string(channel))
}

func (f *fakeActuator) AddMemberRole(_ context.Context, group domain.GroupID, user domain.UserID, role domain.RoleID) error {
	return f.record("add_member_role", string(group), string(user), string(role))
}

func (f *fakeActuator) RemoveMemberRole(_ context.Context, group domain.GroupID, user domain.UserID, role domain.RoleID) error {
	return f.record("remove_member_role", string(group), string(user), string(role))
}

func (f *fakeActuator) SendAnnouncement(_ context.Context, channel domain.ChannelID, a domain.Announcement) (domain.MessageID, error) {
	if err := f.record("send_announcement", string(channel), a.Title); err != nil {
		return "", err
	}
	id := domain.MessageID(f.nextID("msg"))
	f.mu.Lock()
	f.announcements[id] = a
	f.mu.Unlock()
	return id, nil
}

func (f *fakeActuator) EditAnnouncement(_ context.Context, channel domain.ChannelID, message domain.MessageID, a domain.Announcement) error {
	if err := f.record("edit_announcement", string(channel), string(message), a.Members); err != nil {
		return err
	}
	f.mu.Lock()
	f.announcements[message] = a
	f.mu.Unlock()
	return nil
}

func (f *fakeActuator) SendNotice(_ context.Context, channel domain.ChannelID, text string) (domain.MessageID, error) {
	if err := f.record("send_notice", string(channel), text); err != nil {
		return "", err
	}
	return domain.MessageID(f.nextID("notice")), nil
}

func (f *fakeActuator) DeleteMessage(_ context.Context, channel domain.ChannelID, message domain.MessageID) error {
	return f.record("delete_message", string(channel), string(message))
}

func (f *fakeActuator) AddReaction(_ context.Context, channel domain.ChannelID, message domain.MessageID, marker string) error {
	return f.record("add_reaction", string(channel), string(message), marker)
}

func (f *fakeActuator) RemoveReaction(_ context.Context, channel domain.ChannelID, message domain.MessageID, marker string, user domain.UserID) error {
	return f.record("remove_reaction", string(channel), string(message), marker, string(user))
}

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() { t.once.Do(func() { close(t.stopped) }) }

// tick delivers one tick and blocks until the loop has received it.
func (t *fakeTicker) tick() {
	t.ch <- time.Time{}
}

type fakeClock struct {
	now     time.Time
	tickers chan *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
		tickers: make(chan *fakeTicker, 16),
	}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTicker(time.Duration) ports.Ticker {
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers <- t
	return t
}

func (c *fakeClock) nextTicker(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-c.tickers:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker was created")
		return nil
	}
}

type subscription struct {
	ch        chan domain.Signal
	once      sync.Once
	cancelled chan struct{}
}

type fakeSource struct {
	mu   sync.Mutex
	subs map[domain.MessageID]*subscription
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: map[domain.MessageID]*subscription{}}
}

func (s *fakeSource) Subscribe(_ domain.ChannelID, message domain.MessageID, _ time.Duration) (<-chan domain.Signal, func()) {
	sub := &subscription{ch: make(chan domain.Signal, 16), cancelled: make(chan struct{})}
	s.mu.Lock()
	s.subs[message] = sub
	s.mu.Unlock()
	return sub.ch, func() {
		sub.once.Do(func() {
			close(sub.cancelled)
			close(sub.ch)
		})
	}
}

func (s *fakeSource) send(t *testing.T, message domain.MessageID, sig domain.Signal) {
	t.Helper()
	s.mu.Lock()
	sub, ok := s.subs[message]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", message)
	}
	sub.ch <- sig
}

func (s *fakeSource) cancelled(message domain.MessageID) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[message].cancelled
}

// conflictRepo rejects the next n upserts with a version conflict after
// letting a competing write through.
type conflictRepo struct {
	ports.GroupRepository
	mu          sync.Mutex
	conflicts   int
	unavailable int
	upserts     int
}

func (r *conflictRepo) Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error) {
	r.mu.Lock()
	if r.unavailable > 0 {
		r.unavailable--
		r.mu.Unlock()
		return domain.GroupRecord{}, fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	}
	r.mu.Unlock()
	return r.GroupRepository.Get(ctx, id)
}

func (r *conflictRepo) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	r.mu.Lock()
	r.upserts++
	conflict := r.conflicts > 0
	if conflict {
		r.conflicts--
	}
	r.mu.Unlock()

	if conflict {
		// a competing writer bumps the party countdown first
		competing := record.Clone()
		if len(competing.Parties) > 0 {
			competing.Parties[0].Countdown += 10
		}
		if _, err := r.GroupRepository.Upsert(ctx, competing); err != nil {
			return domain.GroupRecord{}, err
		}
		return domain.GroupRecord{}, domain.ErrVersionConflict
	}
	return r.GroupRepository.Upsert(ctx, record)
}

// lostAckRepo commits the next n upserts and then reports the backend as
// unavailable, as a client does when the reply to a committed write is lost.
type lostAckRepo struct {
	ports.GroupRepository
	mu      sync.Mutex
	lost    int
	upserts int
}

func (r *lostAckRepo) dropNextAcks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = n
}

func (r *lostAckRepo) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	saved, err := r.GroupRepository.Upsert(ctx, record)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if err == nil && r.lost > 0 {
		r.lost--
		return domain.GroupRecord{}, fmt.Errorf("%w: i/o timeout", domain.ErrStoreUnavailable)
	}
	return saved, err
}

const testGroup domain.GroupID = "guild-1"

type harness struct {
	repo        *memory.Repository
	store       *SessionStore
	actuator    *fakeActuator
	clock       *fakeClock
	source      *fakeSource
	metrics     *metrics.Collector
	retry       ActuatorRetry
	teardown    *Teardown
	processor   *MembershipProcessor
	reclaimer   *Reclaimer
	coordinator *Coordinator
	service     *PartyService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOver(t, nil)
}

// newHarnessOver routes the store through wrap while seeding and inspection
// still use the plain memory repository underneath.
func newHarnessOver(t *testing.T, wrap func(ports.GroupRepository) ports.GroupRepository) *harness {
	t.Helper()

	h := &harness{
		repo:     memory.NewRepository(),
		actuator: newFakeActuator(),
		clock:    newFakeClock(),
		source:   newFakeSource(),
		metrics:  metrics.NewUnregistered(),
	}
	logger := zerolog.Nop()
	storeRetry := StoreRetry{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	h.retry = ActuatorRetry{Attempts: 3, Delay: time.Millisecond, Metrics: h.metrics}

	var repo ports.GroupRepository = h.repo
	if wrap != nil {
		repo = wrap(h.repo)
	}
	h.store = NewSessionStore(repo, storeRetry, h.clock, h.metrics, logger)
	h.teardown = NewTeardown(h.actuator, h.retry, LogAndContinue{}, h.metrics, logger)
	h.processor = NewMembershipProcessor(h.store, h.actuator, h.retry, domain.DefaultJoinMarker, h.metrics, logger)
	h.reclaimer = NewReclaimer(h.store, h.teardown, h.clock, time.Minute, h.metrics, logger)
	h.coordinator = NewCoordinator(h.processor, h.reclaimer, h.source, 0, h.metrics, logger)
	h.service = NewPartyService(h.store, h.actuator, h.retry, h.teardown, h.coordinator, h.clock,
		PartyServiceConfig{Countdown: domain.DefaultCountdown, Marker: domain.DefaultJoinMarker}, h.metrics, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.coordinator.Shutdown(ctx)
	})
	return h
}

// seedParty stores a party directly, bypassing provisioning.
func (h *harness) seedParty(t *testing.T, capacity int, members ...domain.UserID) (PartyRef, domain.Party) {
	t.Helper()

	party := domain.NewParty("owner-1", capacity, "Ranked", "Valorant", domain.Resources{
		VoiceChannel: "voice-1",
		TextChannel:  "text-1",
		Role:         "role-1",
	})
	party.Origin = domain.Origin{Channel: "lobby", Command: "cmd-1", Announcement: "ann-1"}
	for _, m := range members {
		party.AddMember(m, "name-"+string(m))
	}

	record := domain.NewGroupRecord(testGroup, "admin-1")
	record.Parties = []domain.Party{party}
	_, err := h.repo.Upsert(context.Background(), record)
	if err != nil {
		t.Fatalf("seed party: %v", err)
	}
	return RefFor(testGroup, party), party
}

func (h *harness) party(t *testing.T) (domain.Party, bool) {
	t.Helper()
	party, err := h.store.Party(context.Background(), testGroup, "owner-1")
	if errors.Is(err, domain.ErrPartyNotFound) || errors.Is(err, domain.ErrGroupNotFound) {
		return domain.Party{}, false
	}
	if err != nil {
		t.Fatalf("load party: %v", err)
	}
	return party, true
}

func grant(user domain.UserID) domain.Signal {
	return domain.Signal{Actor: user, ActorName: "name-" + string(user), Kind: domain.SignalGrant, Marker: domain.DefaultJoinMarker}
}

func revoke(user domain.UserID) domain.Signal {
	return domain.Signal{Actor: user, ActorName: "name-" + string(user), Kind: domain.SignalRevoke, Marker: domain.DefaultJoinMarker}
}
