package services

import (
	"sort"
	"sync"
	"testing"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	"pttrelay/internal/infrastructure/repositories/memory"

	"go.uber.org/zap"
)

type manualTask struct {
	delay time.Duration
	seq   int
	fn    func()
}

// manualScheduler collects tasks until the test runs them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []manualTask
	seq   int
}

func (s *manualScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, manualTask{delay: d, seq: s.seq, fn: fn})
	s.seq++
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunAll runs queued tasks ordered by delay, including tasks queued while running.
func (s *manualScheduler) RunAll() {
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		tasks := s.tasks
		s.tasks = nil
		s.mu.Unlock()

		sort.SliceStable(tasks, func(i, j int) bool {
			if tasks[i].delay != tasks[j].delay {
				return tasks[i].delay < tasks[j].delay
			}
			return tasks[i].seq < tasks[j].seq
		})
		for _, t := range tasks {
			t.fn()
		}
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []domain.Event
	full   bool
	closed bool
}

func (o *recordingOutbox) Send(event domain.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return domain.ErrConnectionClosed
	}
	if o.full {
		return domain.ErrBackpressure
	}
	o.events = append(o.events, event)
	return nil
}

func (o *recordingOutbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}

func (o *recordingOutbox) Events() []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Event(nil), o.events...)
}

func (o *recordingOutbox) Types() []domain.EventType {
	var types []domain.EventType
	for _, e := range o.Events() {
		types = append(types, e.Type)
	}
	return types
}

func (o *recordingOutbox) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (o *recordingOutbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = nil
}

type countingMetrics struct {
	ports.NopMetrics
	mu      sync.Mutex
	dropped int
	closed  []string
	relayed int
	evicted map[string]int
}

func (m *countingMetrics) EventDropped(domain.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *countingMetrics) ConnectionClosed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, reason)
}

func (m *countingMetrics) AudioRelayed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayed++
}

func (m *countingMetrics) AudioEvicted(source string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evicted == nil {
		m.evicted = make(map[string]int)
	}
	m.evicted[source] += n
}

// relayFixture wires the relay services over in-memory repositories.
type relayFixture struct {
	clock       *testClock
	scheduler   *manualScheduler
	metrics     *countingMetrics
	channels    ports.ChannelRepository
	registry    ports.ConnectionRegistry
	broadcaster ports.Broadcaster
	roster      ports.RosterService
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()
	f := &relayFixture{
		clock:     newTestClock(),
		scheduler: &manualScheduler{},
		metrics:   &countingMetrics{},
		channels:  memory.NewMemoryChannelRepository(),
	}
	f.registry = NewConnectionRegistry(f.clock.Now, f.metrics, logger)
	f.broadcaster = NewBroadcaster(f.registry, f.channels, f.scheduler, DefaultRelayTimings(), f.clock.Now, f.metrics, logger)
	f.roster = NewRosterService(f.registry, f.channels, f.broadcaster, f.scheduler, DefaultRelayTimings(), f.metrics, logger)
	return f
}

func (f *relayFixture) connect() (domain.ConnectionID, *recordingOutbox) {
	out := &recordingOutbox{}
	return f.registry.OnConnect("127.0.0.1:5000", out), out
}
