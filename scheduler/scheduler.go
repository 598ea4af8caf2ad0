package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// Task describes one registered task for inspection.
type Task struct {
	Name     string        `json:"name"`
	Periodic bool          `json:"periodic"`
	Interval time.Duration `json:"interval,omitempty"`
	Due      time.Time     `json:"due,omitempty"`
}

// Scheduler runs named periodic and one-shot tasks. Registering a name
// again replaces the earlier task.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	timers  map[string]*timerEntry
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped bool
}

type tickerEntry struct {
	ticker   *time.Ticker
	interval time.Duration
	stopCh   chan struct{}
}

type timerEntry struct {
	timer *time.Timer
	due   time.Time
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		timers:  make(map[string]*timerEntry),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

func (s *Scheduler) run(kind, name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("kind", kind),
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	fn()
}

// AddTicker registers a task to run on a fixed interval.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker:   time.NewTicker(interval),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	s.tickers[name] = entry

	go func() {
		defer entry.ticker.Stop()
		for {
			select {
			case <-entry.ticker.C:
				s.run("ticker", name, fn)
			case <-entry.stopCh:
				return
			case <-s.stopCh:
				return
			}
		}
	}()
	s.logger.Debug("ticker registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay. A non-positive delay fires at once.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if old, ok := s.timers[name]; ok {
		old.timer.Stop()
	}
	entry := &timerEntry{due: time.Now().Add(delay)}
	entry.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// A replacement registered under the same name must survive.
		if s.timers[name] == entry {
			delete(s.timers, name)
		}
		s.mu.Unlock()
		s.run("delay", name, fn)
	})
	s.timers[name] = entry
	s.logger.Debug("delay registered", zap.String("name", name), zap.Duration("delay", delay))
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.timer.Stop()
		delete(s.timers, name)
	}
}

// Stop stops all tasks. Later registrations are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
	for name, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, name)
	}
}

// ListTickers returns the names of all registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks lists every pending task sorted by name.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tickers)+len(s.timers))
	for name, t := range s.tickers {
		out = append(out, Task{Name: name, Periodic: true, Interval: t.interval})
	}
	for name, t := range s.timers {
		out = append(out, Task{Name: name, Due: t.due})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
