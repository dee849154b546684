package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

// ReportFunc receives the debounced status of a component after each check
type ReportFunc func(name string, healthy bool, message string)

// Monitor runs a set of named checkers on an interval
type Monitor struct {
	config   Config
	report   ReportFunc
	mu       sync.Mutex
	checkers map[string]Checker
	statuses map[string]*Status
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a monitor that hands every status to report
func NewMonitor(config Config, report ReportFunc) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Retries <= 0 {
		config.Retries = 1
	}
	return &Monitor{
		config:   config,
		report:   report,
		checkers: make(map[string]Checker),
		statuses: make(map[string]*Status),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Register adds a checker under name
func (m *Monitor) Register(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
	m.statuses[name] = NewStatus()
}

// CheckAll runs every checker once and reports the results
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		m.check(ctx, name)
	}
}

func (m *Monitor) check(ctx context.Context, name string) {
	m.mu.Lock()
	c := m.checkers[name]
	m.mu.Unlock()

	checkCtx := ctx
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}
	res := c.Check(checkCtx)

	m.mu.Lock()
	status := m.statuses[name]
	status.Update(res, m.config)
	healthy := status.Healthy
	failures := status.ConsecutiveFailures
	m.mu.Unlock()

	if !res.Healthy {
		log.Logger.Warn().
			Str("component", name).
			Int("failures", failures).
			Dur("duration", res.Duration).
			Msg(res.Message)
	}

	if m.report != nil {
		m.report(name, healthy, res.Message)
	}
}

// Status returns a copy of the current status of name
func (m *Monitor) Status(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[name]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Start runs CheckAll immediately and then on every interval
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		m.CheckAll(ctx)
		for {
			select {
			case <-ticker.C:
				m.CheckAll(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}
