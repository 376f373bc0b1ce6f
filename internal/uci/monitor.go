package uci

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	maxPollInterval = 50 * time.Millisecond
	minPollInterval = time.Millisecond
)

// Stopper can interrupt a running search. Session implements it.
type Stopper interface {
	Stop() error
}

// Monitor stops searches that run longer than a timeout.
//
// The extraction loop calls Arm right before a search and Disarm right after it. Disarm reports false when the
// monitor stopped the search, in which case the result of that search must not be used. Run has to be running in
// its own goroutine for the monitor to do anything.
type Monitor struct {
	stopper      Stopper
	timeout      time.Duration
	pollInterval time.Duration

	// wake has room for one pending Arm notification.
	wake chan struct{}

	// mutex protects the fields below
	mutex    sync.Mutex
	active   bool
	deadline time.Time
	fired    int
}

// NewMonitor creates a monitor. A timeout of zero or less disables it.
func NewMonitor(stopper Stopper, timeout time.Duration) *Monitor {
	pollInterval := timeout / 10 //nolint:mnd
	pollInterval = min(max(pollInterval, minPollInterval), maxPollInterval)

	return &Monitor{
		stopper:      stopper,
		timeout:      timeout,
		pollInterval: pollInterval,
		wake:         make(chan struct{}, 1),
	}
}

// Enabled returns false if the monitor never stops anything.
func (m *Monitor) Enabled() bool {
	return m.timeout > 0
}

// Arm marks a search as in progress and starts its deadline.
func (m *Monitor) Arm() {
	m.mutex.Lock()
	m.active = true
	m.deadline = time.Now().Add(m.timeout)
	m.mutex.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Disarm clears the in progress flag. It returns true if the search completed before the monitor stopped it.
func (m *Monitor) Disarm() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	completed := m.active
	m.active = false
	return completed
}

// Fired returns how many searches were stopped so far.
func (m *Monitor) Fired() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.fired
}

// Run watches armed searches until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.Enabled() {
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
		}

		if err := m.watch(ctx); err != nil {
			return err
		}
	}
}

// watch polls the deadline of the current search until it is disarmed or expires.
func (m *Monitor) watch(ctx context.Context) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		active, expired := m.expire(time.Now())
		if !active {
			return nil
		}

		if expired {
			slog.Debug("Analysis timed out, stopping engine", "timeout", m.timeout)
			return m.stopper.Stop()
		}
	}
}

// expire clears the flag if the deadline passed. It returns whether a search was active and whether it expired.
func (m *Monitor) expire(now time.Time) (bool, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.active {
		return false, false
	}

	if now.Before(m.deadline) {
		return true, false
	}

	m.active = false
	m.fired++
	return true, true
}
