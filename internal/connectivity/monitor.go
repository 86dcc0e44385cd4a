// Package connectivity tracks whether the central server is reachable.
package connectivity

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/events"
	"github.com/xelth-com/eckwmsfield/internal/logging"
)

// RouteStatus tracks the health of the server route
type RouteStatus struct {
	URL          string        `json:"url"`
	IsAvailable  bool          `json:"isAvailable"`
	LastCheck    time.Time     `json:"lastCheck"`
	LastSuccess  *time.Time    `json:"lastSuccess,omitempty"`
	LastFailure  *time.Time    `json:"lastFailure,omitempty"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	AvgLatency   time.Duration `json:"avgLatency"`

	latencySum   time.Duration
	latencyCount int
}

// Monitor probes GET {baseURL}/health on an interval and notifies
// subscribers on every change of reachability.
type Monitor struct {
	mu sync.RWMutex

	baseURL  string
	interval time.Duration
	client   *http.Client
	bus      *events.Bus
	log      logging.Logger

	connected bool
	status    RouteStatus

	subs   map[int]func(bool)
	nextID int

	// probeMu serializes probes so transitions are reported in order.
	probeMu sync.Mutex

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor creates a monitor. It starts disconnected; call Check or Start.
func NewMonitor(baseURL string, interval, timeout time.Duration, bus *events.Bus, log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Discard()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Monitor{
		baseURL:  baseURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		bus:      bus,
		log:      log.With("component", "connectivity"),
		status:   RouteStatus{URL: baseURL},
		subs:     make(map[int]func(bool)),
	}
}

// IsConnected returns the result of the last probe.
func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Status returns a snapshot of the route statistics.
func (m *Monitor) Status() RouteStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers fn to be called with the new state on every change.
// Callbacks run on the probing goroutine and must not block.
func (m *Monitor) Subscribe(fn func(connected bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Check probes the server now and returns the resulting state.
func (m *Monitor) Check(ctx context.Context) bool {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	ok, latency, err := m.probe(ctx)
	now := time.Now()

	m.mu.Lock()
	st := &m.status
	st.LastCheck = now
	st.IsAvailable = ok
	if ok {
		st.SuccessCount++
		st.LastSuccess = &now
		st.FailureCount = 0
		st.latencySum += latency
		st.latencyCount++
		st.AvgLatency = st.latencySum / time.Duration(st.latencyCount)
	} else {
		st.FailureCount++
		st.LastFailure = &now
	}
	changed := m.connected != ok
	m.connected = ok
	var subs []func(bool)
	if changed {
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if changed {
		if ok {
			m.log.Info(ctx, "server reachable", "url", m.baseURL, "latency", latency)
		} else {
			m.log.Warn(ctx, "server unreachable", "url", m.baseURL, "err", err)
		}
		m.bus.Connectivity(ok)
		for _, fn := range subs {
			fn(ok)
		}
	}
	return ok
}

type probeError struct{ code int }

func (e probeError) Error() string { return "health returned " + http.StatusText(e.code) }

func (m *Monitor) probe(ctx context.Context) (bool, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return false, 0, err
	}
	start := time.Now()
	resp, err := m.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return false, latency, err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, latency, probeError{code: resp.StatusCode}
	}
	return true, latency, nil
}

// Start runs an immediate probe and then probes on every interval until
// Stop is called or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.healthCheckLoop(ctx, stop, done)
}

// Stop ends the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
}

func (m *Monitor) healthCheckLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
