// Package hub is the WebSocket fan-out layer: a connection registry, a
// subscription index and a publisher that pushes price and signal
// updates to subscribed clients.
package hub

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

const (
	// sendBuffer is the per-client outbound queue. A client that cannot
	// drain it is closed rather than allowed to grow without bound.
	sendBuffer = 64

	// inactiveAfter is how long a client may go without a ping before
	// the sweeper closes it.
	inactiveAfter = 300 * time.Second

	sweepInterval = 60 * time.Second
)

// subKey identifies one subscription target.
type subKey struct {
	kind   string // strategy, stock or market
	target string
}

// Hub owns every connected WebSocket client and their subscriptions.
type Hub struct {
	realtime interfaces.RealtimeService
	strategy interfaces.StrategyService
	logger   *common.Logger

	// testMode adds a bounded random walk to published prices. Stored
	// state is never touched.
	testMode bool
	now      func() time.Time
	randMu   sync.Mutex
	rand     *rand.Rand

	mu           sync.RWMutex
	clients      map[string]*client
	subsByKey    map[subKey]map[string]*client
	subsByClient map[string]map[subKey]struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithTestMode enables the published-price random walk.
func WithTestMode(enabled bool) Option {
	return func(h *Hub) { h.testMode = enabled }
}

// WithClock overrides the hub clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// New creates a hub. Run starts the inactivity sweeper.
func New(realtime interfaces.RealtimeService, strategy interfaces.StrategyService, logger *common.Logger, opts ...Option) *Hub {
	h := &Hub{
		realtime:     realtime,
		strategy:     strategy,
		logger:       logger,
		now:          time.Now,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		clients:      map[string]*client{},
		subsByKey:    map[subKey]map[string]*client{},
		subsByClient: map[string]map[subKey]struct{}{},
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run sweeps inactive clients until Stop. Call as a goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweepInactive()
		}
	}
}

// Stop closes every client and ends the sweeper.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.Unlock()

	for _, c := range all {
		h.disconnect(c)
	}
	h.wg.Wait()
}

// register installs a client, evicting any prior connection holding the
// same client_id.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	prev := h.clients[c.id]
	h.clients[c.id] = c
	h.mu.Unlock()

	if prev != nil {
		h.logger.Debug().Str("client_id", c.id).Msg("Evicting duplicate WebSocket client")
		h.dropClient(prev)
	}
	h.logger.Debug().Str("client_id", c.id).Int("clients", h.ClientCount()).Msg("WebSocket client connected")
}

// disconnect removes a client and all its subscriptions. Safe to call
// more than once per client.
func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	for key := range h.subsByClient[c.id] {
		if set := h.subsByKey[key]; set != nil {
			delete(set, c.id)
			if len(set) == 0 {
				delete(h.subsByKey, key)
			}
		}
	}
	delete(h.subsByClient, c.id)
	h.mu.Unlock()

	h.dropClient(c)
}

func (h *Hub) dropClient(c *client) {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
	})
}

// sweepInactive closes clients whose last ping is older than the
// inactivity window.
func (h *Hub) sweepInactive() {
	cutoff := h.now().Add(-inactiveAfter)

	h.mu.RLock()
	var stale []*client
	for _, c := range h.clients {
		if time.Unix(0, c.lastPing.Load()).Before(cutoff) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Debug().Str("client_id", c.id).Msg("Closing inactive WebSocket client")
		h.disconnect(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) timestamp() string {
	return h.now().Format("2006-01-02 15:04:05")
}
