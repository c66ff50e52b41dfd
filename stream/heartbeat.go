package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"akashwatch/logger"
)

// heartbeat periodically pings the node over the active connection and
// force-closes the socket when a pong does not arrive in time. The pending
// set maps outstanding ping ids to their timeout timers.
type heartbeat struct {
	interval time.Duration
	timeout  time.Duration
	send     func(id string) error
	onDead   func(id string)
	log      *logger.Entry

	mu      sync.Mutex
	pending map[string]*time.Timer
	ticker  *time.Ticker
	done    chan struct{}
	running bool
}

func newHeartbeat(interval, timeout time.Duration, send func(id string) error, onDead func(id string), log *logger.Entry) *heartbeat {
	return &heartbeat{
		interval: interval,
		timeout:  timeout,
		send:     send,
		onDead:   onDead,
		log:      log,
		pending:  make(map[string]*time.Timer),
	}
}

func (h *heartbeat) start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.ticker = time.NewTicker(h.interval)
	h.done = make(chan struct{})
	ticker, done := h.ticker, h.done
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				h.ping()
			}
		}
	}()
}

// stop clears the pending-ping set and all armed timers. Safe to call when
// the monitor is not running.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	h.ticker.Stop()
	close(h.done)
	for id, timer := range h.pending {
		timer.Stop()
		delete(h.pending, id)
	}
}

func (h *heartbeat) ping() {
	id := uuid.NewString()

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.pending[id] = time.AfterFunc(h.timeout, func() { h.expire(id) })
	h.mu.Unlock()

	if err := h.send(id); err != nil {
		h.log.WithError(err).Warn("failed to send heartbeat ping")
	}
}

// handlePong resolves an outstanding ping. It returns false when the id is
// not pending, in which case the frame is not a pong and must be processed
// as a regular message.
func (h *heartbeat) handlePong(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	timer, ok := h.pending[id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(h.pending, id)
	return true
}

func (h *heartbeat) expire(id string) {
	h.mu.Lock()
	_, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	running := h.running
	h.mu.Unlock()

	if !ok || !running {
		return
	}
	h.log.WithField("ping_id", id).Warn("heartbeat timeout, connection considered dead")
	h.onDead(id)
}

func (h *heartbeat) pendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
