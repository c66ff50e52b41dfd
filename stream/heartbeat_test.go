package stream

import (
	"sync"
	"testing"
	"time"

	"akashwatch/logger"
)

func testLog() *logger.Entry {
	return logger.GetLogger().WithComponent("heartbeat_test")
}

func TestHeartbeatPongResolvesPending(t *testing.T) {
	sent := make(chan string, 1)
	hb := newHeartbeat(time.Hour, time.Hour, func(id string) error {
		sent <- id
		return nil
	}, func(string) { t.Error("onDead must not fire") }, testLog())
	// running gate is normally set by start; open it for a manual ping.
	hb.running = true

	hb.ping()
	id := <-sent
	if hb.pendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", hb.pendingCount())
	}

	if !hb.handlePong(id) {
		t.Fatal("pong for a pending ping must resolve")
	}
	if hb.pendingCount() != 0 {
		t.Fatalf("pending after pong = %d, want 0", hb.pendingCount())
	}
}

func TestHeartbeatUnknownPongIgnored(t *testing.T) {
	hb := newHeartbeat(time.Hour, time.Hour, func(string) error { return nil }, func(string) {}, testLog())
	if hb.handlePong("never-sent") {
		t.Fatal("an id that was never pinged is not a pong")
	}
}

func TestHeartbeatTimeoutFiresOnDead(t *testing.T) {
	dead := make(chan string, 1)
	hb := newHeartbeat(time.Hour, 20*time.Millisecond, func(string) error { return nil }, func(id string) {
		dead <- id
	}, testLog())
	// running gate is normally set by start; open it for a manual ping.
	hb.running = true

	hb.ping()

	select {
	case <-dead:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout did not fire")
	}
	if hb.pendingCount() != 0 {
		t.Fatalf("pending after expiry = %d, want 0", hb.pendingCount())
	}
}

func TestHeartbeatStopClearsPending(t *testing.T) {
	var mu sync.Mutex
	deadFired := false

	hb := newHeartbeat(time.Hour, 50*time.Millisecond, func(string) error { return nil }, func(string) {
		mu.Lock()
		deadFired = true
		mu.Unlock()
	}, testLog())

	hb.start()
	hb.ping()
	hb.stop()

	if hb.pendingCount() != 0 {
		t.Fatalf("pending after stop = %d, want 0", hb.pendingCount())
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if deadFired {
		t.Fatal("a cleared timer must not fire after stop")
	}
}

func TestHeartbeatStartStopIdempotent(t *testing.T) {
	hb := newHeartbeat(time.Hour, time.Hour, func(string) error { return nil }, func(string) {}, testLog())
	hb.start()
	hb.start()
	hb.stop()
	hb.stop()
}
