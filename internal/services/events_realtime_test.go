package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvplabs/nvp-backend/internal/audit"
)

// raceDetectConn counts overlapping WriteJSON calls, which gorilla/websocket
// connections turn into a process-wide panic.
type raceDetectConn struct {
	writing    int32
	concurrent int32
	written    int32
	closed     int32
}

func (c *raceDetectConn) WriteJSON(v interface{}) error {
	if !atomic.CompareAndSwapInt32(&c.writing, 0, 1) {
		atomic.AddInt32(&c.concurrent, 1)
	}
	time.Sleep(50 * time.Microsecond)
	atomic.AddInt32(&c.written, 1)
	atomic.StoreInt32(&c.writing, 0)
	return nil
}

func (c *raceDetectConn) Close() error {
	atomic.AddInt32(&c.closed, 1)
	return nil
}

// blockingConn never finishes a write until released.
type blockingConn struct {
	release chan struct{}
}

func (c *blockingConn) WriteJSON(v interface{}) error {
	<-c.release
	return nil
}

func (c *blockingConn) Close() error { return nil }

func TestFanOutSerializesWritesPerConnection(t *testing.T) {
	conn := &raceDetectConn{}
	id := RegisterEventClient(conn)
	defer UnregisterEventClient(id)

	// Registration emits two events back to back, and several requests run
	// at once in production. Hammer the fan-out from many goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				FanOutDeviceEvent(audit.Event{Action: audit.ActionStatusCheck})
			}
		}()
	}
	wg.Wait()

	// Let the writer goroutine drain what was queued.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&conn.written) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	require.Greater(t, atomic.LoadInt32(&conn.written), int32(0))
	assert.Zero(t, atomic.LoadInt32(&conn.concurrent), "WriteJSON calls overlapped on a single connection")
}

func TestFanOutNeverBlocksOnSlowClient(t *testing.T) {
	conn := &blockingConn{release: make(chan struct{})}
	id := RegisterEventClient(conn)
	defer func() {
		close(conn.release)
		UnregisterEventClient(id)
	}()

	// Overfill the client's backlog; every publish must still return
	// immediately, dropping what does not fit.
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventSendBuffer*4; i++ {
			FanOutDeviceEvent(audit.Event{Action: audit.ActionRegister})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fan-out blocked on a client that never reads")
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	conn := &raceDetectConn{}
	id := RegisterEventClient(conn)
	UnregisterEventClient(id)

	FanOutDeviceEvent(audit.Event{Action: audit.ActionBan})
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, atomic.LoadInt32(&conn.written))
}
