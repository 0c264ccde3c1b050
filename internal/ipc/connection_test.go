package ipc

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/voxelcore/voxeld/internal/rpc"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoDispatch answers every request with its params as the result,
// delivered synchronously so tests don't need to poll.
func echoDispatch(c *Connection, req rpc.Request, entry *PendingEntry) {
	if entry == nil {
		return
	}
	c.Deliver(req.ID, rpc.NewResultResponse(req.ID, req.Params))
}

func newTestConnection(t *testing.T, dispatch Dispatcher, limits Limits) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c := New(1, server, limits, dispatch, discardLogger(), nil)
	t.Cleanup(func() { client.Close() })
	return c, client
}

func TestConnectionStartsInActiveStateAfterRun(t *testing.T) {
	c, client := newTestConnection(t, echoDispatch, Limits{})
	go c.Run()
	time.Sleep(5 * time.Millisecond)
	if c.State() != StateActive {
		t.Fatalf("expected StateActive after Run starts, got %v", c.State())
	}
	client.Close()
}

func TestConnectionRoundTripsRequest(t *testing.T) {
	c, client := newTestConnection(t, echoDispatch, Limits{})
	go c.Run()
	defer client.Close()

	if _, err := client.Write([]byte(`{"jsonrpc":"2.0","method":"echo","params":{"value":42},"id":1}` + "\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	reader := bufio.NewReader(client)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	res := rpc.Decode(line)
	if res.Err != nil {
		t.Fatalf("unexpected decode error in response: %+v", res.Err)
	}
}

func TestConnectionNotificationGetsNoResponse(t *testing.T) {
	received := make(chan rpc.Request, 1)
	dispatch := func(c *Connection, req rpc.Request, entry *PendingEntry) {
		received <- req
		if entry != nil {
			c.Deliver(req.ID, rpc.NewResultResponse(req.ID, nil))
		}
	}
	c, client := newTestConnection(t, dispatch, Limits{})
	go c.Run()
	defer client.Close()

	if _, err := client.Write([]byte(`{"jsonrpc":"2.0","method":"echo","params":{"value":1}}` + "\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	select {
	case req := <-received:
		if !req.IsNotification() {
			t.Fatal("expected the dispatched request to report IsNotification() true")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestDrainCancelsPendingEntries(t *testing.T) {
	c, client := newTestConnection(t, func(c *Connection, req rpc.Request, entry *PendingEntry) {
		// Never deliver; simulate an in-flight op the drain must cancel.
	}, Limits{DrainDeadline: 50 * time.Millisecond})
	defer client.Close()

	entry, ok := c.registerPending(rpc.NewID(float64(1)))
	if !ok {
		t.Fatal("expected registerPending to succeed under the default limits")
	}
	if entry.Cancelled() {
		t.Fatal("entry must not start cancelled")
	}
	c.Drain()
	if !entry.Cancelled() {
		t.Fatal("expected Drain to cancel all pending entries")
	}
	if c.State() != StateDraining {
		t.Fatalf("expected StateDraining, got %v", c.State())
	}
}

func TestDeliverRemovesPendingEntry(t *testing.T) {
	c, client := newTestConnection(t, echoDispatch, Limits{})
	defer client.Close()

	id := rpc.NewID(float64(7))
	if _, ok := c.registerPending(id); !ok {
		t.Fatal("expected registerPending to succeed under the default limits")
	}
	if c.PendingCount() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", c.PendingCount())
	}
	c.Deliver(id, rpc.NewResultResponse(id, nil))
	if c.PendingCount() != 0 {
		t.Fatalf("expected 0 pending entries after Deliver, got %d", c.PendingCount())
	}
}

func TestRegisterPendingRejectsOverCap(t *testing.T) {
	c, client := newTestConnection(t, echoDispatch, Limits{MaxPending: 2})
	defer client.Close()

	if _, ok := c.registerPending(rpc.NewID(float64(1))); !ok {
		t.Fatal("expected the first registration to succeed")
	}
	if _, ok := c.registerPending(rpc.NewID(float64(2))); !ok {
		t.Fatal("expected the second registration to succeed")
	}
	if _, ok := c.registerPending(rpc.NewID(float64(3))); ok {
		t.Fatal("expected a third registration to be rejected once MaxPending is reached")
	}
	if c.PendingCount() != 2 {
		t.Fatalf("expected the rejected registration to leave the table unchanged, got %d", c.PendingCount())
	}
}

func TestDispatchOneDrainsConnectionOnPendingOverflow(t *testing.T) {
	blocked := make(chan struct{})
	dispatch := func(c *Connection, req rpc.Request, entry *PendingEntry) {
		<-blocked // never deliver, so the pending table stays full
	}
	c, client := newTestConnection(t, dispatch, Limits{MaxPending: 1, DrainDeadline: 50 * time.Millisecond})
	defer close(blocked)
	defer client.Close()
	go c.Run()

	if _, err := client.Write([]byte(`{"jsonrpc":"2.0","method":"echo","params":{},"id":1}` + "\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := client.Write([]byte(`{"jsonrpc":"2.0","method":"echo","params":{},"id":2}` + "\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	reader := bufio.NewReader(client)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !contains(line, []byte(`"code":-32006`)) {
		t.Fatalf("expected a ResourceExhausted (-32006) response for the overflowing request, got %s", line)
	}

	time.Sleep(20 * time.Millisecond)
	if c.State() != StateDraining && c.State() != StateClosed {
		t.Fatalf("expected the connection to start draining after a pending overflow, got %v", c.State())
	}
}

func contains(haystack, needle []byte) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func TestDiscardRemovesEntryWithoutSending(t *testing.T) {
	c, client := newTestConnection(t, echoDispatch, Limits{})
	defer client.Close()

	id := rpc.NewID(float64(9))
	c.registerPending(id)
	c.Discard(id)
	if c.PendingCount() != 0 {
		t.Fatalf("expected Discard to remove the pending entry, got count %d", c.PendingCount())
	}
}

func TestDiscardUnblocksBatchCollectorOverride(t *testing.T) {
	c, client := newTestConnection(t, echoDispatch, Limits{})
	defer client.Close()

	id := rpc.NewID(float64(10))
	entry, ok := c.registerPending(id)
	if !ok {
		t.Fatal("expected registration to succeed")
	}
	ch := make(chan rpc.Response, 1)
	entry.override = func(resp rpc.Response) { ch <- resp }

	c.Discard(id)

	select {
	case resp := <-ch:
		if resp.Err == nil || resp.Err.Code != rpc.CodeCancelled {
			t.Fatalf("expected a Cancelled error response, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("expected Discard to unblock the batch collector's override channel")
	}
}

func TestStateStringValues(t *testing.T) {
	cases := map[State]string{
		StateNew:      "new",
		StateActive:   "active",
		StateIdle:     "idle",
		StateDraining: "draining",
		StateClosed:   "closed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
