// Package ipc implements the Connection (C6) and IPC Listener (C7): the
// per-connection state machine, framing-to-dispatch pipeline, and the
// Unix domain socket accept loop that creates Connections.
package ipc

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxelcore/voxeld/internal/rpc"
)

// State is one of the Connection's five states.
type State int32

const (
	StateNew State = iota
	StateActive
	StateIdle
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Limits bounds one Connection's resource usage.
type Limits struct {
	MaxPending     int
	MaxFrameBytes  int
	IdleTimeout    time.Duration
	DrainDeadline  time.Duration
}

// PendingEntry tracks one dispatched, not-yet-responded request.
type PendingEntry struct {
	ID           rpc.ID
	DispatchedAt time.Time
	cancelled    atomic.Bool

	// override, when non-nil, redirects this entry's delivery to a batch
	// collector instead of the send queue. Scoped to the entry rather than
	// the Connection so concurrently completing requests on the same
	// connection never cross wires.
	override func(rpc.Response)
}

// Cancel marks the entry cancelled; the worker pool consults this before
// and after invoking the Engine Guard.
func (p *PendingEntry) Cancel() { p.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (p *PendingEntry) Cancelled() bool { return p.cancelled.Load() }

// Dispatcher is the narrow callback the Connection uses to hand off a
// decoded request; supplied by the daemon wiring so this package has no
// dependency on the registry or worker pool.
type Dispatcher func(c *Connection, req rpc.Request, entry *PendingEntry)

// Connection is one accepted transport session. All mutable state is
// behind mu except the atomics, which are read on hot paths (state,
// lastActivity) without taking the lock.
type Connection struct {
	ID     uint64
	conn   net.Conn
	limits Limits
	log    *slog.Logger

	dispatch Dispatcher

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos

	mu      sync.Mutex
	pending map[string]*PendingEntry
	closed  bool

	sendQueue chan []byte
	drainDone chan struct{}

	onClose func(*Connection)
}

// New constructs a Connection in state New. Call Run to start its read and
// write loops; Run blocks until the connection is fully Closed.
func New(id uint64, conn net.Conn, limits Limits, dispatch Dispatcher, log *slog.Logger, onClose func(*Connection)) *Connection {
	c := &Connection{
		ID:        id,
		conn:      conn,
		limits:    limits,
		log:       log,
		dispatch:  dispatch,
		pending:   make(map[string]*PendingEntry),
		sendQueue: make(chan []byte, 256),
		drainDone: make(chan struct{}),
		onClose:   onClose,
	}
	c.state.Store(int32(StateNew))
	c.touch()
	return c
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// State returns the Connection's current state.
func (c *Connection) State() State { return State(c.state.Load()) }

func (c *Connection) setState(s State) { c.state.Store(int32(s)) }

// PendingCount reports the number of dispatched, unanswered requests.
func (c *Connection) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run drives the Connection's read loop, write loop, and idle timer until
// it reaches Closed. Intended to be called in its own goroutine by the
// Listener's accept loop.
func (c *Connection) Run() {
	c.setState(StateActive)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.readLoop() }()
	go func() { defer wg.Done(); c.writeLoop() }()
	wg.Wait()
	c.setState(StateClosed)
	if c.onClose != nil {
		c.onClose(c)
	}
}

// Drain transitions the Connection to Draining, the trigger used both by
// peer-close detection and by the supervisor's shutdown broadcast.
func (c *Connection) Drain() {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateDraining)
	c.mu.Lock()
	for _, e := range c.pending {
		e.Cancel()
	}
	c.mu.Unlock()

	go func() {
		deadline := c.limits.DrainDeadline
		if deadline <= 0 {
			deadline = 30 * time.Second
		}
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-timer.C:
				c.forceClose("drain deadline exceeded")
				return
			case <-ticker.C:
				if c.PendingCount() == 0 && c.sendQueueEmpty() {
					c.forceClose("drained")
					return
				}
			case <-c.drainDone:
				return
			}
		}
	}()
}

func (c *Connection) sendQueueEmpty() bool {
	return len(c.sendQueue) == 0
}

func (c *Connection) forceClose(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, e := range c.pending {
		c.log.Warn("discarding pending response on forced close", "connection_id", c.ID, "request_id", id, "reason", reason)
		_ = e
	}
	c.mu.Unlock()
	close(c.drainDone)
	c.conn.Close()
}

// readLoop reads bytes, feeds the frame scanner, and dispatches each
// complete frame. A zero-length read on a readable connection means EOF
// (peer closed); transient errors that are not io.EOF or net.ErrClosed are
// treated as fatal reads and transition the Connection to Draining,
// matching the spec's requirement that only a genuine hang-up or error
// (never a would-block condition) triggers that transition.
func (c *Connection) readLoop() {
	scanner := rpc.NewFrameScanner(c.limits.MaxFrameBytes)
	r := bufio.NewReaderSize(c.conn, 64*1024)
	buf := make([]byte, 64*1024)

	idleTimer := c.startIdleMonitor()
	defer idleTimer.Stop()

	for {
		if c.State() == StateDraining || c.State() == StateClosed {
			return
		}
		n, err := r.Read(buf)
		if n > 0 {
			c.touch()
			if c.State() == StateIdle {
				c.setState(StateActive)
			}
			frames, ferr := scanner.Feed(buf[:n])
			for _, f := range frames {
				c.handleFrame(f)
			}
			if ferr != nil {
				c.log.Warn("frame exceeds max_frame_bytes, draining connection", "connection_id", c.ID)
				c.Drain()
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.Drain()
				return
			}
			c.log.Warn("connection read error, draining", "connection_id", c.ID, "error", err)
			c.Drain()
			return
		}
	}
}

func (c *Connection) startIdleMonitor() *time.Timer {
	idle := c.limits.IdleTimeout
	if idle <= 0 {
		// Unbounded idle timeout per the spec's default: connections may
		// stay open indefinitely, so no timer fires.
		return time.NewTimer(24 * 365 * time.Hour)
	}
	t := time.AfterFunc(idle, func() {
		c.checkIdle()
	})
	return t
}

func (c *Connection) checkIdle() {
	if c.State() != StateActive {
		return
	}
	if c.PendingCount() != 0 {
		return
	}
	elapsed := time.Since(time.Unix(0, c.lastActivity.Load()))
	if elapsed >= c.limits.IdleTimeout {
		c.setState(StateIdle)
	}
}

func (c *Connection) handleFrame(frame []byte) {
	result := rpc.Decode(frame)
	if result.Err != nil && !result.IsBatch {
		if b, err := rpc.Encode(*result.Err); err == nil {
			c.Send(b)
		}
		return
	}
	if result.IsBatch {
		c.handleBatch(frame, result)
		return
	}
	for _, req := range result.Requests {
		c.dispatchOne(req)
	}
}

func (c *Connection) handleBatch(frame []byte, result rpc.DecodeResult) {
	responses := make([]rpc.Response, 0, len(result.Requests))
	notifications := 0
	for _, req := range result.Requests {
		if req.IsNotification() {
			notifications++
			c.dispatchOne(req)
			continue
		}
		// Batch responses are collected by the dispatcher's Deliver
		// callback directly into the send queue for non-batch requests;
		// for batch membership we still want a single combined array
		// response, so batched requests get a dedicated collector.
		responses = append(responses, c.dispatchCollect(req))
	}
	responses = append(responses, rpc.BatchDecodeErrors(frame)...)
	if len(responses) == 0 {
		return
	}
	b, err := rpc.EncodeBatch(responses)
	if err != nil {
		return
	}
	c.Send(append(b, '\n'))
}

// dispatchCollect dispatches req synchronously relative to batch assembly
// by handing the entry a one-shot override that writes into a local channel
// instead of the send queue, then waits for it. Batched requests still run
// through the same worker pool and Engine Guard as standalone ones; only the
// response's destination differs. The override lives on the PendingEntry
// itself, not the Connection, so an unrelated request completing
// concurrently on the same connection can never be routed into this
// channel.
func (c *Connection) dispatchCollect(req rpc.Request) rpc.Response {
	entry, ok := c.registerPending(req.ID)
	if !ok {
		return c.pendingOverflowResponse(req.ID)
	}
	ch := make(chan rpc.Response, 1)
	entry.override = func(resp rpc.Response) { ch <- resp }
	c.dispatch(c, req, entry)
	return <-ch
}

func (c *Connection) dispatchOne(req rpc.Request) {
	var entry *PendingEntry
	if !req.IsNotification() {
		var ok bool
		entry, ok = c.registerPending(req.ID)
		if !ok {
			c.rejectPendingOverflow(req.ID)
			return
		}
	}
	c.dispatch(c, req, entry)
}

// registerPending inserts a new PendingEntry unless the connection's
// pending table is already at its configured cap, in which case it
// refuses the insert and reports ok=false so the caller can reject the
// request instead of letting the table grow unbounded.
func (c *Connection) registerPending(id rpc.ID) (*PendingEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limits.MaxPending > 0 && len(c.pending) >= c.limits.MaxPending {
		return nil, false
	}
	entry := &PendingEntry{ID: id, DispatchedAt: time.Now()}
	c.pending[id.String()] = entry
	return entry, true
}

// rejectPendingOverflow answers req with ResourceExhausted and drains the
// connection: the pending table cap has been reached, the Active ->
// Draining transition the spec requires on pending overflow (backpressure).
func (c *Connection) rejectPendingOverflow(id rpc.ID) {
	if b, err := rpc.Encode(c.pendingOverflowResponse(id)); err == nil {
		c.Send(b)
	}
	c.log.Warn("pending table full, draining connection", "connection_id", c.ID)
	c.Drain()
}

func (c *Connection) pendingOverflowResponse(id rpc.ID) rpc.Response {
	return rpc.NewErrorResponse(id, &rpc.Error{Code: rpc.CodeResourceExhausted, Message: "ResourceExhausted: pending request table full"})
}

// Discard removes a cancelled request's PendingEntry: the connection is
// already Draining and the peer has no use for a stale result, so nothing
// is sent to the socket. The entry still leaves the pending table
// promptly so draining can complete without waiting on the forced-close
// deadline. If the entry carries a batch-collector override, that local
// channel is still unblocked with a Cancelled response — its goroutine is
// waiting synchronously and isn't the socket write path.
func (c *Connection) Discard(id rpc.ID) {
	c.mu.Lock()
	key := id.String()
	entry := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if entry != nil && entry.override != nil {
		entry.override(rpc.NewErrorResponse(id, &rpc.Error{Code: rpc.CodeCancelled, Message: "Cancelled: connection draining"}))
	}
}

// Deliver is called by the worker pool once an op completes. It removes
// the PendingEntry, if any, and enqueues the encoded response. It does not
// itself check for notifications or cancelled entries; callers skip those
// before calling it. If the entry carries a batch-collector override, the
// response is routed there instead of the send queue.
func (c *Connection) Deliver(id rpc.ID, resp rpc.Response) {
	c.mu.Lock()
	key := id.String()
	entry := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if entry != nil && entry.override != nil {
		entry.override(resp)
		return
	}
	b, err := rpc.Encode(resp)
	if err != nil {
		return
	}
	c.Send(b)
}

// Send enqueues bytes for the write loop. Backpressure here means the send
// queue itself is full, which only happens if a peer stops reading; the
// Connection drains rather than blocking the worker that produced this
// response.
func (c *Connection) Send(b []byte) {
	select {
	case c.sendQueue <- b:
	default:
		c.log.Warn("send queue full, draining connection", "connection_id", c.ID)
		c.Drain()
	}
}

func (c *Connection) writeLoop() {
	w := bufio.NewWriter(c.conn)
	for {
		select {
		case b, ok := <-c.sendQueue:
			if !ok {
				w.Flush()
				return
			}
			if _, err := w.Write(b); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-c.drainDone:
			// Flush whatever remains, then stop.
			for {
				select {
				case b := <-c.sendQueue:
					w.Write(b)
				default:
					w.Flush()
					return
				}
			}
		}
	}
}
