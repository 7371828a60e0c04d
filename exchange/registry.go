package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dubbo-exchange/internal/logging"
	"dubbo-exchange/remoting"
	"dubbo-exchange/transport"
)

const (
	wheelTick  = 30 * time.Millisecond
	wheelSlots = 1024
)

// call is one outstanding two-way request: the Future the caller is
// waiting on, plus the bookkeeping the timeout wheel needs to tell
// CLIENT_TIMEOUT from SERVER_TIMEOUT.
type call struct {
	id        uint64
	channel   *transport.Channel
	request   *remoting.Request
	future    *Future
	executor  Executor
	startedAt time.Time
	sentAt    atomic.Int64
	handle    wheelHandle
}

// Registry is the pending-call table: a process-wide id → call map (one
// instance per exchange context; tests get their own, never a package
// global) plus the hashed-wheel timer that ages entries out. Grounded on
// the teacher's ClientTransport.pending sync.Map keyed by sequence number
// (transport/client_transport.go), generalized with an explicit timeout
// wheel instead of the teacher's per-connection heartbeat-only liveness
// check.
type Registry struct {
	mu        sync.Mutex
	calls     map[uint64]*call
	byChannel map[*transport.Channel]map[uint64]*call
	wheel     *timingWheel
}

func NewRegistry() *Registry {
	r := &Registry{
		calls:     make(map[uint64]*call),
		byChannel: make(map[*transport.Channel]map[uint64]*call),
	}
	r.wheel = newTimingWheel(wheelTick, wheelSlots, r.onTimeout)
	return r
}

// NewCall registers req as in flight on channel and arms its timeout.
// If executor is a *ThreadlessExecutor, the returned future is also
// recorded as that executor's waiting future.
func (r *Registry) NewCall(ch *transport.Channel, req *remoting.Request, timeout time.Duration, executor Executor) *Future {
	f := newFuture()
	c := &call{
		id:        req.ID,
		channel:   ch,
		request:   req,
		future:    f,
		executor:  executor,
		startedAt: time.Now(),
	}

	r.mu.Lock()
	r.calls[req.ID] = c
	m := r.byChannel[ch]
	if m == nil {
		m = make(map[uint64]*call)
		r.byChannel[ch] = m
	}
	m[req.ID] = c
	r.mu.Unlock()

	c.handle = r.wheel.Schedule(timeout, req.ID)

	if tl, ok := executor.(*ThreadlessExecutor); ok {
		tl.setWaiting(f)
	}
	return f
}

// Sent records that req has left the local send buffer, which is how the
// timeout path distinguishes CLIENT_TIMEOUT from SERVER_TIMEOUT.
func (r *Registry) Sent(ch *transport.Channel, req *remoting.Request) {
	r.mu.Lock()
	c := r.calls[req.ID]
	r.mu.Unlock()
	if c != nil {
		c.sentAt.Store(time.Now().UnixNano())
	}
}

// Received completes the pending call matching resp.ID, if any. A
// response with no matching entry (late timeout, duplicate, or a bug on
// the peer) is logged and dropped rather than treated as fatal.
func (r *Registry) Received(ch *transport.Channel, resp *remoting.Response) {
	c := r.remove(resp.ID)
	if c == nil {
		logging.Warnf("exchange: response id %d has no pending call, dropping", resp.ID)
		return
	}
	r.wheel.Cancel(c.handle)
	r.complete(c, resp, nil)
}

// CloseChannel completes every call still outstanding on ch with a
// synthetic CHANNEL_INACTIVE response, and forgets them.
func (r *Registry) CloseChannel(ch *transport.Channel) {
	r.mu.Lock()
	m := r.byChannel[ch]
	delete(r.byChannel, ch)
	calls := make([]*call, 0, len(m))
	for id, c := range m {
		delete(r.calls, id)
		calls = append(calls, c)
	}
	r.mu.Unlock()

	addr := ""
	if ch != nil && ch.RemoteAddr() != nil {
		addr = ch.RemoteAddr().String()
	}
	for _, c := range calls {
		r.wheel.Cancel(c.handle)
		resp := remoting.NewResponse(c.id, remoting.StatusChannelInactive)
		resp.ErrorMessage = (&remoting.ChannelInactiveError{Addr: addr}).Error()
		r.complete(c, resp, nil)
	}
}

// Cancel completes id with CLIENT_ERROR and removes its registry entries,
// used when a send fails before the request ever reached the wire.
func (r *Registry) Cancel(id uint64, cause error) {
	c := r.remove(id)
	if c == nil {
		return
	}
	r.wheel.Cancel(c.handle)
	resp := remoting.NewResponse(id, remoting.StatusClientError)
	if cause != nil {
		resp.ErrorMessage = cause.Error()
	}
	r.complete(c, resp, nil)
}

// PendingCount reports how many calls are outstanding across every
// channel this registry tracks.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// PendingOnChannel reports how many calls are still outstanding on ch —
// what ExchangeChannel.Close's drain loop polls.
func (r *Registry) PendingOnChannel(ch *transport.Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byChannel[ch])
}

func (r *Registry) remove(id uint64) *call {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return nil
	}
	delete(r.calls, id)
	if m := r.byChannel[c.channel]; m != nil {
		delete(m, id)
	}
	return c
}

func (r *Registry) onTimeout(id uint64) {
	c := r.remove(id)
	if c == nil {
		return
	}
	end := time.Now()
	status := remoting.StatusClientTimeout
	if c.sentAt.Load() > 0 {
		status = remoting.StatusServerTimeout
	}
	te := &remoting.TimeoutError{
		Side:    status,
		Start:   c.startedAt.UnixNano(),
		End:     end.UnixNano(),
		Request: summarizeRequest(c.request),
	}
	resp := remoting.NewResponse(id, status)
	resp.ErrorMessage = te.Error()
	r.complete(c, resp, nil)
}

func (r *Registry) complete(c *call, resp *remoting.Response, err error) {
	run := func() { c.future.complete(resp, err) }
	if c.executor != nil {
		c.executor.Execute(run)
	} else {
		run()
	}
}

// Close stops the registry's timeout wheel. It does not touch any
// outstanding calls — callers drain those with CloseChannel first.
func (r *Registry) Close() {
	r.wheel.Stop()
}

func summarizeRequest(req *remoting.Request) string {
	if inv, ok := req.Data.(*remoting.Invocation); ok {
		return inv.Method
	}
	return fmt.Sprintf("request#%d", req.ID)
}
