package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dubbo-exchange/exchange"
	"dubbo-exchange/remoting"
)

// AsyncResult is the container for an in-flight (or already resolved)
// call: the underlying exchange.Future, the originating invocation, the
// executor that will run its completion, and the caller context captured
// when the call was made.
type AsyncResult struct {
	future     *exchange.Future
	executor   exchange.Executor
	inv        *Invocation
	ctx        context.Context
	futureMode bool

	resolved bool
	value    any
	err      error
}

func newFutureAsyncResult(future *exchange.Future, executor exchange.Executor, inv *Invocation, ctx context.Context, futureMode bool) *AsyncResult {
	return &AsyncResult{future: future, executor: executor, inv: inv, ctx: ctx, futureMode: futureMode}
}

func resolvedAsyncResult(inv *Invocation, value any, err error) *AsyncResult {
	return &AsyncResult{inv: inv, resolved: true, value: value, err: err}
}

// Get blocks until the call resolves, with no deadline.
func (r *AsyncResult) Get() (any, error) { return r.GetTimeout(0) }

// GetTimeout blocks until the call resolves or timeout elapses (<=0 means
// no deadline). When the owning executor is a *exchange.ThreadlessExecutor
// the caller's own goroutine drains its queue instead of parking on a
// channel, per §4.10.
func (r *AsyncResult) GetTimeout(timeout time.Duration) (any, error) {
	if r.resolved {
		return r.value, r.err
	}

	var resp *remoting.Response
	var err error
	switch {
	case r.executor == nil:
		resp, err = r.future.GetTimeout(timeout)
	default:
		if tl, ok := r.executor.(*exchange.ThreadlessExecutor); ok {
			resp, err = tl.Wait(r.future, timeout)
		} else if timeout > 0 {
			resp, err = r.future.GetTimeout(timeout)
		} else {
			resp, err = r.future.Get()
		}
	}
	if err != nil {
		return nil, err
	}
	return responseResult(resp)
}

// responseResult unwraps resp into the value an application-level caller
// wants: on success, the still-wire-encoded body (raw JSON bytes, per
// DubboCodec.Decode) decoded into a generic Go value. A caller that wants
// the raw bytes themselves — e.g. to unmarshal into a specific struct type
// — can type-switch resp.Result directly through a lower-level call.
func responseResult(resp *remoting.Response) (any, error) {
	if resp.Status != remoting.StatusOK {
		return nil, fmt.Errorf("%s: %s", resp.Status, resp.Error())
	}
	raw, ok := resp.Result.([]byte)
	if !ok {
		return resp.Result, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, &remoting.SerializationError{Cause: err}
	}
	return value, nil
}

// WhenCompleteWithContext runs callback once the call resolves, on the
// owning executor if one was supplied (or a fresh goroutine otherwise);
// an already-resolved result runs callback at once on the calling
// goroutine.
// Around the callback it installs the context captured at call time and
// restores whatever was installed before — re-entrant so nested async
// calls unwind back to their own caller's context.
func (r *AsyncResult) WhenCompleteWithContext(callback func(value any, err error)) {
	run := func(value any, err error) {
		prev := swapCallContext(r.ctx)
		defer swapCallContext(prev)
		callback(value, err)
	}

	if r.resolved {
		run(r.value, r.err)
		return
	}

	complete := func() {
		resp, ferr := r.future.Get()
		if ferr != nil {
			run(nil, ferr)
			return
		}
		val, rerr := responseResult(resp)
		run(val, rerr)
	}
	if r.executor != nil {
		r.executor.Execute(complete)
	} else {
		go complete()
	}
}

// Recreate returns the underlying future itself when the call was made in
// future-style invoke mode, otherwise it blocks for the resolved value
// and returns it (or the error, for the caller to handle — Go has no
// exception to rethrow, so this is the one place Recreate differs from
// its inspiration).
func (r *AsyncResult) Recreate() (any, error) {
	if r.futureMode {
		return r.future, nil
	}
	return r.GetTimeout(0)
}

var (
	callCtxMu      sync.Mutex
	currentCallCtx context.Context
)

func swapCallContext(ctx context.Context) context.Context {
	callCtxMu.Lock()
	prev := currentCallCtx
	currentCallCtx = ctx
	callCtxMu.Unlock()
	return prev
}

// CurrentContext returns the context captured by whichever call is
// currently running its completion callback, or context.Background()
// outside of one.
func CurrentContext() context.Context {
	callCtxMu.Lock()
	defer callCtxMu.Unlock()
	if currentCallCtx == nil {
		return context.Background()
	}
	return currentCallCtx
}
