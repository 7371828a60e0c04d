package protocol

import (
	"context"

	"dubbo-exchange/remoting"
)

// Invocation is what a caller hands to Invoker.Invoke: the method,
// argument descriptors, and attachments that become a remoting.Invocation
// on the wire. It is a thin alias so this package's callers don't need to
// import remoting directly for the common case.
type Invocation = remoting.Invocation

// Invoker is the opaque callback a provider registers a service behind
// and a consumer calls through. There is no reflection-based method
// dispatch here — Non-goals exclude "language-specific reflection or
// proxy generation"; callers build whatever dispatch they like (generated
// stubs, a manual switch, reflection) and hand this package a plain
// function.
type Invoker interface {
	Invoke(ctx context.Context, inv *Invocation) *AsyncResult
	URL() *URL
}

// InvokerFunc adapts a plain function to Invoker for the common case of a
// local provider-side handler that resolves synchronously.
type InvokerFunc struct {
	Endpoint *URL
	Fn       func(ctx context.Context, inv *Invocation) (any, error)
}

func (f InvokerFunc) URL() *URL { return f.Endpoint }

func (f InvokerFunc) Invoke(ctx context.Context, inv *Invocation) *AsyncResult {
	val, err := f.Fn(ctx, inv)
	return resolvedAsyncResult(inv, val, err)
}
