package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dubbo-exchange/exchange"
	"dubbo-exchange/remoting"
)

// ShutdownTimeout is a default drain budget callers may pass to Destroy;
// Destroy itself uses only the timeout it is given.
const ShutdownTimeout = 10 * time.Second

// Protocol is the top-level facade: Export binds (or reuses) a listening
// server and registers an invoker behind its service-key; Refer dials (or
// reuses) a shared client pool and returns an invoker that calls through
// it; Destroy tears both down.
type Protocol struct {
	exporters *exporterRegistry
	pool      *pool

	mu      sync.Mutex
	servers map[string]*exchange.ExchangeServer
}

// NewProtocol builds an empty Protocol. One Protocol is enough for an
// entire process — nothing about it is per-service.
func NewProtocol() *Protocol {
	return &Protocol{
		exporters: newExporterRegistry(),
		pool:      newPool(),
		servers:   make(map[string]*exchange.ExchangeServer),
	}
}

// Export registers invoker under its URL's service-key and ensures a
// server is listening on its bind address, per §4.9. Exporting a second
// service on an address already bound reuses the existing server.
func (p *Protocol) Export(invoker Invoker) (*Exporter, error) {
	url := invoker.URL()
	addr := url.Address()

	if err := p.ensureServer(addr, url); err != nil {
		return nil, err
	}

	key := url.ServiceKey(url.Port())
	entry, err := p.exporters.add(key, invoker)
	if err != nil {
		return nil, err
	}
	return &Exporter{registry: p.exporters, entry: entry}, nil
}

func (p *Protocol) ensureServer(addr string, url *URL) error {
	p.mu.Lock()
	if _, ok := p.servers[addr]; ok {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	d := &dispatcher{proto: p, localPort: url.Port(), onConnect: url.OnConnect(), onDisconnect: url.OnDisconnect()}
	srv, err := exchange.Bind(url.TransportConfig(), time.Duration(url.Heartbeat())*time.Millisecond, d)
	if err != nil {
		return fmt.Errorf("protocol: bind %s: %w", addr, err)
	}

	p.mu.Lock()
	if _, ok := p.servers[addr]; ok {
		p.mu.Unlock()
		srv.Close(0)
		return nil
	}
	p.servers[addr] = srv
	p.mu.Unlock()
	return nil
}

// remoteInvoker is what Refer returns: Invoke round-robins across the
// referenced endpoint's shared client group and wraps the resulting
// future as an AsyncResult. The group is always the one shared by every
// Refer of the same address; a URL with connections > 0 only sets its
// size when the group is first built.
type remoteInvoker struct {
	url   *URL
	addr  string
	proto *Protocol

	mu    sync.Mutex
	group *connGroup
	count int
}

func (r *remoteInvoker) URL() *URL { return r.url }

func (r *remoteInvoker) Invoke(ctx context.Context, inv *Invocation) *AsyncResult {
	inv.SetAttachment(remoting.AttachmentPath, r.url.Path())
	inv.SetAttachment(remoting.AttachmentVersion, r.url.Version())
	inv.SetAttachment(remoting.AttachmentGroup, r.url.Group())

	r.mu.Lock()
	r.group.refreshIfReadonly()
	client := r.group.pick()
	r.count++
	r.mu.Unlock()

	timeout := time.Duration(r.url.Timeout()) * time.Millisecond
	executor := exchange.Executor(exchange.GoroutineExecutor{})
	if async, _ := ctx.Value(futureModeKey{}).(bool); !async {
		executor = exchange.NewThreadlessExecutor()
	}

	future, err := client.Request(inv, timeout, executor)
	if err != nil {
		return resolvedAsyncResult(inv, nil, err)
	}
	futureMode, _ := ctx.Value(futureModeKey{}).(bool)
	return newFutureAsyncResult(future, executor, inv, ctx, futureMode)
}

// futureModeKey marks a context built via WithFutureInvoke. Such a call
// completes on the goroutine executor, so the raw future Recreate() hands
// back completes on its own; any other call gets a thread-less executor
// that AsyncResult.Get drains on the caller's goroutine, per §4.10.
type futureModeKey struct{}

// WithFutureInvoke returns a context that causes the next Invoke made
// with it to resolve in future-invoke mode: Invoke still returns promptly,
// but AsyncResult.Recreate returns the raw *exchange.Future instead of
// blocking for its value.
func WithFutureInvoke(ctx context.Context) context.Context {
	return context.WithValue(ctx, futureModeKey{}, true)
}

// Refer dials (or reuses) the shared client group for url's address and
// returns an Invoker that calls through it, per §4.9.
func (p *Protocol) Refer(url *URL) (Invoker, error) {
	addr := url.Address()
	n := url.ShareConnections()
	if c := url.Connections(); c > 0 {
		n = c
	}
	if n <= 0 {
		n = 1
	}

	cfg := url.TransportConfig()
	heartbeat := time.Duration(url.Heartbeat()) * time.Millisecond
	group := p.pool.acquire(addr, n, func() *LazyClient {
		return NewLazyClient(cfg, heartbeat, nil)
	})

	return &remoteInvoker{url: url, addr: addr, proto: p, group: group}, nil
}

// Release drops this invoker's reference on its shared client group,
// closing it once the last referer releases. Callers that obtained inv
// from Refer should call Release when done with it instead of closing
// anything themselves, since the underlying clients may be shared.
func (p *Protocol) Release(inv Invoker, timeout time.Duration) {
	ri, ok := inv.(*remoteInvoker)
	if !ok {
		return
	}
	p.pool.release(ri.addr, timeout)
}

// Destroy closes every bound server and releases every pooled client
// group, per §4.9.
func (p *Protocol) Destroy(timeout time.Duration) {
	p.mu.Lock()
	servers := make([]*exchange.ExchangeServer, 0, len(p.servers))
	for addr, srv := range p.servers {
		servers = append(servers, srv)
		delete(p.servers, addr)
	}
	p.mu.Unlock()

	for _, srv := range servers {
		srv.Close(timeout)
	}

	p.pool.destroyAll(timeout)
}
