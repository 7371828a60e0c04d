package exchange

import (
	"sync"
	"time"

	"dubbo-exchange/internal/logging"
	"dubbo-exchange/remoting"
	"dubbo-exchange/transport"
)

// ExchangeClient owns one reconnecting transport.Client and layers
// request/response correlation, heartbeats, and readonly tracking on top
// of whichever channel is currently connected.
type ExchangeClient struct {
	transport *transport.Client
	registry  *Registry
	handler   InvocationHandler
	heartbeat time.Duration
	executor  Executor

	mu            sync.Mutex
	current       *ExchangeChannel
	stopHeartbeat chan struct{}
}

// Connect dials cfg and returns a client wired to correlate requests,
// answer heartbeats, and track readonly notices. handler may be nil for a
// pure client that never receives server-initiated invocations.
func Connect(cfg transport.Config, heartbeat time.Duration, handler InvocationHandler) (*ExchangeClient, error) {
	c := &ExchangeClient{
		registry:  NewRegistry(),
		handler:   handler,
		heartbeat: heartbeat,
		executor:  GoroutineExecutor{},
	}
	th := transport.HandlerFuncs{
		OnConnected:    c.onConnected,
		OnDisconnected: c.onDisconnected,
		OnReceived:     c.onReceived,
		OnCaught:       c.onCaught,
	}
	tc, err := transport.Connect(cfg, th)
	if err != nil {
		return nil, err
	}
	c.transport = tc
	return c, nil
}

func (c *ExchangeClient) onConnected(ch *transport.Channel) {
	ech := newExchangeChannel(ch, c.registry)
	stop := make(chan struct{})

	c.mu.Lock()
	c.current = ech
	c.stopHeartbeat = stop
	c.mu.Unlock()

	go watchHeartbeat(ech, transport.RoleClient, c.heartbeat, stop)
	if c.handler != nil {
		c.handler.Connected(ech)
	}
}

func (c *ExchangeClient) onDisconnected(ch *transport.Channel) {
	c.mu.Lock()
	ech := c.current
	stop := c.stopHeartbeat
	if ech != nil && ech.Underlying() == ch {
		c.current = nil
		c.stopHeartbeat = nil
	} else {
		ech = nil
		stop = nil
	}
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.registry.CloseChannel(ch)
	if ech != nil && c.handler != nil {
		c.handler.Disconnected(ech)
	}
}

func (c *ExchangeClient) onReceived(ch *transport.Channel, msg any) {
	handleReceived(c.channelFor(ch), msg, c.registry, c.handler)
}

func (c *ExchangeClient) onCaught(ch *transport.Channel, err error) {
	logging.Warnf("exchange client: channel %s error: %v", remoteAddr(ch), err)
}

func (c *ExchangeClient) channelFor(ch *transport.Channel) *ExchangeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.Underlying() == ch {
		return c.current
	}
	return newExchangeChannel(ch, c.registry)
}

func (c *ExchangeClient) activeChannel() (*ExchangeChannel, error) {
	c.mu.Lock()
	ech := c.current
	c.mu.Unlock()
	if ech == nil || ech.IsClosed() {
		return nil, &remoting.RemotingError{Cause: errNotConnected}
	}
	return ech, nil
}

// Request sends data as a two-way call on the current channel using the
// client's default (goroutine-per-completion) executor.
func (c *ExchangeClient) Request(data any, timeout time.Duration) (*Future, error) {
	return c.RequestWithExecutor(data, timeout, c.executor)
}

// RequestWithExecutor is Request with an explicit completion executor —
// used by the protocol layer to hand the caller a ThreadlessExecutor for
// synchronous-invoke semantics (§4.10).
func (c *ExchangeClient) RequestWithExecutor(data any, timeout time.Duration, executor Executor) (*Future, error) {
	ech, err := c.activeChannel()
	if err != nil {
		return nil, err
	}
	return ech.Request(data, timeout, executor)
}

// Send delegates to the current channel's one-way Send.
func (c *ExchangeClient) Send(msg any) error {
	ech, err := c.activeChannel()
	if err != nil {
		return err
	}
	return ech.Send(msg)
}

// IsConnected reports whether the underlying transport currently has a
// live channel.
func (c *ExchangeClient) IsConnected() bool {
	_, err := c.activeChannel()
	return err == nil
}

// IsReadonly reports whether the current channel has received a readonly
// notice and should not originate new calls; callers act on this by
// forcing a reconnect through the shared client pool (§4.6).
func (c *ExchangeClient) IsReadonly() bool {
	ech, err := c.activeChannel()
	if err != nil {
		return true
	}
	return ech.IsReadonly()
}

// Close drains the current channel (if any), stops the pending-call
// registry's timer, and closes the underlying reconnecting transport
// client.
func (c *ExchangeClient) Close(timeout time.Duration) error {
	if ech, err := c.activeChannel(); err == nil {
		ech.Close(timeout)
	}
	c.registry.Close()
	return c.transport.Close()
}
