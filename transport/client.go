package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dubbo-exchange/remoting"
)

// Client owns one TCP connection to a remote endpoint and reconnects it on
// failure. Reconnects are throttled with a token bucket — adapted from the
// teacher's RateLimitMiddleware (middleware/rate_limit_middleware.go),
// repurposed here from gating outbound RPCs to gating how often a broken
// connection may be redialed, per §4.3.
type Client struct {
	cfg     Config
	codec   remoting.Codec
	handler Handler
	pool    *WorkerPool

	limiter *rate.Limiter

	mu      sync.Mutex
	channel *Channel
	closed  bool
}

// Connect dials cfg.addr() once and returns a Client wired to redial on
// disconnect. The first dial's error is returned to the caller; later
// reconnect failures are only reported through Handler.Caught.
func Connect(cfg Config, handler Handler) (*Client, error) {
	codec, err := remoting.LookupCodec(cfg.CodecName)
	if err != nil {
		return nil, err
	}
	interval := cfg.ReconnectInterval
	if interval < 2000 {
		interval = 2000
	}
	c := &Client{
		cfg:     cfg,
		codec:   codec,
		handler: handler,
		pool:    NewWorkerPool(cfg.WorkerPoolSize),
		limiter: rate.NewLimiter(rate.Every(time.Duration(interval)*time.Millisecond), 1),
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial() error {
	conn, err := net.DialTimeout("tcp", c.cfg.addr(), 5*time.Second)
	if err != nil {
		return &remoting.RemotingError{Addr: c.cfg.addr(), Cause: err}
	}
	ch := newChannel(conn, RoleClient, c.codec, c.cfg.SerializationName, c.cfg.Payload)

	c.mu.Lock()
	c.channel = ch
	c.mu.Unlock()

	c.handler.Connected(ch)
	go ch.readLoop(
		func(msg any) { c.pool.Submit(func() { c.handler.Received(ch, msg) }) },
		func(err error) { c.onDisconnected(ch, err) },
	)
	return nil
}

func (c *Client) onDisconnected(ch *Channel, cause error) {
	ch.Close()
	if cause != nil {
		c.handler.Caught(ch, cause)
	}
	c.handler.Disconnected(ch)

	c.mu.Lock()
	closed := c.closed
	current := c.channel
	c.mu.Unlock()
	if closed || current != ch {
		return
	}
	go c.reconnect(ch)
}

// reconnect waits for the rate limiter's token before redialing, so a
// flapping endpoint cannot be hammered with dial attempts. Each failed
// dial is reported through Handler.Caught against the lost channel.
func (c *Client) reconnect(lost *Channel) {
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if err := c.limiter.Wait(context.Background()); err != nil {
			return
		}
		err := c.dial()
		if err == nil {
			return
		}
		c.handler.Caught(lost, err)
	}
}

// Channel returns the client's current channel, or nil if not currently
// connected.
func (c *Client) Channel() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Client) IsConnected() bool {
	ch := c.Channel()
	return ch != nil && !ch.IsClosed()
}

// Send writes msg on the current channel, returning errClosed if there is
// none.
func (c *Client) Send(msg any) error {
	ch := c.Channel()
	if ch == nil {
		return &remoting.RemotingError{Addr: c.cfg.addr(), Cause: errClosed}
	}
	return ch.Send(msg)
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ch := c.channel
	c.mu.Unlock()
	c.pool.ShutdownNow()
	if ch == nil {
		return nil
	}
	return ch.Close()
}
