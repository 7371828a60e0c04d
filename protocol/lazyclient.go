package protocol

import (
	"sync"
	"time"

	"dubbo-exchange/exchange"
	"dubbo-exchange/transport"
)

// LazyClient wraps an exchange.ExchangeClient that is not dialed until its
// first Request/Send, per §4.7. It re-dials on demand whenever the
// previous connection is gone or has gone readonly, so a long-lived
// consumer recovers from a provider-initiated shutdown notice without the
// caller ever seeing a stale, unusable client.
type LazyClient struct {
	cfg       transport.Config
	heartbeat time.Duration
	handler   exchange.InvocationHandler

	mu     sync.Mutex
	client *exchange.ExchangeClient
}

// NewLazyClient builds a client that dials cfg on first use.
func NewLazyClient(cfg transport.Config, heartbeat time.Duration, handler exchange.InvocationHandler) *LazyClient {
	return &LazyClient{cfg: cfg, heartbeat: heartbeat, handler: handler}
}

// ensure returns the live client, dialing (or re-dialing) if needed.
func (l *LazyClient) ensure() (*exchange.ExchangeClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil && l.client.IsConnected() && !l.client.IsReadonly() {
		return l.client, nil
	}
	if l.client != nil {
		l.client.Close(0)
	}
	c, err := exchange.Connect(l.cfg, l.heartbeat, l.handler)
	if err != nil {
		l.client = nil
		return nil, err
	}
	l.client = c
	return c, nil
}

func (l *LazyClient) refreshIfReadonly() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil && l.client.IsReadonly() {
		l.client.Close(0)
		l.client = nil
	}
}

// Request dials on demand and makes a two-way call.
func (l *LazyClient) Request(data any, timeout time.Duration, executor exchange.Executor) (*exchange.Future, error) {
	c, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return c.RequestWithExecutor(data, timeout, executor)
}

// Send dials on demand and makes a one-way call.
func (l *LazyClient) Send(msg any) error {
	c, err := l.ensure()
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Close releases the underlying connection, if one was ever made.
func (l *LazyClient) Close(timeout time.Duration) error {
	l.mu.Lock()
	c := l.client
	l.client = nil
	l.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close(timeout)
}
