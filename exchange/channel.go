package exchange

import (
	"errors"
	"time"

	"dubbo-exchange/remoting"
	"dubbo-exchange/transport"
)

// protocolVersion is stamped on every Request this layer originates.
const protocolVersion = "2.0.2"

// ExchangeChannel adds request/response correlation on top of a
// transport.Channel: Request() allocates an id, registers it with a
// Registry, sends it, and hands back a Future; Send() forwards anything
// already shaped like a Request/Response and wraps everything else in a
// one-way Request.
type ExchangeChannel struct {
	ch       *transport.Channel
	registry *Registry
	closed   bool
	readonly bool
}

func newExchangeChannel(ch *transport.Channel, registry *Registry) *ExchangeChannel {
	return &ExchangeChannel{ch: ch, registry: registry}
}

func (c *ExchangeChannel) Underlying() *transport.Channel { return c.ch }
func (c *ExchangeChannel) IsClosed() bool                 { return c.ch.IsClosed() }

// IsReadonly reports whether this channel has received a readonly event
// and should not originate new calls. Sending a readonly event (the
// server side of a shutdown) does not mark the sending channel.
func (c *ExchangeChannel) IsReadonly() bool { return c.readonly }

func (c *ExchangeChannel) setReadonly() { c.readonly = true }

// Request sends data as a two-way invocation and returns a Future for its
// reply. On send failure the pending call is cancelled immediately rather
// than left to time out.
func (c *ExchangeChannel) Request(data any, timeout time.Duration, executor Executor) (*Future, error) {
	if c.closed {
		return nil, &remoting.RemotingError{Addr: remoteAddr(c.ch), Cause: errors.New("exchange: channel is closing")}
	}
	req := remoting.NewRequest(protocolVersion)
	req.TwoWay = true
	req.Data = data

	future := c.registry.NewCall(c.ch, req, timeout, executor)
	if err := c.ch.Send(req); err != nil {
		c.registry.Cancel(req.ID, err)
		return nil, err
	}
	c.registry.Sent(c.ch, req)
	return future, nil
}

// Send forwards msg as-is if it is already a *remoting.Request or
// *remoting.Response, otherwise wraps it in a one-way Request.
func (c *ExchangeChannel) Send(msg any) error {
	switch msg.(type) {
	case *remoting.Request, *remoting.Response:
	default:
		req := remoting.NewRequest(protocolVersion)
		req.Data = msg
		msg = req
	}
	return c.ch.Send(msg)
}

// reply sends resp as the response to a previously received request.
func (c *ExchangeChannel) reply(resp *remoting.Response) error {
	return c.ch.Send(resp)
}

// Close marks the channel closed to new calls, then polls the registry
// with 10ms sleeps until every in-flight call on this channel has
// completed or timeout elapses — after which the underlying transport
// close runs, which itself synthesizes CHANNEL_INACTIVE for any
// stragglers via Registry.CloseChannel.
func (c *ExchangeChannel) Close(timeout time.Duration) error {
	if c.closed {
		return nil
	}
	c.closed = true

	deadline := time.Now().Add(timeout)
	for c.registry.PendingOnChannel(c.ch) > 0 {
		if timeout > 0 && time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.ch.Close()
}
