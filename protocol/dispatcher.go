package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"dubbo-exchange/exchange"
	"dubbo-exchange/remoting"
	"dubbo-exchange/transport"
)

// protocolVersion is stamped on requests this layer synthesizes itself
// (onconnect/ondisconnect lifecycle events).
const protocolVersion = "2.0.2"

const attachmentCallbackServiceID = "callback-service-id"

// dispatcher implements exchange.InvocationHandler for a provider-side
// ExchangeServer: it resolves a received invocation's service-key, looks
// up the matching exporter, and drives the invoker, per §4.8.
type dispatcher struct {
	proto        *Protocol
	localPort    int
	onConnect    string
	onDisconnect string
}

func (d *dispatcher) Reply(ch *exchange.ExchangeChannel, req *remoting.Request) {
	if req.Broken {
		if req.TwoWay {
			resp := remoting.NewResponse(req.ID, remoting.StatusBadRequest)
			resp.ErrorMessage = "malformed request body"
			ch.Send(resp)
		}
		return
	}

	inv, ok := req.Data.(*remoting.Invocation)
	if !ok {
		if req.TwoWay {
			resp := remoting.NewResponse(req.ID, remoting.StatusBadRequest)
			resp.ErrorMessage = "not an invocation"
			ch.Send(resp)
		}
		return
	}

	key := d.serviceKeyFor(ch, inv)
	exp := d.proto.lookupExporter(key)
	if exp == nil {
		if req.TwoWay {
			resp := remoting.NewResponse(req.ID, remoting.StatusServiceNotFound)
			resp.ErrorMessage = fmt.Sprintf("no exporter for service-key %q", key)
			ch.Send(resp)
		}
		return
	}

	ctx := context.WithValue(context.Background(), remoteAddrContextKey{}, remoteAddr(ch))
	result := exp.invoker.Invoke(ctx, inv)
	if !req.TwoWay {
		return
	}
	result.WhenCompleteWithContext(func(value any, err error) {
		var resp *remoting.Response
		if err != nil {
			resp = remoting.NewResponse(req.ID, remoting.StatusServiceError)
			resp.ErrorMessage = err.Error()
		} else {
			resp = remoting.NewResponse(req.ID, remoting.StatusOK)
			resp.Result = value
		}
		ch.Send(resp)
	})
}

// serviceKeyFor computes the lookup key for req, handling the two special
// cases §4.8 calls out: stub events key off the remote port instead of
// the local port, and a callback-invoke (the client side of a callback
// channel calling back into the original consumer) gets the
// callback-service-id appended to its path with is-callback-invoke
// stamped on the attachments.
func (d *dispatcher) serviceKeyFor(ch *exchange.ExchangeChannel, inv *remoting.Invocation) string {
	port := d.localPort
	if inv.Attachment(remoting.AttachmentStubEvent) == "true" {
		if _, p, ok := splitRemoteHostPort(ch); ok {
			port = p
		}
	}

	path := inv.Attachment(remoting.AttachmentPath)
	version := inv.Attachment(remoting.AttachmentVersion)
	group := inv.Attachment(remoting.AttachmentGroup)

	if cbID := inv.Attachment(attachmentCallbackServiceID); cbID != "" && isCallbackChannel(ch) {
		path = path + "." + cbID
		inv.SetAttachment(remoting.AttachmentIsCallbackInvoke, "true")
	}

	return serviceKey(group, path, version, port)
}

func (d *dispatcher) Connected(ch *exchange.ExchangeChannel) {
	d.fireLifecycleEvent(ch, d.onConnect)
}

func (d *dispatcher) Disconnected(ch *exchange.ExchangeChannel) {
	d.fireLifecycleEvent(ch, d.onDisconnect)
}

// fireLifecycleEvent synthesizes a one-way invocation of method (if
// non-empty) and runs it through Reply exactly like a received request,
// per §4.8's onconnect/ondisconnect handling.
func (d *dispatcher) fireLifecycleEvent(ch *exchange.ExchangeChannel, method string) {
	if method == "" {
		return
	}
	inv := remoting.NewInvocation(method, nil, nil)
	req := remoting.NewRequest(protocolVersion)
	req.Data = inv
	d.Reply(ch, req)
}

type remoteAddrContextKey struct{}

// RemoteAddrFromContext returns the caller's remote address, as observed
// by the dispatcher that invoked ctx's call, or "" outside of one.
func RemoteAddrFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrContextKey{}).(string)
	return addr
}

func remoteAddr(ch *exchange.ExchangeChannel) string {
	if addr := ch.Underlying().RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// splitRemoteHostPort extracts the numeric port from ch's remote address.
func splitRemoteHostPort(ch *exchange.ExchangeChannel) (string, int, bool) {
	addr := ch.Underlying().RemoteAddr()
	if addr == nil {
		return "", 0, false
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}

// isCallbackChannel reports whether ch is the client side of a callback
// channel: §4.8 leaves the exact URL/remote-address match underspecified
// beyond "lookup only", so this checks the one signal transport exposes —
// whether the channel was dialed out from this process (RoleClient) while
// also being used to receive an unsolicited invocation, which only
// happens on a callback channel in this design.
func isCallbackChannel(ch *exchange.ExchangeChannel) bool {
	return ch.Underlying().Role() == transport.RoleClient
}
