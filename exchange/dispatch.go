package exchange

import (
	"dubbo-exchange/internal/logging"
	"dubbo-exchange/remoting"
)

// InvocationHandler is implemented by the protocol layer to turn a
// received invocation request into a response. The exchange layer itself
// never interprets Invocation bodies — it only correlates ids and handles
// heartbeat/readonly events before anything reaches this interface.
//
// Reply owns sending the response itself (via ch.Send) when req.TwoWay is
// true — it is not expected to return synchronously, since resolving an
// invocation may itself be asynchronous (§4.10's AsyncResult). A one-way
// request still reaches Reply so the invoker still runs; there is just
// nothing to send back.
type InvocationHandler interface {
	Reply(ch *ExchangeChannel, req *remoting.Request)
	Connected(ch *ExchangeChannel)
	Disconnected(ch *ExchangeChannel)
}

// handleReceived is the shared Received path for both ExchangeClient and
// ExchangeServer: route Responses to the pending-call registry, and
// Requests to either event handling or the invocation handler.
func handleReceived(ech *ExchangeChannel, msg any, registry *Registry, handler InvocationHandler) {
	switch m := msg.(type) {
	case *remoting.Response:
		registry.Received(ech.Underlying(), m)
	case *remoting.Request:
		handleRequest(ech, m, handler)
	default:
		logging.Warnf("exchange: received unexpected message type %T", msg)
	}
}

func handleRequest(ech *ExchangeChannel, req *remoting.Request, handler InvocationHandler) {
	if req.Event {
		handleEvent(ech, req)
		return
	}
	if handler == nil {
		return
	}
	handler.Reply(ech, req)
}

// handleEvent answers heartbeats and readonly notices directly, without
// routing either to the invocation dispatcher.
func handleEvent(ech *ExchangeChannel, req *remoting.Request) {
	if req.Data == nil {
		resp := remoting.NewResponse(req.ID, remoting.StatusOK)
		resp.Event = true
		if err := ech.reply(resp); err != nil {
			logging.Errorf("exchange: failed to send heartbeat response: %v", err)
		}
		return
	}
	if inv, ok := req.Data.(*remoting.Invocation); ok && inv.Method == readonlyEventMethod {
		ech.setReadonly()
		return
	}
	if req.TwoWay {
		resp := remoting.NewResponse(req.ID, remoting.StatusOK)
		resp.Event = true
		if err := ech.reply(resp); err != nil {
			logging.Errorf("exchange: failed to send event response: %v", err)
		}
	}
}
