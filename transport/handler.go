package transport

// Handler receives channel lifecycle and message events. The exchange layer
// implements this to route decoded Requests/Responses; the transport layer
// never looks inside a message.
type Handler interface {
	Connected(ch *Channel)
	Disconnected(ch *Channel)
	Received(ch *Channel, msg any)
	Sent(ch *Channel, msg any)
	Caught(ch *Channel, err error)
}

// HandlerFuncs adapts plain functions to the Handler interface; nil fields
// are no-ops. Useful in tests that only care about one or two events.
type HandlerFuncs struct {
	OnConnected    func(ch *Channel)
	OnDisconnected func(ch *Channel)
	OnReceived     func(ch *Channel, msg any)
	OnSent         func(ch *Channel, msg any)
	OnCaught       func(ch *Channel, err error)
}

func (h HandlerFuncs) Connected(ch *Channel) {
	if h.OnConnected != nil {
		h.OnConnected(ch)
	}
}

func (h HandlerFuncs) Disconnected(ch *Channel) {
	if h.OnDisconnected != nil {
		h.OnDisconnected(ch)
	}
}

func (h HandlerFuncs) Received(ch *Channel, msg any) {
	if h.OnReceived != nil {
		h.OnReceived(ch, msg)
	}
}

func (h HandlerFuncs) Sent(ch *Channel, msg any) {
	if h.OnSent != nil {
		h.OnSent(ch, msg)
	}
}

func (h HandlerFuncs) Caught(ch *Channel, err error) {
	if h.OnCaught != nil {
		h.OnCaught(ch, err)
	}
}
