package exchange

import (
	"net"
	"sync"
	"time"

	"dubbo-exchange/internal/logging"
	"dubbo-exchange/remoting"
	"dubbo-exchange/transport"
)

// ExchangeServer binds a transport.Server and layers request/response
// correlation, heartbeats, and a readonly shutdown notice on top of every
// channel it accepts.
type ExchangeServer struct {
	transport *transport.Server
	registry  *Registry
	handler   InvocationHandler
	heartbeat time.Duration

	mu       sync.Mutex
	channels map[*transport.Channel]*ExchangeChannel
	stops    map[*transport.Channel]chan struct{}
}

// Bind opens a listening socket per cfg and dispatches accepted channels
// through handler.
func Bind(cfg transport.Config, heartbeat time.Duration, handler InvocationHandler) (*ExchangeServer, error) {
	s := &ExchangeServer{
		registry:  NewRegistry(),
		handler:   handler,
		heartbeat: heartbeat,
		channels:  make(map[*transport.Channel]*ExchangeChannel),
		stops:     make(map[*transport.Channel]chan struct{}),
	}
	th := transport.HandlerFuncs{
		OnConnected:    s.onConnected,
		OnDisconnected: s.onDisconnected,
		OnReceived:     s.onReceived,
		OnCaught:       s.onCaught,
	}
	srv, err := transport.Bind(cfg, th)
	if err != nil {
		return nil, err
	}
	s.transport = srv
	return s, nil
}

func (s *ExchangeServer) Addr() net.Addr { return s.transport.Addr() }

func (s *ExchangeServer) onConnected(ch *transport.Channel) {
	ech := newExchangeChannel(ch, s.registry)
	stop := make(chan struct{})

	s.mu.Lock()
	s.channels[ch] = ech
	s.stops[ch] = stop
	s.mu.Unlock()

	go watchHeartbeat(ech, transport.RoleServer, s.heartbeat, stop)
	if s.handler != nil {
		s.handler.Connected(ech)
	}
}

func (s *ExchangeServer) onDisconnected(ch *transport.Channel) {
	s.mu.Lock()
	ech := s.channels[ch]
	stop := s.stops[ch]
	delete(s.channels, ch)
	delete(s.stops, ch)
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	s.registry.CloseChannel(ch)
	if ech != nil && s.handler != nil {
		s.handler.Disconnected(ech)
	}
}

func (s *ExchangeServer) onReceived(ch *transport.Channel, msg any) {
	s.mu.Lock()
	ech := s.channels[ch]
	s.mu.Unlock()
	if ech == nil {
		ech = newExchangeChannel(ch, s.registry)
	}
	handleReceived(ech, msg, s.registry, s.handler)
}

func (s *ExchangeServer) onCaught(ch *transport.Channel, err error) {
	logging.Warnf("exchange server: channel %s error: %v", remoteAddr(ch), err)
}

// Channels returns a snapshot of currently connected channels.
func (s *ExchangeServer) Channels() []*ExchangeChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ExchangeChannel, 0, len(s.channels))
	for _, ech := range s.channels {
		out = append(out, ech)
	}
	return out
}

// Broadcast sends msg to every currently connected channel.
func (s *ExchangeServer) Broadcast(msg any) {
	for _, ech := range s.Channels() {
		if err := ech.Send(msg); err != nil {
			logging.Warnf("exchange server: broadcast to %s failed: %v", remoteAddr(ech.Underlying()), err)
		}
	}
}

// Close sends a one-way readonly notice to every connected channel, gives
// peers a slice of timeout to react to it, then closes the underlying
// transport server — which drains its worker pool for the remainder of
// timeout and closes all channels, synthesizing CHANNEL_INACTIVE for any
// calls still outstanding (§4.5).
func (s *ExchangeServer) Close(timeout time.Duration) error {
	readonly := remoting.NewRequest(protocolVersion)
	readonly.Event = true
	readonly.Data = remoting.NewInvocation(readonlyEventMethod, nil, nil)
	s.Broadcast(readonly)

	grace := timeout / 10
	if grace > 200*time.Millisecond {
		grace = 200 * time.Millisecond
	}
	if grace > 0 {
		time.Sleep(grace)
	}

	s.registry.Close()
	return s.transport.Close(timeout - grace)
}
