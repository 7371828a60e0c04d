package exchange

import (
	"time"

	"dubbo-exchange/internal/logging"
	"dubbo-exchange/remoting"
	"dubbo-exchange/transport"
)

// watchHeartbeat runs for the lifetime of one channel at a heartbeat/3
// interval: a client that hasn't written in `heartbeat` sends an event
// ping; a server that hasn't read anything in `heartbeat*3` assumes the
// peer is gone and closes. Grounded on the teacher's
// ClientTransport.heartbeatLoop (transport/client_transport.go), split
// into client/server rules and driven off read/write timestamps instead
// of an unconditional ticker.
func watchHeartbeat(ech *ExchangeChannel, role transport.Role, heartbeat time.Duration, stop <-chan struct{}) {
	if heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(heartbeat / 3)
	defer ticker.Stop()

	ch := ech.Underlying()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if ech.IsClosed() {
				return
			}
			now := time.Now()
			switch role {
			case transport.RoleClient:
				if now.Sub(ch.LastWrite()) >= heartbeat {
					req := remoting.NewRequest(protocolVersion)
					req.Event = true
					req.TwoWay = true
					if err := ch.Send(req); err != nil {
						logging.Warnf("exchange: heartbeat send failed on %s: %v", remoteAddr(ch), err)
					}
				}
			case transport.RoleServer:
				if now.Sub(ch.LastRead()) >= heartbeat*3 {
					logging.Warnf("exchange: closing idle channel %s, silent for %s", remoteAddr(ch), heartbeat*3)
					ch.Close()
					return
				}
			}
		}
	}
}

func remoteAddr(ch *transport.Channel) string {
	if addr := ch.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
