package remoting

import "fmt"

// RemotingError covers transport-layer failures: bind, connect, send, decode.
// It is always surfaced to the caller and cancels any pending call it interrupts.
type RemotingError struct {
	Addr  string
	Cause error
}

func (e *RemotingError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("remoting error: %v", e.Cause)
	}
	return fmt.Sprintf("remoting error on %s: %v", e.Addr, e.Cause)
}

func (e *RemotingError) Unwrap() error { return e.Cause }

// ErrServiceNotFound names the missing-exporter condition. The protocol
// dispatcher itself reports a service-key with no exporter by answering
// with a StatusServiceNotFound response; it does not use this value.
var ErrServiceNotFound = fmt.Errorf("service not found")

// TimeoutError is produced by the pending-call registry's timeout wheel path.
// Side distinguishes whether the request was still buffered client-side
// (CLIENT_TIMEOUT) or had already been observed leaving the socket
// (SERVER_TIMEOUT) when the deadline fired.
type TimeoutError struct {
	Side    Status // StatusClientTimeout or StatusServerTimeout
	Start   int64  // unix nano
	End     int64  // unix nano
	Request string // short summary, body stripped
}

func (e *TimeoutError) Error() string {
	elapsedMs := (e.End - e.Start) / 1_000_000
	return fmt.Sprintf("%s waiting for %s, elapsed %dms", e.Side, e.Request, elapsedMs)
}

// PayloadLimitExceeded prevents an encode or decode from proceeding because
// the frame's body length exceeds the URL's configured payload bound.
type PayloadLimitExceeded struct {
	Limit  int
	Actual int
}

func (e *PayloadLimitExceeded) Error() string {
	return fmt.Sprintf("payload size %d exceeds limit %d", e.Actual, e.Limit)
}

// ChannelInactiveError is synthesized into a Response's error message when
// the underlying channel closes while calls are still in flight.
type ChannelInactiveError struct {
	Addr string
}

func (e *ChannelInactiveError) Error() string {
	return fmt.Sprintf("channel inactive: %s", e.Addr)
}

// SerializationError is raised by a Serializer or by body decompression.
// A request whose body fails to decode is still delivered with Broken set,
// and the protocol dispatcher answers it with StatusBadRequest. A response
// frame that Decode rejects closes its channel, so the calls pending on it
// complete with StatusChannelInactive; no path produces StatusBadResponse.
type SerializationError struct {
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// BizError carries an application-level error inside a Response payload.
// It never triggers retry or mock fallback at this layer — those are
// cluster-level concerns outside this module's scope.
type BizError struct {
	Message string
}

func (e *BizError) Error() string { return e.Message }

// ErrNeedMore signals that a Decode call did not find a complete frame in
// the supplied buffer and should be retried once more bytes arrive.
var ErrNeedMore = fmt.Errorf("need more data")
