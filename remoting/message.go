// Package remoting defines the wire-level messages, status codes, and the
// pluggable frame codec that the exchange and protocol layers build on.
//
// A Request/Response pair is the unit of correlation: every two-way Request
// carries an id that its matching Response must echo. Request ids are
// allocated per process and are safe to wrap around a uint64 — the exchange
// layer never keeps enough requests in flight at once for a wraparound
// collision to matter in practice.
package remoting

import (
	"fmt"
	"sync/atomic"
)

var nextID uint64

// NextRequestID returns a fresh, monotonically increasing request id.
func NextRequestID() uint64 {
	return atomic.AddUint64(&nextID, 1)
}

// Status is the outcome of a Response, mirroring dubbo's response status byte.
type Status byte

const (
	StatusOK              Status = 20
	StatusClientTimeout   Status = 30
	StatusServerTimeout   Status = 31
	StatusBadRequest      Status = 40
	StatusClientError     Status = 90
	StatusServerError     Status = 80
	StatusServiceNotFound Status = 60
	StatusServiceError    Status = 70
	StatusBadResponse     Status = 50
	StatusChannelInactive Status = 35
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusClientTimeout:
		return "CLIENT_TIMEOUT"
	case StatusServerTimeout:
		return "SERVER_TIMEOUT"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusClientError:
		return "CLIENT_ERROR"
	case StatusServerError:
		return "SERVER_ERROR"
	case StatusServiceNotFound:
		return "SERVICE_NOT_FOUND"
	case StatusServiceError:
		return "SERVICE_ERROR"
	case StatusBadResponse:
		return "BAD_RESPONSE"
	case StatusChannelInactive:
		return "CHANNEL_INACTIVE"
	default:
		return fmt.Sprintf("STATUS(%d)", byte(s))
	}
}

// Request is the envelope for an outbound call or a fire-and-forget/event
// notification. Data holds an *Invocation (or any application value) to be
// serialized on encode; DubboCodec decodes a request body back into an
// *Invocation, and leaves Data nil for an empty body.
type Request struct {
	ID      uint64
	Version string
	TwoWay  bool
	Event   bool
	Broken  bool // set when decode of this request's body failed
	Data    any
}

// NewRequest allocates a Request with a fresh id.
func NewRequest(version string) *Request {
	return &Request{ID: NextRequestID(), Version: version}
}

// IsHeartbeat reports whether this request carries no payload and exists
// purely to keep a connection's read/write timestamps moving.
func (r *Request) IsHeartbeat() bool {
	return r.Event && r.Data == nil
}

// Response is the envelope returned for a two-way Request. ID always equals
// the originating Request's ID.
type Response struct {
	ID           uint64
	Version      string
	Status       Status
	Event        bool
	ErrorMessage string
	Result       any
}

// NewResponse builds a Response echoing the given request id.
func NewResponse(id uint64, status Status) *Response {
	return &Response{ID: id, Status: status}
}

func (r *Response) Error() string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	return r.Status.String()
}
