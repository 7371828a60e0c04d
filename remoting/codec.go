package remoting

import (
	"fmt"
	"sync"
)

// Codec turns Request/Response values into length-prefixed frames and back.
// Decode returns ErrNeedMore when the supplied buffer does not yet hold a
// complete frame; callers keep buffering and retry rather than treating that
// as a real error.
type Codec interface {
	// Encode serializes msg (a *Request or *Response) into a frame, using
	// the named serializer for the body. payloadLimit <= 0 means unbounded.
	Encode(msg any, serializerName string, payloadLimit int) ([]byte, error)

	// Decode parses one frame from the front of data. consumed is the
	// number of bytes belonging to that frame (0 on ErrNeedMore).
	Decode(data []byte, payloadLimit int) (msg any, consumed int, err error)

	Name() string
}

var (
	codecsMu sync.Mutex
	codecs   = map[string]Codec{}
)

// RegisterCodec adds a Codec to the name-keyed extension registry.
func RegisterCodec(c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[c.Name()] = c
}

// LookupCodec returns the Codec registered under name.
func LookupCodec(name string) (Codec, error) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("remoting: unregistered codec %q", name)
	}
	return c, nil
}
