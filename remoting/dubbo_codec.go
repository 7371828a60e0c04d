// Frame layout (16-byte header, the dubbo 2.0 compatibility target):
//
//	0    2     3     4            12           16
//	┌────┬─────┬─────┬────────────┬────────────┬───────────────┐
//	│magic│flags│status│    id     │  body len  │    body ...   │
//	│ 2B  │ 1B  │ 1B   │  8B uint64│  4B uint32 │  bodyLen bytes│
//	└────┴─────┴─────┴────────────┴────────────┴───────────────┘
//
// flags bit layout: 0x80 request/response, 0x40 two-way, 0x20 event,
// low 5 bits serialization id. The status byte doubles as a compressed-body
// flag on its top bit (status codes never use bit 0x80: they top out at 90,
// which needs only 7 bits) and, for requests (where status is otherwise
// unused), the compressed bit is the only bit defined.
package remoting

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

const (
	dubboMagic0 = 0xda
	dubboMagic1 = 0xbb

	flagRequest = 0x80
	flagTwoWay  = 0x40
	flagEvent   = 0x20
	flagSerMask = 0x1f

	compressedBit = 0x80

	headerSize = 16

	// compressThreshold is the body size above which DubboCodec snappy-
	// compresses the body before framing it, mirroring the compression
	// step Lubby-ch-rpc's wire layer performs on every protobuf body.
	compressThreshold = 512
)

var serializationIDs = map[string]byte{
	"json": 2,
}

var serializationNames = map[byte]string{
	2: "json",
}

func serializationID(name string) byte {
	if id, ok := serializationIDs[name]; ok {
		return id
	}
	return 0
}

func serializationName(id byte) string {
	if name, ok := serializationNames[id]; ok {
		return name
	}
	return "json"
}

// wireError is the small envelope a non-OK Response's body decodes into.
type wireError struct {
	Message string
}

// DubboCodec is the default Codec: the 16-byte dubbo-compatible header
// described above, with optional snappy body compression.
type DubboCodec struct{}

func init() {
	RegisterCodec(&DubboCodec{})
}

func (c *DubboCodec) Name() string { return "dubbo" }

func (c *DubboCodec) Encode(msg any, serializerName string, payloadLimit int) ([]byte, error) {
	ser, err := LookupSerializer(serializerName)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize)
	buf[0], buf[1] = dubboMagic0, dubboMagic1

	var id uint64
	var body []byte
	var flags byte = serializationID(serializerName) & flagSerMask
	var statusByte byte

	switch m := msg.(type) {
	case *Request:
		flags |= flagRequest
		if m.TwoWay {
			flags |= flagTwoWay
		}
		if m.Event {
			flags |= flagEvent
		}
		id = m.ID
		if m.Data != nil {
			body, err = ser.Marshal(m.Data)
			if err != nil {
				return nil, &SerializationError{Cause: err}
			}
		}
	case *Response:
		if m.Event {
			flags |= flagEvent
		}
		id = m.ID
		statusByte = byte(m.Status)
		if m.Status != StatusOK {
			body, err = ser.Marshal(&wireError{Message: m.ErrorMessage})
		} else if raw, ok := m.Result.([]byte); ok {
			body = raw
		} else if m.Result != nil {
			body, err = ser.Marshal(m.Result)
		}
		if err != nil {
			return nil, &SerializationError{Cause: err}
		}
	default:
		return nil, fmt.Errorf("remoting: DubboCodec cannot encode %T", msg)
	}

	if payloadLimit > 0 && len(body) > payloadLimit {
		return nil, &PayloadLimitExceeded{Limit: payloadLimit, Actual: len(body)}
	}

	if len(body) > compressThreshold {
		compressed := snappy.Encode(nil, body)
		if len(compressed) < len(body) {
			body = compressed
			statusByte |= compressedBit
		}
	}

	buf[2] = flags
	buf[3] = statusByte
	binary.BigEndian.PutUint64(buf[4:12], id)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(body)))
	return append(buf, body...), nil
}

func (c *DubboCodec) Decode(data []byte, payloadLimit int) (any, int, error) {
	if len(data) < headerSize {
		return nil, 0, ErrNeedMore
	}
	if data[0] != dubboMagic0 || data[1] != dubboMagic1 {
		return nil, 0, fmt.Errorf("remoting: invalid magic number %x%x", data[0], data[1])
	}

	flags := data[2]
	statusByte := data[3]
	id := binary.BigEndian.Uint64(data[4:12])
	bodyLen := binary.BigEndian.Uint32(data[12:16])

	if payloadLimit > 0 && int(bodyLen) > payloadLimit {
		return nil, 0, &PayloadLimitExceeded{Limit: payloadLimit, Actual: int(bodyLen)}
	}

	total := headerSize + int(bodyLen)
	if len(data) < total {
		return nil, 0, ErrNeedMore
	}
	body := data[headerSize:total]

	if statusByte&compressedBit != 0 {
		decompressed, err := snappy.Decode(nil, body)
		if err != nil {
			if flags&flagRequest != 0 {
				req := &Request{ID: id, TwoWay: flags&flagTwoWay != 0, Event: flags&flagEvent != 0, Broken: true}
				return req, total, &SerializationError{Cause: err}
			}
			return nil, total, &SerializationError{Cause: err}
		}
		body = decompressed
		statusByte &^= compressedBit
	}

	ser, err := LookupSerializer(serializationName(flags & flagSerMask))
	if err != nil {
		return nil, total, err
	}

	if flags&flagRequest != 0 {
		req := &Request{
			ID:     id,
			TwoWay: flags&flagTwoWay != 0,
			Event:  flags&flagEvent != 0,
		}
		if len(body) > 0 {
			inv := &Invocation{}
			if err := ser.Unmarshal(body, inv); err != nil {
				req.Broken = true
				return req, total, &SerializationError{Cause: err}
			}
			req.Data = inv
		}
		return req, total, nil
	}

	resp := &Response{
		ID:     id,
		Status: Status(statusByte),
		Event:  flags&flagEvent != 0,
	}
	if resp.Status != StatusOK {
		if len(body) > 0 {
			var we wireError
			if err := ser.Unmarshal(body, &we); err == nil {
				resp.ErrorMessage = we.Message
			}
		}
	} else if len(body) > 0 {
		resp.Result = body
	}
	return resp, total, nil
}
