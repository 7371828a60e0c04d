package remoting

import (
	"strings"
	"testing"
)

func TestDubboCodecRequestRoundTrip(t *testing.T) {
	codec := &DubboCodec{}
	inv := NewInvocation("Add", []string{"int", "int"}, []any{float64(1), float64(2)})
	inv.SetAttachment(AttachmentPath, "Arith")

	req := &Request{ID: 42, TwoWay: true, Data: inv}

	frame, err := codec.Encode(req, "json", 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, consumed, err := codec.Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(frame) {
		t.Fatalf("consumed %d, want %d", consumed, len(frame))
	}

	got, ok := decoded.(*Request)
	if !ok {
		t.Fatalf("decoded %T, want *Request", decoded)
	}
	if got.ID != req.ID || !got.TwoWay {
		t.Fatalf("got %+v, want id=%d twoWay=true", got, req.ID)
	}
	gotInv, ok := got.Data.(*Invocation)
	if !ok {
		t.Fatalf("decoded data %T, want *Invocation", got.Data)
	}
	if gotInv.Method != "Add" || gotInv.Attachment(AttachmentPath) != "Arith" {
		t.Fatalf("invocation mismatch: %+v", gotInv)
	}
}

func TestDubboCodecResponseRoundTrip(t *testing.T) {
	codec := &DubboCodec{}
	ser, _ := LookupSerializer("json")
	payload, _ := ser.Marshal(map[string]int{"result": 3})

	resp := &Response{ID: 7, Status: StatusOK, Result: payload}

	frame, err := codec.Encode(resp, "json", 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, _, err := codec.Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := decoded.(*Response)
	if got.ID != 7 || got.Status != StatusOK {
		t.Fatalf("got %+v", got)
	}
	raw, ok := got.Result.([]byte)
	if !ok || string(raw) != string(payload) {
		t.Fatalf("result mismatch: %v", got.Result)
	}
}

func TestDubboCodecErrorResponse(t *testing.T) {
	codec := &DubboCodec{}
	resp := &Response{ID: 1, Status: StatusServiceError, ErrorMessage: "boom"}

	frame, err := codec.Encode(resp, "json", 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, _, err := codec.Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := decoded.(*Response)
	if got.Status != StatusServiceError || got.ErrorMessage != "boom" {
		t.Fatalf("got %+v", got)
	}
}

func TestDubboCodecNeedMore(t *testing.T) {
	codec := &DubboCodec{}
	inv := NewInvocation("Add", nil, nil)
	req := &Request{ID: 1, TwoWay: true, Data: inv}
	frame, err := codec.Encode(req, "json", 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, _, err := codec.Decode(frame[:headerSize-1], 0); err != ErrNeedMore {
		t.Fatalf("want ErrNeedMore for short header, got %v", err)
	}
	if _, _, err := codec.Decode(frame[:len(frame)-1], 0); err != ErrNeedMore {
		t.Fatalf("want ErrNeedMore for short body, got %v", err)
	}
}

func TestDubboCodecInvalidMagic(t *testing.T) {
	codec := &DubboCodec{}
	bad := make([]byte, headerSize)
	_, _, err := codec.Decode(bad, 0)
	if err == nil || !strings.Contains(err.Error(), "invalid magic") {
		t.Fatalf("want invalid magic error, got %v", err)
	}
}

func TestDubboCodecPayloadLimit(t *testing.T) {
	codec := &DubboCodec{}
	inv := NewInvocation("Add", nil, []any{strings.Repeat("x", 100)})
	req := &Request{ID: 1, TwoWay: true, Data: inv}

	if _, err := codec.Encode(req, "json", 10); err == nil {
		t.Fatal("want PayloadLimitExceeded on encode")
	}

	frame, err := codec.Encode(req, "json", 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, _, err := codec.Decode(frame, 10); err == nil {
		t.Fatal("want PayloadLimitExceeded on decode")
	}
}

func TestDubboCodecCompressesLargeBody(t *testing.T) {
	codec := &DubboCodec{}
	big := strings.Repeat("a", 4096)
	inv := NewInvocation("Echo", nil, []any{big})
	req := &Request{ID: 9, TwoWay: true, Data: inv}

	frame, err := codec.Encode(req, "json", 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[3]&compressedBit == 0 {
		t.Fatal("expected compressed bit set for large body")
	}

	decoded, _, err := codec.Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := decoded.(*Request).Data.(*Invocation)
	if got.Arguments[0].(string) != big {
		t.Fatalf("round-tripped argument mismatch, len=%d", len(got.Arguments[0].(string)))
	}
}
