package transport

// Config is the small slice of endpoint configuration the transport layer
// consults. Higher layers (protocol.URL) translate their richer
// configuration down into this rather than transport depending upward on
// protocol — that would make protocol ↔ transport a cycle.
type Config struct {
	Host    string
	Port    int
	AnyHost bool // bind 0.0.0.0 regardless of Host

	Accepts int // max concurrent channels on a server; 0 = unlimited
	Payload int // max serialized body in bytes; 0 = unlimited

	CodecName         string // default "dubbo"
	SerializationName string // default "json"

	WorkerPoolSize int // 0 = unbounded

	ReconnectInterval int // ms, client only; floor 2000
}

func (c Config) addr() string {
	host := c.Host
	if c.AnyHost || host == "" {
		host = "0.0.0.0"
	}
	return joinHostPort(host, c.Port)
}
