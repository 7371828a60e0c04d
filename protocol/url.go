// Package protocol is the top layer: it turns a URL into exported
// services and referenced invokers, dispatching received invocations to
// the right one and routing outbound calls through a shared,
// reference-counted pool of exchange clients.
package protocol

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"dubbo-exchange/transport"
)

// URL is the single configuration carrier for both providers and
// consumers: scheme/host/port/path come from net/url's parsing, and
// every framework-specific option rides in the query string. No pack
// repo implements its own URL/query-parameter type (the teacher and
// Lubby-ch-rpc take bare dial addresses, luxfi-rpc takes gRPC target
// strings) — net/url's scheme://host:port/path?k=v already parses
// exactly this shape, so building one by hand would just recreate it
// worse.
type URL struct {
	raw *url.URL
}

// ParseURL parses s (e.g. "dubbo://127.0.0.1:20880/com.example.Greeter?version=1.0&timeout=2000")
// into a URL.
func ParseURL(s string) (*URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("protocol: invalid url %q: %w", s, err)
	}
	return &URL{raw: u}, nil
}

// NewURL builds a URL programmatically, as providers constructing an
// export target typically do.
func NewURL(host string, port int, path string, params url.Values) *URL {
	u := &url.URL{
		Scheme: "dubbo",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + strings.TrimPrefix(path, "/"),
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	return &URL{raw: u}
}

func (u *URL) Host() string {
	if h := u.raw.Hostname(); h != "" {
		return h
	}
	h, _, err := net.SplitHostPort(u.raw.Host)
	if err != nil {
		return u.raw.Host
	}
	return h
}

func (u *URL) Port() int {
	if p := u.raw.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	return 0
}

// Address is the dial/bind target, host:port.
func (u *URL) Address() string { return u.raw.Host }

func (u *URL) Path() string    { return strings.TrimPrefix(u.raw.Path, "/") }
func (u *URL) Version() string { return u.param("version", "") }
func (u *URL) Group() string   { return u.param("group", "") }

func (u *URL) param(key, def string) string {
	if v := u.raw.Query().Get(key); v != "" {
		return v
	}
	return def
}

func (u *URL) intParam(key string, def int) int {
	v := u.raw.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (u *URL) boolParam(key string, def bool) bool {
	v := u.raw.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (u *URL) Timeout() int               { return u.intParam("timeout", 1000) }
func (u *URL) Heartbeat() int             { return u.intParam("heartbeat", 60000) }
func (u *URL) Payload() int               { return u.intParam("payload", 8*1024*1024) }
func (u *URL) Accepts() int               { return u.intParam("accepts", 0) }
func (u *URL) Connections() int           { return u.intParam("connections", 0) }
func (u *URL) ShareConnections() int      { return u.intParam("share-connections", 1) }
func (u *URL) Serialization() string      { return u.param("serialization", "json") }
func (u *URL) Codec() string              { return u.param("codec", "dubbo") }
func (u *URL) ClientImpl() string         { return u.param("client", "tcp") }
func (u *URL) ServerImpl() string         { return u.param("server", "tcp") }
func (u *URL) Lazy() bool                 { return u.boolParam("lazy", false) }
func (u *URL) ChannelReadonlySent() bool  { return u.boolParam("channel.readonly.sent", true) }
func (u *URL) OnConnect() string          { return u.param("onconnect", "") }
func (u *URL) OnDisconnect() string       { return u.param("ondisconnect", "") }
func (u *URL) StubEvent() bool            { return u.boolParam("stub.event", false) }
func (u *URL) CallbackServiceKey() string { return u.param("callback.service.key", "") }
func (u *URL) ReconnectInterval() int     { return u.intParam("reconnect.interval", 2000) }
func (u *URL) AnyHost() bool              { return u.boolParam("anyhost", false) }

// ServiceKey computes the {group/}{path}{:version}:{port} key exporters
// are registered under. localPort lets a provider distinguish two
// exports of the same interface on different ports of the same process.
func (u *URL) ServiceKey(localPort int) string {
	return serviceKey(u.Group(), u.Path(), u.Version(), localPort)
}

func serviceKey(group, path, version string, port int) string {
	var b strings.Builder
	if group != "" {
		b.WriteString(group)
		b.WriteByte('/')
	}
	b.WriteString(path)
	if version != "" {
		b.WriteByte(':')
		b.WriteString(version)
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(port))
	return b.String()
}

// String renders the URL back to text.
func (u *URL) String() string { return u.raw.String() }

// TransportConfig translates this URL into the small protocol-agnostic
// struct transport.Bind/Connect consume, keeping transport from depending
// upward on protocol (which would make transport <-> protocol a cycle).
func (u *URL) TransportConfig() transport.Config {
	host := u.Host()
	port := u.Port()
	return transport.Config{
		Host:              host,
		Port:              port,
		AnyHost:           u.AnyHost(),
		Accepts:           u.Accepts(),
		Payload:           u.Payload(),
		CodecName:         u.Codec(),
		SerializationName: u.Serialization(),
		WorkerPoolSize:    200,
		ReconnectInterval: u.ReconnectInterval(),
	}
}
