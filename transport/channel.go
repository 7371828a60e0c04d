// Package transport owns server sockets, client connections, and the
// bounded worker pools that execute handler callbacks. It turns a raw
// net.Conn into a Channel that speaks a pluggable remoting.Codec and
// dispatches decoded messages to a Handler.
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"dubbo-exchange/remoting"
)

// Role distinguishes which side of a connection created a Channel. The
// heartbeat watcher branches on this rather than comparing addresses —
// address comparison is brittle on multi-homed hosts (see DESIGN.md, Open
// Question 1).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Channel wraps a single net.Conn with the framing, attribute store, and
// read/write timestamps the exchange layer needs for correlation and
// heartbeats.
type Channel struct {
	conn         net.Conn
	role         Role
	codec        remoting.Codec
	serial       string
	payloadLimit int

	writeMu sync.Mutex
	closed  atomic.Bool

	lastRead  atomic.Int64 // unix nano
	lastWrite atomic.Int64

	attrs sync.Map
}

func newChannel(conn net.Conn, role Role, codec remoting.Codec, serial string, payloadLimit int) *Channel {
	ch := &Channel{conn: conn, role: role, codec: codec, serial: serial, payloadLimit: payloadLimit}
	now := time.Now().UnixNano()
	ch.lastRead.Store(now)
	ch.lastWrite.Store(now)
	return ch
}

func (c *Channel) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *Channel) Role() Role           { return c.role }
func (c *Channel) IsClosed() bool       { return c.closed.Load() }

func (c *Channel) LastRead() time.Time  { return time.Unix(0, c.lastRead.Load()) }
func (c *Channel) LastWrite() time.Time { return time.Unix(0, c.lastWrite.Load()) }

// Attr/SetAttr are the per-channel attribute store the protocol layer uses
// to stash things like the bound URL or callback-channel bookkeeping,
// without transport needing to know what a URL is.
func (c *Channel) Attr(key string) (any, bool) { return c.attrs.Load(key) }
func (c *Channel) SetAttr(key string, val any) { c.attrs.Store(key, val) }

// Send encodes msg with the channel's codec and writes the resulting frame.
// Writes are serialized so concurrent senders on one channel never
// interleave frames.
func (c *Channel) Send(msg any) error {
	if c.closed.Load() {
		return &remoting.RemotingError{Addr: c.remoteString(), Cause: errClosed}
	}
	frame, err := c.codec.Encode(msg, c.serial, c.payloadLimit)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	_, err = c.conn.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		return &remoting.RemotingError{Addr: c.remoteString(), Cause: err}
	}
	c.lastWrite.Store(time.Now().UnixNano())
	return nil
}

func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *Channel) remoteString() string {
	if c.conn.RemoteAddr() == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// readLoop accumulates bytes from the connection and feeds them to the
// channel's codec, which signals remoting.ErrNeedMore until a full frame
// is buffered. Exactly one goroutine runs this per channel — reads must be
// sequential to parse frame boundaries correctly.
func (c *Channel) readLoop(onMessage func(any), onClosed func(error)) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			c.lastRead.Store(time.Now().UnixNano())
		}
		if err != nil {
			onClosed(err)
			return
		}
		for {
			msg, consumed, derr := c.codec.Decode(buf, c.payloadLimit)
			if derr == remoting.ErrNeedMore {
				break
			}
			if derr != nil {
				// A request whose body failed to decode is reported through
				// onMessage (Broken is set) so the dispatcher can reply
				// BAD_REQUEST and the connection keeps serving every other
				// in-flight call. Anything else — bad magic, a length the
				// codec refused to buffer for — is genuinely fatal.
				if req, ok := msg.(*remoting.Request); ok && req != nil && req.Broken {
					onMessage(msg)
					buf = buf[consumed:]
					continue
				}
				onClosed(derr)
				return
			}
			onMessage(msg)
			buf = buf[consumed:]
		}
	}
}
