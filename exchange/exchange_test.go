package exchange

import (
	"net"
	"strconv"
	"testing"
	"time"

	"dubbo-exchange/remoting"
	"dubbo-exchange/transport"
)

// echoHandler replies to every invocation with its method name plus a
// "-reply" suffix as the result, enough to prove a round trip happened without needing a
// real service registry.
type echoHandler struct {
	connected    chan *ExchangeChannel
	disconnected chan *ExchangeChannel
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		connected:    make(chan *ExchangeChannel, 8),
		disconnected: make(chan *ExchangeChannel, 8),
	}
}

func (h *echoHandler) Reply(ch *ExchangeChannel, req *remoting.Request) {
	inv, ok := req.Data.(*remoting.Invocation)
	var resp *remoting.Response
	if !ok {
		resp = remoting.NewResponse(req.ID, remoting.StatusBadRequest)
		resp.ErrorMessage = "not an invocation"
	} else {
		resp = remoting.NewResponse(req.ID, remoting.StatusOK)
		resp.Result = []byte(`"` + inv.Method + "-reply" + `"`)
	}
	if req.TwoWay {
		ch.Send(resp)
	}
}

func (h *echoHandler) Connected(ch *ExchangeChannel)    { h.connected <- ch }
func (h *echoHandler) Disconnected(ch *ExchangeChannel) { h.disconnected <- ch }

func testCfg() transport.Config {
	return transport.Config{
		Host:              "127.0.0.1",
		CodecName:         "dubbo",
		SerializationName: "json",
		WorkerPoolSize:    8,
	}
}

func cfgFor(srv *ExchangeServer) transport.Config {
	cfg := testCfg()
	host, portStr, err := net.SplitHostPort(srv.Addr().String())
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		panic(err)
	}
	cfg.Host = host
	cfg.Port = port
	return cfg
}

func setupServerAndClient(t *testing.T, heartbeat time.Duration) (*ExchangeServer, *echoHandler, *ExchangeClient) {
	t.Helper()
	sh := newEchoHandler()
	srv, err := Bind(testCfg(), heartbeat, sh)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cli, err := Connect(cfgFor(srv), heartbeat, nil)
	if err != nil {
		srv.Close(0)
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		cli.Close(0)
		srv.Close(0)
	})
	return srv, sh, cli
}

func TestRequestHappyPath(t *testing.T) {
	_, sh, cli := setupServerAndClient(t, 0)
	<-sh.connected

	inv := remoting.NewInvocation("Greet", []string{"string"}, []any{"world"})
	future, err := cli.Request(inv, time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp, err := future.Get()
	if err != nil {
		t.Fatalf("future.Get: %v", err)
	}
	if resp.Status != remoting.StatusOK {
		t.Fatalf("status = %v, want OK (%v)", resp.Status, resp.ErrorMessage)
	}
	if string(resp.Result.([]byte)) != `"Greet-reply"` {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestRequestClientTimeout(t *testing.T) {
	sh := newEchoHandlerThatBlocks()
	srv, err := Bind(testCfg(), 0, sh)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer srv.Close(0)
	cli, err := Connect(cfgFor(srv), 0, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer cli.Close(0)
	<-sh.connected

	inv := remoting.NewInvocation("Slow", nil, nil)
	future, err := cli.Request(inv, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp, err := future.Get()
	if err != nil {
		t.Fatalf("future.Get: %v", err)
	}
	if resp.Status != remoting.StatusClientTimeout && resp.Status != remoting.StatusServerTimeout {
		t.Fatalf("status = %v, want a timeout status", resp.Status)
	}
	close(sh.release)
}

// echoHandlerThatBlocks never replies until released, so a call against it
// always times out.
type echoHandlerThatBlocks struct {
	connected chan *ExchangeChannel
	release   chan struct{}
}

func newEchoHandlerThatBlocks() *echoHandlerThatBlocks {
	return &echoHandlerThatBlocks{
		connected: make(chan *ExchangeChannel, 8),
		release:   make(chan struct{}),
	}
}

func (h *echoHandlerThatBlocks) Reply(ch *ExchangeChannel, req *remoting.Request) {
	<-h.release
	if req.TwoWay {
		ch.Send(remoting.NewResponse(req.ID, remoting.StatusOK))
	}
}
func (h *echoHandlerThatBlocks) Connected(ch *ExchangeChannel)    { h.connected <- ch }
func (h *echoHandlerThatBlocks) Disconnected(ch *ExchangeChannel) {}

func TestCloseChannelFailsOutstandingCalls(t *testing.T) {
	sh := newEchoHandlerThatBlocks()
	srv, err := Bind(testCfg(), 0, sh)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cli, err := Connect(cfgFor(srv), 0, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-sh.connected

	const n = 3
	futures := make([]*Future, n)
	for i := 0; i < n; i++ {
		inv := remoting.NewInvocation("Slow", nil, nil)
		f, err := cli.Request(inv, 5*time.Second)
		if err != nil {
			t.Fatalf("Request %d: %v", i, err)
		}
		futures[i] = f
	}

	// Close the server abruptly, without releasing the blocked handler;
	// every outstanding call should come back CHANNEL_INACTIVE rather
	// than hang until their 5s timeout.
	srv.Close(0)

	for i, f := range futures {
		resp, err := f.GetTimeout(2 * time.Second)
		if err != nil {
			t.Fatalf("future %d: %v", i, err)
		}
		if resp.Status != remoting.StatusChannelInactive {
			t.Fatalf("future %d status = %v, want CHANNEL_INACTIVE", i, resp.Status)
		}
	}
	close(sh.release)
	cli.Close(0)
}

func TestHeartbeatKeepsIdleConnectionAlive(t *testing.T) {
	heartbeat := 60 * time.Millisecond
	_, sh, cli := setupServerAndClient(t, heartbeat)
	<-sh.connected

	time.Sleep(heartbeat * 4)

	if !cli.IsConnected() {
		t.Fatal("client disconnected during idle heartbeat window")
	}
}

func TestReadonlyBroadcastMarksChannelReadonly(t *testing.T) {
	srv, sh, cli := setupServerAndClient(t, 0)
	serverSide := <-sh.connected

	readonly := remoting.NewRequest(protocolVersion)
	readonly.Event = true
	readonly.Data = remoting.NewInvocation(readonlyEventMethod, nil, nil)
	if err := serverSide.Send(readonly); err != nil {
		t.Fatalf("Send readonly: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !cli.IsReadonly() {
		if time.Now().After(deadline) {
			t.Fatal("client never observed readonly notice")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = srv
}
