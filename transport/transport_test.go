package transport

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"dubbo-exchange/remoting"
)

func testConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		CodecName:         "dubbo",
		SerializationName: "json",
		WorkerPoolSize:    8,
	}
}

// portConfig builds a Config pointed at srv's actual listening port, since
// Bind(Config{Port:0}) lets the OS choose one.
func portConfig(srv *Server) Config {
	cfg := testConfig()
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

func TestBindAcceptsAndEchoes(t *testing.T) {
	var mu sync.Mutex
	var gotOnServer any

	done := make(chan struct{}, 1)
	serverHandler := HandlerFuncs{
		OnReceived: func(ch *Channel, msg any) {
			mu.Lock()
			gotOnServer = msg
			mu.Unlock()
			done <- struct{}{}
		},
	}
	clientHandler := HandlerFuncs{}

	srv, err := Bind(testConfig(), serverHandler)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer srv.Close(0)

	cli, err := Connect(portConfig(srv), clientHandler)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer cli.Close()

	req := remoting.NewRequest("2.0.2")
	req.TwoWay = true
	req.Data = remoting.NewInvocation("Echo", []string{"string"}, []any{"hello"})
	if err := cli.Send(req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive message")
	}

	mu.Lock()
	defer mu.Unlock()
	got, ok := gotOnServer.(*remoting.Request)
	if !ok {
		t.Fatalf("expected *remoting.Request, got %T", gotOnServer)
	}
	if got.ID != req.ID {
		t.Fatalf("request id mismatch: got %d want %d", got.ID, req.ID)
	}
}

func TestAcceptLimitClosesExcess(t *testing.T) {
	var connects sync.WaitGroup
	var disconnects sync.WaitGroup
	connects.Add(1)
	disconnects.Add(1)
	serverHandler := HandlerFuncs{
		OnConnected:    func(ch *Channel) { connects.Done() },
		OnDisconnected: func(ch *Channel) { disconnects.Done() },
	}

	cfg := testConfig()
	cfg.Accepts = 1
	srv, err := Bind(cfg, serverHandler)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer srv.Close(0)

	pc := portConfig(srv)
	cli1, err := Connect(pc, HandlerFuncs{})
	if err != nil {
		t.Fatalf("Connect 1: %v", err)
	}
	defer cli1.Close()

	waitOrFatal(t, &connects, "first connect")

	// The server closes a rejected connection without notifying its own
	// handler, so the rejection is observed from the client side. The
	// client redials after a rejection; only the first drop counts.
	var rejected sync.Once
	cli2, err := Connect(pc, HandlerFuncs{
		OnDisconnected: func(ch *Channel) { rejected.Do(disconnects.Done) },
	})
	if err != nil {
		t.Fatalf("Connect 2: %v", err)
	}
	defer cli2.Close()

	waitOrFatal(t, &disconnects, "second connection to be rejected")
}

func waitOrFatal(t *testing.T, wg *sync.WaitGroup, what string) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestServerCloseDrainsWorkerPool(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	serverHandler := HandlerFuncs{
		OnReceived: func(ch *Channel, msg any) {
			entered <- struct{}{}
			<-release
		},
	}
	srv, err := Bind(testConfig(), serverHandler)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cli, err := Connect(portConfig(srv), HandlerFuncs{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer cli.Close()

	if err := cli.Send(remoting.NewRequest("2.0.2")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-entered

	closeDone := make(chan error, 1)
	go func() { closeDone <- srv.Close(50 * time.Millisecond) }()

	select {
	case <-closeDone:
		t.Fatal("Close returned before in-flight handler finished, despite a timeout budget")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case err := <-closeDone:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned")
	}
}

func TestWorkerPoolResetRaisesBound(t *testing.T) {
	p := NewWorkerPool(1)
	block := make(chan struct{})
	started := make(chan struct{}, 2)

	p.Submit(func() {
		started <- struct{}{}
		<-block
	})
	<-started

	submitted := make(chan bool, 1)
	go func() {
		submitted <- p.Submit(func() {
			started <- struct{}{}
		})
	}()

	select {
	case <-started:
		t.Fatal("second task ran before pool was resized, bound of 1 was not enforced")
	case <-time.After(50 * time.Millisecond):
	}

	p.Reset(2)
	waitOrFatalChan(t, submitted, "resized submit to accept")
	<-started
	close(block)
}

func waitOrFatalChan(t *testing.T, ch <-chan bool, what string) {
	t.Helper()
	select {
	case ok := <-ch:
		if !ok {
			t.Fatalf("%s: Submit returned false", what)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
