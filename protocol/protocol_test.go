package protocol

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"dubbo-exchange/remoting"
)

func localURL(t *testing.T, port int, path string, extra url.Values) *URL {
	t.Helper()
	v := url.Values{}
	v.Set("timeout", "1000")
	for k, vals := range extra {
		v[k] = vals
	}
	u := NewURL("127.0.0.1", port, path, v)
	return u
}

// greeterInvoker echoes "hello, <first argument>" for any invocation.
func greeterInvoker(endpoint *URL) InvokerFunc {
	return InvokerFunc{
		Endpoint: endpoint,
		Fn: func(ctx context.Context, inv *Invocation) (any, error) {
			name := "world"
			if len(inv.Arguments) > 0 {
				if s, ok := inv.Arguments[0].(string); ok {
					name = s
				}
			}
			return fmt.Sprintf("hello, %s", name), nil
		},
	}
}

func TestExportReferHappyPath(t *testing.T) {
	p := NewProtocol()
	defer p.Destroy(time.Second)

	fixedPort := 29100 + (int(time.Now().UnixNano()) % 100)
	providerURL := localURL(t, fixedPort, "com.example.Greeter", nil)
	exp, err := p.Export(greeterInvoker(providerURL))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	defer exp.Unexport()

	consumerURL := localURL(t, fixedPort, "com.example.Greeter", nil)
	invoker, err := p.Refer(consumerURL)
	if err != nil {
		t.Fatalf("Refer: %v", err)
	}

	call := remoting.NewInvocation("SayHello", []string{"string"}, []any{"dubbo"})
	result := invoker.Invoke(context.Background(), call)
	value, err := result.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "hello, dubbo" {
		t.Fatalf("value = %v, want %q", value, "hello, dubbo")
	}
}

func TestExportDuplicateServiceKeyFails(t *testing.T) {
	p := NewProtocol()
	defer p.Destroy(time.Second)

	fixedPort := 29200 + (int(time.Now().UnixNano()) % 100)
	providerURL := localURL(t, fixedPort, "com.example.Greeter", nil)
	exp, err := p.Export(greeterInvoker(providerURL))
	if err != nil {
		t.Fatalf("first Export: %v", err)
	}
	defer exp.Unexport()

	if _, err := p.Export(greeterInvoker(providerURL)); err == nil {
		t.Fatal("expected second Export of the same service-key to fail")
	}
}

func TestReferSharesConnectionsAcrossConsumers(t *testing.T) {
	p := NewProtocol()
	defer p.Destroy(time.Second)

	fixedPort := 29300 + (int(time.Now().UnixNano()) % 100)
	providerURL := localURL(t, fixedPort, "com.example.Counter", nil)
	exp, err := p.Export(greeterInvoker(providerURL))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	defer exp.Unexport()

	shareParams := url.Values{}
	shareParams.Set("share-connections", "2")
	consumerURL := localURL(t, fixedPort, "com.example.Counter", shareParams)

	const consumers = 3
	invokers := make([]Invoker, consumers)
	for i := range invokers {
		inv, err := p.Refer(consumerURL)
		if err != nil {
			t.Fatalf("Refer %d: %v", i, err)
		}
		invokers[i] = inv
	}

	group := invokers[0].(*remoteInvoker).group
	if got := len(group.clients); got != 2 {
		t.Fatalf("shared group has %d clients, want 2", got)
	}
	if got := group.refCount(); got != consumers {
		t.Fatalf("shared group refcount = %d, want %d", got, consumers)
	}

	for _, inv := range invokers {
		p.Release(inv, time.Second)
	}
}

func TestRefererNotFoundServiceReturnsServiceNotFound(t *testing.T) {
	p := NewProtocol()
	defer p.Destroy(time.Second)

	fixedPort := 29500 + (int(time.Now().UnixNano()) % 100)
	providerURL := localURL(t, fixedPort, "com.example.Bound", nil)
	exp, err := p.Export(greeterInvoker(providerURL))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	defer exp.Unexport()

	consumerURL := localURL(t, fixedPort, "com.example.NotExported", nil)
	invoker, err := p.Refer(consumerURL)
	if err != nil {
		t.Fatalf("Refer: %v", err)
	}

	call := remoting.NewInvocation("Missing", nil, nil)
	result := invoker.Invoke(context.Background(), call)
	if _, err := result.Get(); err == nil || !strings.Contains(err.Error(), remoting.StatusServiceNotFound.String()) {
		t.Fatalf("expected a %s error for an unexported service-key, got %v", remoting.StatusServiceNotFound, err)
	}
}
