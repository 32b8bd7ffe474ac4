package micro

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/petrarca/nats-micro/bus"
)

func TestSubjectOverride(t *testing.T) {
	s := RunServerOnPort(-1)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Expected to connect to server, got %v", err)
	}
	defer nc.Close()

	svc, err := AddService(bus.Wrap(nc), Config{Name: "test_service", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer svc.Stop()

	handler := HandlerFunc(func(req *Request) error {
		return req.Respond([]byte("ok"))
	})
	if err := svc.AddEndpoint("endpoint1", handler, WithEndpointSubject("other")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	info := svc.Info()
	if info.Endpoints[0].Subject != "other" {
		t.Fatalf("Expected subject \"other\"; got: %q", info.Endpoints[0].Subject)
	}

	if _, err := nc.Request("other", nil, time.Second); err != nil {
		t.Fatalf("Expected a reply on the override subject: %v", err)
	}
	if _, err := nc.Request("endpoint1", nil, 250*time.Millisecond); err == nil {
		t.Fatal("Expected no reply on the endpoint name")
	}
}

func TestErrorReply(t *testing.T) {
	s := RunServerOnPort(-1)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Expected to connect to server, got %v", err)
	}
	defer nc.Close()

	svc, err := AddService(bus.Wrap(nc), Config{Name: "test_service", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer svc.Stop()

	if err := svc.AddEndpoint("fail", HandlerFunc(func(req *Request) error {
		return req.Error("400", "bad", nil)
	})); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	resp, err := nc.Request("fail", nil, time.Second)
	if err != nil {
		t.Fatalf("Unexpected request error: %v", err)
	}
	if got := resp.Header.Get(ErrorCodeHeader); got != "400" {
		t.Fatalf("Expected error code 400; got: %q", got)
	}
	if got := resp.Header.Get(ErrorHeader); got != "bad" {
		t.Fatalf("Expected error description \"bad\"; got: %q", got)
	}

	waitFor(t, time.Second, func() bool {
		ep := svc.Stats().Endpoints[0]
		return ep.NumRequests == 1 && ep.NumErrors == 1 && ep.LastError == "bad"
	})
}

func TestUnhandledError(t *testing.T) {
	s := RunServerOnPort(-1)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Expected to connect to server, got %v", err)
	}
	defer nc.Close()

	svc, err := AddService(bus.Wrap(nc), Config{Name: "test_service", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer svc.Stop()

	if err := svc.AddEndpoint("boom", HandlerFunc(func(req *Request) error {
		return errors.New("something broke")
	})); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	resp, err := nc.Request("boom", nil, time.Second)
	if err != nil {
		t.Fatalf("Unexpected request error: %v", err)
	}
	if got := resp.Header.Get(ErrorCodeHeader); got != "500" {
		t.Fatalf("Expected error code 500; got: %q", got)
	}
	if got := resp.Header.Get(ErrorHeader); got != "something broke" {
		t.Fatalf("Unexpected error description: %q", got)
	}

	waitFor(t, time.Second, func() bool {
		ep := svc.Stats().Endpoints[0]
		return ep.NumRequests == 1 && ep.NumErrors == 1 && ep.LastError == "something broke"
	})
}

func TestHandlerPanic(t *testing.T) {
	s := RunServerOnPort(-1)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Expected to connect to server, got %v", err)
	}
	defer nc.Close()

	svc, err := AddService(bus.Wrap(nc), Config{Name: "test_service", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer svc.Stop()

	if err := svc.AddEndpoint("panic", HandlerFunc(func(req *Request) error {
		panic("oh no")
	})); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	resp, err := nc.Request("panic", nil, time.Second)
	if err != nil {
		t.Fatalf("Unexpected request error: %v", err)
	}
	if got := resp.Header.Get(ErrorCodeHeader); got != "500" {
		t.Fatalf("Expected error code 500; got: %q", got)
	}
	if got := resp.Header.Get(ErrorHeader); !strings.Contains(got, "oh no") {
		t.Fatalf("Unexpected error description: %q", got)
	}

	waitFor(t, time.Second, func() bool {
		ep := svc.Stats().Endpoints[0]
		return ep.NumRequests == 1 && ep.NumErrors == 1
	})
}

func TestErrorAfterReply(t *testing.T) {
	// A handler that already replied keeps its reply; the error only
	// shows up in the stats.
	s := RunServerOnPort(-1)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Expected to connect to server, got %v", err)
	}
	defer nc.Close()

	svc, err := AddService(bus.Wrap(nc), Config{Name: "test_service", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer svc.Stop()

	if err := svc.AddEndpoint("halfway", HandlerFunc(func(req *Request) error {
		if err := req.Respond([]byte("partial")); err != nil {
			return err
		}
		return errors.New("post-reply failure")
	})); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	resp, err := nc.Request("halfway", nil, time.Second)
	if err != nil {
		t.Fatalf("Unexpected request error: %v", err)
	}
	if string(resp.Data) != "partial" {
		t.Fatalf("Expected the handler's reply; got: %q", resp.Data)
	}
	if resp.Header.Get(ErrorCodeHeader) != "" {
		t.Fatal("Expected no error headers on the original reply")
	}

	waitFor(t, time.Second, func() bool {
		ep := svc.Stats().Endpoints[0]
		return ep.NumErrors == 1 && ep.LastError == "post-reply failure"
	})
}

func TestDuplicateEndpoint(t *testing.T) {
	_, svc := setupService(t, Config{Name: "test_service", Version: "0.1.0"})

	handler := HandlerFunc(func(*Request) error { return nil })
	if err := svc.AddEndpoint("ep", handler); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := svc.AddEndpoint("ep", handler, WithEndpointSubject("elsewhere")); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Fatalf("Expected ErrDuplicateEndpoint; got: %v", err)
	}
}

func TestEndpointValidation(t *testing.T) {
	_, svc := setupService(t, Config{Name: "test_service", Version: "0.1.0"})

	handler := HandlerFunc(func(*Request) error { return nil })
	tests := []struct {
		name string
		add  func() error
	}{
		{"nil handler", func() error { return svc.AddEndpoint("ep", nil) }},
		{"bad name", func() error { return svc.AddEndpoint("bad.name", handler) }},
		{"bad subject", func() error {
			return svc.AddEndpoint("ep", handler, WithEndpointSubject("a b"))
		}},
		{"bad queue group", func() error {
			return svc.AddEndpoint("ep", handler, WithEndpointQueueGroup("a b"))
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.add(); err == nil {
				t.Fatal("Expected an error")
			}
		})
	}
}

func TestAddEndpointConcurrent(t *testing.T) {
	_, svc := setupService(t, Config{Name: "test_service", Version: "0.1.0"})

	handler := HandlerFunc(func(req *Request) error {
		return req.Respond([]byte("ok"))
	})

	var wg sync.WaitGroup
	res := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res <- svc.AddEndpoint(fmt.Sprintf("test%d", i), handler)
		}(i)
	}
	wg.Wait()
	close(res)

	for err := range res {
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if got := len(svc.Info().Endpoints); got != 10 {
		t.Fatalf("Expected 10 endpoints, got: %d", got)
	}
}

func TestEndpointMiddleware(t *testing.T) {
	s := RunServerOnPort(-1)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Expected to connect to server, got %v", err)
	}
	defer nc.Close()

	var order []string
	var mu sync.Mutex
	record := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(req *Request) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return next.Handle(req)
			})
		}
	}

	svc, err := AddService(bus.Wrap(nc), Config{
		Name:       "test_service",
		Version:    "0.1.0",
		Middleware: []Middleware{record("global")},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer svc.Stop()

	if err := svc.AddEndpoint("mw", HandlerFunc(func(req *Request) error {
		return req.Respond([]byte("done"))
	}), WithEndpointMiddleware(record("endpoint"))); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := nc.Request("mw", nil, time.Second); err != nil {
		t.Fatalf("Unexpected request error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "global" || order[1] != "endpoint" {
		t.Fatalf("Unexpected middleware order: %v", order)
	}
}
