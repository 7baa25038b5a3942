package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pactown/pactown/pkg/errdefs"
)

func TestWaitReady_ImmediateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := WaitReady(context.Background(), NewHTTPChecker(server.URL), 5*time.Second)
	if err != nil {
		t.Fatalf("Expected ready, got error: %v", err)
	}
}

func TestWaitReady_SucceedsAfterWarmup(t *testing.T) {
	// Service answers 503 for the first three requests, then 200
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := WaitReady(context.Background(), NewHTTPChecker(server.URL), 5*time.Second)
	if err != nil {
		t.Fatalf("Expected ready after warmup, got error: %v", err)
	}
	if n := requests.Load(); n < 4 {
		t.Errorf("Expected at least 4 probe attempts, got %d", n)
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	start := time.Now()
	err := WaitReady(context.Background(), NewHTTPChecker(server.URL), 300*time.Millisecond)
	if !errdefs.IsHealthTimeout(err) {
		t.Fatalf("Expected health timeout error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected prompt timeout, waited %s", elapsed)
	}
}

func TestWaitReady_CancelAborts(t *testing.T) {
	// Nothing listens on this address, so every probe fails
	checker := NewTCPChecker("127.0.0.1:1").WithTimeout(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WaitReady(ctx, checker, 30*time.Second)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReady did not return after cancellation")
	}
}

func TestWaitReady_TCPReadiness(t *testing.T) {
	// Simulates a service that disables HTTP probing: readiness is the
	// port accepting connections
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewTCPChecker(listener.Addr().String())
	if err := WaitReady(context.Background(), checker, 5*time.Second); err != nil {
		t.Fatalf("Expected TCP readiness, got error: %v", err)
	}
}
