package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/watchstack/watchstack-anomaly/internal/baseline"
	"github.com/watchstack/watchstack-anomaly/internal/config"
	"github.com/watchstack/watchstack-anomaly/internal/history"
)

func TestServerGracefulTimeoutDefault(t *testing.T) {
	handlers := NewHandlers(nil, baseline.NewTracker(4), history.NewStore(4), nil, nil)
	srv, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0"}, handlers)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Shutdown(context.Background())

	if srv.Address() == "" {
		t.Fatalf("listener address must be populated")
	}
	if srv.GracefulTimeout() != 10*time.Second {
		t.Fatalf("zero config must fall back to the default, got %v", srv.GracefulTimeout())
	}
}

func TestServerServesAndShutsDown(t *testing.T) {
	handlers := NewHandlers(nil, baseline.NewTracker(4), history.NewStore(4), nil, nil)
	srv, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0", GracefulTimeout: time.Second}, handlers)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + srv.Address() + "/health")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health endpoint unreachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), srv.GracefulTimeout())
	defer cancel()
	srv.Shutdown(ctx)

	select {
	case serveErr := <-done:
		if serveErr != nil {
			t.Fatalf("serve returned error: %v", serveErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop")
	}
}
