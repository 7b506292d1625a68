package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(h http.Handler) *Server {
	return New(h, 0, time.Second, time.Second, 2*time.Second, testLogger())
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func waitReady(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never became ready", url)
}

func TestServer_ServesUntilCancelled(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := newTestServer(h)
	ln := listen(t)
	url := "http://" + ln.Addr().String() + "/"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	waitReady(t, url)

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestServer_ShutdownOrderIsLIFO(t *testing.T) {
	srv := newTestServer(http.NotFoundHandler())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	srv.OnShutdown("cleanup", record("cleanup"))
	srv.OnShutdown("redis", record("redis"))
	srv.OnShutdown("postgres", record("postgres"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.Serve(ctx, listen(t)); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	want := []string{"postgres", "redis", "cleanup"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("shutdown order = %v, want %v", order, want)
	}
}

func TestServer_ComponentErrorsAreJoined(t *testing.T) {
	srv := newTestServer(http.NotFoundHandler())

	errRedis := errors.New("redis close failed")
	ran := false
	srv.OnShutdown("postgres", func(ctx context.Context) error {
		ran = true
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return errRedis
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.Serve(ctx, listen(t))
	if !errors.Is(err, errRedis) {
		t.Fatalf("expected joined redis error, got %v", err)
	}
	if !ran {
		t.Error("components after a failing one should still be stopped")
	}
}

func TestServer_Addr(t *testing.T) {
	srv := New(http.NotFoundHandler(), 8080, time.Second, time.Second, time.Second, testLogger())
	if srv.Addr() != ":8080" {
		t.Errorf("expected :8080, got %s", srv.Addr())
	}
}
