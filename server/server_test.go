package server

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomasters/sockread/errors"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// socketPath returns a short path for a socket file; unix socket paths are
// limited to roughly 100 bytes, which t.TempDir can exceed.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sockread")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func waitListening(t *testing.T, srv *Server) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("Server did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// startServer runs srv on a fresh socket and shuts it down at cleanup.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	path := socketPath(t)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(path)
	}()

	waitListening(t, srv)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Failed to shut down server: %v", err)
		}
		if err := <-serverDone; !stderrors.Is(err, errors.ErrServerClosed) {
			t.Errorf("Expected ErrServerClosed, got: %v", err)
		}
	})
	return path
}

func TestServer_StreamsPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("héllo wörld "), 300)
	srv := New(&Config{Payload: payload, ChunkSize: 7})
	path := startServer(t, srv)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("Failed to read payload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Payload mismatch: got %d bytes, expected %d", len(got), len(payload))
	}
}

func TestServer_EmptyPayloadClosesImmediately(t *testing.T) {
	srv := New(&Config{})
	path := startServer(t, srv)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if n != 0 || err != io.EOF {
		t.Errorf("Expected immediate EOF, got n=%d err=%v", n, err)
	}
}

func TestServer_MultipleClients(t *testing.T) {
	payload := []byte("same bytes for everyone")
	srv := New(&Config{Payload: payload})
	path := startServer(t, srv)

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("unix", path)
		if err != nil {
			t.Fatalf("Failed to connect to server: %v", err)
		}
		got, err := io.ReadAll(conn)
		conn.Close()
		if err != nil {
			t.Fatalf("Failed to read payload: %v", err)
		}
		if string(got) != string(payload) {
			t.Errorf("Client %d got %q", i, got)
		}
	}
}

func TestServer_ShutdownAbortsSlowStream(t *testing.T) {
	srv := New(&Config{Payload: []byte("abcdef"), ChunkSize: 1, Interval: time.Hour})
	path := socketPath(t)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(path)
	}()
	waitListening(t, srv)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Failed to read first chunk: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Failed to shut down server: %v", err)
	}
	if err := <-serverDone; !stderrors.Is(err, errors.ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Socket file should be removed after shutdown, stat err: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Second shutdown should be a no-op, got: %v", err)
	}
}

func TestServer_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)
	stale, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Failed to create stale socket: %v", err)
	}
	// Keep the file on disk after closing, as a crashed process would.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()

	srv := New(&Config{Payload: []byte("x")})
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(path)
	}()
	waitListening(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Failed to shut down server: %v", err)
	}
	if err := <-serverDone; !stderrors.Is(err, errors.ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got: %v", err)
	}
}

func TestServer_RefusesRegularFile(t *testing.T) {
	path := socketPath(t)
	if err := os.WriteFile(path, []byte("not a socket"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	srv := New(&Config{})
	if err := srv.ListenAndServe(path); err == nil {
		t.Error("Expected error when path is a regular file")
	}
}

func TestServer_ServeAfterShutdown(t *testing.T) {
	srv := New(&Config{})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Failed to shut down server: %v", err)
	}
	err := srv.ListenAndServe(socketPath(t))
	if !stderrors.Is(err, errors.ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got: %v", err)
	}
}
