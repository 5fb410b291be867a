package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nomasters/sockread/errors"
	"github.com/nomasters/sockread/logger"
	"lukechampine.com/blake3"
)

const defaultChunkSize = 1024

// Config holds the settings for a feed server.
type Config struct {
	// Payload is streamed to every client before the connection is closed.
	Payload []byte

	// Bytes written per write call (default: 1024)
	ChunkSize int

	// Pause between writes, zero writes back to back
	Interval time.Duration

	// Logger for server messages (optional, uses NoOp if nil)
	Logger logger.Logger
}

// Server listens on a Unix-domain socket and streams a fixed payload to each
// client that connects.
type Server struct {
	payload   []byte
	chunkSize int
	interval  time.Duration
	logger    logger.Logger

	mu       sync.Mutex
	listener net.Listener
	path     string
	closed   bool
	quit     chan struct{}
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// New returns a reference to a new Server.
func New(config *Config) *Server {
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	log := config.Logger
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Server{
		payload:   config.Payload,
		chunkSize: chunkSize,
		interval:  config.Interval,
		logger:    log,
		quit:      make(chan struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
}

// ListenAndServe removes any stale socket file at path, listens on it and
// serves clients until Shutdown is called, after which it returns
// errors.ErrServerClosed.
func (s *Server) ListenAndServe(path string) error {
	if err := removeStale(path); err != nil {
		return err
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l. Serve takes ownership of l.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return errors.ErrServerClosed
	}
	s.listener = l
	s.path = l.Addr().String()
	s.mu.Unlock()

	sum := blake3.Sum256(s.payload)
	s.logger.Infof("Serving %d bytes on %s in %d byte chunks (blake3=%x)", len(s.payload), s.path, s.chunkSize, sum)

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.shuttingDown() {
				return errors.ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return errors.ErrServerClosed
		}
		go s.handle(conn)
	}
}

// Addr returns the socket path once the server is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	s.logger.Debugf("Client connected")
	written, err := s.stream(conn)
	if err != nil {
		if s.shuttingDown() {
			s.logger.Debugf("Stream aborted after %d bytes: %v", written, err)
			return
		}
		s.logger.Errorf("Failed to stream payload: %v", err)
		return
	}
	s.logger.Debugf("Client done, wrote %d bytes", written)
}

func (s *Server) shuttingDown() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Server) stream(conn net.Conn) (int, error) {
	written := 0
	for off := 0; off < len(s.payload); off += s.chunkSize {
		end := off + s.chunkSize
		if end > len(s.payload) {
			end = len(s.payload)
		}
		n, err := conn.Write(s.payload[off:end])
		written += n
		if err != nil {
			return written, err
		}
		if s.interval > 0 && end < len(s.payload) {
			select {
			case <-time.After(s.interval):
			case <-s.quit:
				return written, errors.ErrServerClosed
			}
		}
	}
	return written, nil
}

// Shutdown stops accepting connections, aborts streams in flight and waits
// for the handlers to return or ctx to expire. The socket file is removed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.quit)
	l := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if l != nil {
		// Closing a UnixListener created by net.Listen unlinks the socket file.
		err = l.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// removeStale deletes path if it is a leftover socket file.
func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}
