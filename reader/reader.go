package reader

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nomasters/sockread/decoder"
	"github.com/nomasters/sockread/errors"
	"github.com/nomasters/sockread/logger"
	"lukechampine.com/blake3"
)

const (
	// DefaultPath is the socket path used when none is configured.
	DefaultPath = "./123.sock"
	// DefaultChunkSize is the maximum number of bytes requested per read.
	DefaultChunkSize = 1024

	connectedLine = "Connected to the socket."
	receivedLabel = "Received:"
)

// DialFunc opens the connection to path.
type DialFunc func(ctx context.Context, path string) (net.Conn, error)

// Config holds configuration options for a Reader.
type Config struct {
	// Path of the Unix-domain socket (default: ./123.sock)
	Path string

	// Maximum bytes requested per read (default: 1024)
	ChunkSize int

	// Decode strategy (default: buffered)
	Mode decoder.Mode

	// Destination for decoded text (default: os.Stdout)
	Output io.Writer

	// Logger for connection and summary messages (optional, uses NoOp if nil)
	Logger logger.Logger

	// Dial overrides how the connection is opened (default: unix stream dial)
	Dial DialFunc
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:      path,
		ChunkSize: DefaultChunkSize,
		Mode:      decoder.ModeBuffered,
		Output:    os.Stdout,
	}
}

// Stats describes a finished run.
type Stats struct {
	Chunks   int
	Bytes    int
	Messages int
	// Pending is the number of trailing bytes that never decoded.
	Pending  int
	Digest   [32]byte
	Duration time.Duration
}

// DigestHex returns the BLAKE3-256 digest of the received stream in hex.
func (s Stats) DigestHex() string {
	return hex.EncodeToString(s.Digest[:])
}

// Reader connects to a Unix-domain socket and prints what the peer sends
// until it closes the connection.
type Reader struct {
	path      string
	chunkSize int
	mode      decoder.Mode
	out       io.Writer
	logger    logger.Logger
	dial      DialFunc
}

// New creates a Reader with the given configuration.
func New(config *Config) (*Reader, error) {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: %d", errors.ErrInvalidChunkSize, config.ChunkSize)
	}
	if config.Mode == "" {
		config.Mode = decoder.ModeBuffered
	}
	if _, err := decoder.ParseMode(string(config.Mode)); err != nil {
		return nil, err
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	log := config.Logger
	if log == nil {
		log = logger.NewNoOp()
	}
	dial := config.Dial
	if dial == nil {
		dial = dialUnix
	}

	return &Reader{
		path:      config.Path,
		chunkSize: config.ChunkSize,
		mode:      config.Mode,
		out:       config.Output,
		logger:    log,
		dial:      dial,
	}, nil
}

func dialUnix(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

// Run connects, reads until the peer closes the connection and returns the
// run statistics. The connection is closed before Run returns on every path.
// Cancelling ctx interrupts a blocked read and Run returns ctx.Err().
func (r *Reader) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	start := time.Now()

	dec, err := decoder.New(r.mode)
	if err != nil {
		return stats, err
	}

	conn, err := r.dial(ctx, r.path)
	if err != nil {
		return stats, fmt.Errorf("%w: %s: %w", errors.ErrConnect, r.path, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			r.logger.Debugf("Failed to close connection: %v", err)
		}
	}()

	stop := watch(ctx, conn)
	defer stop()

	r.logPeer(conn)
	if _, err := fmt.Fprintln(r.out, connectedLine); err != nil {
		return stats, fmt.Errorf("failed to write output: %w", err)
	}

	h := blake3.New(32, nil)
	buf := make([]byte, r.chunkSize)
	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			stats.Chunks++
			stats.Bytes += n
			h.Write(chunk)

			text, ok, err := dec.Decode(chunk)
			if err != nil {
				r.finish(&stats, h, dec, start)
				return stats, err
			}
			if ok {
				stats.Messages++
				if _, err := fmt.Fprintln(r.out, receivedLabel, text); err != nil {
					r.finish(&stats, h, dec, start)
					return stats, fmt.Errorf("failed to write output: %w", err)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			r.finish(&stats, h, dec, start)
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, fmt.Errorf("failed to read from %s: %w", r.path, rerr)
		}
	}

	r.finish(&stats, h, dec, start)
	if stats.Pending > 0 {
		r.logger.Warnf("Discarding %d undecoded trailing bytes", stats.Pending)
	}
	r.logger.Infof("Peer closed connection: chunks=%d bytes=%d messages=%d blake3=%s",
		stats.Chunks, stats.Bytes, stats.Messages, stats.DigestHex())
	return stats, nil
}

func (r *Reader) finish(stats *Stats, h *blake3.Hasher, dec decoder.Decoder, start time.Time) {
	copy(stats.Digest[:], h.Sum(nil))
	stats.Pending = len(dec.Pending())
	stats.Duration = time.Since(start)
}

func (r *Reader) logPeer(conn net.Conn) {
	cred, err := peerCredentials(conn)
	if err != nil {
		r.logger.Debugf("Peer credentials unavailable: %v", err)
		return
	}
	r.logger.Infof("Connected to %s (peer pid=%d uid=%d gid=%d)", r.path, cred.PID, cred.UID, cred.GID)
}

// watch expires the read deadline of conn when ctx is cancelled so a blocked
// Read returns. The returned func stops the watcher and waits for it to exit.
func watch(ctx context.Context, conn net.Conn) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
