package errors

// Error is an immutable and const error
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrConnect is returned when the socket path cannot be connected to.
	ErrConnect = Error("unable to connect to socket")
	// ErrInvalidEncoding is returned when a chunk is not valid UTF-8 and the
	// decoder has no way to recover.
	ErrInvalidEncoding = Error("invalid utf-8 encoding")
	// ErrInvalidMode is returned for an unknown decode mode.
	ErrInvalidMode = Error("invalid decode mode")
	// ErrInvalidChunkSize is returned when the read chunk size is less than 1.
	ErrInvalidChunkSize = Error("invalid chunk size")
	// ErrServerClosed is returned by ListenAndServe once Shutdown has been called.
	ErrServerClosed = Error("server closed")
)
