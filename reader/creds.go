package reader

// PeerCred identifies the process on the other end of a Unix-domain socket.
type PeerCred struct {
	PID int32
	UID uint32
	GID uint32
}
