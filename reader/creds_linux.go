package reader

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED from a connected Unix socket.
func peerCredentials(c net.Conn) (PeerCred, error) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return PeerCred{}, fmt.Errorf("unexpected connection type %T", c)
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCred{}, fmt.Errorf("error opening raw connection: %w", err)
	}

	// Control does not return the callback's error, so it is captured here.
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return PeerCred{}, fmt.Errorf("control error: %w", err)
	}
	if credErr != nil {
		return PeerCred{}, fmt.Errorf("getsockopt SO_PEERCRED: %w", credErr)
	}

	return PeerCred{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}
