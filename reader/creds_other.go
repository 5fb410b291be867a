//go:build !linux

package reader

import (
	"errors"
	"net"
)

func peerCredentials(c net.Conn) (PeerCred, error) {
	return PeerCred{}, errors.New("peer credentials are unimplemented on this platform")
}
