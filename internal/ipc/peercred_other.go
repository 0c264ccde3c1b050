//go:build !linux

package ipc

import (
	"fmt"
	"net"
)

// peerCred mirrors the Linux SO_PEERCRED fields; left zeroed where no
// equivalent lookup is implemented for this platform.
type peerCred struct {
	UID uint32
	GID uint32
	PID int32
}

func peerCredential(conn net.Conn) (peerCred, error) {
	return peerCred{}, fmt.Errorf("peer credential lookup not supported on this platform")
}
