//go:build linux

package ipc

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCred is the subset of SO_PEERCRED a caller needs for logging; kept
// separate from unix.Ucred so non-Linux builds don't need the syscall type.
type peerCred struct {
	UID uint32
	GID uint32
	PID int32
}

// peerCredential reads the connecting process's uid/gid/pid off the kernel
// socket via SO_PEERCRED. Unix sockets are the only transport here (spec's
// Non-goals exclude network-transparent transport), so the peer is always
// local and this lookup is always meaningful.
func peerCredential(conn net.Conn) (peerCred, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return peerCred{}, fmt.Errorf("connection is not a Unix socket")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return peerCred{}, err
	}
	var ucred *unix.Ucred
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return peerCred{}, err
	}
	if sockErr != nil {
		return peerCred{}, sockErr
	}
	return peerCred{UID: ucred.Uid, GID: ucred.Gid, PID: ucred.Pid}, nil
}
