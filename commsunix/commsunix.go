// Package commsunix implements the unix-comms-helper collaborator
// named in spec.md §6: socket creation, datagram send/recv, and
// ancillary-data file-descriptor passing, the Go port of the source's
// comms_unix_* calls built on golang.org/x/sys/unix SCM_RIGHTS
// support.
package commsunix

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SocketPair creates a DGRAM|NONBLOCK|CLOEXEC AF_UNIX socket pair, the
// Go analogue of the source's socketpair() call in _spawn_worker.
func SocketPair() (parentFD, childFD int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("commsunix: socketpair: %w", err)
	}
	return fds[0], fds[1], nil
}

// AbstractListener binds a nonblocking, close-on-exec SOCK_STREAM
// socket at the Linux abstract namespace address "@name" (leading NUL
// then name), the public endpoint address scheme spec.md §6 requires.
func AbstractListener(name string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("commsunix: socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: "@" + name}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("commsunix: bind: %w", err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("commsunix: listen: %w", err)
	}
	return fd, nil
}

// Send writes data as one datagram on fd, optionally passing passedFD
// via SCM_RIGHTS ancillary data. passedFD < 0 means "no fd to pass".
func Send(fd int, data []byte, passedFD int) error {
	var oob []byte
	if passedFD >= 0 {
		oob = unix.UnixRights(passedFD)
	}
	return unix.Sendmsg(fd, data, oob, nil, 0)
}

// Recv reads one datagram off fd into buf, returning the number of
// data bytes read and any fd passed alongside it (-1 if none).
func Recv(fd int, buf []byte) (n int, receivedFD int, err error) {
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := unix.Recvmsg(fd, buf, oob, 0)
	if err != nil {
		return 0, -1, err
	}
	if oobn == 0 {
		return n, -1, nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return n, -1, fmt.Errorf("commsunix: parse control message: %w", err)
	}
	for _, c := range cmsgs {
		fds, err := unix.ParseUnixRights(&c)
		if err != nil || len(fds) == 0 {
			continue
		}
		return n, fds[0], nil
	}
	return n, -1, nil
}
