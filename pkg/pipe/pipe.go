// Package pipe wraps raw file descriptors in owned handles. A PacketPipe
// owns its descriptor: closing the pipe closes the fd, and the fd must not
// be used after the owning pipe is closed.
package pipe

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type PacketPipe struct {
	mu     sync.Mutex
	fd     int
	closed bool
}

// NewFdPipe takes ownership of fd.
func NewFdPipe(fd int) *PacketPipe {
	return &PacketPipe{fd: fd}
}

// Fd returns the wrapped descriptor. The descriptor stays owned by the
// pipe; callers borrow it and must not close it.
func (p *PacketPipe) Fd() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1, fmt.Errorf("packet pipe is closed")
	}
	return p.fd, nil
}

func (p *PacketPipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.fd < 0 {
		return nil
	}
	return unix.Close(p.fd)
}
