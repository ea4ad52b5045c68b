// Package eventloop wraps a Linux epoll instance used to drive a single
// worker's readiness-based dispatch loop. Each worker goroutine owns
// exactly one Loop.
package eventloop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pollTimeoutMS mirrors the original source's literal epoll_wait(..., 1)
// call: a 1ms timeout keeps the loop responsive to the timing wheel
// without spinning at 100% CPU when nothing is ready.
const pollTimeoutMS = 1

// Loop owns one epoll instance and the set of registered file
// descriptors. It is not safe for concurrent use.
type Loop struct {
	epfd  int
	armed map[int]bool // fd -> write-readiness currently armed
}

// New creates an epoll instance.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Loop{epfd: epfd, armed: make(map[int]bool)}, nil
}

// Close releases the epoll instance.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}

// Add registers fd for read readiness, and for write readiness too if
// armWrite is set.
func (l *Loop) Add(fd int, armWrite bool) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN}
	if armWrite {
		ev.Events |= unix.EPOLLOUT
	}
	l.armed[fd] = armWrite
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// SetWriteArmed re-arms or disarms write readiness for fd, used when
// the engine transitions aggression behavior on state changes:
// write-readiness is disarmed entering Querying at aggression ≤ 1.
func (l *Loop) SetWriteArmed(fd int, armed bool) error {
	if l.armed[fd] == armed {
		return nil
	}
	ev := unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN}
	if armed {
		ev.Events |= unix.EPOLLOUT
	}
	l.armed[fd] = armed
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove unregisters fd.
func (l *Loop) Remove(fd int) error {
	delete(l.armed, fd)
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Event is a readiness notification for one file descriptor.
type Event struct {
	FD       int
	Readable bool
	Writable bool
}

// Wait blocks for up to 1ms and returns whatever readiness events fired,
// reusing buf as scratch space to avoid allocating per call.
func (l *Loop) Wait(buf []unix.EpollEvent) ([]Event, error) {
	n, err := unix.EpollWait(l.epfd, buf, pollTimeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := buf[i]
		events = append(events, Event{
			FD:       int(e.Fd),
			Readable: e.Events&unix.EPOLLIN != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
		})
	}
	return events, nil
}
