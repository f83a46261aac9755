//go:build linux

package watcher

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Notifier delivers a wake-up whenever a file is closed after writing, or
// moved into, the watched directory. Wake-ups coalesce: many events between
// two reads of C produce a single signal.
type Notifier struct {
	fd    int
	wd    int
	match func(name string) bool
	c     chan struct{}

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewNotifier starts watching dir. match filters which file names wake the
// daemon; nil accepts every name.
func NewNotifier(dir string, match func(name string) bool) (*Notifier, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, err
	}

	wd, err := unix.InotifyAddWatch(fd, dir, unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	n := &Notifier{
		fd:     fd,
		wd:     wd,
		match:  match,
		c:      make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go n.readEvents()
	return n, nil
}

// C returns the wake-up channel.
func (n *Notifier) C() <-chan struct{} {
	return n.c
}

// Close stops the reader goroutine and releases the inotify descriptor.
func (n *Notifier) Close() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopCh)
		<-n.done
		unix.InotifyRmWatch(n.fd, uint32(n.wd))
		err = unix.Close(n.fd)
	})
	return err
}

func (n *Notifier) readEvents() {
	defer close(n.done)

	buf := make([]byte, 4096)

	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		count, err := unix.Read(n.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return
		}

		if count < unix.SizeofInotifyEvent {
			continue
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= count {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameLen := int(event.Len)

			if nameLen > 0 {
				start := offset + unix.SizeofInotifyEvent
				name := strings.TrimRight(string(buf[start:start+nameLen]), "\x00")
				if n.match == nil || n.match(name) {
					n.signal()
				}
			}

			offset += unix.SizeofInotifyEvent + nameLen
		}
	}
}

func (n *Notifier) signal() {
	select {
	case n.c <- struct{}{}:
	default:
	}
}
