//go:build !linux

package watcher

import "errors"

// ErrNotifyUnsupported is returned on platforms without inotify.
var ErrNotifyUnsupported = errors.New("directory notifications are only supported on linux")

// Notifier is unavailable on this platform.
type Notifier struct{}

// NewNotifier always fails on this platform; the daemon falls back to plain polling.
func NewNotifier(dir string, match func(name string) bool) (*Notifier, error) {
	return nil, ErrNotifyUnsupported
}

// C returns a nil channel.
func (n *Notifier) C() <-chan struct{} { return nil }

// Close is a no-op.
func (n *Notifier) Close() error { return nil }
