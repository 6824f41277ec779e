package artifact

import (
	"fmt"
	"sync"
)

// Location is a deferred output location. The holder assigns it while
// producers are being registered; a task or consumer reads it with Get.
//
// Until the first Get the holder may move the location (when a later
// producer for the same artifact type is registered). After the first Get
// the path is fixed and any registration that would move it is rejected.
type Location struct {
	mu       sync.Mutex
	path     string
	set      bool
	observed bool
}

// NewLocation returns an unresolved location.
func NewLocation() *Location {
	return &Location{}
}

// Get returns the resolved path and pins it.
// Returns ErrUnresolved if no producer registration has assigned it yet.
func (l *Location) Get() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		return "", ErrUnresolved
	}
	l.observed = true
	return l.path, nil
}

// Peek returns the current path without pinning it.
func (l *Location) Peek() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path, l.set
}

// Observed reports whether a consumer has read the location.
func (l *Location) Observed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.observed
}

// canMove reports whether assigning path would not break an earlier read.
func (l *Location) canMove(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.observed || l.path == path
}

// assign sets the path. It reports whether an already-set path changed.
func (l *Location) assign(path string) (moved bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set && l.path == path {
		return false, nil
	}
	if l.observed {
		return false, fmt.Errorf("%w: %s", ErrLocationObserved, l.path)
	}
	moved = l.set
	l.path = path
	l.set = true
	return moved, nil
}
