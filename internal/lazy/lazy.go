// Package lazy holds process-wide resources that are expensive to acquire,
// such as a loaded model, and are read-only once available.
package lazy

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Value loads its resource on the first Get. A successful load is kept for the
// life of the process; a failed load is not cached, so a later Get tries
// again. Concurrent callers that arrive while a load is running wait for that
// load instead of starting their own.
type Value[T any] struct {
	load func() (T, error)

	mu     sync.RWMutex
	loaded bool
	v      T

	group singleflight.Group
}

func New[T any](load func() (T, error)) *Value[T] {
	return &Value[T]{load: load}
}

func (l *Value[T]) Get() (T, error) {
	if v, ok := l.cached(); ok {
		return v, nil
	}
	res, err, _ := l.group.Do("load", func() (any, error) {
		if v, ok := l.cached(); ok {
			return v, nil
		}
		v, err := l.load()
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.v, l.loaded = v, true
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Loaded reports whether the resource is already available, without loading it.
func (l *Value[T]) Loaded() bool {
	_, ok := l.cached()
	return ok
}

func (l *Value[T]) cached() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v, l.loaded
}
