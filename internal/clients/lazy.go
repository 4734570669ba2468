// Package clients builds expensive external clients on first use.
package clients

import (
	"context"
	"errors"
	"sync"
)

// ErrNotConfigured is returned by GetOrCreate when no constructor was supplied.
var ErrNotConfigured = errors.New("client not configured")

// Lazy memoizes the first successful result of its constructor. A failed
// construction is not cached, so the next call tries again.
type Lazy[T any] struct {
	name   string
	create func(ctx context.Context) (T, error)

	mu    sync.Mutex
	value T
	ready bool
}

// NewLazy wraps create. A nil create makes every GetOrCreate fail with ErrNotConfigured.
func NewLazy[T any](name string, create func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{name: name, create: create}
}

func (l *Lazy[T]) GetOrCreate(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return l.value, nil
	}
	var zero T
	if l.create == nil {
		return zero, &notConfiguredError{name: l.name}
	}
	v, err := l.create(ctx)
	if err != nil {
		return zero, err
	}
	l.value = v
	l.ready = true
	return v, nil
}

// Peek returns the value only if it was already created.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ready
}

type notConfiguredError struct {
	name string
}

func (e *notConfiguredError) Error() string {
	return e.name + ": " + ErrNotConfigured.Error()
}

func (e *notConfiguredError) Unwrap() error {
	return ErrNotConfigured
}
