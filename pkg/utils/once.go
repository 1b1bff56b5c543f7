package utils

import "sync/atomic"

// OnceValue hands a value from one goroutine to any number of waiters.
// Set may be called once; Get blocks until the value is available.
type OnceValue[T any] struct {
	value atomic.Pointer[T]
	done  chan struct{}
}

func NewOnceValue[T any]() *OnceValue[T] {
	ov := &OnceValue[T]{
		done: make(chan struct{}),
	}
	return ov
}

func (ov *OnceValue[T]) Set(value T) {
	ov.value.Store(&value)
	close(ov.done)
}

func (ov *OnceValue[T]) Get() T {
	<-ov.done
	return *ov.value.Load()
}
