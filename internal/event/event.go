package event

import (
	"sync"

	"go.lsp.dev/protocol"
)

// Disposable releases a subscription. Dispose is safe to call more than once.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to Disposable. The function runs at most once.
func DisposeFunc(fn func()) Disposable {
	return &disposeOnce{fn: fn}
}

type disposeOnce struct {
	once sync.Once
	fn   func()
}

func (d *disposeOnce) Dispose() {
	d.once.Do(d.fn)
}

// DisposeAll disposes every handle and returns an empty slice ready for reuse.
func DisposeAll(handles []Disposable) []Disposable {
	for _, h := range handles {
		if h != nil {
			h.Dispose()
		}
	}
	return handles[:0]
}

// Change is a single replaced range, expressed in the coordinates of the
// document before the change.
type Change struct {
	Range protocol.Range
	Text  string
}

// ContentChangeEvent describes one document mutation.
type ContentChangeEvent struct {
	Changes []Change
	// IsFlush is set when the whole content was replaced.
	IsFlush bool
	// Version is the document version after the change.
	Version int32
}

type listener[T any] struct {
	id int
	fn func(T)
}

// Emitter is a list of listeners for one kind of event.
// The zero value is ready to use.
type Emitter[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners []listener[T]
}

// Subscribe registers fn and returns the handle that removes it.
func (e *Emitter[T]) Subscribe(fn func(T)) Disposable {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener[T]{id: id, fn: fn})
	e.mu.Unlock()

	return DisposeFunc(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	})
}

// Fire calls every listener registered at the time of the call, in
// subscription order. Listeners may dispose themselves while being called.
func (e *Emitter[T]) Fire(value T) {
	e.mu.Lock()
	snapshot := make([]listener[T], len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	for _, l := range snapshot {
		l.fn(value)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
