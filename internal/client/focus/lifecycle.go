package focus

import "sync"

// LifecycleObserver reports that the app lost the user's attention: window
// blur, hidden page, or the process moving to the background. Observe
// returns a function that unregisters onSuspend.
type LifecycleObserver interface {
	Observe(onSuspend func(source string)) (unsubscribe func())
}

// ObserverFunc adapts a function to LifecycleObserver.
type ObserverFunc func(onSuspend func(source string)) func()

// Observe implements LifecycleObserver.
func (f ObserverFunc) Observe(onSuspend func(source string)) func() { return f(onSuspend) }

// EventSource is a LifecycleObserver fed by the host UI, e.g. terminal
// focus events.
type EventSource struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(string)
}

// NewEventSource creates an empty source.
func NewEventSource() *EventSource {
	return &EventSource{handlers: make(map[int]func(string))}
}

// Observe implements LifecycleObserver.
func (e *EventSource) Observe(onSuspend func(source string)) func() {
	e.mu.Lock()
	id := e.next
	e.next++
	e.handlers[id] = onSuspend
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

// Emit notifies every registered handler.
func (e *EventSource) Emit(source string) {
	e.mu.Lock()
	hs := make([]func(string), 0, len(e.handlers))
	for _, h := range e.handlers {
		hs = append(hs, h)
	}
	e.mu.Unlock()

	for _, h := range hs {
		h(source)
	}
}
