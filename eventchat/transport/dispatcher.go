package transport

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw data of a server event.
type Handler func(data json.RawMessage)

// Subscriber is anything that can register event handlers.
type Subscriber interface {
	On(event string, fn Handler) (unsubscribe func())
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// Dispatcher routes server events to every handler registered for the event
// name, in registration order. The zero value is ready to use.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]handlerEntry
}

// On adds fn for event. Registering never displaces other handlers.
func (d *Dispatcher) On(event string, fn Handler) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[string][]handlerEntry)
	}
	d.nextID++
	id := d.nextID
	d.handlers[event] = append(d.handlers[event], handlerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(event, id) })
	}
}

// Off removes every handler for event.
func (d *Dispatcher) Off(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, event)
}

// Dispatch calls the handlers for event and returns how many ran.
// Handlers run on the caller's goroutine, outside the dispatcher lock, so a
// handler may subscribe or unsubscribe.
func (d *Dispatcher) Dispatch(event string, data json.RawMessage) int {
	d.mu.RLock()
	entries := append([]handlerEntry(nil), d.handlers[event]...)
	d.mu.RUnlock()

	for _, e := range entries {
		e.fn(data)
	}
	return len(entries)
}

// Count returns the number of handlers registered for event.
func (d *Dispatcher) Count(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}

func (d *Dispatcher) remove(event string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[event]
	for i, e := range list {
		if e.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.handlers, event)
		return
	}
	d.handlers[event] = list
}

// decodeReporter is implemented by subscribers that want to hear about
// payloads that failed to decode.
type decodeReporter interface {
	reportDecodeError(event string, err error)
}

// Subscribe registers fn for ev, decoding each payload into T. Payloads that
// fail to decode are dropped (and reported when sub is a *Channel).
func Subscribe[T any](sub Subscriber, ev Event[T], fn func(T)) (unsubscribe func()) {
	return sub.On(ev.Name, func(data json.RawMessage) {
		var payload T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				if r, ok := sub.(decodeReporter); ok {
					r.reportDecodeError(ev.Name, err)
				}
				return
			}
		}
		fn(payload)
	})
}
