// ABOUTME: Listener interface and synchronous event fan-out
// ABOUTME: Listeners are called in registration order on the goroutine that produced the event
package streamplayer

import (
	"fmt"
	"reflect"
	"sync"
)

// Listener observes a Player. Callbacks run synchronously on the control
// goroutine or the playback worker; a slow listener slows playback.
// Listeners are identified with ==, so implementations must be comparable
// types such as pointers.
type Listener interface {
	// Opened is called once a source has been opened, with its properties
	Opened(origin any, properties map[string]any)

	// Progress is called after each chunk is written to the device. pcm is
	// only valid for the duration of the call.
	Progress(encodedBytes int64, microseconds int64, pcm []byte, properties map[string]any)

	StatusUpdated(event Event)
}

// Callbacks adapts plain functions to a Listener. Register it by pointer;
// nil fields are skipped.
type Callbacks struct {
	OnOpened   func(origin any, properties map[string]any)
	OnProgress func(encodedBytes int64, microseconds int64, pcm []byte, properties map[string]any)
	OnStatus   func(event Event)
}

func (c *Callbacks) Opened(origin any, properties map[string]any) {
	if c.OnOpened != nil {
		c.OnOpened(origin, properties)
	}
}

func (c *Callbacks) Progress(encodedBytes int64, microseconds int64, pcm []byte, properties map[string]any) {
	if c.OnProgress != nil {
		c.OnProgress(encodedBytes, microseconds, pcm, properties)
	}
}

func (c *Callbacks) StatusUpdated(event Event) {
	if c.OnStatus != nil {
		c.OnStatus(event)
	}
}

// dispatcher keeps a copy-on-write listener list
type dispatcher struct {
	mu        sync.Mutex
	listeners []Listener
}

func (d *dispatcher) add(l Listener) error {
	if isNil(l) {
		return fmt.Errorf("%w: nil listener", ErrInvalidArgument)
	}
	if !reflect.TypeOf(l).Comparable() {
		return fmt.Errorf("%w: listener type %T is not comparable", ErrInvalidArgument, l)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make([]Listener, len(d.listeners), len(d.listeners)+1)
	copy(next, d.listeners)
	d.listeners = append(next, l)
	return nil
}

func (d *dispatcher) remove(l Listener) bool {
	if isNil(l) || !reflect.TypeOf(l).Comparable() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, x := range d.listeners {
		if x == l {
			next := make([]Listener, 0, len(d.listeners)-1)
			next = append(next, d.listeners[:i]...)
			d.listeners = append(next, d.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// isNil catches nil interfaces and interfaces holding a nil pointer, map,
// slice, func or channel
func isNil(l Listener) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (d *dispatcher) snapshot() []Listener {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listeners
}

func (d *dispatcher) len() int {
	return len(d.snapshot())
}

func (d *dispatcher) opened(origin any, properties map[string]any) {
	for _, l := range d.snapshot() {
		l.Opened(origin, properties)
	}
}

func (d *dispatcher) progress(encodedBytes, microseconds int64, pcm []byte, properties map[string]any) {
	for _, l := range d.snapshot() {
		l.Progress(encodedBytes, microseconds, pcm, properties)
	}
}

func (d *dispatcher) status(e Event) {
	for _, l := range d.snapshot() {
		l.StatusUpdated(e)
	}
}
