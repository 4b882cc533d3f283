package ecs

type eventInstance[T any] struct {
	id    uint64
	value T
}

// Events is a double-buffered event queue stored as a resource. Events sent during one frame stay
// readable through the end of the next, then are dropped by Maintain.
type Events[T any] struct {
	previous []eventInstance[T]
	current  []eventInstance[T]
	nextID   uint64
}

func (e *Events[T]) Send(value T) {
	e.current = append(e.current, eventInstance[T]{id: e.nextID, value: value})
	e.nextID++
}

// Update drops the older buffer and starts a new frame.
func (e *Events[T]) Update() {
	e.previous, e.current = e.current, e.previous[:0]
}

// Len is the number of events still buffered.
func (e *Events[T]) Len() int {
	return len(e.previous) + len(e.current)
}

func (e *Events[T]) oldestID() uint64 {
	if len(e.previous) > 0 {
		return e.previous[0].id
	}
	if len(e.current) > 0 {
		return e.current[0].id
	}
	return e.nextID
}

// EventReader tracks how far one consumer has read an Events queue.
type EventReader[T any] struct {
	next uint64
}

// NewEventReader returns a reader that starts at the oldest buffered event.
func NewEventReader[T any]() *EventReader[T] {
	return &EventReader[T]{}
}

// Read returns every event not yet seen by r, oldest first, and the number of events r missed
// because they were dropped before it read them.
func (r *EventReader[T]) Read(events *Events[T]) ([]T, uint64) {
	// A reader moved onto a newer or different queue starts at its end.
	if r.next > events.nextID {
		r.next = events.nextID
	}

	var missed uint64
	if oldest := events.oldestID(); r.next < oldest {
		missed = oldest - r.next
		r.next = oldest
	}

	out := make([]T, 0, events.nextID-r.next)
	for _, buf := range [][]eventInstance[T]{events.previous, events.current} {
		for _, ev := range buf {
			if ev.id >= r.next {
				out = append(out, ev.value)
			}
		}
	}
	r.next = events.nextID
	return out, missed
}

// -------------------------------------------------------------------------------------------------
// World integration
// -------------------------------------------------------------------------------------------------

// ReadsEvents declares a read of T's event queue.
func ReadsEvents[T any]() AccessItem {
	return ReadsResource[Events[T]]()
}

// WritesEvents declares a write of T's event queue, which sending requires.
func WritesEvents[T any]() AccessItem {
	return WritesResource[Events[T]]()
}

// RegisterEvent adds an Events[T] resource to w and swaps its buffers on every Maintain.
func RegisterEvent[T any](w *World) {
	EnsureResource[Events[T]](w)

	key := KeyOf[Events[T]]()
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()
	if _, ok := w.eventUpdaters[key]; ok {
		return
	}
	w.eventUpdaters[key] = func(w *World) {
		mut, ok := GetMut[Events[T]](w.resources, w.LastMaintained(), w.Tick())
		if !ok {
			return
		}
		defer mut.Release()
		mut.Ptr().Update()
	}
}

// SendEvent queues value. Panics if T was never registered as an event.
func SendEvent[T any](o Observer, value T) {
	mut := WriteResource[Events[T]](o)
	defer mut.Release()
	mut.Ptr().Send(value)
}

// ReadEvents returns the events of type T that r has not seen yet.
func ReadEvents[T any](o Observer, r *EventReader[T]) []T {
	ref := ReadResource[Events[T]](o)
	defer ref.Release()

	events, missed := r.Read(ref.value)
	if missed > 0 {
		o.observedWorld().logger.Warn().
			Str("event", KeyOf[T]().String()).
			Uint64("missed", missed).
			Msg("event reader fell behind")
	}
	return events
}

func (w *World) updateEvents() {
	w.eventsMu.Lock()
	updaters := make([]func(*World), 0, len(w.eventUpdaters))
	for _, update := range w.eventUpdaters {
		updaters = append(updaters, update)
	}
	w.eventsMu.Unlock()

	for _, update := range updaters {
		update(w)
	}
}
