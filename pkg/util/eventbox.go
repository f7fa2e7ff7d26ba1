package util

import (
	"sync"
)

// EventType identifies a lifecycle event published by a component.
type EventType int

const (
	EvtModelLoading EventType = iota
	EvtModelReady
	EvtModelError
	EvtIndexLoaded
	EvtIndexReset
	EvtIndexSaved
	EvtSearchStart
	EvtSearchComplete
	EvtSyncStart
	EvtSyncProgress
	EvtSyncComplete
)

var eventNames = [...]string{
	EvtModelLoading:   "model-loading",
	EvtModelReady:     "model-ready",
	EvtModelError:     "model-error",
	EvtIndexLoaded:    "index-loaded",
	EvtIndexReset:     "index-reset",
	EvtIndexSaved:     "index-saved",
	EvtSearchStart:    "search-start",
	EvtSearchComplete: "search-complete",
	EvtSyncStart:      "sync-start",
	EvtSyncProgress:   "sync-progress",
	EvtSyncComplete:   "sync-complete",
}

func (e EventType) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// EventBox holds the latest payload of each event type and wakes waiters
// when one is set (modeled on fzf's event box). Components publish without
// knowing who listens; a nil *EventBox drops everything.
type EventBox struct {
	events map[EventType]any
	cond   *sync.Cond
	ignore map[EventType]bool
}

// NewEventBox creates an empty event box.
func NewEventBox() *EventBox {
	return &EventBox{
		events: make(map[EventType]any),
		cond:   sync.NewCond(&sync.Mutex{}),
		ignore: make(map[EventType]bool),
	}
}

// Set records data for event and wakes all waiters.
func (b *EventBox) Set(event EventType, data any) {
	if b == nil {
		return
	}
	b.cond.L.Lock()
	defer b.cond.L.Unlock()

	if b.ignore[event] {
		return
	}
	b.events[event] = data
	b.cond.Broadcast()
}

// Clear removes event.
func (b *EventBox) Clear(event EventType) {
	if b == nil {
		return
	}
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	delete(b.events, event)
}

// Peek returns the payload of event without blocking.
func (b *EventBox) Peek(event EventType) (any, bool) {
	if b == nil {
		return nil, false
	}
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	data, ok := b.events[event]
	return data, ok
}

// Wait blocks until any of events is set and returns the first one found
// in argument order.
func (b *EventBox) Wait(events ...EventType) (EventType, any) {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()

	for {
		for _, event := range events {
			if data, ok := b.events[event]; ok {
				return event, data
			}
		}
		b.cond.Wait()
	}
}

// Ignore drops current and future values of event.
func (b *EventBox) Ignore(event EventType) {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	b.ignore[event] = true
	delete(b.events, event)
}

// Unignore lets event be recorded again.
func (b *EventBox) Unignore(event EventType) {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	delete(b.ignore, event)
}

// Reset clears all recorded events.
func (b *EventBox) Reset() {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	b.events = make(map[EventType]any)
}

// Events returns a snapshot of recorded events.
func (b *EventBox) Events() map[EventType]any {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()

	snapshot := make(map[EventType]any, len(b.events))
	for k, v := range b.events {
		snapshot[k] = v
	}
	return snapshot
}
