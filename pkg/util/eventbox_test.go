package util

import (
	"sync"
	"testing"
	"time"
)

func TestEventBox_SetAndPeek(t *testing.T) {
	eb := NewEventBox()

	eb.Set(EvtModelLoading, "nomic-embed-text-v1.5")

	data, ok := eb.Peek(EvtModelLoading)
	if !ok {
		t.Fatal("expected event to be set")
	}
	if data != "nomic-embed-text-v1.5" {
		t.Errorf("expected model name, got %v", data)
	}

	if _, ok := eb.Peek(EvtModelReady); ok {
		t.Error("expected EvtModelReady to not be set")
	}
}

func TestEventBox_Clear(t *testing.T) {
	eb := NewEventBox()

	eb.Set(EvtIndexSaved, 3)
	eb.Clear(EvtIndexSaved)

	if _, ok := eb.Peek(EvtIndexSaved); ok {
		t.Error("expected event to be cleared")
	}
}

func TestEventBox_Reset(t *testing.T) {
	eb := NewEventBox()

	eb.Set(EvtSyncStart, nil)
	eb.Set(EvtSyncComplete, nil)
	eb.Reset()

	if n := len(eb.Events()); n != 0 {
		t.Errorf("expected no events after reset, got %d", n)
	}
}

func TestEventBox_Ignore(t *testing.T) {
	eb := NewEventBox()

	eb.Ignore(EvtSyncProgress)
	eb.Set(EvtSyncProgress, 10)
	if _, ok := eb.Peek(EvtSyncProgress); ok {
		t.Error("ignored event should not be recorded")
	}

	eb.Unignore(EvtSyncProgress)
	eb.Set(EvtSyncProgress, 11)
	if data, _ := eb.Peek(EvtSyncProgress); data != 11 {
		t.Errorf("expected 11, got %v", data)
	}
}

func TestEventBox_Wait(t *testing.T) {
	eb := NewEventBox()

	var wg sync.WaitGroup
	wg.Add(1)
	var got EventType
	go func() {
		defer wg.Done()
		got, _ = eb.Wait(EvtModelReady, EvtModelError)
	}()

	time.Sleep(10 * time.Millisecond)
	eb.Set(EvtModelError, nil)
	wg.Wait()

	if got != EvtModelError {
		t.Errorf("expected EvtModelError, got %v", got)
	}
}

func TestEventBox_NilIsNoop(t *testing.T) {
	var eb *EventBox
	eb.Set(EvtSearchStart, nil)
	eb.Clear(EvtSearchStart)
	if _, ok := eb.Peek(EvtSearchStart); ok {
		t.Error("nil box should never report events")
	}
}

func TestEventType_String(t *testing.T) {
	if EvtIndexReset.String() != "index-reset" {
		t.Errorf("unexpected name %q", EvtIndexReset.String())
	}
	if EventType(99).String() != "unknown" {
		t.Error("out of range event should be unknown")
	}
}
