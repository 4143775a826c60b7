package pipeline

import (
	"context"
	"testing"

	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
)

type fakeBusy struct{ busy bool }

func (f *fakeBusy) Busy() bool { return f.busy }

func TestMuteCoordinatorTruthTable(t *testing.T) {
	busy := &fakeBusy{}
	m := NewMuteCoordinator(busy)
	sink := func(context.Context, frame.Frame) error { return nil }

	if m.Muted() {
		t.Fatalf("Muted() = true on idle call")
	}

	busy.busy = true
	if !m.Muted() {
		t.Fatalf("Muted() = false during hold, want true")
	}

	busy.busy = false
	if err := m.Process(context.Background(), frame.AssistantStarted(), sink); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !m.Muted() {
		t.Fatalf("Muted() = false while assistant speaks, want true")
	}
	if !m.AssistantSpeaking() {
		t.Fatalf("AssistantSpeaking() = false, want true")
	}

	busy.busy = true // both at once
	if !m.Muted() {
		t.Fatalf("Muted() = false with speech and hold, want true")
	}

	busy.busy = false
	if err := m.Process(context.Background(), frame.AssistantStopped(), sink); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if m.Muted() {
		t.Fatalf("Muted() = true after assistant stopped, want false")
	}
}

func TestMuteCoordinatorForwardsAllFrames(t *testing.T) {
	m := NewMuteCoordinator(nil)
	var got []frame.Frame
	sink := collectSink(&got)

	frames := []frame.Frame{
		frame.AssistantStarted(),
		audioIn(),
		frame.Transcript("hallo", false),
		frame.AssistantStopped(),
	}
	for _, f := range frames {
		if err := m.Process(context.Background(), f, sink); err != nil {
			t.Fatalf("Process(%v) error = %v", f.Kind, err)
		}
	}
	if len(got) != len(frames) {
		t.Fatalf("sink got %d frames, want %d", len(got), len(frames))
	}
}

func TestMuteCoordinatorNilBusyReporter(t *testing.T) {
	m := NewMuteCoordinator(nil)
	if m.Muted() {
		t.Fatalf("Muted() = true with nil reporter, want false")
	}
}
