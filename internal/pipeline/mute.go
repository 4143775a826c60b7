package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
)

// MutePolicy answers whether recognized caller speech should be discarded.
// The recognition stage consults it once per utterance boundary.
type MutePolicy interface {
	Muted() bool
}

// BusyReporter exposes whether a latency hold is in progress.
type BusyReporter interface {
	Busy() bool
}

// MuteCoordinator mutes recognition while the assistant is speaking or a
// latency hold is pending. It keeps no state of its own beyond the
// assistant-speaking flag it derives from the marker frames passing through
// it; hold state is read live from the injector.
type MuteCoordinator struct {
	assistantSpeaking atomic.Bool
	busy              BusyReporter
}

// NewMuteCoordinator builds a coordinator delegating hold state to busy,
// which may be nil when no injector is wired.
func NewMuteCoordinator(busy BusyReporter) *MuteCoordinator {
	return &MuteCoordinator{busy: busy}
}

// Muted implements MutePolicy.
func (m *MuteCoordinator) Muted() bool {
	if m.assistantSpeaking.Load() {
		return true
	}
	return m.busy != nil && m.busy.Busy()
}

// AssistantSpeaking reports the tracked assistant speech state.
func (m *MuteCoordinator) AssistantSpeaking() bool {
	return m.assistantSpeaking.Load()
}

func (m *MuteCoordinator) Name() string { return "stt_mute" }

func (m *MuteCoordinator) Process(ctx context.Context, f frame.Frame, emit EmitFunc) error {
	switch f.Kind {
	case frame.KindAssistantStarted:
		m.assistantSpeaking.Store(true)
	case frame.KindAssistantStopped:
		m.assistantSpeaking.Store(false)
	}
	return emit(ctx, f)
}
