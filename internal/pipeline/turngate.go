package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
)

// TurnGate drops caller audio between the end of a caller turn and the end
// of the assistant's reply. On a half-duplex call the caller cannot barge
// in, so anything said while a reply is pending or playing would otherwise
// leak into the next recognition window.
//
// The gate arms on caller speech start and closes on the matching speech
// stop; a stop without a prior start is ignored. Assistant speech end opens
// the gate and disarms it. Non-audio frames always pass.
type TurnGate struct {
	mu      sync.Mutex
	enabled bool
	armed   bool
	gated   bool
	dropped uint64

	log    *slog.Logger
	onDrop func()
}

// GateState is a point-in-time copy of the gate's state.
type GateState struct {
	Enabled bool
	Armed   bool
	Gated   bool
	Dropped uint64
}

// NewTurnGate returns an enabled gate. onDrop, when non-nil, is invoked once
// per dropped frame.
func NewTurnGate(log *slog.Logger, onDrop func()) *TurnGate {
	if log == nil {
		log = slog.Default()
	}
	return &TurnGate{enabled: true, log: log, onDrop: onDrop}
}

func (g *TurnGate) Name() string { return "turn_gate" }

func (g *TurnGate) Process(ctx context.Context, f frame.Frame, emit EmitFunc) error {
	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		return emit(ctx, f)
	}

	switch f.Kind {
	case frame.KindCallerStarted:
		g.armed = true

	case frame.KindCallerStopped:
		if g.armed {
			if !g.gated {
				g.log.Debug("turn gate closed")
			}
			g.gated = true
			g.dropped = 0
		}

	case frame.KindAssistantStopped:
		if g.gated {
			g.log.Debug("turn gate opened", "dropped_frames", g.dropped)
		}
		g.gated = false
		g.armed = false

	case frame.KindAudioIn:
		if g.gated {
			g.dropped++
			onDrop := g.onDrop
			g.mu.Unlock()
			if onDrop != nil {
				onDrop()
			}
			return nil
		}
	}
	g.mu.Unlock()
	return emit(ctx, f)
}

// Enable turns gating on and resets all turn state.
func (g *TurnGate) Enable() { g.reset(true) }

// Disable turns the gate into a passthrough and resets all turn state.
func (g *TurnGate) Disable() { g.reset(false) }

func (g *TurnGate) reset(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
	g.armed = false
	g.gated = false
	g.dropped = 0
}

// Snapshot returns the current gate state.
func (g *TurnGate) Snapshot() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateState{Enabled: g.enabled, Armed: g.armed, Gated: g.gated, Dropped: g.dropped}
}
