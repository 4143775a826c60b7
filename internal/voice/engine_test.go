package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dr-redtec/Voice-AI-Latency/internal/callstore"
	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
	"github.com/dr-redtec/Voice-AI-Latency/internal/observability"
	"github.com/dr-redtec/Voice-AI-Latency/internal/pipeline"
	"github.com/dr-redtec/Voice-AI-Latency/internal/session"
)

func newTestEngine(t *testing.T, provider Provider, tweak func(*EngineOptions)) (*Engine, *session.Manager, *callstore.InMemoryStore) {
	t.Helper()
	sched, err := pipeline.NewDelayScheduler(pipeline.StrategyRoundRobin, []time.Duration{time.Millisecond})
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}
	sessions := session.NewManager(time.Minute)
	store := callstore.NewInMemoryStore()
	opts := EngineOptions{
		Provider:  provider,
		Sessions:  sessions,
		Calls:     store,
		Scheduler: sched,
		Metrics:   observability.NewMetrics(fmt.Sprintf("test_engine_%d", time.Now().UnixNano())),
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Greetings: []string{"Guten Tag."},
		Endpointer: EndpointerConfig{
			StartRMS:  500,
			StopRMS:   250,
			MinSpeech: 40 * time.Millisecond,
			HangOver:  60 * time.Millisecond,
		},
	}
	if tweak != nil {
		tweak(&opts)
	}
	e := NewEngine(opts)
	// Tests play assistant audio faster than real time.
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e, sessions, store
}

type callHarness struct {
	t        *testing.T
	inbound  chan frame.Frame
	outbound chan frame.Frame
	result   chan error
}

func startCall(ctx context.Context, t *testing.T, e *Engine, number, caller string) *callHarness {
	t.Helper()
	h := &callHarness{
		t:        t,
		inbound:  make(chan frame.Frame, 64),
		outbound: make(chan frame.Frame, 256),
		result:   make(chan error, 1),
	}
	go func() {
		h.result <- e.RunCall(ctx, number, caller, h.inbound, h.outbound)
	}()
	return h
}

// collect drains outbound frames until none arrives for quiet.
func (h *callHarness) collect(quiet time.Duration) []frame.Frame {
	var got []frame.Frame
	for {
		select {
		case f := <-h.outbound:
			got = append(got, f)
		case <-time.After(quiet):
			return got
		}
	}
}

// sendUtterance feeds enough loud audio to open an utterance and enough
// silence to close it.
func (h *callHarness) sendUtterance() {
	loud := tonePCM(2000, 20, 16000)
	for i := 0; i < 3; i++ {
		h.inbound <- frame.AudioIn(loud, 16000)
	}
	quiet := silencePCM(20, 16000)
	for i := 0; i < 4; i++ {
		h.inbound <- frame.AudioIn(quiet, 16000)
	}
}

func (h *callHarness) wait() error {
	select {
	case err := <-h.result:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("RunCall did not return")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func countAudio(frames []frame.Frame) (audio int, end bool) {
	for _, f := range frames {
		switch f.Kind {
		case frame.KindAudioOut:
			audio++
		case frame.KindEnd:
			end = true
		}
	}
	return audio, end
}

func TestEngineRunsFullConversation(t *testing.T) {
	recDir := t.TempDir()
	e, sessions, store := newTestEngine(t, NewMockProvider(), func(o *EngineOptions) {
		o.RecordingDir = recDir
	})
	ctx := context.Background()
	h := startCall(ctx, t, e, "547", "4915112345678")

	greeting := h.collect(150 * time.Millisecond)
	if len(greeting) == 0 {
		t.Fatal("no greeting audio")
	}
	for _, f := range greeting {
		if f.Kind != frame.KindAudioOut {
			t.Fatalf("greeting frame kind = %v, want audio out", f.Kind)
		}
	}

	s, err := sessions.GetByNumber("547")
	if err != nil {
		t.Fatalf("GetByNumber() error = %v", err)
	}
	if s.ChosenDelayMS != 1 {
		t.Fatalf("ChosenDelayMS = %d, want 1", s.ChosenDelayMS)
	}
	record, err := store.GetCall(ctx, "547")
	if err != nil {
		t.Fatalf("GetCall() error = %v", err)
	}
	if record.ChosenLatency != "0.001" {
		t.Fatalf("ChosenLatency = %q, want \"0.001\"", record.ChosenLatency)
	}
	if record.CallerID != "4915112345678" {
		t.Fatalf("CallerID = %q, want caller preserved", record.CallerID)
	}

	h.sendUtterance()
	frames := h.collect(250 * time.Millisecond)
	if audio, _ := countAudio(frames); audio == 0 {
		t.Fatal("first turn produced no reply audio")
	}
	s, err = sessions.GetByNumber("547")
	if err != nil {
		t.Fatalf("GetByNumber() error = %v", err)
	}
	if s.Turns != 1 {
		t.Fatalf("Turns = %d, want 1 after first turn", s.Turns)
	}

	var sawEnd bool
	for turn := 2; turn <= 4; turn++ {
		h.sendUtterance()
		frames := h.collect(250 * time.Millisecond)
		audio, end := countAudio(frames)
		if audio == 0 {
			t.Fatalf("turn %d produced no reply audio", turn)
		}
		sawEnd = sawEnd || end
	}
	if !sawEnd {
		t.Fatal("conversation never signalled end of call")
	}

	if err := h.wait(); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}

	waitFor(t, func() bool {
		r, err := store.GetCall(ctx, "547")
		return err == nil && r.IsComplete
	}, "record never marked complete")

	record, err = store.GetCall(ctx, "547")
	if err != nil {
		t.Fatalf("GetCall() error = %v", err)
	}
	if record.FirstName != "Max" || record.LastName != "Mustermann" {
		t.Fatalf("name = %q %q, want Max Mustermann", record.FirstName, record.LastName)
	}
	if record.Phone != "01512345670" {
		t.Fatalf("Phone = %q, want 01512345670", record.Phone)
	}
	if !strings.Contains(record.VisitReason, "Rückenschmerzen") {
		t.Fatalf("VisitReason = %q, want captured", record.VisitReason)
	}
	if record.ChosenSlot == "" || !record.SlotConfirmed {
		t.Fatalf("slot = %q confirmed=%v, want confirmed slot", record.ChosenSlot, record.SlotConfirmed)
	}
	if record.EndedAt == nil {
		t.Fatal("EndedAt not set after teardown")
	}

	if _, err := sessions.GetByNumber("547"); err == nil {
		t.Fatal("session still registered after call ended")
	}

	wavs, err := filepath.Glob(filepath.Join(recDir, "547_*.wav"))
	if err != nil || len(wavs) != 1 {
		t.Fatalf("recordings = %v (err %v), want one file", wavs, err)
	}
	info, err := os.Stat(wavs[0])
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() <= 44 {
		t.Fatalf("recording size = %d, want audio beyond the header", info.Size())
	}
}

type stubConversation struct {
	mu         sync.Mutex
	failFirst  bool
	recognized int
}

func (c *stubConversation) Recognize(_ context.Context, _ []byte, _ int) (Transcription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recognized++
	if c.failFirst && c.recognized == 1 {
		return Transcription{}, errors.New("stt unavailable")
	}
	return Transcription{Text: "Hallo"}, nil
}

func (c *stubConversation) Respond(_ context.Context, _ string) (Reply, error) {
	return Reply{Text: "Verstanden."}, nil
}

func (c *stubConversation) Synthesize(_ context.Context, _ string) (Audio, error) {
	return Audio{PCM: make([]byte, 640), SampleRate: 16000}, nil
}

func (c *stubConversation) Close() error { return nil }

type stubProvider struct{ conv *stubConversation }

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) NewConversation(context.Context, ConversationOptions) (Conversation, error) {
	return p.conv, nil
}

func TestEngineRecoversFromAbortedTurn(t *testing.T) {
	conv := &stubConversation{failFirst: true}
	e, _, _ := newTestEngine(t, &stubProvider{conv: conv}, func(o *EngineOptions) {
		o.Greetings = []string{}
	})
	h := startCall(context.Background(), t, e, "611", "anonymous")

	h.sendUtterance()
	if frames := h.collect(200 * time.Millisecond); len(frames) != 0 {
		t.Fatalf("aborted turn emitted %d frames, want none", len(frames))
	}

	h.sendUtterance()
	frames := h.collect(250 * time.Millisecond)
	if audio, _ := countAudio(frames); audio == 0 {
		t.Fatal("turn after abort produced no reply audio")
	}

	close(h.inbound)
	if err := h.wait(); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}
}

func TestEngineRejectsUnknownPrompt(t *testing.T) {
	e, sessions, _ := newTestEngine(t, NewMockProvider(), func(o *EngineOptions) {
		o.PromptName = "does-not-exist"
	})
	err := e.RunCall(context.Background(), "700", "anonymous",
		make(chan frame.Frame), make(chan frame.Frame, 1))
	if err == nil {
		t.Fatal("RunCall() error = nil, want prompt error")
	}
	if n := sessions.ActiveCount(); n != 0 {
		t.Fatalf("ActiveCount() = %d, want 0 after failed start", n)
	}
}

func TestEngineStopsOnContextCancel(t *testing.T) {
	e, sessions, _ := newTestEngine(t, NewMockProvider(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := startCall(ctx, t, e, "702", "anonymous")

	if len(h.collect(150*time.Millisecond)) == 0 {
		t.Fatal("no greeting audio")
	}
	cancel()
	if err := h.wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunCall() error = %v, want context.Canceled", err)
	}
	waitFor(t, func() bool { return sessions.ActiveCount() == 0 }, "session not ended after cancel")
}
