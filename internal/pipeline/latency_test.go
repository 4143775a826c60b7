package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
)

func testChoices() []time.Duration {
	return []time.Duration{3 * time.Second, 7 * time.Second, 100 * time.Millisecond}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"random", "round_robin"} {
		if _, err := ParseStrategy(s); err != nil {
			t.Fatalf("ParseStrategy(%q) error = %v", s, err)
		}
	}
	if _, err := ParseStrategy("fifo"); err == nil {
		t.Fatalf("ParseStrategy(%q) expected error", "fifo")
	}
}

func TestNewDelaySchedulerValidates(t *testing.T) {
	if _, err := NewDelayScheduler("weighted", testChoices()); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
	if _, err := NewDelayScheduler(StrategyRandom, nil); err == nil {
		t.Fatalf("expected error for empty choices")
	}
	if _, err := NewDelayScheduler(StrategyRandom, []time.Duration{-time.Second}); err == nil {
		t.Fatalf("expected error for negative choice")
	}
}

func TestDelaySchedulerRoundRobinRotatesAcrossCalls(t *testing.T) {
	sched, err := NewDelayScheduler(StrategyRoundRobin, testChoices())
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}

	want := []time.Duration{
		3 * time.Second, 7 * time.Second, 100 * time.Millisecond,
		3 * time.Second, 7 * time.Second, 100 * time.Millisecond,
		3 * time.Second,
	}
	for i, w := range want {
		// Each injector stands in for a new call sharing the scheduler.
		inj := NewLatencyInjector(sched, testLogger(), nil)
		if got := inj.Pick(); got != w {
			t.Fatalf("call %d picked %s, want %s", i, got, w)
		}
	}
}

func TestDelaySchedulerRandomDrawsFromChoices(t *testing.T) {
	sched, err := NewDelayScheduler(StrategyRandom, testChoices())
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}
	sched.intn = func(n int) int { return 1 }

	if got := sched.Next(); got != 7*time.Second {
		t.Fatalf("Next() = %s, want 7s from fixed draw", got)
	}
}

func TestDelaySchedulerChoicesReturnsCopy(t *testing.T) {
	sched, err := NewDelayScheduler(StrategyRoundRobin, testChoices())
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}
	got := sched.Choices()
	got[0] = 42 * time.Second
	if sched.Choices()[0] != 3*time.Second {
		t.Fatalf("Choices() exposed internal slice")
	}
}

func TestInjectorPickIsIdempotent(t *testing.T) {
	sched, err := NewDelayScheduler(StrategyRoundRobin, testChoices())
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}
	inj := NewLatencyInjector(sched, testLogger(), nil)

	first := inj.Pick()
	for i := 0; i < 5; i++ {
		if got := inj.Pick(); got != first {
			t.Fatalf("Pick() call %d = %s, want %s", i+2, got, first)
		}
	}
	// The scheduler cursor must have advanced exactly once.
	other := NewLatencyInjector(sched, testLogger(), nil)
	if got := other.Pick(); got != 7*time.Second {
		t.Fatalf("second call picked %s, want 7s", got)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInjectorHoldsUntilAssistantSpeech(t *testing.T) {
	sched, err := NewDelayScheduler(StrategyRoundRobin, []time.Duration{60 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}
	var observed []time.Duration
	inj := NewLatencyInjector(sched, testLogger(), func(d time.Duration) {
		observed = append(observed, d)
	})
	var got []frame.Frame
	sink := collectSink(&got)

	done := make(chan error, 1)
	go func() {
		done <- inj.Process(context.Background(), frame.TurnReady("termin"), sink)
	}()

	waitFor(t, "hold to start", inj.Busy)

	if err := <-done; err != nil {
		t.Fatalf("Process(turn_ready) error = %v", err)
	}
	// The sleep is over, the trigger is forwarded, and the hold is still up.
	if !inj.Busy() {
		t.Fatalf("Busy() = false after sleep, want true until assistant speaks")
	}
	if len(got) != 1 || got[0].Kind != frame.KindTurnReady {
		t.Fatalf("sink got %+v, want forwarded turn_ready", got)
	}

	if err := inj.Process(context.Background(), frame.Speak("guten tag"), sink); err != nil {
		t.Fatalf("Process(speak) error = %v", err)
	}
	if inj.Busy() {
		t.Fatalf("Busy() = true after assistant speech start, want false")
	}
	if len(got) != 2 || got[1].Kind != frame.KindSpeak {
		t.Fatalf("sink got %+v, want forwarded speak", got)
	}
	if len(observed) != 1 || observed[0] != 60*time.Millisecond {
		t.Fatalf("observed holds = %v, want one 60ms hold", observed)
	}
}

func TestInjectorSpeakWithoutHoldPasses(t *testing.T) {
	sched, err := NewDelayScheduler(StrategyRoundRobin, testChoices())
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}
	inj := NewLatencyInjector(sched, testLogger(), nil)
	var got []frame.Frame

	if err := inj.Process(context.Background(), frame.Speak("guten tag"), collectSink(&got)); err != nil {
		t.Fatalf("Process(speak) error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sink got %d frames, want 1", len(got))
	}
	if inj.Busy() {
		t.Fatalf("Busy() = true, want false")
	}
}

func TestInjectorHoldInterruptedByCancel(t *testing.T) {
	sched, err := NewDelayScheduler(StrategyRoundRobin, []time.Duration{5 * time.Second})
	if err != nil {
		t.Fatalf("NewDelayScheduler() error = %v", err)
	}
	inj := NewLatencyInjector(sched, testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- inj.Process(ctx, frame.TurnReady("termin"), collectSink(new([]frame.Frame)))
	}()

	waitFor(t, "hold to start", inj.Busy)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancel took %s, hold was not interrupted", elapsed)
	}
	if inj.Busy() {
		t.Fatalf("Busy() = true after cancelled hold")
	}
}
