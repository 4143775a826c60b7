package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
)

// Strategy selects how the scheduler assigns delays to calls.
type Strategy string

const (
	StrategyRandom     Strategy = "random"
	StrategyRoundRobin Strategy = "round_robin"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRandom, StrategyRoundRobin:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("latency strategy must be %q or %q, got %q", StrategyRandom, StrategyRoundRobin, s)
	}
}

// DelayScheduler owns the candidate delay set and the assignment order. One
// scheduler serves the whole process, so round robin rotates across calls in
// arrival order no matter which connection asks.
type DelayScheduler struct {
	strategy Strategy
	choices  []time.Duration
	cursor   atomic.Uint64
	intn     func(n int) int
}

// NewDelayScheduler builds a scheduler over a non-empty candidate set.
func NewDelayScheduler(strategy Strategy, choices []time.Duration) (*DelayScheduler, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if len(choices) == 0 {
		return nil, errors.New("latency choices must not be empty")
	}
	for _, c := range choices {
		if c < 0 {
			return nil, fmt.Errorf("latency choice %s is negative", c)
		}
	}
	return &DelayScheduler{
		strategy: strategy,
		choices:  slices.Clone(choices),
		intn:     rand.Intn,
	}, nil
}

// Next assigns the delay for a new call.
func (s *DelayScheduler) Next() time.Duration {
	if s.strategy == StrategyRoundRobin {
		n := s.cursor.Add(1) - 1
		return s.choices[n%uint64(len(s.choices))]
	}
	return s.choices[s.intn(len(s.choices))]
}

// Strategy returns the configured assignment strategy.
func (s *DelayScheduler) Strategy() Strategy { return s.strategy }

// Choices returns a copy of the candidate set.
func (s *DelayScheduler) Choices() []time.Duration { return slices.Clone(s.choices) }

// LatencyInjector delays each assistant reply by the call's assigned delay,
// simulating a busy human operator. The first reply trigger fixes the delay
// for the whole call.
//
// While a hold is pending the injector reports busy, which mutes the
// recognizer through the call's mute policy. The hold deliberately outlasts
// the sleep: busy drops only when a speak frame passes on its way to
// synthesis, so the recognizer stays deaf until the assistant audibly
// starts its reply.
type LatencyInjector struct {
	scheduler *DelayScheduler
	log       *slog.Logger
	observe   func(time.Duration)

	pickOnce sync.Once
	delay    time.Duration
	busy     atomic.Bool
}

// NewLatencyInjector builds a per-call injector drawing from scheduler.
// observe, when non-nil, is invoked with the delay of every applied hold.
func NewLatencyInjector(scheduler *DelayScheduler, log *slog.Logger, observe func(time.Duration)) *LatencyInjector {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyInjector{scheduler: scheduler, log: log, observe: observe}
}

// Pick fixes the call's delay on first use and returns the same value ever
// after without consulting the scheduler again.
func (l *LatencyInjector) Pick() time.Duration {
	l.pickOnce.Do(func() {
		l.delay = l.scheduler.Next()
		l.log.Info("latency assigned",
			"strategy", l.scheduler.Strategy(),
			"delay", l.delay,
		)
	})
	return l.delay
}

// Busy reports whether a hold is in progress. The mute policy consults it.
func (l *LatencyInjector) Busy() bool { return l.busy.Load() }

func (l *LatencyInjector) Name() string { return "latency_injector" }

func (l *LatencyInjector) Process(ctx context.Context, f frame.Frame, emit EmitFunc) error {
	switch f.Kind {
	case frame.KindTurnReady:
		delay := l.Pick()
		l.busy.Store(true)
		if l.observe != nil {
			l.observe(delay)
		}
		l.log.Debug("holding reply", "delay", delay)
		if err := sleepCtx(ctx, delay); err != nil {
			l.busy.Store(false)
			return err
		}
		// No release here. Busy stays up through response generation.
		return emit(ctx, f)

	case frame.KindSpeak:
		if l.busy.Load() {
			l.busy.Store(false)
			l.log.Debug("releasing hold on assistant speech")
		}
		return emit(ctx, f)

	default:
		return emit(ctx, f)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
