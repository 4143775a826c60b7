// Package app assembles the study gateway from its parts.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dr-redtec/Voice-AI-Latency/internal/callnum"
	"github.com/dr-redtec/Voice-AI-Latency/internal/callstore"
	"github.com/dr-redtec/Voice-AI-Latency/internal/config"
	"github.com/dr-redtec/Voice-AI-Latency/internal/httpapi"
	"github.com/dr-redtec/Voice-AI-Latency/internal/observability"
	"github.com/dr-redtec/Voice-AI-Latency/internal/pipeline"
	"github.com/dr-redtec/Voice-AI-Latency/internal/session"
	"github.com/dr-redtec/Voice-AI-Latency/internal/telephony"
	"github.com/dr-redtec/Voice-AI-Latency/internal/voice"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Engine    *voice.Engine
	Allocator *callnum.Allocator
	Metrics   *observability.Metrics

	// Cleanup should be called on shutdown to release external resources
	// (DB pool, number pool backend, pending answer timers).
	Cleanup func() error
}

// Build wires config into a ready-to-serve gateway. The context bounds
// startup work and the session janitor; cancel it on shutdown.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*BuildResult, error) {
	if log == nil {
		log = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	calls, err := callstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("call store init failed: %w", err)
	}

	allocator, err := callnum.NewAllocatorFromConfig(cfg, log)
	if err != nil {
		_ = calls.Close()
		return nil, fmt.Errorf("call number pool init failed: %w", err)
	}
	if remaining, err := allocator.Remaining(ctx); err == nil {
		metrics.PoolRemaining.Set(float64(remaining))
		log.Info("call number pool ready", "remaining", remaining, "backend", cfg.CallNumberBackend)
	}

	strategy, err := pipeline.ParseStrategy(cfg.LatencyStrategy)
	if err != nil {
		_ = allocator.Close()
		_ = calls.Close()
		return nil, fmt.Errorf("latency strategy: %w", err)
	}
	scheduler, err := pipeline.NewDelayScheduler(strategy, cfg.LatencyChoices)
	if err != nil {
		_ = allocator.Close()
		_ = calls.Close()
		return nil, fmt.Errorf("delay scheduler init failed: %w", err)
	}

	tel, err := telephony.New(cfg.ACSConnectionString, log)
	if err != nil {
		_ = allocator.Close()
		_ = calls.Close()
		return nil, fmt.Errorf("telephony client init failed: %w", err)
	}

	provider, err := resolveVoiceProvider(cfg)
	if err != nil {
		_ = allocator.Close()
		_ = calls.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.CallEvents.WithLabelValues("expired").Inc()
		metrics.ActiveCalls.Set(float64(sessions.ActiveCount()))
	})
	sessions.StartJanitor(ctx, 30*time.Second)

	engine := voice.NewEngine(voice.EngineOptions{
		Provider:        provider,
		Sessions:        sessions,
		Calls:           calls,
		Scheduler:       scheduler,
		Metrics:         metrics,
		Log:             log,
		PromptName:      cfg.SystemPromptName,
		Language:        cfg.STTLanguage,
		PipelineRate:    cfg.AudioInSampleRate,
		SlotsWeeksAhead: cfg.SlotsWeeksAhead,
		SlotsWithinDays: cfg.SlotsWithinDays,
		SlotsMaxOffered: cfg.SlotsMaxOffered,
		RecordingDir:    cfg.RecordingDir,
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Log:       log,
		Sessions:  sessions,
		Calls:     calls,
		Engine:    engine,
		Allocator: allocator,
		Telephony: tel,
		Metrics:   metrics,
	})

	cleanup := func() error {
		api.Close()
		var errs []string
		if err := allocator.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := calls.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Engine:    engine,
		Allocator: allocator,
		Metrics:   metrics,
		Cleanup:   cleanup,
	}, nil
}

// resolveVoiceProvider picks the conversation backend. Only the scripted
// mock ships here; the study's point is the injected delay, not the model
// behind it.
func resolveVoiceProvider(cfg config.Config) (voice.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.VoiceProvider)) {
	case "", "mock":
		return voice.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown voice provider %q", cfg.VoiceProvider)
	}
}
