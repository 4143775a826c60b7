package voice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dr-redtec/Voice-AI-Latency/internal/audio"
	"github.com/dr-redtec/Voice-AI-Latency/internal/callstore"
	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
	"github.com/dr-redtec/Voice-AI-Latency/internal/observability"
	"github.com/dr-redtec/Voice-AI-Latency/internal/pipeline"
	"github.com/dr-redtec/Voice-AI-Latency/internal/policy"
	"github.com/dr-redtec/Voice-AI-Latency/internal/prompts"
	"github.com/dr-redtec/Voice-AI-Latency/internal/session"
	"github.com/dr-redtec/Voice-AI-Latency/internal/slots"
)

const (
	storeTimeout  = 2 * time.Second
	touchInterval = 5 * time.Second
	speakChunk    = 100 * time.Millisecond
)

// DefaultGreetings is the scripted opening the assistant speaks as soon as
// the media socket is up. The injector is idle at that point, so the lines
// pass the reply pipeline without any hold.
var DefaultGreetings = []string{
	"Guten Tag.",
	"Mein Name ist Kerstin – ich bin die digitale Assistentin der Hausarztpraxis Doktor Müller.",
	"Ich helfe Ihnen jetzt dabei, einen Termin zu vereinbaren.",
	"Vielen Dank, dass Sie an unserer wissenschaftlichen Studie teilnehmen.",
	"Bitte geben Sie für dieses Gespräch nicht Ihren echten Namen an.",
	"Bitte nutzen Sie erfundene Daten wie zum Beispiel »Max Mustermann« oder »Micki Maus«.",
	"Am Ende des Gesprächs nenne ich Ihnen eine dreistellige Umfrage-Nummer.",
	"Notieren Sie diese bitte und tragen Sie sie danach in die Umfrage ein.",
	"Damit wir Sie bestmöglich einplanen können: Darf ich kurz fragen, weshalb Sie unsere Praxis aufsuchen möchten?",
}

// EngineOptions wires the engine's collaborators.
type EngineOptions struct {
	Provider  Provider
	Sessions  *session.Manager
	Calls     callstore.Store
	Scheduler *pipeline.DelayScheduler
	Metrics   *observability.Metrics
	Log       *slog.Logger

	PromptName      string
	Language        string
	PipelineRate    int
	SlotsWeeksAhead int
	SlotsWithinDays int
	SlotsMaxOffered int
	RecordingDir    string
	Endpointer      EndpointerConfig
	Greetings       []string
}

// Engine drives one call end to end: greeting, utterance detection, the
// latency hold, reply generation, synthesis, and study record upkeep.
type Engine struct {
	provider  Provider
	sessions  *session.Manager
	calls     callstore.Store
	scheduler *pipeline.DelayScheduler
	metrics   *observability.Metrics
	log       *slog.Logger

	promptName      string
	language        string
	pipelineRate    int
	slotsWeeksAhead int
	slotsWithinDays int
	slotsMaxOffered int
	recordingDir    string
	endpointCfg     EndpointerConfig
	greetings       []string

	// sleep paces assistant audio at playback speed; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(opts EngineOptions) *Engine {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.PipelineRate <= 0 {
		opts.PipelineRate = 16000
	}
	if opts.PromptName == "" {
		opts.PromptName = prompts.NameAppointment
	}
	if opts.Language == "" {
		opts.Language = "de"
	}
	if opts.SlotsWeeksAhead <= 0 {
		opts.SlotsWeeksAhead = 4
	}
	if opts.SlotsWithinDays <= 0 {
		opts.SlotsWithinDays = 7
	}
	if opts.SlotsMaxOffered <= 0 {
		opts.SlotsMaxOffered = 2
	}
	greetings := opts.Greetings
	if greetings == nil {
		greetings = DefaultGreetings
	}
	return &Engine{
		provider:        opts.Provider,
		sessions:        opts.Sessions,
		calls:           opts.Calls,
		scheduler:       opts.Scheduler,
		metrics:         opts.Metrics,
		log:             log,
		promptName:      opts.PromptName,
		language:        opts.Language,
		pipelineRate:    opts.PipelineRate,
		slotsWeeksAhead: opts.SlotsWeeksAhead,
		slotsWithinDays: opts.SlotsWithinDays,
		slotsMaxOffered: opts.SlotsMaxOffered,
		recordingDir:    opts.RecordingDir,
		endpointCfg:     opts.Endpointer,
		greetings:       greetings,
		sleep:           sleepCtx,
	}
}

// RunCall owns one media connection. Deserialized caller frames arrive on
// inbound; frames for the wire leave through outbound. It returns when the
// caller disconnects (inbound closes), the conversation completes, or the
// context ends.
func (e *Engine) RunCall(parent context.Context, callNumber, callerID string, inbound <-chan frame.Frame, outbound chan<- frame.Frame) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	offers, offerString := e.buildOffers()
	systemPrompt, err := prompts.Build(e.promptName, callNumber, offerString)
	if err != nil {
		return fmt.Errorf("build system prompt: %w", err)
	}

	s := e.sessions.Create(callNumber, callerID)
	log := e.log.With("session_id", s.ID, "call_number", callNumber)
	e.metrics.ActiveCalls.Inc()
	e.metrics.CallEvents.WithLabelValues("connected").Inc()
	log.Info("call connected", "caller_id", policy.MaskIdentifier(callerID), "offered_slots", len(offers))

	injector := pipeline.NewLatencyInjector(e.scheduler, log, e.metrics.ObserveInjectedDelay)
	chosen := injector.Pick()
	_ = e.sessions.SetDelay(s.ID, chosen)

	e.createCallRecord(ctx, callNumber, callerID, chosen, log)

	conv, err := e.provider.NewConversation(ctx, ConversationOptions{
		CallID:       callNumber,
		SystemPrompt: systemPrompt,
		Language:     e.language,
		SampleRate:   e.pipelineRate,
		SlotOffers:   offers,
	})
	if err != nil {
		e.metrics.ProviderErrors.WithLabelValues(e.provider.Name(), "conversation").Inc()
		e.metrics.ActiveCalls.Dec()
		_, _ = e.sessions.End(s.ID)
		return fmt.Errorf("open conversation: %w", err)
	}

	rec := e.newRecorder(callNumber, s.StartedAt)

	// The gate counts drops per gating window; the study record wants the
	// call total, so tally it here.
	var droppedTotal atomic.Uint64
	gate := pipeline.NewTurnGate(log, func() {
		droppedTotal.Add(1)
		e.metrics.FramesDropped.Inc()
	})
	mute := pipeline.NewMuteCoordinator(injector)

	var (
		wg            sync.WaitGroup
		speakMu       sync.Mutex
		turnInFlight  atomic.Bool
		turnStartedNS atomic.Int64
		doneOnce      sync.Once
		doneCh        = make(chan struct{})
		inPipe        *pipeline.Pipeline
		replyPipe     *pipeline.Pipeline
	)

	sendOut := func(ctx context.Context, f frame.Frame) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outbound <- f:
			return nil
		}
	}

	// speakText holds speakMu so greeting lines and turn replies never
	// interleave their audio.
	speakText := func(ctx context.Context, text string) error {
		speakMu.Lock()
		defer speakMu.Unlock()

		text = sanitizeSpeechText(text)
		if text == "" {
			return inPipe.Push(ctx, frame.AssistantStopped())
		}
		synthStart := time.Now()
		speech, err := conv.Synthesize(ctx, text)
		e.metrics.ObserveStage(observability.StageSynthesis, time.Since(synthStart))
		if err != nil {
			e.metrics.ProviderErrors.WithLabelValues(e.provider.Name(), "synthesize").Inc()
			log.Warn("synthesis failed", "error", err)
			return inPipe.Push(ctx, frame.AssistantStopped())
		}
		rate := speech.SampleRate
		if rate <= 0 {
			rate = e.pipelineRate
		}

		if err := inPipe.Push(ctx, frame.AssistantStarted()); err != nil {
			return err
		}
		if ts := turnStartedNS.Swap(0); ts != 0 {
			e.metrics.ObserveStage(observability.StageTurnTotal, time.Since(time.Unix(0, ts)))
		}
		rec.append(speech.PCM)

		chunkBytes := 2 * int(time.Duration(rate)*speakChunk/time.Second)
		if chunkBytes < 2 {
			chunkBytes = 2
		}
		for off := 0; off < len(speech.PCM); off += chunkBytes {
			end := off + chunkBytes
			if end > len(speech.PCM) {
				end = len(speech.PCM)
			}
			chunk := speech.PCM[off:end]
			if err := sendOut(ctx, frame.AudioOut(chunk, rate)); err != nil {
				return err
			}
			pace := time.Duration(len(chunk)/2) * time.Second / time.Duration(rate)
			if err := e.sleep(ctx, pace); err != nil {
				return err
			}
		}
		return inPipe.Push(ctx, frame.AssistantStopped())
	}

	persistPatient := func(fields PatientFields) {
		update := callstore.PatientUpdate{
			FirstName:     fields.FirstName,
			LastName:      fields.LastName,
			Phone:         fields.Phone,
			VisitReason:   redactPtr(fields.VisitReason),
			ChosenSlot:    fields.ChosenSlot,
			SlotConfirmed: fields.SlotConfirmed,
			IsComplete:    fields.IsComplete,
		}
		if update.Empty() {
			return
		}
		go func() {
			pctx, cancelPersist := context.WithTimeout(context.Background(), storeTimeout)
			defer cancelPersist()
			if err := e.calls.UpdatePatient(pctx, callNumber, update); err != nil {
				e.metrics.CallEvents.WithLabelValues("record_update_failed").Inc()
				log.Warn("patient record update failed", "error", err)
			}
		}()
	}

	replySink := func(ctx context.Context, f frame.Frame) error {
		switch f.Kind {
		case frame.KindTurnReady:
			replyStart := time.Now()
			reply, err := conv.Respond(ctx, f.Text)
			e.metrics.ObserveStage(observability.StageReply, time.Since(replyStart))
			if err != nil {
				e.metrics.ProviderErrors.WithLabelValues(e.provider.Name(), "respond").Inc()
				log.Warn("reply generation failed", "error", err)
				return inPipe.Push(ctx, frame.AssistantStopped())
			}
			persistPatient(reply.Fields)
			if err := replyPipe.Push(ctx, frame.Speak(reply.Text)); err != nil {
				return err
			}
			if reply.Done {
				e.metrics.CallEvents.WithLabelValues("completed").Inc()
				log.Info("conversation complete")
				if err := sendOut(ctx, frame.End()); err != nil {
					return err
				}
				doneOnce.Do(func() { close(doneCh) })
			}
			return nil
		case frame.KindSpeak:
			return speakText(ctx, f.Text)
		default:
			return nil
		}
	}
	replyPipe = pipeline.New(replySink, injector)

	runTurn := func(ctx context.Context, utterance []byte, rate int) {
		defer wg.Done()
		defer turnInFlight.Store(false)

		turnID := uuid.NewString()
		_ = e.sessions.StartTurn(s.ID, turnID)
		abort := func(reason string, err error) {
			e.metrics.CallEvents.WithLabelValues("turn_aborted").Inc()
			log.Warn("turn aborted", "turn_id", turnID, "reason", reason, "error", err)
			turnStartedNS.Store(0)
			_ = e.sessions.StartTurn(s.ID, "")
			// Reopen the gate, otherwise the caller stays muted.
			_ = inPipe.Push(ctx, frame.AssistantStopped())
		}

		rec.append(utterance)
		recStart := time.Now()
		tr, err := conv.Recognize(ctx, utterance, rate)
		e.metrics.ObserveStage(observability.StageRecognition, time.Since(recStart))
		if err != nil {
			e.metrics.ProviderErrors.WithLabelValues(e.provider.Name(), "recognize").Inc()
			abort("recognize_failed", err)
			return
		}
		if strings.TrimSpace(tr.Text) == "" {
			abort("empty_transcription", nil)
			return
		}
		log.Debug("caller utterance", "turn_id", turnID, "text", policy.RedactFreeText(tr.Text))

		// The injector holds this push for the chosen delay.
		if err := replyPipe.Push(ctx, frame.TurnReady(tr.Text)); err != nil {
			abort("reply_pipeline", err)
			return
		}
		_ = e.sessions.CompleteTurn(s.ID)
		e.metrics.CallEvents.WithLabelValues("turn_completed").Inc()
	}

	inboundSink := func(ctx context.Context, f frame.Frame) error {
		if f.Kind != frame.KindCallerStopped {
			return nil
		}
		if len(f.Audio) == 0 {
			return nil
		}
		if mute.Muted() {
			e.metrics.CallEvents.WithLabelValues("utterance_suppressed").Inc()
			log.Debug("utterance suppressed",
				"assistant_speaking", mute.AssistantSpeaking(),
				"injector_busy", injector.Busy())
			return nil
		}
		if !turnInFlight.CompareAndSwap(false, true) {
			return nil
		}
		turnStartedNS.Store(time.Now().UnixNano())
		rate := f.SampleRate
		if rate <= 0 {
			rate = e.pipelineRate
		}
		wg.Add(1)
		go runTurn(ctx, f.Audio, rate)
		return nil
	}
	det := NewEndpointer(e.endpointCfg)
	inPipe = pipeline.New(inboundSink, newEndpointStage(det, e.pipelineRate), gate, mute)

	teardown := func() {
		dropped := droppedTotal.Load()
		_ = e.sessions.SetDroppedFrames(s.ID, dropped)
		_, _ = e.sessions.End(s.ID)

		finishCtx, cancelFinish := context.WithTimeout(context.Background(), storeTimeout)
		defer cancelFinish()
		if err := e.calls.FinishCall(finishCtx, callNumber, dropped); err != nil {
			log.Warn("finish call record failed", "error", err)
		}
		rec.save(log)
		_ = conv.Close()
		e.metrics.ActiveCalls.Dec()
		e.metrics.CallEvents.WithLabelValues("ended").Inc()
		log.Info("call ended",
			"dropped_frames", dropped,
			"duration", time.Since(s.StartedAt).Round(time.Millisecond))
	}
	var teardownOnce sync.Once
	defer teardownOnce.Do(teardown)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for _, line := range e.greetings {
			if err := replyPipe.Push(gctx, frame.Speak(line)); err != nil {
				return err
			}
		}
		e.metrics.CallEvents.WithLabelValues("greeting_completed").Inc()
		log.Info("greeting completed", "lines", len(e.greetings))
		return nil
	})

	g.Go(func() error {
		lastTouch := time.Now()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-doneCh:
				return nil
			case f, ok := <-inbound:
				if !ok {
					return nil
				}
				if err := inPipe.Push(gctx, f); err != nil {
					return err
				}
				if f.IsAudio() && time.Since(lastTouch) > touchInterval {
					_ = e.sessions.Touch(s.ID)
					lastTouch = time.Now()
				}
			}
		}
	})

	err = g.Wait()
	cancel()
	wg.Wait()
	teardownOnce.Do(teardown)
	return err
}

func (e *Engine) buildOffers() ([]string, string) {
	provider := slots.Generate(slots.Options{WeeksAhead: e.slotsWeeksAhead})
	future := provider.Future(e.slotsWithinDays, e.slotsMaxOffered)
	labels := make([]string, len(future))
	for i, s := range future {
		labels[i] = slots.Label(s, true)
	}
	return labels, strings.Join(labels, ", ")
}

func (e *Engine) createCallRecord(ctx context.Context, callNumber, callerID string, chosen time.Duration, log *slog.Logger) {
	record := callstore.CallRecord{
		CallID:        callNumber,
		ChosenLatency: callstore.FormatLatency(chosen, true),
		CallerID:      callerID,
	}
	createCtx, cancelCreate := context.WithTimeout(ctx, storeTimeout)
	defer cancelCreate()
	if err := e.calls.CreateCall(createCtx, record); err != nil {
		e.metrics.CallEvents.WithLabelValues("record_create_failed").Inc()
		log.Warn("call record create failed", "error", err)
	}
}

func (e *Engine) newRecorder(callNumber string, startedAt time.Time) *callRecorder {
	if e.recordingDir == "" {
		return nil
	}
	return &callRecorder{
		path: filepath.Join(e.recordingDir,
			fmt.Sprintf("%s_%s.wav", callNumber, startedAt.Format("20060102-150405"))),
		rate: e.pipelineRate,
	}
}

// callRecorder collects call audio in conversational order and writes one
// WAV file at teardown. A nil recorder is a no-op.
type callRecorder struct {
	mu   sync.Mutex
	path string
	rate int
	buf  []byte
}

func (r *callRecorder) append(pcm []byte) {
	if r == nil || len(pcm) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, pcm...)
}

func (r *callRecorder) save(log *slog.Logger) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return
	}
	if err := audio.WriteWAVPCM16LEFile(r.path, r.buf, r.rate); err != nil {
		log.Warn("call recording write failed", "path", r.path, "error", err)
		return
	}
	log.Info("call recording written", "path", r.path, "bytes", len(r.buf))
}

func redactPtr(p *string) *string {
	if p == nil {
		return nil
	}
	out := policy.RedactFreeText(*p)
	return &out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
