// Package httpapi exposes the telephony webhook, the media-streaming
// websocket and a small read-only ops API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/dr-redtec/Voice-AI-Latency/internal/callnum"
	"github.com/dr-redtec/Voice-AI-Latency/internal/callstore"
	"github.com/dr-redtec/Voice-AI-Latency/internal/config"
	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
	"github.com/dr-redtec/Voice-AI-Latency/internal/observability"
	"github.com/dr-redtec/Voice-AI-Latency/internal/policy"
	"github.com/dr-redtec/Voice-AI-Latency/internal/protocol"
	"github.com/dr-redtec/Voice-AI-Latency/internal/session"
	"github.com/dr-redtec/Voice-AI-Latency/internal/telephony"
)

// eventTypeSubscriptionValidation is Event Grid's webhook handshake event.
// The subscription becomes active only after we echo its validation code.
const eventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"

// Engine runs one full call over a pair of frame channels. The server owns
// both channels: it closes inbound when the socket is done and the engine
// stops writing outbound once RunCall returns.
type Engine interface {
	RunCall(ctx context.Context, callNumber, callerID string, inbound <-chan frame.Frame, outbound chan<- frame.Frame) error
}

// Deps bundles the collaborators the server routes requests to.
type Deps struct {
	Log       *slog.Logger
	Sessions  *session.Manager
	Calls     callstore.Store
	Engine    Engine
	Allocator *callnum.Allocator
	Telephony telephony.Client
	Metrics   *observability.Metrics
}

type Server struct {
	cfg       config.Config
	log       *slog.Logger
	sessions  *session.Manager
	calls     callstore.Store
	engine    Engine
	allocator *callnum.Allocator
	telephony telephony.Client
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader

	// baseCtx outlives individual requests; delayed answers hang off it so
	// a server shutdown cancels pending ring timers.
	baseCtx  context.Context
	shutdown context.CancelFunc
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	baseCtx, shutdown := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		log:       log,
		sessions:  deps.Sessions,
		calls:     deps.Calls,
		engine:    deps.Engine,
		allocator: deps.Allocator,
		telephony: deps.Telephony,
		metrics:   deps.Metrics,
		baseCtx:   baseCtx,
		shutdown:  shutdown,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin. The media socket carries live caller audio, so
				// other websites must not be able to attach to it if the
				// gateway is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// The telephony media streamer is not a browser and
					// omits Origin. Allow it.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Close cancels pending delayed answers. Calls already running keep their
// own contexts and drain normally.
func (s *Server) Close() {
	s.shutdown()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	// Event Grid subscriptions in the wild are registered with and without
	// a trailing slash; treat both the same.
	r.Use(middleware.StripSlashes)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/incoming-call", s.handleIncomingCall)
	r.Post("/acs-events", s.handleCallEvents)
	r.Get("/media", s.handleMediaWS)

	r.Get("/v1/calls", s.handleListCalls)
	r.Get("/v1/calls/{id}", s.handleGetCall)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/pool", s.handlePoolStatus)
	r.Get("/v1/latency/stats", s.handleLatencyStats)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.sessions.ActiveCount(),
	})
}

// handleReady proves the number pool is reachable before the load balancer
// sends calls our way. A call answered without an issuable number would ring
// and then die.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	remaining, err := s.allocator.Remaining(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "pool_unavailable", err.Error())
		return
	}
	s.metrics.PoolRemaining.Set(float64(remaining))
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"pool_remaining": remaining,
	})
}

// gridEvent is the subset of an Event Grid envelope the webhook needs.
type gridEvent struct {
	EventType string        `json:"eventType"`
	Data      gridEventData `json:"data"`
}

type gridEventData struct {
	ValidationCode      string      `json:"validationCode"`
	IncomingCallContext string      `json:"incomingCallContext"`
	To                  phoneBearer `json:"to"`
	From                phoneBearer `json:"from"`
}

type phoneBearer struct {
	RawID       string     `json:"rawId"`
	PhoneNumber phoneValue `json:"phoneNumber"`
}

type phoneValue struct {
	Value string `json:"value"`
}

// handleIncomingCall services the Event Grid webhook: the subscription
// validation handshake, then IncomingCall events for our number. Answering
// is deferred by the configured ring delay so study participants hear a
// normal ringing phase instead of an instant pick-up.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	var events []gridEvent
	if err := decodeJSON(r, &events); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}
	if len(events) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_event", "empty event batch")
		return
	}
	ev := events[0]

	if ev.EventType == eventTypeSubscriptionValidation {
		s.log.Info("event grid subscription validated")
		s.metrics.CallEvents.WithLabelValues("subscription_validated").Inc()
		respondJSON(w, http.StatusOK, map[string]string{
			"validationResponse": ev.Data.ValidationCode,
		})
		return
	}

	to := ev.Data.To.PhoneNumber.Value
	if to != s.cfg.ACSPhoneNumber {
		s.log.Info("ignoring call for foreign number", "to", to)
		s.metrics.CallEvents.WithLabelValues("ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if strings.TrimSpace(ev.Data.IncomingCallContext) == "" {
		respondError(w, http.StatusBadRequest, "invalid_event", "missing incomingCallContext")
		return
	}

	callerID := strings.TrimPrefix(to, "+")
	req := telephony.AnswerRequest{
		IncomingCallContext: ev.Data.IncomingCallContext,
		CallbackURL:         s.cfg.CallbackURL(callerID),
		TransportURL:        s.cfg.MediaTransportURL,
	}

	delay := s.cfg.RingDelay
	s.log.Info("scheduling answer", "caller_id", policy.MaskIdentifier(callerID), "ring_delay", delay)
	s.metrics.CallEvents.WithLabelValues("answer_scheduled").Inc()
	go s.answerAfterDelay(delay, req)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "answer_scheduled",
		"ring_delay_s": delay.Seconds(),
	})
}

func (s *Server) answerAfterDelay(delay time.Duration, req telephony.AnswerRequest) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.baseCtx.Done():
		return
	case <-timer.C:
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.AnswerTimeout)
	defer cancel()
	if err := s.telephony.Answer(ctx, req); err != nil {
		s.log.Warn("delayed answer failed", "error", err)
		s.metrics.CallEvents.WithLabelValues("answer_failed").Inc()
		return
	}
	s.metrics.CallEvents.WithLabelValues("answered").Inc()
}

// handleCallEvents is the call-automation callback sink. Mid-call state
// events only get logged; the media socket carries everything the pipeline
// acts on.
func (s *Server) handleCallEvents(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.URL.Query().Get("call_id"))

	var events []struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &events); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}
	for _, ev := range events {
		s.log.Info("call automation event", "type", ev.Type, "call_id", callID)
		s.metrics.CallEvents.WithLabelValues("callback").Inc()
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMediaWS accepts the bidirectional media stream and runs the call
// engine over it. The socket speaks the media-streaming JSON envelopes; the
// serializer translates them to pipeline frames and back.
func (s *Server) handleMediaWS(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "media engine not configured")
		return
	}
	callerID := strings.TrimSpace(r.URL.Query().Get("caller_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// No number, no session: a participant who cannot read a call number
	// back into the survey is useless data, so refuse the stream outright.
	issueCtx, cancelIssue := context.WithTimeout(r.Context(), 5*time.Second)
	number, err := s.allocator.Issue(issueCtx)
	cancelIssue()
	if err != nil {
		s.log.Error("refusing media stream, no call number", "error", err)
		s.metrics.CallEvents.WithLabelValues("rejected_no_number").Inc()
		code := websocket.CloseInternalServerErr
		reason := "call number unavailable"
		if errors.Is(err, callnum.ErrPoolExhausted) {
			code = websocket.ClosePolicyViolation
			reason = "call number pool exhausted"
		}
		msg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}
	if remaining, rerr := s.allocator.Remaining(r.Context()); rerr == nil {
		s.metrics.PoolRemaining.Set(float64(remaining))
	}

	s.log.Info("media stream connected", "call_number", number, "caller_id", policy.MaskIdentifier(callerID), "remote", r.RemoteAddr)
	s.metrics.CallEvents.WithLabelValues("media_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	serializer := protocol.NewSerializer(s.cfg.AudioInSampleRate, s.cfg.AutoStopAudio)
	inbound := make(chan frame.Frame, 256)
	outbound := make(chan frame.Frame, 256)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		// The engine stops writing before RunCall returns, so closing
		// outbound here lets the writer drain the tail and hang up.
		defer close(outbound)
		if err := s.engine.RunCall(ctx, number, callerID, inbound, outbound); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("call engine failed", "call_number", number, "error", err)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-outbound:
				if !ok {
					// Conversation complete and every frame is on the wire.
					// Close cleanly so the peer tears the call down.
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call complete")
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
					return
				}
				payload, ok := serializer.Serialize(f)
				if !ok {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					cancel()
					return
				}
				s.metrics.WSMessages.WithLabelValues("outbound", wireKindOf(f)).Inc()
			}
		}
	}()

	readTimeout := s.cfg.SessionInactivityTimeout
	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// The stream is idle-timed, not wall-clock-timed: any traffic keeps
		// the deadline moving.
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		f, ok := serializer.Deserialize(data)
		if !ok {
			s.metrics.WSMessages.WithLabelValues("inbound", "unknown").Inc()
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", protocol.KindAudioDataIn).Inc()
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- f:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.log.Info("media stream closed", "call_number", number)
	s.metrics.CallEvents.WithLabelValues("media_disconnected").Inc()
}

func wireKindOf(f frame.Frame) string {
	switch f.Kind {
	case frame.KindEnd, frame.KindCancel, frame.KindInterrupt:
		return protocol.KindStopAudio
	default:
		return protocol.KindAudioDataOut
	}
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.calls.ListCalls(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"calls": records,
		"count": len(records),
	})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}

	record, err := s.calls.GetCall(r.Context(), id)
	if errors.Is(err, callstore.ErrNotFound) {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	active := s.sessions.ListActive()
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": active,
		"count":    len(active),
	})
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	remaining, err := s.allocator.Remaining(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "pool_error", err.Error())
		return
	}
	s.metrics.PoolRemaining.Set(float64(remaining))
	start, end := s.allocator.Range()
	respondJSON(w, http.StatusOK, map[string]any{
		"backend":     s.cfg.CallNumberBackend,
		"range_start": start,
		"range_end":   end,
		"remaining":   remaining,
	})
}

func (s *Server) handleLatencyStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Window.Snapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
