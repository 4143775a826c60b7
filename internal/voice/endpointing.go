package voice

import (
	"context"
	"math"
	"time"

	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
	"github.com/dr-redtec/Voice-AI-Latency/internal/pipeline"
)

// Endpointer turns a caller PCM stream into utterance boundaries using
// short-term energy. Telephone audio is noisy, so speech start needs both
// an energy threshold and a minimum duration, and speech end needs a
// hangover of sustained quiet.
type EndpointerConfig struct {
	StartRMS     float64
	StopRMS      float64
	MinSpeech    time.Duration
	HangOver     time.Duration
	MaxUtterance time.Duration
}

const (
	defaultStartRMS     = 900
	defaultStopRMS      = 450
	defaultMinSpeech    = 120 * time.Millisecond
	defaultHangOver     = 480 * time.Millisecond
	defaultMaxUtterance = 30 * time.Second
)

func (c EndpointerConfig) withDefaults() EndpointerConfig {
	if c.StartRMS <= 0 {
		c.StartRMS = defaultStartRMS
	}
	if c.StopRMS <= 0 {
		c.StopRMS = defaultStopRMS
	}
	if c.StopRMS > c.StartRMS {
		c.StopRMS = c.StartRMS
	}
	if c.MinSpeech <= 0 {
		c.MinSpeech = defaultMinSpeech
	}
	if c.HangOver <= 0 {
		c.HangOver = defaultHangOver
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = defaultMaxUtterance
	}
	return c
}

type EndpointEventType int

const (
	EndpointSpeechStarted EndpointEventType = iota
	EndpointSpeechStopped
)

type EndpointEvent struct {
	Type EndpointEventType
	// Utterance holds the captured PCM on EndpointSpeechStopped.
	Utterance []byte
}

type Endpointer struct {
	cfg      EndpointerConfig
	speaking bool
	pending  time.Duration
	silence  time.Duration
	captured time.Duration
	buf      []byte
}

func NewEndpointer(cfg EndpointerConfig) *Endpointer {
	return &Endpointer{cfg: cfg.withDefaults()}
}

// Feed consumes one caller frame and returns any boundary events it
// triggered. Not safe for concurrent use.
func (e *Endpointer) Feed(pcm []byte, sampleRate int) []EndpointEvent {
	if len(pcm) < 2 || sampleRate <= 0 {
		return nil
	}
	dur := time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
	level := rmsPCM16(pcm)

	var events []EndpointEvent
	if !e.speaking {
		if level < e.cfg.StartRMS {
			e.pending = 0
			e.buf = e.buf[:0]
			e.captured = 0
			return nil
		}
		e.pending += dur
		e.buf = append(e.buf, pcm...)
		e.captured += dur
		if e.pending >= e.cfg.MinSpeech {
			e.speaking = true
			e.silence = 0
			events = append(events, EndpointEvent{Type: EndpointSpeechStarted})
		}
		return events
	}

	e.buf = append(e.buf, pcm...)
	e.captured += dur
	if level < e.cfg.StopRMS {
		e.silence += dur
	} else {
		e.silence = 0
	}

	if e.silence >= e.cfg.HangOver || e.captured >= e.cfg.MaxUtterance {
		events = append(events, EndpointEvent{
			Type:      EndpointSpeechStopped,
			Utterance: e.takeUtterance(sampleRate),
		})
	}
	return events
}

// Reset drops any in-progress utterance.
func (e *Endpointer) Reset() {
	e.speaking = false
	e.pending = 0
	e.silence = 0
	e.captured = 0
	e.buf = e.buf[:0]
}

func (e *Endpointer) takeUtterance(sampleRate int) []byte {
	// Trim the trailing hangover silence so the recognizer only sees speech.
	cut := len(e.buf)
	if e.silence > 0 {
		silentBytes := 2 * int(e.silence.Seconds()*float64(sampleRate))
		if silentBytes < cut {
			cut -= silentBytes
		}
	}
	out := make([]byte, cut)
	copy(out, e.buf[:cut])
	e.Reset()
	return out
}

func rmsPCM16(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// endpointStage adapts the Endpointer to the inbound media pipeline. It
// emits CallerStarted before the triggering audio frame and CallerStopped
// after it, with the captured utterance riding the stop marker.
type endpointStage struct {
	det  *Endpointer
	rate int
}

func newEndpointStage(det *Endpointer, rate int) *endpointStage {
	return &endpointStage{det: det, rate: rate}
}

func (s *endpointStage) Name() string { return "endpoint" }

func (s *endpointStage) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	if f.Kind != frame.KindAudioIn {
		return emit(ctx, f)
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = s.rate
	}
	events := s.det.Feed(f.Audio, rate)
	for _, ev := range events {
		if ev.Type == EndpointSpeechStarted {
			if err := emit(ctx, frame.CallerStarted()); err != nil {
				return err
			}
		}
	}
	if err := emit(ctx, f); err != nil {
		return err
	}
	for _, ev := range events {
		if ev.Type == EndpointSpeechStopped {
			stop := frame.CallerStopped()
			stop.Audio = ev.Utterance
			stop.SampleRate = rate
			if err := emit(ctx, stop); err != nil {
				return err
			}
		}
	}
	return nil
}
