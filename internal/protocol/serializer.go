// Package protocol translates between the telephony media-streaming JSON
// envelopes and pipeline frames.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/dr-redtec/Voice-AI-Latency/internal/audio"
	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
)

// Envelope kinds on the media websocket. The transport emits a PascalCase
// kind value for inbound audio; outbound envelopes are camelCase throughout.
const (
	KindAudioDataIn  = "AudioData"
	KindAudioDataOut = "audioData"
	KindStopAudio    = "stopAudio"
)

// WireSampleRate is the fixed PCM16 mono rate of outbound media messages.
const WireSampleRate = 16000

type inboundEnvelope struct {
	Kind      string        `json:"kind"`
	AudioData *inboundAudio `json:"audioData"`
}

type inboundAudio struct {
	Data       string `json:"data"`
	SampleRate int    `json:"sampleRate"`
}

type audioPayload struct {
	Timestamp        *string `json:"timestamp"`
	ParticipantRawID string  `json:"participantRawID"`
	Data             string  `json:"data"`
	Silent           bool    `json:"silent"`
	SampleRate       int     `json:"sampleRate"`
}

type audioEnvelope struct {
	Kind      string       `json:"kind"`
	AudioData audioPayload `json:"audioData"`
}

type stopEnvelope struct {
	Kind      string   `json:"kind"`
	StopAudio struct{} `json:"stopAudio"`
}

// Serializer converts frames to media-stream envelopes and back. Inbound
// audio is resampled to the pipeline rate, outbound audio to the wire rate.
// A Serializer is stateless apart from its configuration and safe for
// concurrent use.
type Serializer struct {
	sampleRate    int
	autoStopAudio bool
}

// NewSerializer returns a Serializer producing pipeline audio at
// pipelineRate (16000 when zero). When autoStopAudio is set, end, cancel and
// interrupt frames serialize to a stopAudio envelope; otherwise they are
// dropped.
func NewSerializer(pipelineRate int, autoStopAudio bool) *Serializer {
	if pipelineRate <= 0 {
		pipelineRate = WireSampleRate
	}
	return &Serializer{sampleRate: pipelineRate, autoStopAudio: autoStopAudio}
}

// Serialize renders a frame as a wire envelope. The second return is false
// for frame kinds that do not cross the transport; those are dropped without
// error.
func (s *Serializer) Serialize(f frame.Frame) ([]byte, bool) {
	switch f.Kind {
	case frame.KindEnd, frame.KindCancel, frame.KindInterrupt:
		if !s.autoStopAudio {
			return nil, false
		}
		b, err := json.Marshal(stopEnvelope{Kind: KindStopAudio})
		if err != nil {
			return nil, false
		}
		return b, true

	case frame.KindAudioIn, frame.KindAudioOut:
		pcm := f.Audio
		rate := f.SampleRate
		if rate <= 0 {
			rate = s.sampleRate
		}
		if rate != WireSampleRate {
			pcm = audio.ResampleMono16(pcm, rate, WireSampleRate)
			rate = WireSampleRate
		}
		b, err := json.Marshal(audioEnvelope{
			Kind: KindAudioDataOut,
			AudioData: audioPayload{
				Data:       base64.StdEncoding.EncodeToString(pcm),
				SampleRate: rate,
			},
		})
		if err != nil {
			return nil, false
		}
		return b, true

	default:
		return nil, false
	}
}

// Deserialize parses a wire message into a caller audio frame. Anything that
// is not a well-formed audio envelope, including malformed JSON, unknown
// kinds and empty payloads, yields ok=false and never an error escape.
// Matching is case-insensitive on both the kind value and the field names,
// which covers the transport's AudioData/audioData and Data/data variants.
func (s *Serializer) Deserialize(raw []byte) (frame.Frame, bool) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return frame.Frame{}, false
	}
	if !strings.EqualFold(env.Kind, KindAudioDataIn) || env.AudioData == nil || env.AudioData.Data == "" {
		return frame.Frame{}, false
	}

	pcm, err := base64.StdEncoding.DecodeString(env.AudioData.Data)
	if err != nil {
		return frame.Frame{}, false
	}
	rate := env.AudioData.SampleRate
	if rate <= 0 {
		rate = WireSampleRate
	}
	if rate != s.sampleRate {
		pcm = audio.ResampleMono16(pcm, rate, s.sampleRate)
	}
	return frame.AudioIn(pcm, s.sampleRate), true
}
