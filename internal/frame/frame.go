// Package frame defines the closed set of frame kinds that move through a
// call pipeline. Every stage dispatches on Kind with an exhaustive switch;
// adding a kind here means visiting those switches.
package frame

import "fmt"

// Kind tags a Frame with its variant.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindAudioIn carries caller PCM on its way into the pipeline.
	KindAudioIn
	// KindAudioOut carries synthesized PCM on its way to the caller.
	KindAudioOut
	// KindCallerStarted marks detected caller speech onset.
	KindCallerStarted
	// KindCallerStopped marks detected caller speech end.
	KindCallerStopped
	// KindAssistantStarted marks the first synthesized audio of a reply.
	KindAssistantStarted
	// KindAssistantStopped marks playback completion of a reply.
	KindAssistantStopped
	// KindTranscript carries recognized caller text.
	KindTranscript
	// KindTurnReady carries the aggregated caller turn handed to response
	// generation. It is the trigger the latency stage holds.
	KindTurnReady
	// KindSpeak carries assistant text handed to synthesis.
	KindSpeak
	// KindInterrupt asks the far end to stop playback immediately.
	KindInterrupt
	// KindCancel aborts the in-flight turn.
	KindCancel
	// KindEnd closes the call.
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindAudioIn:
		return "audio_in"
	case KindAudioOut:
		return "audio_out"
	case KindCallerStarted:
		return "caller_started"
	case KindCallerStopped:
		return "caller_stopped"
	case KindAssistantStarted:
		return "assistant_started"
	case KindAssistantStopped:
		return "assistant_stopped"
	case KindTranscript:
		return "transcript"
	case KindTurnReady:
		return "turn_ready"
	case KindSpeak:
		return "speak"
	case KindInterrupt:
		return "interrupt"
	case KindCancel:
		return "cancel"
	case KindEnd:
		return "end"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Frame is the tagged variant passed between pipeline stages. Only the
// fields relevant to Kind are set; the rest stay zero.
type Frame struct {
	Kind       Kind
	Audio      []byte // PCM16 little-endian
	SampleRate int
	Channels   int
	Text       string
	Final      bool
}

// IsAudio reports whether the frame carries PCM in either direction.
func (f Frame) IsAudio() bool {
	return f.Kind == KindAudioIn || f.Kind == KindAudioOut
}

func (f Frame) String() string {
	switch {
	case f.IsAudio():
		return fmt.Sprintf("%s(%dB@%d)", f.Kind, len(f.Audio), f.SampleRate)
	case f.Text != "":
		return fmt.Sprintf("%s(%q)", f.Kind, f.Text)
	default:
		return f.Kind.String()
	}
}

// AudioIn wraps caller PCM at the given rate.
func AudioIn(pcm []byte, sampleRate int) Frame {
	return Frame{Kind: KindAudioIn, Audio: pcm, SampleRate: sampleRate, Channels: 1}
}

// AudioOut wraps assistant PCM at the given rate.
func AudioOut(pcm []byte, sampleRate int) Frame {
	return Frame{Kind: KindAudioOut, Audio: pcm, SampleRate: sampleRate, Channels: 1}
}

func CallerStarted() Frame { return Frame{Kind: KindCallerStarted} }

func CallerStopped() Frame { return Frame{Kind: KindCallerStopped} }

func AssistantStarted() Frame { return Frame{Kind: KindAssistantStarted} }

func AssistantStopped() Frame { return Frame{Kind: KindAssistantStopped} }

// Transcript wraps recognized caller text. Final marks an utterance-final
// hypothesis as opposed to a streaming partial.
func Transcript(text string, final bool) Frame {
	return Frame{Kind: KindTranscript, Text: text, Final: final}
}

// TurnReady wraps the aggregated caller turn.
func TurnReady(text string) Frame { return Frame{Kind: KindTurnReady, Text: text} }

// Speak wraps assistant text bound for synthesis.
func Speak(text string) Frame { return Frame{Kind: KindSpeak, Text: text} }

func Interrupt() Frame { return Frame{Kind: KindInterrupt} }

func Cancel() Frame { return Frame{Kind: KindCancel} }

func End() Frame { return Frame{Kind: KindEnd} }
