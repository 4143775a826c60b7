// Package voice runs the assistant side of a call: speech recognition,
// reply generation, synthesis, and the per-call engine that wires them into
// the media pipelines.
package voice

import "context"

// Transcription is one recognized caller utterance.
type Transcription struct {
	Text       string
	Confidence float64
	Language   string
}

// PatientFields mirrors the collect_patient_info tool call. Nil fields were
// not mentioned in the turn; set fields overwrite earlier values.
type PatientFields struct {
	VisitReason   *string
	FirstName     *string
	LastName      *string
	Phone         *string
	ChosenSlot    *string
	SlotConfirmed *bool
	IsComplete    *bool
}

// Reply is the assistant's output for one turn.
type Reply struct {
	Text   string
	Fields PatientFields
	// Done marks the conversation complete; the engine hangs up after
	// speaking the text.
	Done bool
}

// Audio is synthesized speech as mono 16-bit little-endian PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
}

// ConversationOptions configures one call's conversation.
type ConversationOptions struct {
	// CallID is the issued call number. It doubles as the survey code the
	// assistant speaks at the end.
	CallID       string
	SystemPrompt string
	Language     string
	// SampleRate is the pipeline PCM rate for Recognize input and
	// Synthesize output.
	SampleRate int
	// SlotOffers are the spoken labels of the appointment slots the
	// assistant may offer, in order.
	SlotOffers []string
}

// Conversation is the per-call speech loop. Implementations need not be
// safe for concurrent calls to the same method; the engine serializes turns.
type Conversation interface {
	Recognize(ctx context.Context, pcm []byte, sampleRate int) (Transcription, error)
	Respond(ctx context.Context, userText string) (Reply, error)
	Synthesize(ctx context.Context, text string) (Audio, error)
	Close() error
}

// Provider opens conversations. One provider serves all calls.
type Provider interface {
	Name() string
	NewConversation(ctx context.Context, opts ConversationOptions) (Conversation, error)
}
