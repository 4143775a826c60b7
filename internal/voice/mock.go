package voice

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
)

// MockProvider is a deterministic provider for local runs and tests. It
// fakes recognition with a scripted caller, walks the appointment dialog
// the way the prompt prescribes it, and synthesizes a tone whose length
// tracks the text.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) NewConversation(_ context.Context, opts ConversationOptions) (Conversation, error) {
	return &mockConversation{opts: opts}, nil
}

// Scripted caller lines, one per utterance. The last line repeats.
var mockCallerScript = []string{
	"Ich habe seit einigen Tagen Rückenschmerzen.",
	"Max Mustermann, meine Nummer ist 0151 2345670.",
	"Der erste Termin passt mir gut.",
	"Ja, das stimmt so.",
}

var mockPhoneRe = regexp.MustCompile(`[0-9][0-9 ]{5,}[0-9]`)

type mockStage int

const (
	stageVisitReason mockStage = iota
	stageNameAndPhone
	stageOfferSlots
	stageConfirmSlot
	stageDone
)

type mockConversation struct {
	mu         sync.Mutex
	opts       ConversationOptions
	stage      mockStage
	utterances int
	chosenSlot string
	closed     bool
}

func (c *mockConversation) Recognize(_ context.Context, pcm []byte, _ int) (Transcription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(pcm) == 0 {
		return Transcription{}, nil
	}
	line := mockCallerScript[min(c.utterances, len(mockCallerScript)-1)]
	c.utterances++
	return Transcription{Text: line, Confidence: 0.9, Language: c.opts.Language}, nil
}

func (c *mockConversation) Respond(_ context.Context, userText string) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Reply{Done: true}, nil
	}

	switch c.stage {
	case stageVisitReason:
		c.stage = stageNameAndPhone
		return Reply{
			Text: "Vielen Dank. Wie darf ich Sie ansprechen? Bitte nennen Sie mir – gern mit einem Fantasienamen – Ihren vollständigen Namen und Ihre Telefonnummer.",
			Fields: PatientFields{
				VisitReason: strPtr(strings.TrimSpace(userText)),
			},
		}, nil

	case stageNameAndPhone:
		fields := parseNameAndPhone(userText)
		if len(c.opts.SlotOffers) == 0 {
			c.stage = stageDone
			fields.IsComplete = boolPtr(true)
			return Reply{
				Text:   completionText(c.opts.CallID, ""),
				Fields: fields,
				Done:   true,
			}, nil
		}
		c.stage = stageOfferSlots
		return Reply{
			Text: "Danke. Ich kann Ihnen folgende Termine anbieten: " +
				strings.Join(c.opts.SlotOffers, ", ") +
				". Welcher Termin passt Ihnen am besten?",
			Fields: fields,
		}, nil

	case stageOfferSlots:
		c.chosenSlot = pickSlot(userText, c.opts.SlotOffers)
		c.stage = stageConfirmSlot
		return Reply{
			Text:   fmt.Sprintf("Sie haben %s gewählt – stimmt das so?", c.chosenSlot),
			Fields: PatientFields{ChosenSlot: strPtr(c.chosenSlot)},
		}, nil

	case stageConfirmSlot:
		if !isAffirmative(userText) {
			c.stage = stageOfferSlots
			return Reply{
				Text: "Kein Problem. Welcher der genannten Termine passt Ihnen stattdessen?",
			}, nil
		}
		c.stage = stageDone
		return Reply{
			Text: completionText(c.opts.CallID, c.chosenSlot),
			Fields: PatientFields{
				SlotConfirmed: boolPtr(true),
				IsComplete:    boolPtr(true),
			},
			Done: true,
		}, nil
	}

	return Reply{Done: true}, nil
}

func (c *mockConversation) Synthesize(_ context.Context, text string) (Audio, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rate := c.opts.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{SampleRate: rate}, nil
	}

	// 60ms floor plus 12ms per rune, capped at 1.2s. Short but audible.
	ms := 60 + 12*len([]rune(text))
	if ms > 1200 {
		ms = 1200
	}
	samples := rate * ms / 1000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(6000 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return Audio{PCM: pcm, SampleRate: rate}, nil
}

func (c *mockConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func completionText(pin, slot string) string {
	var b strings.Builder
	b.WriteString("Vielen Dank. Der Termin ist notiert.")
	if slot != "" {
		fmt.Fprintf(&b, " Ihr Termin ist am %s.", slot)
	}
	fmt.Fprintf(&b, " Ihre persönliche Umfrage-Nummer lautet: %s."+
		" Bitte notieren Sie diesen Code und tragen Sie ihn anschließend in die Umfrage ein.", pin)
	return b.String()
}

func parseNameAndPhone(text string) PatientFields {
	fields := PatientFields{}
	phone := mockPhoneRe.FindString(text)
	if phone != "" {
		fields.Phone = strPtr(strings.ReplaceAll(phone, " ", ""))
		text = strings.Replace(text, phone, "", 1)
	}

	var words []string
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, ",.;:!?")
		if w != "" && !strings.ContainsAny(w, "0123456789") {
			words = append(words, w)
		}
	}
	switch {
	case len(words) >= 2:
		fields.FirstName = strPtr(words[0])
		fields.LastName = strPtr(words[1])
	case len(words) == 1:
		fields.FirstName = strPtr(words[0])
	}
	return fields
}

func pickSlot(text string, offers []string) string {
	if len(offers) == 0 {
		return ""
	}
	lower := strings.ToLower(text)
	if len(offers) > 1 && strings.Contains(lower, "zweit") {
		return offers[1]
	}
	if len(offers) > 2 && strings.Contains(lower, "dritt") {
		return offers[2]
	}
	return offers[0]
}

func isAffirmative(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "nein") || strings.Contains(lower, "nicht") {
		return false
	}
	for _, cue := range []string{"ja", "stimmt", "genau", "passt", "richtig", "korrekt"} {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
