package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLRe        = regexp.MustCompile(`https?://\S+`)
	speechCodeFenceRe  = regexp.MustCompile("(?s)```.*?```")
	speechInlineCodeRe = regexp.MustCompile("`[^`]*`")
	speechMDLinkRe     = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// sanitizeSpeechText strips markup and symbol noise from model replies so
// the synthesizer speaks plain German. Sentence punctuation, guillemets and
// the date/time separators in slot labels survive.
func sanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechCodeFenceRe.ReplaceAllString(raw, " ")
	raw = speechInlineCodeRe.ReplaceAllString(raw, " ")
	raw = speechMDLinkRe.ReplaceAllString(raw, "$1")
	raw = speechURLRe.ReplaceAllString(raw, " ")

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case r == '‍' || r == '️' || r == '⃣':
			// Emoji joiners and keycap marks.
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
		case unicode.In(r, unicode.So, unicode.Sk):
			// Emoji and symbol glyphs sound wrong when spoken.
		case speechSafeRune(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r) || unicode.In(r, unicode.Sm):
			// Markdown emphasis, pipes, dashes and the rest become word breaks.
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

func speechSafeRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '-', '(', ')', '»', '«':
		return true
	}
	return false
}
