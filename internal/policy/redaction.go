// Package policy enforces study-data hygiene. Callers are research
// participants and are told to use invented names, but free text such as a
// visit reason can still carry real contact details. Anything that crosses
// into logs or the call store goes through RedactPII first.
package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactFreeText is RedactPII for callers that only need the cleaned text.
func RedactFreeText(input string) string {
	out, _ := RedactPII(input)
	return out
}

// MaskIdentifier keeps the last digits of a phone-number identifier so log
// lines stay correlatable without carrying the full number. Identifiers that
// do not look like phone numbers pass through unchanged.
func MaskIdentifier(id string) string {
	const keep = 4
	if !phonePattern.MatchString(id) || len(id) <= keep {
		return id
	}
	return "***" + id[len(id)-keep:]
}
