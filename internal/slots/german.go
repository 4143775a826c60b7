package slots

import (
	"strconv"
	"strings"
	"time"
)

// Fixed German names so formatting never depends on the host locale.
var weekdaysDE = [...]string{
	"Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag",
	"Samstag", "Sonntag",
}

var monthsDE = [...]string{
	"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}

var unitsDE = [...]string{
	"null", "eins", "zwei", "drei", "vier", "fünf", "sechs", "sieben",
	"acht", "neun", "zehn", "elf", "zwölf", "dreizehn", "vierzehn",
	"fünfzehn", "sechzehn", "siebzehn", "achtzehn", "neunzehn",
}

var tensDE = map[int]string{
	20: "zwanzig",
	30: "dreißig",
	40: "vierzig",
	50: "fünfzig",
}

// weekdayDE maps Go's Sunday-first weekday onto the Monday-first table.
func weekdayDE(d time.Weekday) string {
	return weekdaysDE[(int(d)+6)%7]
}

// cardinalDE spells a number as spoken German, covering the clock range.
// Values outside 0..59 fall back to digits.
func cardinalDE(n int) string {
	switch {
	case n < 0 || n > 59:
		return strconv.Itoa(n)
	case n < 20:
		return unitsDE[n]
	}
	tens := tensDE[n/10*10]
	unit := n % 10
	if unit == 0 {
		return tens
	}
	prefix := unitsDE[unit]
	if unit == 1 {
		prefix = "ein"
	}
	return prefix + "und" + tens
}

// ordinalDE spells a day of month as a weak ordinal, "siebzehnte".
func ordinalDE(n int) string {
	switch n {
	case 1:
		return "erste"
	case 3:
		return "dritte"
	case 7:
		return "siebte"
	case 8:
		return "achte"
	}
	if n < 20 {
		return cardinalDE(n) + "te"
	}
	return cardinalDE(n) + "ste"
}

// ordinalDayDE returns the strong masculine form used after a weekday,
// "Montag, siebzehnter September".
func ordinalDayDE(n int) string {
	w := ordinalDE(n)
	switch {
	case strings.HasSuffix(w, "ste"):
		return strings.TrimSuffix(w, "ste") + "ster"
	case strings.HasSuffix(w, "te"):
		return strings.TrimSuffix(w, "te") + "ter"
	}
	return w
}

// clockHourDE spells an hour for "… Uhr", with "ein" instead of "eins".
func clockHourDE(h int) string {
	if h == 1 {
		return "ein"
	}
	return cardinalDE(h)
}
