// Package slots generates the appointment offers the assistant reads to
// callers. Labels come in two shapes: a spoken form the TTS voice can read
// naturally ("Montag, achtundzwanzigster Juli um elf Uhr") and a classic
// form for prompts and logs ("Montag, 28.07., 11:00 Uhr").
package slots

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock slot time within a workday.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Options controls slot generation. Zero values fall back to the practice
// defaults: four weeks ahead, Monday through Friday, 9:00, 11:00 and 14:00.
type Options struct {
	WeeksAhead int
	Workdays   []time.Weekday
	Times      []TimeOfDay
	Now        func() time.Time
}

// Provider holds a generated slot calendar and filters it per request.
type Provider struct {
	slots []time.Time
	now   func() time.Time
}

// Generate builds the slot calendar for the coming weeks, starting tomorrow.
func Generate(opts Options) *Provider {
	if opts.WeeksAhead <= 0 {
		opts.WeeksAhead = 4
	}
	if len(opts.Workdays) == 0 {
		opts.Workdays = []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}
	}
	if len(opts.Times) == 0 {
		opts.Times = []TimeOfDay{{Hour: 9}, {Hour: 11}, {Hour: 14}}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	workday := make(map[time.Weekday]bool, len(opts.Workdays))
	for _, d := range opts.Workdays {
		workday[d] = true
	}

	now := opts.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	end := start.AddDate(0, 0, opts.WeeksAhead*7)

	var generated []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !workday[day.Weekday()] {
			continue
		}
		for _, t := range opts.Times {
			generated = append(generated, time.Date(
				day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location()))
		}
	}
	return &Provider{slots: generated, now: opts.Now}
}

// Future returns the slots still ahead of now. withinDays > 0 limits the
// window, maxN > 0 caps the count.
func (p *Provider) Future(withinDays, maxN int) []time.Time {
	now := p.now()
	future := make([]time.Time, 0, len(p.slots))
	for _, s := range p.slots {
		if !s.After(now) {
			continue
		}
		if withinDays > 0 && s.After(now.AddDate(0, 0, withinDays)) {
			continue
		}
		future = append(future, s)
	}
	if maxN > 0 && len(future) > maxN {
		future = future[:maxN]
	}
	return future
}

// OfferString renders the upcoming slots as one prompt-ready string.
func (p *Provider) OfferString(withinDays, maxN int, spoken bool) string {
	future := p.Future(withinDays, maxN)
	labels := make([]string, len(future))
	for i, s := range future {
		labels[i] = Label(s, spoken)
	}
	return strings.Join(labels, ", ")
}

// Label formats a single slot.
func Label(t time.Time, spoken bool) string {
	weekday := weekdayDE(t.Weekday())
	if !spoken {
		return fmt.Sprintf("%s, %02d.%02d., %02d:%02d Uhr",
			weekday, t.Day(), int(t.Month()), t.Hour(), t.Minute())
	}

	dayWord := ordinalDayDE(t.Day())
	month := monthsDE[int(t.Month())-1]

	timePart := clockHourDE(t.Hour()) + " Uhr"
	if minute := t.Minute(); minute != 0 {
		if minute == 1 {
			timePart += " eine Minute"
		} else {
			timePart += " " + cardinalDE(minute) + " Minuten"
		}
	}
	return fmt.Sprintf("%s, %s %s um %s", weekday, dayWord, month, timePart)
}
