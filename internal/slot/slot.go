// Package slot derives the canonical departure slots used to match riders.
//
// A requested departure time expands into five slots spaced thirty minutes
// apart, centred on the request. The first and last slot bound the window
// in which existing groups are offered to the rider.
package slot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Step is the spacing between two adjacent slots.
const Step = 30 * time.Minute

// Count is the number of slots generated per request.
const Count = 5

// pickerLayout is the 12-hour form the client picker sends, e.g. "2:30 PM".
const pickerLayout = "3:04 PM"

// ErrInvalidTime is returned for picker labels that cannot be parsed.
var ErrInvalidTime = errors.New("invalid departure time")

var offsets = [Count]time.Duration{-2 * Step, -Step, 0, Step, 2 * Step}

// Generate returns [base-60m, base-30m, base, base+30m, base+60m].
func Generate(base time.Time) []time.Time {
	slots := make([]time.Time, 0, Count)
	for _, off := range offsets {
		slots = append(slots, base.Add(off))
	}
	return slots
}

// Window returns the inclusive matching window around base.
func Window(base time.Time) (from, to time.Time) {
	return base.Add(offsets[0]), base.Add(offsets[Count-1])
}

// ParsePickerTime converts a picker label into an absolute instant on the
// calendar day of day, interpreted in loc. Only :00 and :30 are accepted.
func ParsePickerTime(label string, day time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}

	parsed, err := time.Parse(pickerLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, label)
	}
	if m := parsed.Minute(); m != 0 && m != 30 {
		return time.Time{}, fmt.Errorf("%w: minutes must be 00 or 30", ErrInvalidTime)
	}

	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}

// PickerLabels returns the 48 half-hourly labels from 12:00 AM to 11:30 PM.
func PickerLabels() []string {
	labels := make([]string, 0, 48)
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		labels = append(labels, start.Add(time.Duration(i)*Step).Format(pickerLayout))
	}
	return labels
}
