// Package occurrence maps a track anchor, an event definition and a wall
// clock instant to the current or next occurrence of that event. Everything
// here is pure; callers own all state.
package occurrence

import (
	"errors"

	"eventtimers/internal/model"
)

// ErrInvalidCycle is returned for events whose cycle duration is not
// positive. Such events are a configuration error and must be skipped.
var ErrInvalidCycle = errors.New("occurrence: cycle duration must be positive")

// Occurrence describes one cycle-instance of an event relative to now.
type Occurrence struct {
	// Start is the absolute start of the occurrence in unix seconds. Together
	// with the EventID it uniquely identifies the occurrence.
	Start int64
	// SecondsUntil is 0 while active, otherwise in (0, cycle].
	SecondsUntil int64
	// SecondsInto is >= 0 while active and -1 when pending.
	SecondsInto int64
	// Index counts whole cycles since the anchor; a tie-breaker only.
	Index int64
}

func (o Occurrence) Active() bool {
	return o.SecondsInto >= 0
}

// End is the absolute end of the occurrence for an event of the given
// duration.
func (o Occurrence) End(duration int64) int64 {
	return o.Start + duration
}

// Calculate returns the occurrence of ev that is active at now or, when none
// is, the next one to start. baseTime and now are unix seconds.
//
// The start offset is folded into [0, cycle) first, so negative offsets are
// legal. A window that runs past the end of the cycle stays active into the
// next one, and an event whose duration covers the whole cycle is reported
// active on every call.
func Calculate(baseTime int64, ev model.Event, now int64) (Occurrence, error) {
	cycle := ev.CycleDuration
	if cycle <= 0 {
		return Occurrence{}, ErrInvalidCycle
	}

	offset := euclidMod(ev.StartOffset, cycle)
	phase := euclidMod(now-baseTime, cycle)

	// Seconds since the most recent start at or before now.
	into := euclidMod(phase-offset, cycle)
	if into < ev.Duration {
		start := now - into
		return Occurrence{
			Start:        start,
			SecondsUntil: 0,
			SecondsInto:  into,
			Index:        floorDiv(start-baseTime-offset, cycle),
		}, nil
	}

	delta := cycle - into
	start := now + delta
	return Occurrence{
		Start:        start,
		SecondsUntil: delta,
		SecondsInto:  -1,
		Index:        floorDiv(start-baseTime-offset, cycle),
	}, nil
}

// euclidMod is a mod m with a result in [0, m) for m > 0.
func euclidMod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func floorDiv(a, m int64) int64 {
	q := a / m
	if a%m != 0 && (a < 0) != (m < 0) {
		q--
	}
	return q
}
