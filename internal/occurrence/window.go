package occurrence

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"eventtimers/internal/model"
)

const (
	// DefaultMaxSpans caps a single window expansion, mirroring the per-event
	// safety cap used for calendar recurrence.
	DefaultMaxSpans = 5000
)

var ErrInvalidRange = errors.New("occurrence: window end is before start")

// Span is one concrete occurrence laid out on the wall clock.
type Span struct {
	Start time.Time
	End   time.Time
}

// Window lists every occurrence of ev that overlaps [from, to], oldest first.
// Occurrences that started before from but are still running are included.
// The second return value reports whether the max cap cut the list short.
func Window(baseTime int64, ev model.Event, from, to time.Time, max int) ([]Span, bool, error) {
	cycle := ev.CycleDuration
	if cycle <= 0 {
		return nil, false, ErrInvalidCycle
	}
	if to.Before(from) {
		return nil, false, ErrInvalidRange
	}
	if max <= 0 {
		max = DefaultMaxSpans
	}

	// Occurrence starts sit on the grid anchor + k*cycle. The first one worth
	// listing is the earliest start whose window still ends after from.
	anchor := baseTime + euclidMod(ev.StartOffset, cycle)
	earliest := from.Unix() - ev.Duration + 1
	k := ceilDiv(earliest-anchor, cycle)
	first := time.Unix(anchor+k*cycle, 0).UTC()
	if first.After(to) {
		return []Span{}, false, nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.SECONDLY,
		Interval: int(cycle),
		Dtstart:  first,
		Until:    to.UTC(),
		Count:    max + 1,
	})
	if err != nil {
		return nil, false, err
	}

	starts := r.All()
	truncated := false
	if len(starts) > max {
		starts = starts[:max]
		truncated = true
	}

	dur := time.Duration(ev.Duration) * time.Second
	out := make([]Span, 0, len(starts))
	for _, s := range starts {
		out = append(out, Span{Start: s, End: s.Add(dur)})
	}
	return out, truncated, nil
}

func ceilDiv(a, m int64) int64 {
	return -floorDiv(-a, m)
}
