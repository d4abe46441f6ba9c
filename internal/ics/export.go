// Package ics lays occurrences of subscribed events out on the wall clock
// and exports them as an iCalendar feed.
package ics

import (
	"fmt"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "eventtimers/internal/log"
	"eventtimers/internal/model"
	"eventtimers/internal/occurrence"
)

const productID = "-//eventtimers//agenda//EN"

// uidNamespace scopes the name-based UIDs of exported occurrences.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("eventtimers"))

// Options selects what goes into an agenda.
type Options struct {
	From time.Time
	To   time.Time

	// All includes unsubscribed events.
	All bool

	// MaxPerEvent caps the occurrences listed for a single event. Zero uses
	// occurrence.DefaultMaxSpans.
	MaxPerEvent int

	// Name is written as X-WR-CALNAME.
	Name string
}

// Entry is one occurrence laid out on the wall clock.
type Entry struct {
	EventID  model.EventID `json:"event_id"`
	Category string        `json:"category,omitempty"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Color    model.Color   `json:"color"`
	CopyText string        `json:"copy_text,omitempty"`
}

// UID is stable for the same event and start, so calendar clients update
// entries in place across exports.
func (e Entry) UID() string {
	name := fmt.Sprintf("%s@%d", e.EventID, e.Start.Unix())
	return uuid.NewSHA1(uidNamespace, []byte(name)).String()
}

// Agenda lists the occurrences in [opts.From, opts.To] of every enabled
// event on visible tracks, ordered by start. Misconfigured events are
// skipped.
func Agenda(tracks []model.Track, subs model.Subscriptions, opts Options) ([]Entry, error) {
	if opts.To.Before(opts.From) {
		return nil, occurrence.ErrInvalidRange
	}

	var out []Entry
	seen := make(map[string]struct{})

	for _, t := range tracks {
		if !t.Visible {
			continue
		}
		for _, ev := range t.Events {
			if !ev.Enabled {
				continue
			}
			id := model.NewEventID(t.Name, ev.Name)
			if !opts.All && !subs.Contains(id) {
				continue
			}

			spans, truncated, err := occurrence.Window(t.BaseTime, ev, opts.From, opts.To, opts.MaxPerEvent)
			if err != nil {
				appLog.Warn("agenda: skipping event", "event", id.String(), "err", err)
				continue
			}
			if truncated {
				appLog.Warn("agenda: occurrence cap reached", "event", id.String(), "count", len(spans))
			}

			for _, s := range spans {
				e := Entry{
					EventID:  id,
					Category: t.Category,
					Start:    s.Start,
					End:      s.End,
					Color:    ev.Color,
					CopyText: ev.CopyText,
				}
				uid := e.UID()
				if _, dup := seen[uid]; dup {
					continue
				}
				seen[uid] = struct{}{}
				out = append(out, e)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].EventID.String() < out[j].EventID.String()
	})
	return out, nil
}

// Export builds a VCALENDAR with one VEVENT per agenda entry. stamp is used
// as DTSTAMP so identical inputs serialize identically.
func Export(tracks []model.Track, subs model.Subscriptions, opts Options, stamp time.Time) (*ical.Calendar, error) {
	entries, err := Agenda(tracks, subs, opts)
	if err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, e := range entries {
		ve := cal.AddEvent(e.UID())
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(e.Start.UTC())
		ve.SetEndAt(e.End.UTC())
		ve.SetSummary(e.EventID.Event)
		ve.AddProperty(ical.ComponentPropertyCategories, e.EventID.Track)
		if e.CopyText != "" {
			ve.SetLocation(e.CopyText)
		}
		ve.SetDescription(fmt.Sprintf("%s (%s)", e.EventID, e.Color.Hex()))
	}

	return cal, nil
}
