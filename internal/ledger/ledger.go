// Package ledger records which reminders have fired and enforces the
// cooldowns that keep notifications from repeating or bursting.
//
// Three independent gates must all pass before a reminder may fire:
//
//   - global: at least GlobalCooldown since the last toast of any event
//   - per event: at least EventCooldown since the last toast of that event
//   - per reminder kind: a lead reminder fires once per occurrence inside its
//     lead window; an ongoing reminder repeats every interval while the
//     occurrence is active, except during its final interval
//
// Each gate keeps its own table so it can be collected and tested alone.
// A Ledger is not safe for concurrent use; the scheduler serializes access.
package ledger

import (
	"time"

	"eventtimers/internal/model"
	"eventtimers/internal/occurrence"
)

// GlobalCooldown is measured on the wall clock, sub-second included, so no
// two firings are ever closer than this.
const GlobalCooldown = 2 * time.Second

// The remaining instants and spans are unix seconds.
const (
	EventCooldown int64 = 30

	// NotifiedRetention bounds how long a fired reminder key is remembered,
	// measured from the occurrence start.
	NotifiedRetention int64 = 24 * 60 * 60
	// EventRetention bounds how long a per-event cooldown entry is kept.
	EventRetention int64 = 5 * 60
)

// NotifiedKey identifies one lead reminder for one occurrence.
type NotifiedKey struct {
	EventID       model.EventID
	Start         int64
	MinutesBefore uint32
}

// OngoingKey identifies one occurrence for repeating reminders.
type OngoingKey struct {
	EventID model.EventID
	Start   int64
}

// Candidate is an evaluated occurrence offered to the gates.
type Candidate struct {
	EventID    model.EventID
	Occurrence occurrence.Occurrence
	// Duration of the event in seconds, needed to find the final interval.
	Duration int64
}

type Ledger struct {
	notified map[NotifiedKey]struct{}
	ongoing  map[OngoingKey]int64
	events   map[model.EventID]int64

	// zero until the first firing
	globalLast time.Time
}

func New() *Ledger {
	return &Ledger{
		notified: make(map[NotifiedKey]struct{}),
		ongoing:  make(map[OngoingKey]int64),
		events:   make(map[model.EventID]int64),
	}
}

// GlobalReady reports whether the system-wide spacing has elapsed.
func (l *Ledger) GlobalReady(now time.Time) bool {
	return l.globalLast.IsZero() || now.Sub(l.globalLast) >= GlobalCooldown
}

// EventReady reports whether id is outside its per-event cooldown.
func (l *Ledger) EventReady(id model.EventID, now int64) bool {
	last, ok := l.events[id]
	return !ok || now-last >= EventCooldown
}

// ReminderReady applies the reminder-kind gate only.
func (l *Ledger) ReminderReady(c Candidate, r model.Reminder, now int64) bool {
	occ := c.Occurrence

	if !r.IsOngoing() {
		lead := int64(r.MinutesBefore) * 60
		if occ.SecondsUntil <= 0 || occ.SecondsUntil > lead {
			return false
		}
		_, done := l.notified[NotifiedKey{EventID: c.EventID, Start: occ.Start, MinutesBefore: r.MinutesBefore}]
		return !done
	}

	if !occ.Active() {
		return false
	}
	interval := r.IntervalSeconds()
	remaining := c.Duration - occ.SecondsInto
	// Never notify on the final interval: the reminder would be followed
	// immediately by the end of the occurrence. An interval longer than the
	// event therefore never fires.
	if remaining <= interval {
		return false
	}
	last, ok := l.ongoing[OngoingKey{EventID: c.EventID, Start: occ.Start}]
	return !ok || now-last >= interval
}

// MayNotify is true only when every gate passes. The global gate uses the
// exact instant; the others use its unix second.
func (l *Ledger) MayNotify(c Candidate, r model.Reminder, now time.Time) bool {
	sec := now.Unix()
	return l.GlobalReady(now) && l.EventReady(c.EventID, sec) && l.ReminderReady(c, r, sec)
}

// RecordNotified stores a firing in all three tables.
func (l *Ledger) RecordNotified(c Candidate, r model.Reminder, now time.Time) {
	sec := now.Unix()
	l.globalLast = now
	l.events[c.EventID] = sec

	if r.IsOngoing() {
		l.ongoing[OngoingKey{EventID: c.EventID, Start: c.Occurrence.Start}] = sec
		return
	}
	l.notified[NotifiedKey{EventID: c.EventID, Start: c.Occurrence.Start, MinutesBefore: r.MinutesBefore}] = struct{}{}
}

// Collect drops reminder keys for occurrences that started more than a day
// ago and per-event cooldowns older than EventRetention. Entries exactly at
// a cutoff are kept.
func (l *Ledger) Collect(now int64) {
	cutoff := now - NotifiedRetention
	for k := range l.notified {
		if k.Start < cutoff {
			delete(l.notified, k)
		}
	}
	for k := range l.ongoing {
		if k.Start < cutoff {
			delete(l.ongoing, k)
		}
	}
	for id, last := range l.events {
		if now-last > EventRetention {
			delete(l.events, id)
		}
	}
}

// Stats is a point-in-time size report of the ledger tables.
type Stats struct {
	Notified int `json:"notified"`
	Ongoing  int `json:"ongoing"`
	Events   int `json:"events"`
}

func (l *Ledger) Stats() Stats {
	return Stats{
		Notified: len(l.notified),
		Ongoing:  len(l.ongoing),
		Events:   len(l.events),
	}
}

// Len is the total number of entries across all tables.
func (l *Ledger) Len() int {
	return len(l.notified) + len(l.ongoing) + len(l.events)
}
