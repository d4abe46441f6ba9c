// Package notify drives reminders: once per wall-clock second it evaluates
// every subscribed event, mints toasts through the ledger gates and rebuilds
// the upcoming events projection.
package notify

import (
	"sort"
	"sync"
	"time"

	"eventtimers/internal/ledger"
	appLog "eventtimers/internal/log"
	"eventtimers/internal/model"
	"eventtimers/internal/occurrence"
	"eventtimers/internal/toast"
)

// Settings are the display limits read fresh every tick.
type Settings struct {
	ToastsEnabled    bool
	ToastDuration    time.Duration
	MaxVisibleToasts int
	MaxUpcoming      int
}

// Snapshot is the per-tick copy of everything the scheduler reads from its
// source. The scheduler never holds on to it across ticks.
type Snapshot struct {
	Tracks        []model.Track
	Subscriptions model.Subscriptions
	Reminders     []model.Reminder
	Settings      Settings
}

// Source supplies snapshots and applies one-shot removals. Implementations
// must be safe for concurrent use; the scheduler calls them without holding
// its own lock.
type Source interface {
	Snapshot() Snapshot
	RemoveOneShot(ids ...model.EventID)
}

type Scheduler struct {
	src Source

	mu       sync.Mutex
	ledger   *ledger.Ledger
	queue    *toast.Queue
	upcoming []model.UpcomingEntry

	lastRefresh int64
	refreshed   bool

	// events already reported as misconfigured
	warned map[model.EventID]struct{}
}

func New(src Source) *Scheduler {
	return &Scheduler{
		src:    src,
		ledger: ledger.New(),
		queue:  toast.NewQueue(),
		warned: make(map[model.EventID]struct{}),
	}
}

// Tick is safe to call every frame. Toast fading runs on every call; the
// evaluation of subscribed events runs at most once per unix second.
func (s *Scheduler) Tick(now time.Time) {
	snap := s.src.Snapshot()

	removals := s.tick(snap, now)

	if len(removals) > 0 {
		s.src.RemoveOneShot(removals...)
		appLog.Debug("one-shot subscriptions fired", "count", len(removals))
	}
}

func (s *Scheduler) tick(snap Snapshot, now time.Time) []model.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := snap.Settings
	s.queue.Tick(now, st.ToastDuration, st.MaxVisibleToasts)
	s.queue.TickPreview(now, st.ToastDuration)

	if snap.Subscriptions.Empty() {
		s.upcoming = nil
		return nil
	}

	sec := now.Unix()
	if s.refreshed && sec == s.lastRefresh {
		return nil
	}
	s.lastRefresh = sec
	s.refreshed = true

	s.ledger.Collect(sec)

	var (
		upcoming []model.UpcomingEntry
		removals []model.EventID
		removing = make(map[model.EventID]struct{})
	)

	for _, track := range snap.Tracks {
		if !track.Visible {
			continue
		}
		for _, ev := range track.Events {
			if !ev.Enabled {
				continue
			}
			id := model.NewEventID(track.Name, ev.Name)
			if !snap.Subscriptions.Contains(id) {
				continue
			}

			occ, err := occurrence.Calculate(track.BaseTime, ev, sec)
			if err != nil {
				s.warnOnce(id, err, ev)
				continue
			}

			upcoming = append(upcoming, upcomingEntry(id, ev, occ))

			if occ.Active() && snap.Subscriptions.IsOneShot(id) {
				if _, dup := removing[id]; !dup {
					removing[id] = struct{}{}
					removals = append(removals, id)
				}
			}

			if !st.ToastsEnabled {
				continue
			}
			c := ledger.Candidate{EventID: id, Occurrence: occ, Duration: ev.Duration}
			for _, r := range snap.Reminders {
				if !s.ledger.MayNotify(c, r, now) {
					continue
				}
				t := s.queue.Push(newToast(c, ev, r), now)
				s.ledger.RecordNotified(c, r, now)
				appLog.Info("reminder fired",
					"event", id.String(),
					"reminder", r.Name,
					"start", occ.Start,
					"toast", t.ID,
				)
			}
		}
	}

	SortUpcoming(upcoming)
	if st.MaxUpcoming >= 0 && len(upcoming) > st.MaxUpcoming {
		upcoming = upcoming[:st.MaxUpcoming]
	}
	s.upcoming = upcoming

	s.queue.Trim(st.MaxVisibleToasts)

	return removals
}

func (s *Scheduler) warnOnce(id model.EventID, err error, ev model.Event) {
	if _, ok := s.warned[id]; ok {
		return
	}
	s.warned[id] = struct{}{}
	appLog.Warn("skipping misconfigured event",
		"event", id.String(),
		"cycle", ev.CycleDuration,
		"err", err,
	)
}

func upcomingEntry(id model.EventID, ev model.Event, occ occurrence.Occurrence) model.UpcomingEntry {
	into := occ.SecondsInto
	if into < 0 {
		into = 0
	}
	return model.UpcomingEntry{
		EventID:      id,
		Start:        occ.Start,
		SecondsUntil: occ.SecondsUntil,
		SecondsInto:  into,
		Color:        ev.Color,
		CopyText:     ev.CopyText,
	}
}

func newToast(c ledger.Candidate, ev model.Event, r model.Reminder) model.Toast {
	var minutes int32
	if c.Occurrence.Active() {
		minutes = -int32(c.Occurrence.SecondsInto / 60)
	} else {
		minutes = int32((c.Occurrence.SecondsUntil + 59) / 60)
	}
	return model.Toast{
		EventID:       c.EventID,
		EventStart:    c.Occurrence.Start,
		Minutes:       minutes,
		ReminderName:  r.Name,
		ReminderColor: r.Color,
		CopyText:      ev.CopyText,
	}
}

// SortUpcoming orders entries by time until start, active ones first. Ties
// fall back to start time and then event id so the order is stable across
// refreshes.
func SortUpcoming(entries []model.UpcomingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.SecondsUntil != b.SecondsUntil {
			return a.SecondsUntil < b.SecondsUntil
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.EventID.String() < b.EventID.String()
	})
}

// Toasts returns the visible toasts, oldest first.
func (s *Scheduler) Toasts() []model.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Items()
}

// Upcoming returns a copy of the last projection.
func (s *Scheduler) Upcoming() []model.UpcomingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.UpcomingEntry, len(s.upcoming))
	copy(out, s.upcoming)
	return out
}

func (s *Scheduler) Dismiss(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Dismiss(id)
}

// ShowPreview puts a sample toast for r in the preview slot. It never
// touches the ledger.
func (s *Scheduler) ShowPreview(r model.Reminder, now time.Time) model.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.ShowPreview(r.Name, r.Color, now)
}

func (s *Scheduler) Preview() (model.Toast, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Preview()
}

// Stats is a diagnostics view for the HTTP API.
type Stats struct {
	Ledger      ledger.Stats `json:"ledger"`
	Toasts      int          `json:"toasts"`
	Upcoming    int          `json:"upcoming"`
	LastRefresh int64        `json:"last_refresh"`
	Warned      int          `json:"misconfigured_events"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Ledger:      s.ledger.Stats(),
		Toasts:      s.queue.Len(),
		Upcoming:    len(s.upcoming),
		LastRefresh: s.lastRefresh,
		Warned:      len(s.warned),
	}
}
