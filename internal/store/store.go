// Package store holds the mutable tracks, subscriptions and notification
// settings shared between the frame loop, the HTTP API and the CLI. Every
// method takes the store lock for a short, bounded critical section.
package store

import (
	"sync"

	"eventtimers/internal/model"
	"eventtimers/internal/notify"
)

var _ notify.Source = (*Store)(nil)

type Store struct {
	mu        sync.RWMutex
	tracks    []model.Track
	subs      model.Subscriptions
	reminders []model.Reminder
	settings  notify.Settings
}

func New(tracks []model.Track, subs model.Subscriptions, reminders []model.Reminder, settings notify.Settings) *Store {
	return &Store{
		tracks:    cloneTracks(tracks),
		subs:      subs.Clone(),
		reminders: append([]model.Reminder(nil), reminders...),
		settings:  settings,
	}
}

func cloneTracks(in []model.Track) []model.Track {
	out := make([]model.Track, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

// Snapshot implements notify.Source.
func (s *Store) Snapshot() notify.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return notify.Snapshot{
		Tracks:        cloneTracks(s.tracks),
		Subscriptions: s.subs.Clone(),
		Reminders:     append([]model.Reminder(nil), s.reminders...),
		Settings:      s.settings,
	}
}

// RemoveOneShot implements notify.Source.
func (s *Store) RemoveOneShot(ids ...model.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.subs.OneShot, id)
	}
}

// Subscribe adds id to the persistent set, or to the one-shot set when
// oneShot is true. An id lives in at most one of the two sets.
func (s *Store) Subscribe(id model.EventID, oneShot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if oneShot {
		delete(s.subs.Persistent, id)
		s.subs.OneShot[id] = struct{}{}
		return
	}
	delete(s.subs.OneShot, id)
	s.subs.Persistent[id] = struct{}{}
}

// Unsubscribe removes id from both sets and reports whether it was present.
func (s *Store) Unsubscribe(id model.EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.subs.Contains(id)
	delete(s.subs.Persistent, id)
	delete(s.subs.OneShot, id)
	return ok
}

// Toggle flips a persistent subscription and returns the new state.
func (s *Store) Toggle(id model.EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs.Persistent[id]; ok {
		delete(s.subs.Persistent, id)
		return false
	}
	delete(s.subs.OneShot, id)
	s.subs.Persistent[id] = struct{}{}
	return true
}

// ToggleOneShot flips a one-shot subscription and returns the new state.
func (s *Store) ToggleOneShot(id model.EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs.OneShot[id]; ok {
		delete(s.subs.OneShot, id)
		return false
	}
	delete(s.subs.Persistent, id)
	s.subs.OneShot[id] = struct{}{}
	return true
}

func (s *Store) IsSubscribed(id model.EventID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs.Contains(id)
}

// ExportSubscriptions returns both sets as sorted lists for saving.
func (s *Store) ExportSubscriptions() (persistent, oneShot []model.EventID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SortedIDs(s.subs.Persistent), model.SortedIDs(s.subs.OneShot)
}

func (s *Store) Tracks() []model.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTracks(s.tracks)
}

// SetTracks replaces the catalog, typically after a reload. Subscriptions
// to events that disappeared are kept; they simply match nothing.
func (s *Store) SetTracks(tracks []model.Track) {
	cloned := cloneTracks(tracks)
	s.mu.Lock()
	s.tracks = cloned
	s.mu.Unlock()
}

// Lookup finds the first event with the given id.
func (s *Store) Lookup(id model.EventID) (model.Track, model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.Name != id.Track {
			continue
		}
		for _, ev := range t.Events {
			if ev.Name == id.Event {
				return t.Clone(), ev, true
			}
		}
	}
	return model.Track{}, model.Event{}, false
}

func (s *Store) SetToastsEnabled(enabled bool) {
	s.mu.Lock()
	s.settings.ToastsEnabled = enabled
	s.mu.Unlock()
}

// ToggleToasts flips toast delivery and returns the new state.
func (s *Store) ToggleToasts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.ToastsEnabled = !s.settings.ToastsEnabled
	return s.settings.ToastsEnabled
}

func (s *Store) SetNotifications(reminders []model.Reminder, settings notify.Settings) {
	r := append([]model.Reminder(nil), reminders...)
	s.mu.Lock()
	s.reminders = r
	s.settings = settings
	s.mu.Unlock()
}

func (s *Store) Reminders() []model.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Reminder(nil), s.reminders...)
}

func (s *Store) Settings() notify.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}
