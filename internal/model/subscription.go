package model

import "sort"

// Subscriptions is the set of events a user wants notified about.
// Persistent entries stay until removed; one-shot entries are dropped as
// soon as the tracked occurrence becomes active.
type Subscriptions struct {
	Persistent map[EventID]struct{}
	OneShot    map[EventID]struct{}
}

func NewSubscriptions() Subscriptions {
	return Subscriptions{
		Persistent: make(map[EventID]struct{}),
		OneShot:    make(map[EventID]struct{}),
	}
}

// Contains reports whether id is subscribed in either set.
func (s Subscriptions) Contains(id EventID) bool {
	if _, ok := s.Persistent[id]; ok {
		return true
	}
	_, ok := s.OneShot[id]
	return ok
}

func (s Subscriptions) IsOneShot(id EventID) bool {
	_, ok := s.OneShot[id]
	return ok
}

// Len counts distinct subscribed ids.
func (s Subscriptions) Len() int {
	n := len(s.Persistent)
	for id := range s.OneShot {
		if _, dup := s.Persistent[id]; !dup {
			n++
		}
	}
	return n
}

func (s Subscriptions) Empty() bool {
	return len(s.Persistent) == 0 && len(s.OneShot) == 0
}

func (s Subscriptions) Clone() Subscriptions {
	out := NewSubscriptions()
	for id := range s.Persistent {
		out.Persistent[id] = struct{}{}
	}
	for id := range s.OneShot {
		out.OneShot[id] = struct{}{}
	}
	return out
}

// SortedIDs returns the ids of a set ordered by track then event name, for
// stable persistence and API output.
func SortedIDs(set map[EventID]struct{}) []EventID {
	out := make([]EventID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Track != out[j].Track {
			return out[i].Track < out[j].Track
		}
		return out[i].Event < out[j].Event
	})
	return out
}
