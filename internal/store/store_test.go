package store

import (
	"sync"
	"testing"
	"time"

	"eventtimers/internal/model"
	"eventtimers/internal/notify"
)

var (
	boss  = model.NewEventID("Core", "Boss")
	other = model.NewEventID("Core", "Other")
)

func testStore() *Store {
	tracks := []model.Track{{
		Name:    "Core",
		Visible: true,
		Events: []model.Event{
			{Name: "Boss", Duration: 300, CycleDuration: 7200, Enabled: true},
			{Name: "Other", StartOffset: 600, Duration: 300, CycleDuration: 7200, Enabled: true},
		},
	}}
	settings := notify.Settings{ToastsEnabled: true, ToastDuration: 5 * time.Second, MaxVisibleToasts: 3, MaxUpcoming: 5}
	return New(tracks, model.NewSubscriptions(), []model.Reminder{{Name: "Soon", MinutesBefore: 5}}, settings)
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := testStore()
	s.Subscribe(boss, false)

	snap := s.Snapshot()
	snap.Tracks[0].Events[0].Name = "Mutated"
	delete(snap.Subscriptions.Persistent, boss)
	snap.Reminders[0].Name = "Mutated"

	again := s.Snapshot()
	if again.Tracks[0].Events[0].Name != "Boss" {
		t.Error("track mutation leaked into store")
	}
	if !again.Subscriptions.Contains(boss) {
		t.Error("subscription mutation leaked into store")
	}
	if again.Reminders[0].Name != "Soon" {
		t.Error("reminder mutation leaked into store")
	}
}

func TestSubscribeKindsAreExclusive(t *testing.T) {
	s := testStore()

	s.Subscribe(boss, true)
	snap := s.Snapshot()
	if !snap.Subscriptions.IsOneShot(boss) {
		t.Fatal("expected one-shot subscription")
	}

	s.Subscribe(boss, false)
	snap = s.Snapshot()
	if snap.Subscriptions.IsOneShot(boss) {
		t.Error("persistent subscribe should clear the one-shot entry")
	}
	if snap.Subscriptions.Len() != 1 {
		t.Errorf("Len = %d, want 1", snap.Subscriptions.Len())
	}
}

func TestToggle(t *testing.T) {
	s := testStore()

	if !s.Toggle(boss) || !s.IsSubscribed(boss) {
		t.Fatal("first toggle should subscribe")
	}
	if s.Toggle(boss) || s.IsSubscribed(boss) {
		t.Fatal("second toggle should unsubscribe")
	}

	if !s.ToggleOneShot(other) {
		t.Fatal("one-shot toggle should subscribe")
	}
	if !s.Snapshot().Subscriptions.IsOneShot(other) {
		t.Error("expected one-shot entry")
	}
	if s.ToggleOneShot(other) {
		t.Error("second one-shot toggle should unsubscribe")
	}
}

func TestUnsubscribe(t *testing.T) {
	s := testStore()
	s.Subscribe(boss, true)
	if !s.Unsubscribe(boss) {
		t.Error("Unsubscribe of present id returned false")
	}
	if s.Unsubscribe(boss) {
		t.Error("Unsubscribe of absent id returned true")
	}
}

func TestRemoveOneShotKeepsPersistent(t *testing.T) {
	s := testStore()
	s.Subscribe(boss, true)
	s.Subscribe(other, false)

	s.RemoveOneShot(boss, other)

	persistent, oneShot := s.ExportSubscriptions()
	if len(oneShot) != 0 {
		t.Errorf("one-shot = %v, want empty", oneShot)
	}
	if len(persistent) != 1 || persistent[0] != other {
		t.Errorf("persistent = %v, want [%s]", persistent, other)
	}
}

func TestLookupAndSetTracks(t *testing.T) {
	s := testStore()
	track, ev, ok := s.Lookup(other)
	if !ok || track.Name != "Core" || ev.StartOffset != 600 {
		t.Fatalf("Lookup = %+v %+v %v", track, ev, ok)
	}

	s.SetTracks([]model.Track{{Name: "New", Visible: true}})
	if _, _, ok := s.Lookup(other); ok {
		t.Error("old track should be gone after SetTracks")
	}
	if len(s.Tracks()) != 1 {
		t.Errorf("tracks = %d", len(s.Tracks()))
	}
}

func TestToastSettings(t *testing.T) {
	s := testStore()
	if s.ToggleToasts() {
		t.Error("toggle from enabled should disable")
	}
	if s.Settings().ToastsEnabled {
		t.Error("settings not updated")
	}
	s.SetToastsEnabled(true)
	if !s.Snapshot().Settings.ToastsEnabled {
		t.Error("SetToastsEnabled not reflected in snapshot")
	}

	s.SetNotifications([]model.Reminder{{Name: "A"}, {Name: "B"}}, notify.Settings{MaxUpcoming: 1})
	if got := s.Reminders(); len(got) != 2 {
		t.Errorf("reminders = %+v", got)
	}
	if s.Settings().MaxUpcoming != 1 {
		t.Error("settings not replaced")
	}
}

func TestConcurrentTickAndEdits(t *testing.T) {
	s := testStore()
	sched := notify.New(s)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Toggle(boss)
			s.ToggleOneShot(other)
			s.ToggleToasts()
		}
	}()
	go func() {
		defer wg.Done()
		for i := int64(0); i < 500; i++ {
			sched.Tick(time.Unix(7000+i, 0))
		}
	}()
	wg.Wait()
}
