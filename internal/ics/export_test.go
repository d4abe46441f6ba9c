package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventtimers/internal/model"
	"eventtimers/internal/occurrence"
)

func testTracks() []model.Track {
	return []model.Track{
		{
			Name:     "Core",
			Category: "World",
			Visible:  true,
			Events: []model.Event{
				{Name: "Boss", StartOffset: 0, Duration: 300, CycleDuration: 7200, Enabled: true, CopyText: "[&wp]"},
				{Name: "Boss", StartOffset: 3600, Duration: 300, CycleDuration: 7200, Enabled: true},
				{Name: "Broken", Duration: 300, CycleDuration: 0, Enabled: true},
				{Name: "Off", Duration: 300, CycleDuration: 7200, Enabled: false},
			},
		},
		{
			Name:    "Hidden",
			Visible: false,
			Events:  []model.Event{{Name: "Boss", Duration: 60, CycleDuration: 600, Enabled: true}},
		},
	}
}

func subscribed(ids ...model.EventID) model.Subscriptions {
	s := model.NewSubscriptions()
	for _, id := range ids {
		s.Persistent[id] = struct{}{}
	}
	return s
}

func TestAgenda(t *testing.T) {
	subs := subscribed(
		model.NewEventID("Core", "Boss"),
		model.NewEventID("Core", "Broken"),
		model.NewEventID("Core", "Off"),
		model.NewEventID("Hidden", "Boss"),
	)
	opts := Options{From: time.Unix(0, 0), To: time.Unix(4*3600, 0)}

	entries, err := Agenda(testTracks(), subs, opts)
	if err != nil {
		t.Fatal(err)
	}

	// Both Boss schedules, every hour: 0, 3600, 7200, 10800, 14400.
	want := []int64{0, 3600, 7200, 10800, 14400}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, e := range entries {
		if e.Start.Unix() != want[i] {
			t.Errorf("entry %d start = %d, want %d", i, e.Start.Unix(), want[i])
		}
		if e.EventID != model.NewEventID("Core", "Boss") || e.Category != "World" {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
}

func TestAgendaAllAndRange(t *testing.T) {
	opts := Options{From: time.Unix(0, 0), To: time.Unix(3000, 0), All: true}
	entries, err := Agenda(testTracks(), model.NewSubscriptions(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("All should include unsubscribed events, got %+v", entries)
	}

	if _, err := Agenda(nil, model.NewSubscriptions(), Options{From: time.Unix(10, 0), To: time.Unix(0, 0)}); !errors.Is(err, occurrence.ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}

func TestUIDIsStable(t *testing.T) {
	a := Entry{EventID: model.NewEventID("Core", "Boss"), Start: time.Unix(7200, 0)}
	b := a
	c := a
	c.Start = time.Unix(14400, 0)

	if a.UID() != b.UID() {
		t.Error("same event and start should share a UID")
	}
	if a.UID() == c.UID() {
		t.Error("different starts should not share a UID")
	}
}

func TestExportParsesBack(t *testing.T) {
	subs := subscribed(model.NewEventID("Core", "Boss"))
	opts := Options{From: time.Unix(0, 0), To: time.Unix(7200, 0), Name: "Event Timers"}
	stamp := time.Unix(100, 0)

	cal, err := Export(testTracks(), subs, opts, stamp)
	if err != nil {
		t.Fatal(err)
	}
	out := cal.Serialize()
	if !strings.Contains(out, "X-WR-CALNAME:Event Timers") {
		t.Errorf("calendar name missing:\n%s", out)
	}

	parsed, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar: %v", err)
	}
	events := parsed.Events()
	if len(events) != 3 {
		t.Fatalf("got %d VEVENTs, want 3", len(events))
	}

	first := events[0]
	if p := first.GetProperty(ical.ComponentPropertySummary); p == nil || p.Value != "Boss" {
		t.Errorf("summary = %+v", p)
	}
	if p := first.GetProperty(ical.ComponentPropertyLocation); p == nil || p.Value != "[&wp]" {
		t.Errorf("location = %+v", p)
	}
	if p := first.GetProperty(ical.ComponentPropertyCategories); p == nil || p.Value != "Core" {
		t.Errorf("categories = %+v", p)
	}
	start, err := first.GetStartAt()
	if err != nil || start.Unix() != 0 {
		t.Errorf("start = %v, %v", start, err)
	}
	end, err := first.GetEndAt()
	if err != nil || end.Unix() != 300 {
		t.Errorf("end = %v, %v", end, err)
	}

	again, _ := Export(testTracks(), subs, opts, stamp)
	if again.Serialize() != out {
		t.Error("export is not deterministic")
	}
}
