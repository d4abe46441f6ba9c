package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/spf13/afero"

	"eventtimers/internal/config"
	"eventtimers/internal/model"
	"eventtimers/internal/notify"
	"eventtimers/internal/store"
)

const testConfigPath = "/etc/eventtimers/config.yaml"

func withMemFs(t *testing.T) afero.Fs {
	t.Helper()
	prev := appFs
	appFs = afero.NewMemMapFs()
	t.Cleanup(func() { appFs = prev })
	return appFs
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	full := append([]string{"eventtimers", "--config", testConfigPath}, args...)
	err := app.Run(full)
	return out.String(), err
}

func loadSaved(t *testing.T, fsys afero.Fs) *config.Config {
	t.Helper()
	cfg, err := config.Load(fsys, testConfigPath)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	return cfg
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	fsys := withMemFs(t)

	if _, err := runApp(t, "subscribe", "World Bosses/Fire Elemental"); err != nil {
		t.Fatal(err)
	}
	if _, err := runApp(t, "subscribe", "--one-shot", "Resets/Daily Reset"); err != nil {
		t.Fatal(err)
	}

	cfg := loadSaved(t, fsys)
	if len(cfg.Subscriptions.Persistent) != 1 || cfg.Subscriptions.Persistent[0] != "World Bosses/Fire Elemental" {
		t.Errorf("persistent = %v", cfg.Subscriptions.Persistent)
	}
	if len(cfg.Subscriptions.OneShot) != 1 || cfg.Subscriptions.OneShot[0] != "Resets/Daily Reset" {
		t.Errorf("one-shot = %v", cfg.Subscriptions.OneShot)
	}

	// Switching kinds moves the id between lists.
	if _, err := runApp(t, "subscribe", "--one-shot", "World Bosses/Fire Elemental"); err != nil {
		t.Fatal(err)
	}
	cfg = loadSaved(t, fsys)
	if len(cfg.Subscriptions.Persistent) != 0 || len(cfg.Subscriptions.OneShot) != 2 {
		t.Errorf("subscriptions = %+v", cfg.Subscriptions)
	}

	if _, err := runApp(t, "unsubscribe", "World Bosses/Fire Elemental", "Resets/Daily Reset"); err != nil {
		t.Fatal(err)
	}
	cfg = loadSaved(t, fsys)
	if len(cfg.Subscriptions.Persistent) != 0 || len(cfg.Subscriptions.OneShot) != 0 {
		t.Errorf("subscriptions after unsubscribe = %+v", cfg.Subscriptions)
	}
}

func TestSubscribeRejectsBadIDs(t *testing.T) {
	withMemFs(t)

	if _, err := runApp(t, "subscribe"); !errors.Is(err, errNoEventIDs) {
		t.Errorf("err = %v, want errNoEventIDs", err)
	}
	if _, err := runApp(t, "subscribe", "no-slash"); err == nil {
		t.Error("malformed id should fail")
	}
	_, err := runApp(t, "subscribe", "World Bosses/Nope")
	if err == nil || !strings.Contains(err.Error(), "World Bosses/Nope") {
		t.Errorf("unknown event err = %v", err)
	}
}

func TestNextPrintsOccurrence(t *testing.T) {
	withMemFs(t)

	out, err := runApp(t, "next", "World Bosses/Fire Elemental")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "World Bosses/Fire Elemental: ") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "[&BEcAAAA=]") {
		t.Errorf("copy text missing: %q", out)
	}

	if _, err := runApp(t, "next", "World Bosses/Nope"); err == nil {
		t.Error("unknown event should fail")
	}
}

func TestExportWritesCalendar(t *testing.T) {
	fsys := withMemFs(t)

	if _, err := runApp(t, "export", "--all", "--hours", "4", "--out", "/tmp/agenda.ics"); err != nil {
		t.Fatal(err)
	}
	data, err := afero.ReadFile(fsys, "/tmp/agenda.ics")
	if err != nil {
		t.Fatal(err)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// Three world bosses every two hours alone give at least six entries.
	if n := len(cal.Events()); n < 6 {
		t.Errorf("events = %d", n)
	}
}

func TestUpcomingWithoutSubscriptions(t *testing.T) {
	withMemFs(t)

	out, err := runApp(t, "upcoming")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no upcoming subscribed events") {
		t.Errorf("output = %q", out)
	}
}

func TestUpcomingLists(t *testing.T) {
	withMemFs(t)
	if _, err := runApp(t, "subscribe", "World Bosses/Fire Elemental", "World Bosses/Jungle Wurm"); err != nil {
		t.Fatal(err)
	}

	out, err := runApp(t, "upcoming", "--max", "1")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "EVENT") {
		t.Errorf("output = %q", out)
	}
}

func TestNextOccurrencePicksClosestRepetition(t *testing.T) {
	tracks := []model.Track{{
		Name: "T",
		Events: []model.Event{
			{Name: "E", StartOffset: 0, Duration: 60, CycleDuration: 3600},
			{Name: "E", StartOffset: 1800, Duration: 60, CycleDuration: 3600},
			{Name: "Broken", CycleDuration: 0},
		},
	}}
	id := model.NewEventID("T", "E")

	occ, _, err := nextOccurrence(tracks, id, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if occ.Start != 1800 || occ.SecondsUntil != 800 {
		t.Errorf("occ = %+v", occ)
	}

	occ, _, err = nextOccurrence(tracks, id, 1830)
	if err != nil || !occ.Active() || occ.Start != 1800 {
		t.Errorf("active occ = %+v, %v", occ, err)
	}

	if _, _, err := nextOccurrence(tracks, model.NewEventID("T", "Broken"), 0); err == nil {
		t.Error("broken event should fail")
	}
	if _, _, err := nextOccurrence(tracks, model.NewEventID("T", "Missing"), 0); err == nil {
		t.Error("missing event should fail")
	}
}

func TestFrameLoopStopsOnCancelAndServerError(t *testing.T) {
	st := store.New(nil, model.NewSubscriptions(), nil, notify.Settings{})
	sched := notify.New(st)

	ctx, cancel := context.WithCancel(context.Background())
	httpErr := make(chan error, 1)
	close(httpErr)
	done := make(chan error, 1)
	go func() { done <- frameLoop(ctx, time.Millisecond, sched, httpErr) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Errorf("cancel err = %v", err)
	}

	boom := errors.New("listen failed")
	httpErr = make(chan error, 1)
	httpErr <- boom
	if err := frameLoop(context.Background(), time.Hour, sched, httpErr); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRefreshCatalogReloadsTracks(t *testing.T) {
	fsys := withMemFs(t)

	cfg := config.DefaultConfig()
	cfg.Catalog.Path = "/data/catalog.yaml"
	e := &env{path: testConfigPath, cfg: cfg}
	st := store.New(nil, model.NewSubscriptions(), nil, notify.Settings{})

	doc := `
version: "2"
categories:
  - name: Test
    tracks:
      - name: Only
        base_time_calculator: local_day_start
        events:
          - {name: Ping, duration: 60, cycle_duration: 600}
`
	if err := afero.WriteFile(fsys, cfg.Catalog.Path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	refreshCatalog(context.Background(), e, st)
	tracks := st.Tracks()
	if len(tracks) != 1 || tracks[0].Name != "Only" {
		t.Fatalf("tracks = %+v", tracks)
	}

	// A broken document keeps the current tracks.
	if err := afero.WriteFile(fsys, cfg.Catalog.Path, []byte("categories: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	refreshCatalog(context.Background(), e, st)
	if got := st.Tracks(); len(got) != 1 {
		t.Errorf("tracks after broken reload = %+v", got)
	}
}
