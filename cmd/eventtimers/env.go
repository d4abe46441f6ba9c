package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/urfave/cli"

	"eventtimers/internal/catalog"
	"eventtimers/internal/config"
	appLog "eventtimers/internal/log"
	"eventtimers/internal/model"
	"eventtimers/internal/occurrence"
	"eventtimers/internal/store"
)

// env is the loaded configuration shared by all commands.
type env struct {
	path string
	cfg  *config.Config
}

func loadEnv(c *cli.Context) (*env, error) {
	path := c.GlobalString("config")

	cfg, err := config.Load(appFs, path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	level := cfg.LogLevel
	if l := c.GlobalString("log-level"); l != "" {
		level = l
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	return &env{path: path, cfg: cfg}, nil
}

// tracks loads the catalog and applies the configured overrides.
func (e *env) tracks(now time.Time) ([]model.Track, error) {
	cat, err := catalog.Load(appFs, e.cfg.Catalog.Path, now, e.cfg.Location())
	if err != nil {
		return nil, err
	}
	return catalog.ApplyOverrides(cat.Tracks, e.cfg.Tracks, e.cfg.CustomTracks), nil
}

func (e *env) newStore(tracks []model.Track) (*store.Store, error) {
	subs, err := e.cfg.Subscriptions.Set()
	if err != nil {
		return nil, err
	}
	n := e.cfg.Notifications
	return store.New(tracks, subs, n.Reminders, n.Settings()), nil
}

// saveState writes the store's subscriptions and toast toggle back to the
// config file.
func (e *env) saveState(st *store.Store) error {
	out := *e.cfg
	out.Subscriptions = config.SubscriptionsFrom(st.ExportSubscriptions())
	out.Notifications.ToastsEnabled = st.Settings().ToastsEnabled
	if err := config.Save(appFs, e.path, &out); err != nil {
		return err
	}
	appLog.Debug("state saved", "path", e.path)
	return nil
}

// nextOccurrence finds the closest occurrence of id across every repetition
// sharing that name. Running occurrences win over pending ones.
func nextOccurrence(tracks []model.Track, id model.EventID, now int64) (occurrence.Occurrence, model.Event, error) {
	type hit struct {
		occ occurrence.Occurrence
		ev  model.Event
	}
	var (
		hits    []hit
		lastErr error
		found   bool
	)
	for _, t := range tracks {
		if t.Name != id.Track {
			continue
		}
		for _, ev := range t.Events {
			if ev.Name != id.Event {
				continue
			}
			found = true
			occ, err := occurrence.Calculate(t.BaseTime, ev, now)
			if err != nil {
				lastErr = err
				continue
			}
			hits = append(hits, hit{occ: occ, ev: ev})
		}
	}
	if !found {
		return occurrence.Occurrence{}, model.Event{}, fmt.Errorf("unknown event %s", id)
	}
	if len(hits) == 0 {
		return occurrence.Occurrence{}, model.Event{}, fmt.Errorf("event %s: %w", id, lastErr)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].occ.SecondsUntil != hits[j].occ.SecondsUntil {
			return hits[i].occ.SecondsUntil < hits[j].occ.SecondsUntil
		}
		return hits[i].occ.Start < hits[j].occ.Start
	})
	return hits[0].occ, hits[0].ev, nil
}
