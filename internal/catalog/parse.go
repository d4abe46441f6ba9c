// Package catalog loads the track document: categories of tracks whose
// events are either listed directly or generated from compact schedules.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	appLog "eventtimers/internal/log"
	"eventtimers/internal/model"
)

// Base time calculators understood in documents.
const (
	CalcTyriaCycle    = "tyria_cycle"
	CalcCanthaCycle   = "cantha_cycle"
	CalcLocalDayStart = "local_day_start"
)

const (
	// cycleReference is a known cycle boundary of the two hour world
	// cycle, in unix seconds.
	cycleReference int64 = 1759262400
	worldCycle     int64 = 2 * 60 * 60
	dayCycle       int64 = 24 * 60 * 60
)

var ErrNoCategories = errors.New("catalog: document has no categories")

// Schedule is the compact form of a repeating event. Offset, Interval and
// Duration are minutes; Interval 0 means a single event per cycle.
type Schedule struct {
	Name     string      `yaml:"name"`
	Offset   int64       `yaml:"offset"`
	Interval int64       `yaml:"interval"`
	Duration int64       `yaml:"duration"`
	Color    model.Color `yaml:"color"`
	CopyText string      `yaml:"copy_text"`
}

type docTrack struct {
	Name               string             `yaml:"name"`
	TimelineType       model.TimelineType `yaml:"timeline_type"`
	BaseTimeCalculator string             `yaml:"base_time_calculator"`
	Visible            *bool              `yaml:"visible"`
	Height             float32            `yaml:"height"`
	Schedules          []Schedule         `yaml:"schedules"`
	Events             []model.Event      `yaml:"events"`
}

type docCategory struct {
	Name   string     `yaml:"name"`
	Tracks []docTrack `yaml:"tracks"`
}

type document struct {
	Version    string        `yaml:"version"`
	Hash       string        `yaml:"hash"`
	Categories []docCategory `yaml:"categories"`
}

// Catalog is a parsed document with every schedule expanded.
type Catalog struct {
	Version    string
	Hash       string
	Categories []string
	Tracks     []model.Track
}

// Parse decodes a JSON or YAML document. Base times are resolved against
// now; local day starts use loc (UTC when nil).
func Parse(data []byte, now time.Time, loc *time.Location) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, ErrNoCategories
	}

	out := &Catalog{Version: doc.Version, Hash: doc.Hash}
	for _, cat := range doc.Categories {
		out.Categories = append(out.Categories, cat.Name)

		for _, dt := range cat.Tracks {
			if dt.Name == "" {
				return nil, fmt.Errorf("catalog: unnamed track in category %q", cat.Name)
			}
			out.Tracks = append(out.Tracks, buildTrack(cat.Name, dt, now, loc))
		}
	}
	return out, nil
}

func buildTrack(category string, dt docTrack, now time.Time, loc *time.Location) model.Track {
	t := model.Track{
		Name:         dt.Name,
		Category:     category,
		TimelineType: dt.TimelineType,
		BaseTime:     BaseTime(dt.BaseTimeCalculator, now, loc),
		Visible:      true,
		Height:       dt.Height,
	}
	if t.TimelineType == "" {
		t.TimelineType = model.TimelineGameTime
	}
	if dt.Visible != nil {
		t.Visible = *dt.Visible
	}
	if t.Height <= 0 {
		t.Height = model.DefaultTrackHeight
	}

	t.Events = append(t.Events, dt.Events...)
	cycle := CycleMinutes(dt.BaseTimeCalculator)
	for _, s := range dt.Schedules {
		expanded := ExpandSchedule(s, cycle)
		if len(expanded) == 0 {
			appLog.Warn("schedule produced no events",
				"track", dt.Name,
				"schedule", s.Name,
				"interval", s.Interval,
				"cycle_minutes", cycle,
			)
		}
		t.Events = append(t.Events, expanded...)
	}
	return t
}

// CycleMinutes is the cycle length schedules on a track repeat within.
func CycleMinutes(calculator string) int64 {
	switch calculator {
	case CalcTyriaCycle, CalcCanthaCycle:
		return worldCycle / 60
	default:
		return dayCycle / 60
	}
}

// ExpandSchedule turns a schedule into events spaced Interval minutes apart
// for one cycle. All generated events share the schedule name.
func ExpandSchedule(s Schedule, cycleMinutes int64) []model.Event {
	base := model.Event{
		Name:          s.Name,
		Duration:      s.Duration * 60,
		CycleDuration: cycleMinutes * 60,
		Enabled:       true,
		Color:         s.Color,
		CopyText:      s.CopyText,
	}

	if s.Interval <= 0 {
		base.StartOffset = s.Offset * 60
		return []model.Event{base}
	}

	reps := cycleMinutes / s.Interval
	out := make([]model.Event, 0, reps)
	for i := int64(0); i < reps; i++ {
		ev := base
		ev.StartOffset = (s.Offset + i*s.Interval) * 60
		out = append(out, ev)
	}
	return out
}

// BaseTime resolves a base time calculator at now. Unknown names fall back
// to the local day start.
func BaseTime(calculator string, now time.Time, loc *time.Location) int64 {
	switch calculator {
	case CalcTyriaCycle, CalcCanthaCycle:
		return worldCycleStart(now.Unix())
	case CalcLocalDayStart:
		return localDayStart(now, loc)
	default:
		appLog.Warn("unknown base time calculator, using local day start", "calculator", calculator)
		return localDayStart(now, loc)
	}
}

func worldCycleStart(now int64) int64 {
	elapsed := now - cycleReference
	cycles := elapsed / worldCycle
	if elapsed%worldCycle < 0 {
		cycles--
	}
	return cycleReference + cycles*worldCycle
}

func localDayStart(now time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Unix()
}
