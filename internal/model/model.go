package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// EventID identifies an event across catalog reloads: the pair of its track
// name and its own name. Repeated schedule entries on the same track share
// one EventID.
type EventID struct {
	Track string `yaml:"track" json:"track"`
	Event string `yaml:"event" json:"event"`
}

func NewEventID(track, event string) EventID {
	return EventID{Track: track, Event: event}
}

func (id EventID) String() string {
	return id.Track + "/" + id.Event
}

// ParseEventID parses the "Track/Event" form produced by String. The track
// part is everything before the first slash.
func ParseEventID(s string) (EventID, error) {
	track, event, ok := strings.Cut(s, "/")
	if !ok || track == "" || event == "" {
		return EventID{}, fmt.Errorf("invalid event id %q: want Track/Event", s)
	}
	return EventID{Track: track, Event: event}, nil
}

// Color is an RGBA color with components in [0,1].
type Color struct {
	R float32 `yaml:"r" json:"r"`
	G float32 `yaml:"g" json:"g"`
	B float32 `yaml:"b" json:"b"`
	A float32 `yaml:"a" json:"a"`
}

// DefaultEventColor is used for events created without a color.
var DefaultEventColor = Color{R: 0.2, G: 0.6, B: 0.8, A: 1}

func ColorFromArray(a [4]float32) Color {
	return Color{R: a[0], G: a[1], B: a[2], A: a[3]}
}

func (c Color) Array() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

// Hex renders the color as #RRGGBBAA.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", channel(c.R), channel(c.G), channel(c.B), channel(c.A))
}

func channel(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// UnmarshalYAML accepts both the mapping form {r, g, b, a} and the compact
// four-element sequence used by schedule entries in the catalog document.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var arr []float32
		if err := value.Decode(&arr); err != nil {
			return err
		}
		if len(arr) != 4 {
			return errors.New("color sequence must have 4 components")
		}
		*c = ColorFromArray([4]float32{arr[0], arr[1], arr[2], arr[3]})
		return nil
	case yaml.MappingNode:
		type plain Color
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		*c = Color(p)
		return nil
	default:
		return fmt.Errorf("unsupported color node at line %d", value.Line)
	}
}

// MarshalYAML writes the compact sequence form.
func (c Color) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range c.Array() {
		node.Content = append(node.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Value: fmt.Sprint(v),
		})
	}
	return node, nil
}

// MarshalJSON writes the color as a hex string for API consumers.
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Hex())
}

// UnmarshalJSON accepts the hex form written by MarshalJSON.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHexColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseHexColor parses #RRGGBB or #RRGGBBAA.
func ParseHexColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 6 {
		s += "FF"
	}
	if len(s) != 8 {
		return Color{}, fmt.Errorf("invalid hex color %q", s)
	}
	var r, g, b, a uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return Color{
		R: float32(r) / 255,
		G: float32(g) / 255,
		B: float32(b) / 255,
		A: float32(a) / 255,
	}, nil
}

// Event is one recurring window inside a track cycle. All durations are in
// seconds.
type Event struct {
	Name          string `yaml:"name" json:"name"`
	StartOffset   int64  `yaml:"start_offset" json:"start_offset"`
	Duration      int64  `yaml:"duration" json:"duration"`
	CycleDuration int64  `yaml:"cycle_duration" json:"cycle_duration"`
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Color         Color  `yaml:"color" json:"color"`
	// CopyText is free text (a location code) with no timing meaning.
	CopyText string `yaml:"copy_text,omitempty" json:"copy_text,omitempty"`
}

// UnmarshalYAML defaults Enabled to true when the key is absent.
func (e *Event) UnmarshalYAML(value *yaml.Node) error {
	type plain Event
	p := plain{Enabled: true, Color: DefaultEventColor}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = Event(p)
	return nil
}

// TimelineType tells the UI which clock a track follows.
type TimelineType string

const (
	TimelineRealTime TimelineType = "real_time"
	TimelineGameTime TimelineType = "game_time"
)

// Track is a named lane anchored at BaseTime (unix seconds), the instant
// marking cycle position zero.
type Track struct {
	Name         string       `yaml:"name" json:"name"`
	Category     string       `yaml:"category,omitempty" json:"category,omitempty"`
	TimelineType TimelineType `yaml:"timeline_type" json:"timeline_type"`
	BaseTime     int64        `yaml:"base_time" json:"base_time"`
	Visible      bool         `yaml:"visible" json:"visible"`
	Height       float32      `yaml:"height,omitempty" json:"height,omitempty"`
	Events       []Event      `yaml:"events" json:"events"`
}

// DefaultTrackHeight is the lane height used when a document omits it.
const DefaultTrackHeight float32 = 40

// UnmarshalYAML defaults Visible to true and fills the lane height.
func (t *Track) UnmarshalYAML(value *yaml.Node) error {
	type plain Track
	p := plain{Visible: true, Height: DefaultTrackHeight, TimelineType: TimelineGameTime}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Track(p)
	return nil
}

// Clone returns a deep copy so callers can hold a snapshot across ticks.
func (t Track) Clone() Track {
	out := t
	out.Events = append([]Event(nil), t.Events...)
	return out
}

// Reminder is a user-configured notification rule. MinutesBefore > 0 is a
// lead reminder; MinutesBefore == 0 repeats every OngoingIntervalMinutes
// while an occurrence is active.
type Reminder struct {
	Name                   string `yaml:"name" json:"name"`
	MinutesBefore          uint32 `yaml:"minutes_before" json:"minutes_before"`
	Color                  Color  `yaml:"color" json:"color"`
	OngoingIntervalMinutes uint32 `yaml:"ongoing_interval_minutes,omitempty" json:"ongoing_interval_minutes,omitempty"`
}

func (r Reminder) IsOngoing() bool {
	return r.MinutesBefore == 0
}

// IntervalSeconds is the repeat spacing of an ongoing reminder, never below
// one minute.
func (r Reminder) IntervalSeconds() int64 {
	m := r.OngoingIntervalMinutes
	if m < 1 {
		m = 1
	}
	return int64(m) * 60
}
