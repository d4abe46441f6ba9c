package catalog

import (
	"eventtimers/internal/config"
	"eventtimers/internal/model"
)

// ApplyOverrides returns a copy of tracks with the per-track and per-event
// overrides applied, followed by the custom tracks. An event override
// matches every event of that name on the track, so it covers all
// repetitions of an expanded schedule.
func ApplyOverrides(tracks []model.Track, overrides map[string]config.TrackOverride, custom []model.Track) []model.Track {
	out := make([]model.Track, 0, len(tracks)+len(custom))

	for _, t := range tracks {
		t = t.Clone()
		if ov, ok := overrides[t.Name]; ok {
			if ov.Visible != nil {
				t.Visible = *ov.Visible
			}
			if ov.Height != nil {
				t.Height = *ov.Height
			}
			for i := range t.Events {
				eo, ok := ov.Events[t.Events[i].Name]
				if !ok {
					continue
				}
				applyEvent(&t.Events[i], eo)
			}
		}
		out = append(out, t)
	}

	for _, t := range custom {
		out = append(out, t.Clone())
	}
	return out
}

func applyEvent(ev *model.Event, eo config.EventOverride) {
	if eo.Enabled != nil {
		ev.Enabled = *eo.Enabled
	}
	if eo.Color != nil {
		ev.Color = *eo.Color
	}
	if eo.StartOffset != nil {
		ev.StartOffset = *eo.StartOffset
	}
	if eo.Duration != nil {
		ev.Duration = *eo.Duration
	}
}
