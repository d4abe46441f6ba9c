// Package toast holds the bounded, time-decaying list of notification
// toasts and the single preview slot used for settings feedback.
package toast

import (
	"time"

	"eventtimers/internal/model"
)

// FadeDuration is the tail of a toast's lifetime during which its opacity
// drops linearly from 1 to 0.
const FadeDuration = time.Second

// Preview toast contents.
const (
	PreviewTrack    = "Example Track"
	PreviewEvent    = "Example Event"
	PreviewMinutes  = 5
	PreviewCopyText = "[&Example]"
)

// Queue is ordered oldest first. It is not safe for concurrent use.
type Queue struct {
	items   []model.Toast
	nextID  uint64
	preview *model.Toast
}

func NewQueue() *Queue {
	return &Queue{nextID: 1}
}

func (q *Queue) mint() uint64 {
	id := q.nextID
	q.nextID++
	return id
}

// Push assigns t the next id, stamps it with now and appends it. The stored
// toast is returned.
func (q *Queue) Push(t model.Toast, now time.Time) model.Toast {
	t.ID = q.mint()
	t.Created = now
	t.Opacity = 1
	t.Dismissed = false
	q.items = append(q.items, t)
	return t
}

// Tick advances the fade of every toast, drops the invisible ones and then
// evicts the oldest until at most maxVisible remain. A negative maxVisible
// is treated as zero.
func (q *Queue) Tick(now time.Time, duration time.Duration, maxVisible int) {
	kept := q.items[:0]
	for _, t := range q.items {
		t.Opacity = Opacity(t, now, duration)
		if t.Opacity > 0 {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = model.Toast{}
	}
	q.items = kept

	q.Trim(maxVisible)
}

// Trim evicts from the front until the queue holds at most maxVisible
// toasts.
func (q *Queue) Trim(maxVisible int) {
	if maxVisible < 0 {
		maxVisible = 0
	}
	if over := len(q.items) - maxVisible; over > 0 {
		q.items = append(q.items[:0], q.items[over:]...)
	}
}

// Opacity applies the fade law to t at now.
func Opacity(t model.Toast, now time.Time, duration time.Duration) float32 {
	if t.Dismissed {
		return 0
	}
	elapsed := now.Sub(t.Created)
	if elapsed >= duration {
		return 0
	}
	fadeStart := duration - FadeDuration
	if elapsed <= fadeStart {
		return 1
	}
	o := float32(duration-elapsed) / float32(FadeDuration)
	if o > 1 {
		return 1
	}
	return o
}

// Dismiss marks the toast with the given id; it disappears on the next
// Tick. Reports whether the id was found.
func (q *Queue) Dismiss(id uint64) bool {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Dismissed = true
			q.items[i].Opacity = 0
			return true
		}
	}
	if q.preview != nil && q.preview.ID == id {
		q.preview = nil
		return true
	}
	return false
}

// Items returns a copy of the queue, oldest first.
func (q *Queue) Items() []model.Toast {
	out := make([]model.Toast, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Len() int {
	return len(q.items)
}

// ShowPreview replaces the preview slot with a sample toast for the given
// reminder label and color.
func (q *Queue) ShowPreview(label string, color model.Color, now time.Time) model.Toast {
	t := model.Toast{
		ID:            q.mint(),
		EventID:       model.NewEventID(PreviewTrack, PreviewEvent),
		EventStart:    now.Unix() + PreviewMinutes*60,
		Minutes:       PreviewMinutes,
		Created:       now,
		Opacity:       1,
		ReminderName:  label,
		ReminderColor: color,
		CopyText:      PreviewCopyText,
	}
	q.preview = &t
	return t
}

// TickPreview fades the preview slot and clears it once invisible.
func (q *Queue) TickPreview(now time.Time, duration time.Duration) {
	if q.preview == nil {
		return
	}
	q.preview.Opacity = Opacity(*q.preview, now, duration)
	if q.preview.Opacity <= 0 {
		q.preview = nil
	}
}

func (q *Queue) Preview() (model.Toast, bool) {
	if q.preview == nil {
		return model.Toast{}, false
	}
	return *q.preview, true
}
