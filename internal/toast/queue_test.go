package toast

import (
	"testing"
	"time"

	"eventtimers/internal/model"
)

var t0 = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func push(q *Queue, name string, at time.Time) model.Toast {
	return q.Push(model.Toast{EventID: model.NewEventID("Core", name), Minutes: 10}, at)
}

func TestPushAssignsMonotonicIDs(t *testing.T) {
	q := NewQueue()
	a := push(q, "A", t0)
	b := push(q, "B", t0)
	if a.ID == 0 || b.ID <= a.ID {
		t.Fatalf("ids not increasing: %d, %d", a.ID, b.ID)
	}

	q.Tick(t0.Add(time.Hour), 5*time.Second, 10)
	if q.Len() != 0 {
		t.Fatalf("expected expired toasts to be dropped, len=%d", q.Len())
	}

	c := push(q, "C", t0.Add(time.Hour))
	if c.ID <= b.ID {
		t.Errorf("id %d reused after expiry (last was %d)", c.ID, b.ID)
	}
	if c.Created != t0.Add(time.Hour) || c.Opacity != 1 {
		t.Errorf("unexpected stamp: %+v", c)
	}
}

func TestFadeDeterminism(t *testing.T) {
	duration := 5 * time.Second
	toast := model.Toast{Created: t0}

	for _, ms := range []int{0, 1000, 2500, 3999} {
		if got := Opacity(toast, t0.Add(time.Duration(ms)*time.Millisecond), duration); got != 1 {
			t.Errorf("elapsed %dms: opacity = %v, want 1", ms, got)
		}
	}

	prev := float32(2)
	for ms := 4000; ms <= 5000; ms += 100 {
		got := Opacity(toast, t0.Add(time.Duration(ms)*time.Millisecond), duration)
		if got >= prev {
			t.Fatalf("elapsed %dms: opacity %v not below %v", ms, got, prev)
		}
		if got < 0 || got > 1 {
			t.Fatalf("elapsed %dms: opacity %v out of range", ms, got)
		}
		prev = got
	}

	q := NewQueue()
	push(q, "A", t0)
	q.Tick(t0.Add(4500*time.Millisecond), duration, 10)
	if items := q.Items(); len(items) != 1 || items[0].Opacity <= 0 || items[0].Opacity >= 1 {
		t.Fatalf("expected one fading toast, got %+v", items)
	}
	q.Tick(t0.Add(5001*time.Millisecond), duration, 10)
	if q.Len() != 0 {
		t.Errorf("toast should be gone after duration, len=%d", q.Len())
	}
}

func TestTickEvictsOldestFirst(t *testing.T) {
	q := NewQueue()
	for i, name := range []string{"A", "B", "C", "D"} {
		push(q, name, t0.Add(time.Duration(i)*time.Second))
	}
	q.Tick(t0.Add(4*time.Second), time.Minute, 2)

	items := q.Items()
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].EventID.Event != "C" || items[1].EventID.Event != "D" {
		t.Errorf("kept %s,%s; want newest C,D", items[0].EventID, items[1].EventID)
	}
}

func TestTickZeroMaxVisible(t *testing.T) {
	q := NewQueue()
	push(q, "A", t0)
	q.Tick(t0, time.Minute, 0)
	if q.Len() != 0 {
		t.Errorf("len = %d, want 0", q.Len())
	}
	push(q, "B", t0)
	q.Tick(t0, time.Minute, -3)
	if q.Len() != 0 {
		t.Errorf("negative bound: len = %d, want 0", q.Len())
	}
}

func TestDismiss(t *testing.T) {
	q := NewQueue()
	a := push(q, "A", t0)
	b := push(q, "B", t0)

	if !q.Dismiss(a.ID) {
		t.Fatal("dismiss of known id returned false")
	}
	if q.Dismiss(999) {
		t.Error("dismiss of unknown id returned true")
	}

	q.Tick(t0.Add(time.Second), time.Minute, 10)
	items := q.Items()
	if len(items) != 1 || items[0].ID != b.ID {
		t.Errorf("after dismiss got %+v, want only %d", items, b.ID)
	}
}

func TestItemsIsACopy(t *testing.T) {
	q := NewQueue()
	push(q, "A", t0)
	items := q.Items()
	items[0].Dismissed = true
	q.Tick(t0, time.Minute, 10)
	if q.Len() != 1 {
		t.Error("mutating Items() result leaked into the queue")
	}
}

func TestPreview(t *testing.T) {
	q := NewQueue()
	if _, ok := q.Preview(); ok {
		t.Fatal("empty queue should have no preview")
	}

	color := model.Color{R: 1, A: 1}
	p := q.ShowPreview("Heads up", color, t0)
	if p.EventID != model.NewEventID(PreviewTrack, PreviewEvent) {
		t.Errorf("preview id = %s", p.EventID)
	}
	if p.Minutes != PreviewMinutes || p.CopyText != PreviewCopyText || p.ReminderColor != color {
		t.Errorf("unexpected preview %+v", p)
	}
	if q.Len() != 0 {
		t.Error("preview must not enter the queue")
	}

	next := push(q, "A", t0)
	if next.ID <= p.ID {
		t.Error("preview and queue should share the id counter")
	}

	q.TickPreview(t0.Add(2*time.Second), 5*time.Second)
	if got, ok := q.Preview(); !ok || got.Opacity != 1 {
		t.Errorf("preview should still be fully visible, got %+v ok=%v", got, ok)
	}
	q.TickPreview(t0.Add(5*time.Second), 5*time.Second)
	if _, ok := q.Preview(); ok {
		t.Error("preview should expire with the same fade law")
	}
}
