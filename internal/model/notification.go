package model

import (
	"fmt"
	"time"
)

// Toast is one transient notification. Minutes is signed: positive means
// minutes until start, negative means minutes elapsed since start (ongoing
// reminders), zero means "now".
type Toast struct {
	ID            uint64    `json:"id"`
	EventID       EventID   `json:"event_id"`
	EventStart    int64     `json:"event_start"`
	Minutes       int32     `json:"minutes"`
	Created       time.Time `json:"created"`
	Opacity       float32   `json:"opacity"`
	Dismissed     bool      `json:"dismissed"`
	ReminderName  string    `json:"reminder_name"`
	ReminderColor Color     `json:"reminder_color"`
	CopyText      string    `json:"copy_text,omitempty"`
}

// Caption is the reminder line shown under the event name.
func (t Toast) Caption() string {
	switch {
	case t.Minutes > 0:
		return fmt.Sprintf("%s (%d min)", t.ReminderName, t.Minutes)
	case t.Minutes < 0:
		return fmt.Sprintf("%s (started %d min ago)", t.ReminderName, -t.Minutes)
	default:
		return t.ReminderName + " (now!)"
	}
}

// UpcomingEntry is a read-only row of the upcoming events projection.
// SecondsInto is 0 while the occurrence is pending.
type UpcomingEntry struct {
	EventID      EventID `json:"event_id"`
	Start        int64   `json:"start"`
	SecondsUntil int64   `json:"seconds_until"`
	SecondsInto  int64   `json:"seconds_into"`
	Color        Color   `json:"color"`
	CopyText     string  `json:"copy_text,omitempty"`
}

func (e UpcomingEntry) Active() bool {
	return e.SecondsUntil <= 0
}

// Countdown renders the time column of the upcoming panel: time left for
// pending entries, time since start for active ones.
func (e UpcomingEntry) Countdown() string {
	return FormatCountdown(e.SecondsUntil, e.SecondsInto)
}

func FormatCountdown(secondsUntil, secondsInto int64) string {
	if secondsUntil <= 0 && secondsInto > 0 {
		switch {
		case secondsInto < 60:
			return fmt.Sprintf("%ds ago", secondsInto)
		case secondsInto < 3600:
			return fmt.Sprintf("%dm ago", secondsInto/60)
		default:
			return fmt.Sprintf("%dh %dm ago", secondsInto/3600, (secondsInto%3600)/60)
		}
	}
	if secondsUntil <= 0 {
		return "NOW"
	}

	switch {
	case secondsUntil < 60:
		return fmt.Sprintf("%ds", secondsUntil)
	case secondsUntil < 3600:
		mins, secs := secondsUntil/60, secondsUntil%60
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", mins, secs)
		}
		return fmt.Sprintf("%dm", mins)
	default:
		return fmt.Sprintf("%dh %dm", secondsUntil/3600, (secondsUntil%3600)/60)
	}
}

// ClipboardText is what a click on a row copies: the copy text, optionally
// prefixed with the event name. Empty when the event has no copy text.
func ClipboardText(eventName, copyText string, withName bool) string {
	if copyText == "" {
		return ""
	}
	if withName {
		return eventName + ": " + copyText
	}
	return copyText
}
