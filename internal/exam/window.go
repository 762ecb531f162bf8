package exam

import "time"

// Window is the derived selection state of an exam. It is recomputed on every
// read and never stored.
type Window string

const (
	WindowLocked          Window = "locked"
	WindowScheduledFuture Window = "scheduled_future"
	WindowScheduledPast   Window = "scheduled_past"
	WindowUndated         Window = "undated"
)

func WindowState(e *Exam, now time.Time, loc *time.Location) Window {
	if e == nil {
		return WindowUndated
	}
	if e.Locked {
		return WindowLocked
	}
	var opens time.Time
	switch {
	case e.Start != nil:
		opens = *e.Start
	case e.Date != nil:
		opens = midnight(*e.Date, loc)
	default:
		return WindowUndated
	}
	if opens.After(now) {
		return WindowScheduledFuture
	}
	return WindowScheduledPast
}

// IsOpenForSelection reports whether selections and quotas of the exam may
// still change: not locked and the start (or the date's midnight) is strictly
// in the future.
func IsOpenForSelection(e *Exam, now time.Time, loc *time.Location) bool {
	return WindowState(e, now, loc) == WindowScheduledFuture
}

// midnight interprets the calendar date of d in loc.
func midnight(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

func sameDay(t, date time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	y1, m1, d1 := t.In(loc).Date()
	y2, m2, d2 := date.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
