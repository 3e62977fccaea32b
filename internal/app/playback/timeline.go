// Package playback owns the recordings path: the timeline correlator that
// matches visit events to clips and drives sequential playback, and the
// background poller that folds in newly finished clips.
package playback

import (
	"time"

	"github.com/lchou/Shopwatch/internal/domain"
)

// MinutesPerDay is the length of the timeline axis.
const MinutesPerDay = 1440

// ClipSpan is one clip projected onto the 24h axis.
type ClipSpan struct {
	Index       int     `json:"index"`
	StartMinute float64 `json:"start_minute"`
	EndMinute   float64 `json:"end_minute"`
}

// EventMark is one visit event as a point on the 24h axis.
type EventMark struct {
	EventID int64   `json:"event_id"`
	Minute  float64 `json:"minute"`
}

// Timeline is one day's clips and events on a 1440-minute axis.
type Timeline struct {
	Date   domain.Date `json:"date"`
	Spans  []ClipSpan  `json:"spans"`
	Events []EventMark `json:"events"`
}

// BuildTimeline projects clips and events for one day onto the minute axis.
// Spans running past midnight are clamped to the end of the axis.
func BuildTimeline(date domain.Date, clips []domain.Clip, events []domain.VisitEvent) Timeline {
	t := Timeline{
		Date:   date,
		Spans:  make([]ClipSpan, 0, len(clips)),
		Events: make([]EventMark, 0, len(events)),
	}
	for i, c := range clips {
		start := minuteOfDay(c.StartTime)
		end := start + float64(c.DurationSeconds)/60
		if end > MinutesPerDay {
			end = MinutesPerDay
		}
		t.Spans = append(t.Spans, ClipSpan{Index: i, StartMinute: start, EndMinute: end})
	}
	for _, ev := range events {
		t.Events = append(t.Events, EventMark{EventID: ev.ID, Minute: minuteOfDay(ev.EntryTime)})
	}
	return t
}

func minuteOfDay(t time.Time) float64 {
	return float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
}
