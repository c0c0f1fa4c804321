package model

import (
	"fmt"
	"time"
)

// DaySeconds is the length of an aggregation window.
const DaySeconds uint64 = 86400

// TimeWindow is a half-open [StartUnix, EndUnix) wall-clock interval.
type TimeWindow struct {
	StartUnix uint64 `json:"start_unix"`
	EndUnix   uint64 `json:"end_unix"`
}

// NewDayWindow returns the 24h window starting at start.
func NewDayWindow(start uint64) TimeWindow {
	return TimeWindow{StartUnix: start, EndUnix: start + DaySeconds}
}

// Validate checks that the window is non-empty.
func (w TimeWindow) Validate() error {
	if w.StartUnix >= w.EndUnix {
		return fmt.Errorf("invalid time window: start %d >= end %d", w.StartUnix, w.EndUnix)
	}
	return nil
}

// StartDate formats the window start as a UTC calendar date.
func (w TimeWindow) StartDate() string {
	return time.Unix(int64(w.StartUnix), 0).UTC().Format("2006-01-02")
}
