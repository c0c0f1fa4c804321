package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fillScope/internal/model"
)

var dateLayouts = []string{"2006-01-02", "02-01-2006"}

// Window derives the aggregation window from Date or WindowStart/WindowEnd.
// Without an explicit end the window spans one day.
func (c Config) Window() (model.TimeWindow, error) {
	input := c.Date
	if input == "" {
		input = c.WindowStart
	}
	if strings.TrimSpace(input) == "" {
		return model.TimeWindow{}, fmt.Errorf("a date or window-start is required")
	}
	start, err := ParseTimestamp(input)
	if err != nil {
		return model.TimeWindow{}, fmt.Errorf("parse window start %q: %w", input, err)
	}

	window := model.NewDayWindow(start)
	if c.Date == "" && strings.TrimSpace(c.WindowEnd) != "" {
		end, err := ParseTimestamp(c.WindowEnd)
		if err != nil {
			return model.TimeWindow{}, fmt.Errorf("parse window end %q: %w", c.WindowEnd, err)
		}
		window.EndUnix = end
	}
	if err := window.Validate(); err != nil {
		return model.TimeWindow{}, err
	}
	return window, nil
}

// ParseTimestamp parses unix seconds, RFC3339, or a UTC calendar date in
// YYYY-MM-DD or DD-MM-YYYY form.
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}

	for _, layout := range dateLayouts {
		if tm, err := time.ParseInLocation(layout, input, time.UTC); err == nil {
			return unixSeconds(tm)
		}
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, fmt.Errorf("unrecognized timestamp format")
	}
	return unixSeconds(tm)
}

func unixSeconds(tm time.Time) (uint64, error) {
	if tm.Unix() < 0 {
		return 0, fmt.Errorf("timestamp before 1970")
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
