package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// ParseEpochOrRFC3339 accepts either integer epoch seconds or an RFC3339
// timestamp and returns epoch seconds.
func ParseEpochOrRFC3339(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty time value")
	}
	if epoch, err := strconv.ParseInt(value, 10, 64); err == nil {
		return epoch, nil
	}
	t, err := ParseRFC3339(value)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
