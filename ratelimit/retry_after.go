package ratelimit

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter reads a Retry-After value given either as seconds or as an
// HTTP date. It returns zero when the value is missing, unparseable or in the
// past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
			return 0
		}
		return time.Duration(math.Ceil(seconds)) * time.Second
	}
	for _, layout := range []string{
		time.RFC1123,
		time.RFC1123Z,
		time.RFC850,
		time.ANSIC,
	} {
		if at, err := time.Parse(layout, value); err == nil {
			if !at.After(now) {
				return 0
			}
			return at.Sub(now)
		}
	}
	return 0
}
