package reminders

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ParseSpan parses a human time span like "2d 4h 32m 58s". Units may be
// space-separated or concatenated ("1d12h"), each being a number followed
// by d, h, m or s. Plain Go durations ("90m", "1h30m") parse through the
// same path.
func ParseSpan(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.New("empty time span")
	}

	var total time.Duration
	var num strings.Builder
	sawUnit := false

	flush := func(unit rune) error {
		if num.Len() == 0 {
			return fmt.Errorf("time span %q: unit %q without a number", s, string(unit))
		}
		var n int64
		for _, d := range num.String() {
			n = n*10 + int64(d-'0')
			if n > 1<<40 { // absurdly large, bail before overflow
				return fmt.Errorf("time span %q: number too large", s)
			}
		}
		num.Reset()
		switch unit {
		case 'd':
			total += time.Duration(n) * 24 * time.Hour
		case 'h':
			total += time.Duration(n) * time.Hour
		case 'm':
			total += time.Duration(n) * time.Minute
		case 's':
			total += time.Duration(n) * time.Second
		default:
			return fmt.Errorf("time span %q: unknown unit %q", s, string(unit))
		}
		sawUnit = true
		return nil
	}

	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			num.WriteRune(r)
		case unicode.IsSpace(r):
			if num.Len() != 0 {
				return 0, fmt.Errorf("time span %q: number without a unit", s)
			}
		default:
			if err := flush(r); err != nil {
				return 0, err
			}
		}
	}
	if num.Len() != 0 {
		return 0, fmt.Errorf("time span %q: trailing number without a unit", s)
	}
	if !sawUnit {
		return 0, fmt.Errorf("time span %q: no units found", s)
	}
	return total, nil
}

// FormatSpan renders a duration in the same style ParseSpan accepts,
// dropping zero components: 93784s -> "1d 2h 3m 4s".
func FormatSpan(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	secs := (d - mins*time.Minute) / time.Second

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}
