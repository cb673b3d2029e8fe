package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTimestamp converts "MM:SS" or "HH:MM:SS" to seconds.
func ParseTimestamp(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("timestamp %q must be MM:SS or HH:MM:SS", s)
	}
	values := make([]int, len(parts))
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return 0, fmt.Errorf("timestamp %q must contain only digits and colons", s)
		}
		if i > 0 && len(p) != 2 {
			return 0, fmt.Errorf("timestamp %q must use two-digit minutes and seconds", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", s, err)
		}
		values[i] = n
	}
	if values[len(values)-1] >= 60 {
		return 0, fmt.Errorf("timestamp %q has seconds out of range", s)
	}
	if len(values) == 3 {
		if values[1] >= 60 {
			return 0, fmt.Errorf("timestamp %q has minutes out of range", s)
		}
		return values[0]*3600 + values[1]*60 + values[2], nil
	}
	return values[0]*60 + values[1], nil
}

// FormatTimestamp renders seconds as MM:SS below one hour and HH:MM:SS from
// one hour on.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
