// Package phases holds the built-in heuristic handlers for the four
// reasoning phases. Each handler returns the raw JSON payload of its phase;
// the pipeline validates it before anything is stored.
package phases

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// words splits text into lowercase tokens of letters, digits, '-' and ':'.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != ':'
	})
}

// hasWord reports whether any token equals one of terms.
func hasWord(text string, terms ...string) bool {
	for _, w := range words(text) {
		for _, t := range terms {
			if w == t {
				return true
			}
		}
	}
	return false
}

// hasStem reports whether any token starts with one of stems, so "minute"
// matches "minutes". Terms containing a space are matched as phrases.
func hasStem(text string, stems ...string) bool {
	lower := strings.ToLower(text)
	tokens := words(text)
	for _, s := range stems {
		if strings.Contains(s, " ") {
			if strings.Contains(lower, s) {
				return true
			}
			continue
		}
		for _, w := range tokens {
			if strings.HasPrefix(w, s) {
				return true
			}
		}
	}
	return false
}

// contains is a plain case-insensitive substring test for symbols such as
// "16:9" that do not tokenize cleanly.
func contains(text string, subs ...string) bool {
	lower := strings.ToLower(text)
	for _, s := range subs {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// answer renders a stored answer as text. Multiple-choice answers are joined
// with ", ".
func answer(answers map[string]any, key, fallback string) string {
	v, ok := answers[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return fallback
		}
		return t
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// firstWord returns the leading lowercase word of an answer such as
// "Slow (contemplative, long takes)".
func firstWord(s string) string {
	w := words(s)
	if len(w) == 0 {
		return ""
	}
	return w[0]
}

func marshal(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// promptBody drops the unfilled placeholder lines the refiner appends, so
// that a line like "- Platform: [YouTube/TikTok/...]" does not count as the
// user naming a platform.
func promptBody(prompt string) string {
	lines := strings.Split(prompt, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") && (strings.Contains(trimmed, "[") || fixedLines[trimmed]) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

var fixedLines = map[string]bool{
	"- Timing: Specific timestamps or sequence to be defined":                                            true,
	"- Quality: Professional cinematic standards with attention to pacing, audio sync, and visual flow": true,
}
