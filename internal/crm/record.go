package crm

import (
	"strconv"
	"strings"
	"time"
)

// Record is one raw upstream entity. The CRM does not keep a fixed schema for
// the same conceptual field across endpoints or account generations, so
// consumers probe an ordered list of candidate keys instead of binding to a
// struct.
type Record map[string]any

// Probe returns the first present, non-nil value among the candidate keys.
func Probe(record Record, candidates ...string) (any, bool) {
	for _, key := range candidates {
		value, ok := record[key]
		if !ok || value == nil {
			continue
		}
		return value, true
	}
	return nil, false
}

// ProbeString returns the first candidate that holds a non-empty string.
func ProbeString(record Record, candidates ...string) (string, bool) {
	for _, key := range candidates {
		value, ok := record[key]
		if !ok {
			continue
		}
		text, ok := value.(string)
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		return text, true
	}
	return "", false
}

// ProbeFloat returns the first candidate that can be read as a number.
// JSON numbers decode as float64; string-typed numerics are accepted too
// since the upstream mixes both.
func ProbeFloat(record Record, candidates ...string) (float64, bool) {
	for _, key := range candidates {
		value, ok := record[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case float64:
			return typed, true
		case int:
			return float64(typed), true
		case int64:
			return float64(typed), true
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ProbeTime returns the first candidate that parses as a timestamp.
func ProbeTime(record Record, candidates ...string) (time.Time, bool) {
	for _, key := range candidates {
		raw, ok := record[key]
		if !ok || raw == nil {
			continue
		}
		switch typed := raw.(type) {
		case string:
			text := strings.TrimSpace(typed)
			for _, layout := range timeLayouts {
				parsed, err := time.Parse(layout, text)
				if err == nil {
					return parsed, true
				}
			}
		case float64:
			// Epoch millis show up on older conversation payloads.
			if typed > 1e12 {
				return time.UnixMilli(int64(typed)).UTC(), true
			}
			if typed > 0 {
				return time.Unix(int64(typed), 0).UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ProbeStrings returns the first candidate that holds a list of strings.
// Upstream tags arrive as a JSON array or a comma-joined string.
func ProbeStrings(record Record, candidates ...string) []string {
	for _, key := range candidates {
		raw, ok := record[key]
		if !ok || raw == nil {
			continue
		}
		switch typed := raw.(type) {
		case []any:
			out := make([]string, 0, len(typed))
			for _, item := range typed {
				text, ok := item.(string)
				if !ok {
					continue
				}
				text = strings.TrimSpace(text)
				if text != "" {
					out = append(out, text)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []string:
			if len(typed) > 0 {
				return typed
			}
		case string:
			parts := strings.Split(typed, ",")
			out := make([]string, 0, len(parts))
			for _, part := range parts {
				part = strings.TrimSpace(part)
				if part != "" {
					out = append(out, part)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
