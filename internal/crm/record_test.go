package crm

import (
	"testing"
	"time"
)

func TestProbeStringSkipsEmptyAndNonString(t *testing.T) {
	record := Record{
		"source":      "  ",
		"leadSource":  42.0,
		"contactSource": "Facebook Ads",
	}

	value, ok := ProbeString(record, "source", "leadSource", "contactSource")
	if !ok {
		t.Fatalf("expected a string value")
	}
	if value != "Facebook Ads" {
		t.Fatalf("expected Facebook Ads, got %q", value)
	}

	if _, ok := ProbeString(record, "missing"); ok {
		t.Fatalf("expected miss for absent key")
	}
}

func TestProbeFloatAcceptsStringNumerics(t *testing.T) {
	record := Record{"monetaryValue": "1250.50"}

	value, ok := ProbeFloat(record, "monetaryValue")
	if !ok {
		t.Fatalf("expected numeric value")
	}
	if value != 1250.50 {
		t.Fatalf("expected 1250.50, got %v", value)
	}

	if _, ok := ProbeFloat(Record{"value": "not-a-number"}, "value"); ok {
		t.Fatalf("expected miss for unparseable string")
	}
}

func TestProbeTimeLayouts(t *testing.T) {
	cases := map[string]any{
		"rfc3339":      "2026-03-01T10:30:00Z",
		"date-only":    "2026-03-01",
		"epoch-millis": float64(1_750_000_000_000),
		"epoch-secs":   float64(1_750_000_000),
	}
	for name, raw := range cases {
		parsed, ok := ProbeTime(Record{"createdAt": raw}, "createdAt")
		if !ok {
			t.Fatalf("%s: expected parseable timestamp", name)
		}
		if parsed.IsZero() {
			t.Fatalf("%s: expected non-zero timestamp", name)
		}
	}

	if _, ok := ProbeTime(Record{"createdAt": "soon"}, "createdAt"); ok {
		t.Fatalf("expected miss for unparseable timestamp")
	}
}

func TestProbeTimeEpochMillis(t *testing.T) {
	record := Record{"dateAdded": float64(1_750_000_000_000)}
	parsed, ok := ProbeTime(record, "dateAdded")
	if !ok {
		t.Fatalf("expected parseable timestamp")
	}
	expected := time.UnixMilli(1_750_000_000_000).UTC()
	if !parsed.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, parsed)
	}
}

func TestProbeStringsHandlesArraysAndCommaStrings(t *testing.T) {
	fromArray := ProbeStrings(Record{"tags": []any{"vip", " newsletter ", ""}}, "tags")
	if len(fromArray) != 2 || fromArray[0] != "vip" || fromArray[1] != "newsletter" {
		t.Fatalf("unexpected array tags: %v", fromArray)
	}

	fromString := ProbeStrings(Record{"tags": "vip, newsletter"}, "tags")
	if len(fromString) != 2 || fromString[1] != "newsletter" {
		t.Fatalf("unexpected comma tags: %v", fromString)
	}

	if got := ProbeStrings(Record{}, "tags"); got != nil {
		t.Fatalf("expected nil for absent tags, got %v", got)
	}
}
