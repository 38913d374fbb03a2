package core

import "testing"

func TestMergeCursor(t *testing.T) {
	cases := []struct {
		name     string
		previous string
		next     string
		want     string
	}{
		{name: "absent previous", previous: "", next: "2025-01-02T00:00:00.000Z", want: "2025-01-02T00:00:00.000Z"},
		{name: "absent next", previous: "2025-01-02T00:00:00.000Z", next: "", want: "2025-01-02T00:00:00.000Z"},
		{name: "older next", previous: "2025-01-05T00:00:00.000Z", next: "2025-01-04T00:00:00.000Z", want: "2025-01-05T00:00:00.000Z"},
		{name: "newer next", previous: "2025-01-05T00:00:00.000Z", next: "2025-01-06T00:00:00.000Z", want: "2025-01-06T00:00:00.000Z"},
		{name: "both absent", previous: "", next: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MergeCursor(tc.previous, tc.next); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestMaxISO(t *testing.T) {
	if got := MaxISO(nil); got != "" {
		t.Fatalf("expected empty max for empty input, got %q", got)
	}
	got := MaxISO([]string{
		"2025-01-01T00:00:00.000Z",
		"2025-01-02T00:00:00.000Z",
		"2024-12-30T00:00:00.000Z",
	})
	if got != "2025-01-02T00:00:00.000Z" {
		t.Fatalf("expected 2025-01-02, got %q", got)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	got, err := NormalizeTimestamp("2025-01-02T03:04:05-05:00")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "2025-01-02T08:04:05.000Z" {
		t.Fatalf("expected UTC fixed layout, got %q", got)
	}

	got, err = NormalizeTimestamp("2025-01-02T08:04:05.123456Z")
	if err != nil {
		t.Fatalf("normalize nano: %v", err)
	}
	if got != "2025-01-02T08:04:05.123Z" {
		t.Fatalf("expected millisecond truncation, got %q", got)
	}

	if _, err := NormalizeTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for unparsable timestamp")
	}
	if got, err := NormalizeTimestamp("  "); err != nil || got != "" {
		t.Fatalf("expected empty passthrough, got %q err=%v", got, err)
	}
}

func TestNormalizedTimestampsOrderLexicographically(t *testing.T) {
	early, _ := NormalizeTimestamp("2025-01-02T09:00:00+01:00")
	late, _ := NormalizeTimestamp("2025-01-02T08:30:00Z")
	if !(early < late) {
		t.Fatalf("expected %q < %q after normalization", early, late)
	}
}
