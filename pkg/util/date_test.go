package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2025-03-14")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}
	got, ok = ParseDate("2025-03-14T18:30:00Z")
	if !ok || FormatDate(got) != "2025-03-14" || got.Hour() != 0 {
		t.Fatalf("expected truncated day, got %v", got)
	}
	if _, ok := ParseDate("14/03/2025"); ok {
		t.Fatalf("expected failure")
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 59 {
		t.Fatalf("expected 59, got %d", got)
	}
	if got := DaysBetween(b, a); got != -59 {
		t.Fatalf("expected -59, got %d", got)
	}
	if got := AddDays(a, 30); FormatDate(got) != "2025-01-31" {
		t.Fatalf("unexpected AddDays %v", got)
	}
}
