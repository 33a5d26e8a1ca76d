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
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeOffsetIsUTC(t *testing.T) {
	got, ok := ParseTime("2024-01-01T03:00:00+03:00")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Location() != time.UTC || got.Hour() != 0 {
		t.Fatalf("expected UTC midnight, got %v", got)
	}
}

func TestParseTimeDate(t *testing.T) {
	got, ok := ParseTime("2024-01-03")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got, ok := ParseTime(strconv.FormatInt(want.Unix(), 10))
	if !ok || !got.Equal(want) {
		t.Fatalf("unexpected unix %v", got)
	}
	got, ok = ParseTime(strconv.FormatInt(want.UnixMilli(), 10))
	if !ok || !got.Equal(want) {
		t.Fatalf("unexpected unix millis %v", got)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	if got := ParseTimeDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
	if got := ParseTimeDefault("not a time", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestAlignDown(t *testing.T) {
	in := time.Date(2024, 1, 1, 7, 42, 13, 0, time.UTC)
	if got := AlignDown(in, 4*time.Hour); !got.Equal(time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 4h alignment %v", got)
	}
	if got := AlignDown(in, 24*time.Hour); !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 1d alignment %v", got)
	}
	if got := AlignDown(in, 0); !got.Equal(in) {
		t.Fatalf("zero step should be identity")
	}
}

func TestMinMaxTime(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)
	if !MinTime(a, b).Equal(a) || !MinTime(b, a).Equal(a) {
		t.Fatalf("MinTime wrong")
	}
	if !MaxTime(a, b).Equal(b) || !MaxTime(b, a).Equal(b) {
		t.Fatalf("MaxTime wrong")
	}
}
