package timespec

import (
	"testing"
	"time"
)

func TestLookupWindowAliases(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label  string
		region string
		slot   string
	}{
		{"EU morning", "EU", "morning"},
		{"us east evening", "NY", "evening"},
		{"US-East morning", "NY", "morning"},
		{"NewYork morning", "NY", "morning"},
		{"sf noon", "CA", "noon"},
		{"u.s. west evening", "CA", "evening"},
		{"HK morning", "Asia", "morning"},
		{"apac MORNING", "Asia", "morning"},
		{"cet noon", "EU", "noon"},
	}
	for _, tt := range tests {
		w, ok := LookupWindow(tt.label)
		if !ok {
			t.Fatalf("LookupWindow(%q) not found", tt.label)
		}
		if w.Region.Name != tt.region || w.Slot.Name != tt.slot {
			t.Fatalf("LookupWindow(%q) = %s, want %s %s", tt.label, w, tt.region, tt.slot)
		}
	}

	// Region and slot both exist but the pair is not a posting window.
	for _, bad := range []string{"EU", "EU brunch", "mars morning", "", "NY noon", "Asia evening", "EU evening"} {
		if _, ok := LookupWindow(bad); ok {
			t.Fatalf("LookupWindow(%q) should fail", bad)
		}
	}
}

func TestWindowsCatalog(t *testing.T) {
	t.Parallel()
	want := []string{
		"NY evening", "CA evening", "Asia morning", "EU morning",
		"EU noon", "NY morning", "CA morning", "CA noon",
	}
	ws := Windows()
	if len(ws) != len(want) {
		t.Fatalf("len(Windows()) = %d, want %d", len(ws), len(want))
	}
	for i, w := range ws {
		if w.String() != want[i] {
			t.Fatalf("Windows()[%d] = %s, want %s", i, w, want[i])
		}
		if w.Location() == time.UTC {
			t.Fatalf("%s resolved to UTC; tzdata missing?", w)
		}
		if w.Slot.End <= w.Slot.Start {
			t.Fatalf("%s ends before it starts", w)
		}
	}
}

func TestWindowOccurrenceInUTC(t *testing.T) {
	t.Parallel()
	// Summer dates: Berlin is UTC+2, New York UTC-4, Los Angeles UTC-7.
	tests := []struct {
		label      string
		start, end time.Time
	}{
		{"EU morning", time.Date(2030, 6, 10, 6, 0, 0, 0, time.UTC), time.Date(2030, 6, 10, 9, 0, 0, 0, time.UTC)},
		{"EU noon", time.Date(2030, 6, 10, 11, 0, 0, 0, time.UTC), time.Date(2030, 6, 10, 12, 0, 0, 0, time.UTC)},
		{"Asia morning", time.Date(2030, 6, 10, 5, 0, 0, 0, time.UTC), time.Date(2030, 6, 10, 8, 0, 0, 0, time.UTC)},
		{"NY evening", time.Date(2030, 6, 10, 22, 0, 0, 0, time.UTC), time.Date(2030, 6, 11, 1, 0, 0, 0, time.UTC)},
		{"CA evening", time.Date(2030, 6, 11, 1, 0, 0, 0, time.UTC), time.Date(2030, 6, 11, 5, 0, 0, 0, time.UTC)},
		{"NY morning", time.Date(2030, 6, 10, 12, 0, 0, 0, time.UTC), time.Date(2030, 6, 10, 15, 0, 0, 0, time.UTC)},
		{"CA morning", time.Date(2030, 6, 10, 15, 0, 0, 0, time.UTC), time.Date(2030, 6, 10, 19, 0, 0, 0, time.UTC)},
		{"CA noon", time.Date(2030, 6, 10, 19, 0, 0, 0, time.UTC), time.Date(2030, 6, 10, 22, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		w, ok := LookupWindow(tt.label)
		if !ok {
			t.Fatalf("LookupWindow(%q) not found", tt.label)
		}
		start, end := w.On(2030, time.June, 10)
		if !start.Equal(tt.start) || !end.Equal(tt.end) {
			t.Fatalf("%s on June 10 = %s..%s, want %s..%s", tt.label,
				start.UTC(), end.UTC(), tt.start, tt.end)
		}
	}
}

func TestWindowContains(t *testing.T) {
	t.Parallel()
	w, _ := LookupWindow("NY morning")
	ny := LoadZone("America/New_York")
	if !w.Contains(time.Date(2030, 1, 5, 8, 0, 0, 0, ny)) {
		t.Fatal("08:00 should be inside")
	}
	if w.Contains(time.Date(2030, 1, 5, 11, 0, 0, 0, ny)) {
		t.Fatal("11:00 is the exclusive end")
	}
}

func TestLoadZone(t *testing.T) {
	t.Parallel()
	if got := LoadZone("HKT").String(); got != "Asia/Hong_Kong" {
		t.Fatalf("HKT -> %s", got)
	}
	if got := LoadZone("").String(); got != "Asia/Hong_Kong" {
		t.Fatalf("empty -> %s", got)
	}
	if LoadZone("Nowhere/Special") != time.UTC {
		t.Fatal("unknown zone should fall back to UTC")
	}
	if KnownZone("Nowhere/Special") || !KnownZone("Europe/Berlin") {
		t.Fatal("KnownZone mismatch")
	}
}
