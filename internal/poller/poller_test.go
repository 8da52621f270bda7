package poller

import (
	"context"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

type staticSource struct {
	code     string
	sittings []Sitting
}

func (s *staticSource) Code() string { return s.code }
func (s *staticSource) DetectSittings(context.Context) ([]Sitting, error) {
	return s.sittings, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&staticSource{code: "CA"})
	r.Register(&staticSource{code: "ON"})

	src, err := r.Get("CA")
	if err != nil {
		t.Fatalf("Get(CA): %v", err)
	}
	if src.Code() != "CA" {
		t.Errorf("Code() = %q; want CA", src.Code())
	}

	if _, err := r.Get("YT"); err == nil {
		t.Error("Get(YT) should fail for an unregistered code")
	}

	if got := r.Codes(); !reflect.DeepEqual(got, []string{"CA", "ON"}) {
		t.Errorf("Codes() = %v; want [CA ON]", got)
	}
}

func TestDefaultRegistryHasBuiltinSources(t *testing.T) {
	r := DefaultRegistry(slog.Default())
	for _, code := range []string{"CA", "ON", "QC"} {
		if _, err := r.Get(code); err != nil {
			t.Errorf("Get(%s): %v", code, err)
		}
	}
}

func TestInLookback(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		date string
		want bool
	}{
		{"2026-02-10", true},  // today
		{"2026-02-03", true},  // window edge
		{"2026-02-02", false}, // too old
		{"2026-02-11", false}, // future
		{"not-a-date", false},
	}
	for _, tt := range tests {
		if got := inLookback(tt.date, now); got != tt.want {
			t.Errorf("inLookback(%q) = %v; want %v", tt.date, got, tt.want)
		}
	}
}

func TestFallbackWeekdays(t *testing.T) {
	// A Tuesday: the previous 7 days contain Mon, Fri, Thu, Wed of the prior
	// week and the Tue before that.
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	days := fallbackWeekdays(now)
	if len(days) != 5 {
		t.Fatalf("got %d fallback days; want 5 weekdays", len(days))
	}
	for _, day := range days {
		d, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			t.Fatalf("bad date %q: %v", day.Date, err)
		}
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("%s is a weekend day", day.Date)
		}
		if day.Type != store.SessionHouse {
			t.Errorf("type = %q; want house", day.Type)
		}
	}
}

func TestSessionTypeFromText(t *testing.T) {
	tests := []struct {
		text string
		want store.SessionType
	}{
		{"Routine Proceedings and Orders of the Day", store.SessionHouse},
		{"Question Period - Oral Questions", store.SessionQuestionPeriod},
		{"Standing Committee on Finance", store.SessionCommittee},
		{"Commission des finances publiques", store.SessionCommittee},
	}
	for _, tt := range tests {
		if got := sessionTypeFromText(tt.text); got != tt.want {
			t.Errorf("sessionTypeFromText(%q) = %q; want %q", tt.text, got, tt.want)
		}
	}
}

func TestContainsDate(t *testing.T) {
	if !containsDate("/hansard/2026-02-09.html", "2026-02-09") {
		t.Error("dashed date should match")
	}
	if !containsDate("/hansard/20260209.html", "2026-02-09") {
		t.Error("compact date should match")
	}
	if containsDate("/hansard/2026-02-08.html", "2026-02-09") {
		t.Error("different date should not match")
	}
}
