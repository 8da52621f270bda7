package store

import "testing"

func TestStatusIsValid(t *testing.T) {
	valid := []Status{
		StatusScheduled, StatusDetected, StatusScrapingHansard, StatusIngesting,
		StatusTranscribing, StatusProcessing, StatusSummarizing, StatusCategorizing,
		StatusPublishing, StatusPublished, StatusError,
	}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}

	for _, s := range []Status{"", "done", "SCHEDULED", "retrying"} {
		if s.IsValid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestEmptySlice(t *testing.T) {
	if got := emptySlice[string](nil); got == nil || len(got) != 0 {
		t.Errorf("emptySlice(nil) = %v; want empty non-nil slice", got)
	}
	in := []string{"a"}
	if got := emptySlice(in); len(got) != 1 || got[0] != "a" {
		t.Errorf("emptySlice(%v) = %v", in, got)
	}
}

func TestEmptyMap(t *testing.T) {
	if got := emptyMap(nil); got == nil || len(got) != 0 {
		t.Errorf("emptyMap(nil) = %v; want empty non-nil map", got)
	}
	in := map[string]any{"k": 1}
	if got := emptyMap(in); len(got) != 1 {
		t.Errorf("emptyMap(%v) = %v", in, got)
	}
}

func TestWithMaxRetries(t *testing.T) {
	s := New(nil)
	if s.maxRetries != 3 {
		t.Errorf("default maxRetries = %d; want 3", s.maxRetries)
	}
	s = New(nil, WithMaxRetries(5))
	if s.maxRetries != 5 {
		t.Errorf("maxRetries = %d; want 5", s.maxRetries)
	}
	// Non-positive values keep the default.
	s = New(nil, WithMaxRetries(0))
	if s.maxRetries != 3 {
		t.Errorf("maxRetries = %d; want 3 when option value is 0", s.maxRetries)
	}
}
