// Package poller detects new parliamentary sittings from legislature
// websites.
//
// Each [Source] watches one chamber's calendar and document feeds and
// reports sittings that have concluded and have at least one acquirable
// source (a Hansard document or a video recording). The dispatcher turns
// those into debate records and triggers the processing pipeline.
package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

// lookbackDays is how far back a poll looks for concluded sittings.
const lookbackDays = 7

// Sitting is one detected parliamentary session, ready to be written as a
// debate record.
type Sitting struct {
	ExternalID    string
	Title         string
	TitleFR       string
	Date          string // YYYY-MM-DD
	SessionType   store.SessionType
	CommitteeName string
	SourceURLs    []store.SourceURL
	HansardURL    string
	VideoURL      string
	Metadata      map[string]any

	// Status is the debate status this sitting should be recorded in.
	// Sources set StatusScheduled for sittings known from a calendar but
	// lacking an acquirable source yet. Empty means: detected when any
	// source URL is present, scheduled otherwise.
	Status store.Status
}

// Source detects sittings for one legislature.
type Source interface {
	// Code returns the legislature code this source serves (CA, ON, QC).
	Code() string

	// DetectSittings returns recently concluded sittings with at least one
	// acquirable source. Failures of individual calendar or document checks
	// are logged and skipped; only a total failure returns an error.
	DetectSittings(ctx context.Context) ([]Sitting, error)
}

// Registry maps legislature codes to their sources. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds or replaces the source for its legislature code.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Code()] = src
}

// Get returns the source for a legislature code.
func (r *Registry) Get(code string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[code]
	if !ok {
		return nil, fmt.Errorf("poller: no source registered for legislature %q", code)
	}
	return src, nil
}

// Codes returns the registered legislature codes, sorted.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.sources))
	for code := range r.sources {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DefaultRegistry returns a registry with the built-in sources for the House
// of Commons, the Ontario Legislature, and the Quebec National Assembly.
func DefaultRegistry(log *slog.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewFederalSource(log))
	r.Register(NewOntarioSource(log))
	r.Register(NewQuebecSource(log))
	return r
}

// isoDateRe matches a YYYY-MM-DD date anywhere in text.
var isoDateRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// client is the HTTP client shared by the built-in sources.
type client struct {
	httpClient *http.Client
	log        *slog.Logger
}

func newClient(log *slog.Logger) *client {
	if log == nil {
		log = slog.Default()
	}
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// get fetches a URL with the tracker's User-Agent and returns the body.
// Non-200 responses are errors.
func (c *client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "HansardFlow Parliament Tracker/1.0 (civic engagement platform)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}

// sittingDay is a calendar hit before source URLs are resolved.
type sittingDay struct {
	Date      string // YYYY-MM-DD
	Type      store.SessionType
	TitleHint string
}

// inLookback reports whether date (YYYY-MM-DD) lies within the poll window
// ending at now.
func inLookback(date string, now time.Time) bool {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	today := now.Truncate(24 * time.Hour)
	lookback := today.AddDate(0, 0, -lookbackDays)
	return !d.Before(lookback) && !d.After(today)
}

// fallbackWeekdays lists the weekdays of the past week. Used when a calendar
// scrape fails outright: weekday sittings are then probed for documents one
// by one.
func fallbackWeekdays(now time.Time) []sittingDay {
	var days []sittingDay
	for i := 1; i <= 7; i++ {
		d := now.AddDate(0, 0, -i)
		if wd := d.Weekday(); wd >= time.Monday && wd <= time.Friday {
			days = append(days, sittingDay{Date: d.Format("2006-01-02"), Type: store.SessionHouse})
		}
	}
	return days
}

// sessionTypeFromText infers the session type from calendar entry text.
func sessionTypeFromText(text string) store.SessionType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "question period"), strings.Contains(lower, "question"):
		return store.SessionQuestionPeriod
	case strings.Contains(lower, "committee"), strings.Contains(lower, "commission"):
		return store.SessionCommittee
	}
	return store.SessionHouse
}

// containsDate reports whether s mentions the date, with or without dashes.
func containsDate(s, date string) bool {
	return strings.Contains(s, date) || strings.Contains(s, strings.ReplaceAll(date, "-", ""))
}
