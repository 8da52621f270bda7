// Package hansard scrapes House of Commons debate transcripts from the
// ourcommons.ca Publication Search.
//
// The House publishes professionally transcribed Hansard with full speaker
// attribution, party, riding, timestamps, and bill references, so federal
// sittings never need audio transcription. Two access paths are used:
//
//   - The Open Data XML feed of the Publication Search (preferred).
//   - The HTML Publication Search result pages (fallback), scraped per
//     Order of Business section for better topic categorisation.
package hansard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/maplecivic/hansardflow/internal/resilience"
)

const (
	defaultSearchBase = "https://www.ourcommons.ca/PublicationSearch/en/"
	defaultFeedBase   = "https://www.ourcommons.ca/Parliamentarians/en/PublicationSearch"

	// pubTypeHansard is the Publication Search type code for House Debates.
	pubTypeHansard = "37"

	// defaultSession is the parliament-session filter, e.g. 45th Parliament,
	// 1st session.
	defaultSession = "45-1"
)

// orderOfBusiness lists the Hansard sections scraped individually in the HTML
// fallback, in scrape order. The key is the Publication Search filter value,
// the label the display name used for grouping.
var orderOfBusiness = []struct {
	Key   string
	Label string
}{
	{"GovernmentOrders", "Government Orders"},
	{"OralQuestionPeriod", "Oral Question Period"},
	{"RoutineProceedings", "Routine Proceedings"},
	{"StatementsbyMembers", "Statements by Members"},
	{"PrivateMembersBusiness", "Private Members' Business"},
	{"AdjournmentProceedings", "Adjournment Proceedings"},
}

// Scraper fetches and parses Hansard for sitting dates. Safe for concurrent
// use.
type Scraper struct {
	httpClient *http.Client
	searchBase string
	feedBase   string
	session    string
	breaker    *resilience.CircuitBreaker
	log        *slog.Logger
}

// Option configures a [Scraper].
type Option func(*Scraper)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.httpClient = c }
}

// WithBaseURLs overrides the Publication Search endpoints. Used by tests to
// point the scraper at a local server.
func WithBaseURLs(searchBase, feedBase string) Option {
	return func(s *Scraper) {
		s.searchBase = searchBase
		s.feedBase = feedBase
	}
}

// WithSession overrides the parliament-session filter (default "45-1").
func WithSession(session string) Option {
	return func(s *Scraper) { s.session = session }
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scraper) { s.log = log }
}

// NewScraper creates a Hansard scraper. All requests share one circuit
// breaker so a blocked or failing ourcommons.ca stops being hammered quickly.
func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		searchBase: defaultSearchBase,
		feedBase:   defaultFeedBase,
		session:    defaultSession,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "hansard-search",
		MaxFailures:  5,
		ResetTimeout: 2 * time.Minute,
	})
	return s
}

// ScrapeSitting fetches all speeches for one sitting date (YYYY-MM-DD).
// The XML feed is tried first; on failure or an empty feed the HTML search
// pages are scraped section by section, with a broad unsectioned scrape as
// the final fallback. The returned speeches are grouped by topic.
func (s *Scraper) ScrapeSitting(ctx context.Context, sittingDate string, hansardNumber string) (*Result, error) {
	s.log.Info("scraping hansard", "sitting_date", sittingDate)

	speeches, err := s.scrapeFeed(ctx, sittingDate)
	if err != nil {
		s.log.Warn("hansard xml feed scrape failed, falling back to html",
			"sitting_date", sittingDate, "error", err)
	}

	if len(speeches) == 0 {
		speeches = s.scrapeSearchPages(ctx, sittingDate)
	}
	if len(speeches) == 0 {
		return nil, fmt.Errorf("hansard: no speeches found for %s", sittingDate)
	}

	result := &Result{
		SittingDate:   sittingDate,
		HansardNumber: hansardNumber,
		Sections:      groupByTopic(speeches),
		Speeches:      speeches,
		Speakers:      uniqueSpeakers(speeches),
	}

	s.log.Info("hansard scrape complete",
		"sitting_date", sittingDate,
		"speeches", len(result.Speeches),
		"topics", len(result.Sections),
		"speakers", len(result.Speakers))
	return result, nil
}

// scrapeSearchPages runs the HTML fallback: a warm-up request to establish
// cookies, then one paginated scrape per Order of Business section, then a
// broad scrape if the sections yielded nothing.
func (s *Scraper) scrapeSearchPages(ctx context.Context, sittingDate string) []Speech {
	// Some WAF setups block direct deep links without a prior page load.
	if _, err := s.get(ctx, s.searchBase, url.Values{"PubType": {pubTypeHansard}}); err != nil {
		s.log.Warn("hansard warm-up request failed", "error", err)
	}

	var speeches []Speech
	for _, oob := range orderOfBusiness {
		section, err := s.scrapeSection(ctx, sittingDate, oob.Key, oob.Label)
		if err != nil {
			s.log.Warn("error scraping hansard section",
				"section", oob.Label, "sitting_date", sittingDate, "error", err)
			continue
		}
		speeches = append(speeches, section...)
	}

	if len(speeches) == 0 {
		s.log.Info("section scrape empty, trying broad scrape", "sitting_date", sittingDate)
		speeches = s.scrapeBroad(ctx, sittingDate)
	}
	return speeches
}

// get performs one GET through the circuit breaker with browser-like headers
// and returns the response body.
func (s *Scraper) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	var body []byte
	err := s.breaker.Execute(func() error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parse url %q: %w", rawURL, err)
		}
		if params != nil {
			u.RawQuery = params.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		setBrowserHeaders(req)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s: status %d", u.Path, resp.StatusCode)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("hansard: %w", err)
	}
	return body, nil
}

// setBrowserHeaders applies the header set a desktop Chrome sends. The
// Publication Search sits behind bot protection that rejects bare clients.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	req.Header.Set("Accept",
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-CA,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Referer", "https://www.ourcommons.ca/PublicationSearch/en/")
}
