// Package votes extracts recorded division results for a debate.
//
// Federal votes come from the openparliament.ca JSON API. Provincial votes
// are not published through an API and are parsed out of the sitting's
// Hansard (Ontario) or Journal des débats (Quebec) HTML instead.
//
// Vote extraction is best-effort enrichment: failures log a warning and
// yield an empty list, they never fail the processing stage.
package votes

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

const defaultOpenParliamentBase = "https://api.openparliament.ca"

const userAgent = "HansardFlow Parliament Tracker/1.0"

var (
	billURLRe  = regexp.MustCompile(`/(C-\d+|S-\d+)/`)
	billTextRe = regexp.MustCompile(`(?i)(?:Bill|Projet de loi)\s+(C-\d+|S-\d+|\d+)`)
)

// Extractor fetches division results. Safe for concurrent use.
type Extractor struct {
	httpClient         *http.Client
	openParliamentBase string
	log                *slog.Logger
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.httpClient = c }
}

// WithOpenParliamentBase overrides the openparliament.ca API root. Used by
// tests.
func WithOpenParliamentBase(base string) Option {
	return func(e *Extractor) { e.openParliamentBase = base }
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// NewExtractor creates a vote extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		httpClient:         &http.Client{Timeout: 60 * time.Second},
		openParliamentBase: defaultOpenParliamentBase,
		log:                slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the divisions recorded for a debate. The source depends on
// the legislature: the openparliament.ca API federally, the published
// sitting record provincially. Unknown legislatures yield no votes.
func (e *Extractor) Extract(ctx context.Context, debate *store.Debate, legislatureCode string) []store.Vote {
	switch legislatureCode {
	case "CA":
		return e.extractFederal(ctx, debate)
	case "ON":
		return e.extractProvincial(ctx, debate, englishDivisions, "on-division-")
	case "QC":
		return e.extractProvincial(ctx, debate, frenchDivisions, "qc-scrutin-")
	}
	return nil
}

// findBillNumber returns a bill reference like C-230 mentioned in text.
func findBillNumber(text string) string {
	if m := billTextRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
