package poller

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maplecivic/hansardflow/internal/store"
)

// FederalSource polls the House of Commons: the sitting calendar for recent
// sitting days, ParlVU for recordings, the Document Viewer for Hansard, and
// the committee home page for recent meetings.
type FederalSource struct {
	*client
	calendarURL  string
	parlvuBase   string
	docViewBase  string
	committeeURL string
	now          func() time.Time
}

var _ Source = (*FederalSource)(nil)

// committeeCodeRe extracts a four-letter committee acronym, e.g. FINA, OGGO.
var committeeCodeRe = regexp.MustCompile(`\b([A-Z]{4})\b`)

// NewFederalSource creates the House of Commons source.
func NewFederalSource(log *slog.Logger) *FederalSource {
	return &FederalSource{
		client:       newClient(log),
		calendarURL:  "https://www.ourcommons.ca/en/sitting-calendar",
		parlvuBase:   "https://parlvu.parl.gc.ca",
		docViewBase:  "https://www.ourcommons.ca",
		committeeURL: "https://www.ourcommons.ca/Committees/en/Home",
		now:          time.Now,
	}
}

// Code implements Source.
func (s *FederalSource) Code() string { return "CA" }

// DetectSittings implements Source.
func (s *FederalSource) DetectSittings(ctx context.Context) ([]Sitting, error) {
	days, err := s.recentSittingDays(ctx)
	if err != nil {
		s.log.Warn("federal calendar scrape failed, falling back to weekdays", "error", err)
		days = fallbackWeekdays(s.now())
	}
	s.log.Info("federal poll", "sitting_days", len(days))

	var sittings []Sitting
	for _, day := range days {
		sitting, ok := s.buildSitting(ctx, day)
		if !ok {
			continue
		}
		sittings = append(sittings, sitting)
	}

	committees, err := s.recentCommitteeMeetings(ctx)
	if err != nil {
		s.log.Warn("federal committee poll failed", "error", err)
	}
	sittings = append(sittings, committees...)

	return sittings, nil
}

// recentSittingDays scrapes the sitting calendar for concluded sitting days
// in the lookback window.
func (s *FederalSource) recentSittingDays(ctx context.Context) ([]sittingDay, error) {
	body, err := s.get(ctx, s.calendarURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	now := s.now()
	var days []sittingDay
	doc.Find(".calendar-day, .sitting-day, td[data-date]").Each(func(_ int, cell *goquery.Selection) {
		date, ok := cell.Attr("data-date")
		if !ok || !inLookback(date, now) {
			return
		}
		if !isSittingCell(cell) {
			return
		}
		days = append(days, sittingDay{Date: date, Type: store.SessionHouse})
	})
	return days, nil
}

// isSittingCell checks the CSS classes that mark a chamber sitting day.
func isSittingCell(cell *goquery.Selection) bool {
	classes, _ := cell.Attr("class")
	lower := strings.ToLower(classes)
	for _, indicator := range []string{"sitting", "house-sitting", "chamber", "active"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// buildSitting resolves the sources for one sitting day. Days with neither a
// recording nor a Hansard have not concluded or published yet and are
// skipped.
func (s *FederalSource) buildSitting(ctx context.Context, day sittingDay) (Sitting, bool) {
	videoURL := s.findParlVuRecording(ctx, day.Date)
	hansardURL := s.findHansard(ctx, day.Date)
	if videoURL == "" && hansardURL == "" {
		s.log.Debug("no recording or hansard, skipping", "date", day.Date)
		return Sitting{}, false
	}

	var sources []store.SourceURL
	if videoURL != "" {
		sources = append(sources, store.SourceURL{Type: "video", URL: videoURL, Label: "ParlVU Recording"})
	}
	if hansardURL != "" {
		sources = append(sources, store.SourceURL{Type: "hansard", URL: hansardURL, Label: "Official Hansard"})
	}

	return Sitting{
		ExternalID:  "ca-house-" + day.Date,
		Title:       "House of Commons Debate - " + day.Date,
		TitleFR:     "Débat de la Chambre des communes - " + day.Date,
		Date:        day.Date,
		SessionType: store.SessionHouse,
		SourceURLs:  sources,
		HansardURL:  hansardURL,
		VideoURL:    videoURL,
		Metadata: map[string]any{
			"source":       "ourcommons.ca",
			"sitting_type": string(day.Type),
		},
	}, true
}

// findParlVuRecording probes the ParlVU event browser for a House recording
// on the given date.
func (s *FederalSource) findParlVuRecording(ctx context.Context, date string) string {
	url := fmt.Sprintf("%s/Harmony/en/PowerBrowser/PowerBrowserV2/%s/-1/null", s.parlvuBase, date)
	body, err := s.get(ctx, url)
	if err != nil {
		s.log.Debug("parlvu check failed", "date", date, "error", err)
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	found := ""
	doc.Find("a[href*='event']").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(link.Text()))
		if !strings.Contains(text, "house") && !strings.Contains(text, "chamber") && !strings.Contains(text, "chambre") {
			return true
		}
		href, _ := link.Attr("href")
		if strings.HasPrefix(href, "/") {
			href = s.parlvuBase + href
		}
		found = href
		return false
	})
	return found
}

// findHansard probes the Document Viewer for the sitting's Hansard page.
func (s *FederalSource) findHansard(ctx context.Context, date string) string {
	url := fmt.Sprintf("%s/DocumentViewer/en/house/%s/hansard", s.docViewBase, date)
	body, err := s.get(ctx, url)
	if err != nil {
		return ""
	}
	lower := strings.ToLower(string(body))
	// A valid Hansard page, not an error shell.
	if strings.Contains(lower, "hansard") && strings.Contains(lower, "debate") {
		return url
	}
	return ""
}

// recentCommitteeMeetings scans the committee home page for meetings in the
// last three days.
func (s *FederalSource) recentCommitteeMeetings(ctx context.Context) ([]Sitting, error) {
	body, err := s.get(ctx, s.committeeURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse committee page: %w", err)
	}

	now := s.now()
	today := now.Truncate(24 * time.Hour)
	lookback := today.AddDate(0, 0, -3)

	var sittings []Sitting
	doc.Find(".meeting-item, .committee-meeting, [data-meeting-date]").Each(func(_ int, meeting *goquery.Selection) {
		dateAttr, ok := meeting.Attr("data-meeting-date")
		if !ok || len(dateAttr) < 10 {
			return
		}
		date := dateAttr[:10]
		d, err := time.Parse("2006-01-02", date)
		if err != nil || d.Before(lookback) || d.After(today) {
			return
		}

		name := strings.TrimSpace(meeting.Text())
		if runes := []rune(name); len(runes) > 100 {
			name = string(runes[:100])
		}
		code := "COMM"
		if m := committeeCodeRe.FindStringSubmatch(name); m != nil {
			code = m[1]
		}

		// Committee evidence transcripts lag the meeting. No source URL
		// exists yet, so the sitting is recorded as scheduled and picked
		// up on a later poll once a document appears.
		sittings = append(sittings, Sitting{
			ExternalID:    fmt.Sprintf("ca-committee-%s-%s", code, date),
			Title:         fmt.Sprintf("Committee: %s - %s", name, date),
			Date:          date,
			SessionType:   store.SessionCommittee,
			CommitteeName: name,
			Metadata:      map[string]any{"committee_code": code},
			Status:        store.StatusScheduled,
		})
	})
	return sittings, nil
}
