package poller

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maplecivic/hansardflow/internal/store"
)

// QuebecSource polls the Assemblée nationale du Québec: the parliamentary
// calendar for sitting days, the Journal des débats for transcripts, and the
// video archive for recordings. Calendar dates are frequently written out in
// French ("15 février 2026") and are parsed accordingly.
type QuebecSource struct {
	*client
	baseURL string
	now     func() time.Time
}

var _ Source = (*QuebecSource)(nil)

// frenchDateRe matches dates like "1er janvier 2026" or "15 février 2026".
var frenchDateRe = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:er)?\s+` +
	`(janvier|février|mars|avril|mai|juin|juillet|août|septembre|octobre|novembre|décembre)` +
	`\s+(\d{4})`)

var frenchMonths = map[string]time.Month{
	"janvier": time.January, "février": time.February, "mars": time.March,
	"avril": time.April, "mai": time.May, "juin": time.June,
	"juillet": time.July, "août": time.August, "septembre": time.September,
	"octobre": time.October, "novembre": time.November, "décembre": time.December,
}

// NewQuebecSource creates the Quebec National Assembly source.
func NewQuebecSource(log *slog.Logger) *QuebecSource {
	return &QuebecSource{
		client:  newClient(log),
		baseURL: "https://www.assnat.qc.ca",
		now:     time.Now,
	}
}

// Code implements Source.
func (s *QuebecSource) Code() string { return "QC" }

// DetectSittings implements Source.
func (s *QuebecSource) DetectSittings(ctx context.Context) ([]Sitting, error) {
	days, err := s.recentSittingDays(ctx)
	if err != nil {
		s.log.Warn("quebec calendar scrape failed, falling back to weekdays", "error", err)
		days = fallbackWeekdays(s.now())
	}
	s.log.Info("quebec poll", "sitting_days", len(days))

	var sittings []Sitting
	for _, day := range days {
		if sitting, ok := s.buildSitting(ctx, day); ok {
			sittings = append(sittings, sitting)
		}
	}
	return sittings, nil
}

// recentSittingDays scrapes the parliamentary calendar for sitting days in
// the lookback window.
func (s *QuebecSource) recentSittingDays(ctx context.Context) ([]sittingDay, error) {
	body, err := s.get(ctx, s.baseURL+"/en/travaux-parlementaires/calendrier-parlementaire.html")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	now := s.now()
	var days []sittingDay
	doc.Find(".jour-seance, .calendar-day, td[class*='seance'], .event-item").Each(func(_ int, el *goquery.Selection) {
		date := extractQuebecDate(el)
		if date == "" || !inLookback(date, now) {
			return
		}
		text := strings.TrimSpace(el.Text())
		days = append(days, sittingDay{Date: date, Type: sessionTypeFromText(text)})
	})
	return days, nil
}

// extractQuebecDate pulls a date out of a calendar element, trying data
// attributes, then inline ISO dates, then written-out French dates.
func extractQuebecDate(el *goquery.Selection) string {
	for _, attr := range []string{"data-date", "datetime", "data-jour"} {
		if val, ok := el.Attr(attr); ok && len(val) >= 10 {
			return val[:10]
		}
	}
	text := el.Text()
	if m := isoDateRe.FindString(text); m != "" {
		return m
	}
	return parseFrenchDate(text)
}

// parseFrenchDate converts "15 février 2026" (or "1er janvier 2026") into
// ISO form. Returns the empty string when no French date is present.
func parseFrenchDate(text string) string {
	m := frenchDateRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return ""
	}
	month, ok := frenchMonths[strings.ToLower(m[2])]
	if !ok {
		return ""
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

// buildSitting resolves Journal des débats and video sources for a sitting
// day.
func (s *QuebecSource) buildSitting(ctx context.Context, day sittingDay) (Sitting, bool) {
	hansardURL := s.findJournal(ctx, day.Date)
	videoURL := s.findVideo(ctx, day.Date)
	if hansardURL == "" && videoURL == "" {
		s.log.Debug("no quebec journal or video, skipping", "date", day.Date)
		return Sitting{}, false
	}

	var sources []store.SourceURL
	if videoURL != "" {
		sources = append(sources, store.SourceURL{Type: "video", URL: videoURL, Label: "Assemblée nationale vidéo"})
	}
	if hansardURL != "" {
		sources = append(sources, store.SourceURL{Type: "hansard", URL: hansardURL, Label: "Journal des débats"})
	}

	return Sitting{
		ExternalID:  fmt.Sprintf("qc-%s-%s", day.Type, day.Date),
		Title:       "National Assembly of Quebec - " + day.Date,
		TitleFR:     "Assemblée nationale du Québec - " + day.Date,
		Date:        day.Date,
		SessionType: day.Type,
		SourceURLs:  sources,
		HansardURL:  hansardURL,
		VideoURL:    videoURL,
		Metadata: map[string]any{
			"source":           "assnat.qc.ca",
			"province":         "QC",
			"primary_language": "fr",
		},
	}, true
}

// findJournal searches the Journal des débats index for a link matching the
// date.
func (s *QuebecSource) findJournal(ctx context.Context, date string) string {
	body, err := s.get(ctx, s.baseURL+"/en/travaux-parlementaires/journaux-debats.html")
	if err != nil {
		s.log.Debug("assnat journal check failed", "date", date, "error", err)
		return ""
	}
	return s.findLink(body, "a", date)
}

// findVideo searches the video/audio archive for a recording matching the
// date.
func (s *QuebecSource) findVideo(ctx context.Context, date string) string {
	body, err := s.get(ctx, s.baseURL+"/en/video-audio/index.html")
	if err != nil {
		s.log.Debug("assnat video check failed", "date", date, "error", err)
		return ""
	}
	return s.findLink(body, "a[href*='video'], a[href*='webdiffusion']", date)
}

// findLink returns the first matching link whose href mentions the date,
// resolved against the assnat base URL.
func (s *QuebecSource) findLink(body []byte, selector, date string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	found := ""
	doc.Find(selector).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if !containsDate(href, date) {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = s.baseURL + href
		}
		found = href
		return false
	})
	return found
}
