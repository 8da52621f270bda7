package poller

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maplecivic/hansardflow/internal/store"
)

// OntarioSource polls the Legislative Assembly of Ontario: the house
// calendar for sitting days, then the document and video pages for sources.
type OntarioSource struct {
	*client
	baseURL string
	now     func() time.Time
}

var _ Source = (*OntarioSource)(nil)

// NewOntarioSource creates the Ontario Legislature source.
func NewOntarioSource(log *slog.Logger) *OntarioSource {
	return &OntarioSource{
		client:  newClient(log),
		baseURL: "https://www.ola.org",
		now:     time.Now,
	}
}

// Code implements Source.
func (s *OntarioSource) Code() string { return "ON" }

// DetectSittings implements Source.
func (s *OntarioSource) DetectSittings(ctx context.Context) ([]Sitting, error) {
	days, err := s.recentSittingDays(ctx)
	if err != nil {
		s.log.Warn("ontario calendar scrape failed, falling back to weekdays", "error", err)
		days = fallbackWeekdays(s.now())
	}
	s.log.Info("ontario poll", "sitting_days", len(days))

	var sittings []Sitting
	for _, day := range days {
		if sitting, ok := s.buildSitting(ctx, day); ok {
			sittings = append(sittings, sitting)
		}
	}
	return sittings, nil
}

// recentSittingDays scrapes the OLA house calendar. The calendar is a table
// of dates and session descriptions; dates appear either in datetime
// attributes or inline as YYYY-MM-DD.
func (s *OntarioSource) recentSittingDays(ctx context.Context) ([]sittingDay, error) {
	body, err := s.get(ctx, s.baseURL+"/en/legislative-business/house-calendar")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	now := s.now()
	var days []sittingDay
	doc.Find("table tr, .calendar-event, .sitting-day").Each(func(_ int, row *goquery.Selection) {
		date := ""
		row.Find("td, .date, time").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			if dt, ok := cell.Attr("datetime"); ok && len(dt) >= 10 {
				date = dt[:10]
				return false
			}
			if m := isoDateRe.FindString(cell.Text()); m != "" {
				date = m
				return false
			}
			return true
		})
		if date == "" || !inLookback(date, now) {
			return
		}

		text := strings.TrimSpace(row.Text())
		hint := text
		if runes := []rune(hint); len(runes) > 200 {
			hint = string(runes[:200])
		}
		days = append(days, sittingDay{
			Date:      date,
			Type:      sessionTypeFromText(text),
			TitleHint: hint,
		})
	})
	return days, nil
}

// buildSitting resolves Hansard and video sources for an Ontario sitting day.
func (s *OntarioSource) buildSitting(ctx context.Context, day sittingDay) (Sitting, bool) {
	hansardURL := s.findHansard(ctx, day.Date)
	videoURL := s.findVideo(ctx, day.Date)
	if hansardURL == "" && videoURL == "" {
		s.log.Debug("no ontario hansard or video, skipping", "date", day.Date)
		return Sitting{}, false
	}

	var sources []store.SourceURL
	if videoURL != "" {
		sources = append(sources, store.SourceURL{Type: "video", URL: videoURL, Label: "OLA Video"})
	}
	if hansardURL != "" {
		sources = append(sources, store.SourceURL{Type: "hansard", URL: hansardURL, Label: "OLA Hansard"})
	}

	title := "Ontario Legislature - " + day.Date
	if strings.Contains(strings.ToLower(day.TitleHint), "question period") {
		title = "Ontario Question Period - " + day.Date
	}

	return Sitting{
		ExternalID:  fmt.Sprintf("on-%s-%s", day.Type, day.Date),
		Title:       title,
		Date:        day.Date,
		SessionType: day.Type,
		SourceURLs:  sources,
		HansardURL:  hansardURL,
		VideoURL:    videoURL,
		Metadata: map[string]any{
			"source":   "ola.org",
			"province": "ON",
		},
	}, true
}

// findHansard searches the house-documents page for a Hansard link matching
// the date.
func (s *OntarioSource) findHansard(ctx context.Context, date string) string {
	body, err := s.get(ctx, s.baseURL+"/en/legislative-business/house-documents?date="+date)
	if err != nil {
		s.log.Debug("ola hansard check failed", "date", date, "error", err)
		return ""
	}
	return s.findLink(body, "a[href*='hansard'], a[href*='transcript']", date)
}

// findVideo searches the video archive page for a recording matching the
// date.
func (s *OntarioSource) findVideo(ctx context.Context, date string) string {
	body, err := s.get(ctx, s.baseURL+"/en/legislative-business/video?date="+date)
	if err != nil {
		s.log.Debug("ola video check failed", "date", date, "error", err)
		return ""
	}
	return s.findLink(body, "a[href*='video'], a[href*='watch']", date)
}

// findLink returns the first matching link whose href mentions the date,
// resolved against the OLA base URL.
func (s *OntarioSource) findLink(body []byte, selector, date string) string {
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
