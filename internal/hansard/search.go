package hansard

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	timestampRe     = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s+(\d{1,2}:\d{2})`)
	pageRefRe       = regexp.MustCompile(`\[p\.(\d+)\]`)
	partyProvinceRe = regexp.MustCompile(`(Lib\.|CPC|NDP|BQ|Green|Ind\.?)\s*\(([A-Z]{2})\)`)
	memberIDRe      = regexp.MustCompile(`/members/en/(\d+)`)
	topicIDRe       = regexp.MustCompile(`Topic=(\d+)`)
	speakerRidingRe = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)\s*$`)
)

// scrapeSection pages through the HTML results of one Order of Business
// filter, keeping only speeches from sittingDate. Pagination stops when a
// page contains only earlier dates — the chronological view has moved past
// the target — or after 20 pages.
func (s *Scraper) scrapeSection(ctx context.Context, sittingDate, oobKey, oobLabel string) ([]Speech, error) {
	params := url.Values{
		"View":    {"D"},
		"ParlSes": {s.session},
		"oob":     {oobKey},
		"RPP":     {"100"},
		"PubType": {pubTypeHansard},
		"order":   {"chron"},
	}

	var speeches []Speech
	for page := 1; page <= 20; page++ {
		params.Set("Page", strconv.Itoa(page))
		body, err := s.get(ctx, s.searchBase, params)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.log.Warn("failed to fetch hansard section page",
				"section", oobLabel, "page", page, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("hansard: parse section page: %w", err)
		}

		pageSpeeches := parseSpeechCards(doc, oobLabel)
		var dated []Speech
		for _, sp := range pageSpeeches {
			if sp.Date == sittingDate {
				dated = append(dated, sp)
			}
		}
		speeches = append(speeches, dated...)

		if len(pageSpeeches) > 0 && len(dated) == 0 && allBefore(pageSpeeches, sittingDate) {
			break
		}
		if doc.Find("a[href*='Page='][title*='Next'], .pagination a:last-child").Length() == 0 {
			break
		}
	}
	return speeches, nil
}

// scrapeBroad pages through all Hansard results for a date with no section
// filter. Used when every section scrape came back empty.
func (s *Scraper) scrapeBroad(ctx context.Context, sittingDate string) []Speech {
	params := url.Values{
		"View":    {"D"},
		"ParlSes": {s.session},
		"RPP":     {"100"},
		"PubType": {pubTypeHansard},
		"order":   {"chron"},
	}

	var speeches []Speech
	for page := 1; page <= 30; page++ {
		params.Set("Page", strconv.Itoa(page))
		body, err := s.get(ctx, s.searchBase, params)
		if err != nil {
			break
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			break
		}

		pageSpeeches := parseSpeechCards(doc, "General")
		var dated []Speech
		for _, sp := range pageSpeeches {
			if sp.Date == sittingDate {
				dated = append(dated, sp)
			}
		}
		speeches = append(speeches, dated...)

		if len(pageSpeeches) > 0 && len(dated) == 0 && allBefore(pageSpeeches, sittingDate) {
			break
		}
	}
	return speeches
}

// allBefore reports whether every speech predates the sitting date. ISO dates
// compare correctly as strings.
func allBefore(speeches []Speech, sittingDate string) bool {
	for _, sp := range speeches {
		if sp.Date >= sittingDate {
			return false
		}
	}
	return true
}

// parseSpeechCards extracts speeches from a Publication Search results page.
// The primary selectors target the card layout of the Detail view; a broader
// block scan covers layout variants.
func parseSpeechCards(doc *goquery.Document, sectionLabel string) []Speech {
	var speeches []Speech
	doc.Find(".publication-search-result, .search-result, .result-card, .hansard-result, [class*='result-item'], [class*='search-item']").
		Each(func(_ int, card *goquery.Selection) {
			if speech, ok := parseCard(card, sectionLabel); ok {
				speeches = append(speeches, speech)
			}
		})
	if len(speeches) == 0 {
		speeches = parseDetailBlocks(doc, sectionLabel)
	}
	return speeches
}

// parseCard parses a single result card. A card is only valid when it links
// to a member page and carries a "YYYY-MM-DD HH:MM" timestamp.
func parseCard(card *goquery.Selection, sectionLabel string) (Speech, bool) {
	link := card.Find("a[href*='/members/en/']").First()
	if link.Length() == 0 {
		return Speech{}, false
	}

	name, riding := parseSpeakerRiding(strings.TrimSpace(link.Text()))
	if name == "" {
		return Speech{}, false
	}

	href, _ := link.Attr("href")
	memberURL := absoluteMemberURL(href)
	memberID := ""
	if m := memberIDRe.FindStringSubmatch(memberURL); m != nil {
		memberID = m[1]
	}

	cardText := card.Text()
	ts := timestampRe.FindStringSubmatch(cardText)
	if ts == nil {
		return Speech{}, false
	}

	speech := Speech{
		SpeakerName: name,
		Riding:      riding,
		MemberID:    memberID,
		MemberURL:   memberURL,
		Date:        ts[1],
		Time:        ts[2],
		Section:     sectionLabel,
	}
	if m := pageRefRe.FindStringSubmatch(cardText); m != nil {
		speech.PageRef = m[1]
	}
	if m := partyProvinceRe.FindStringSubmatch(cardText); m != nil {
		speech.Party = m[1]
		speech.Province = m[2]
	}

	var text strings.Builder
	card.Find("p, .speech-text, .content-text, [class*='speech'], [class*='content']").
		Each(func(_ int, el *goquery.Selection) {
			// Skip the speaker-name and metadata elements.
			if el.Find("a[href*='/members/']").Length() > 0 {
				return
			}
			t := strings.TrimSpace(el.Text())
			if len(t) > 20 {
				text.WriteString(t)
				text.WriteString("\n")
			}
		})
	speech.Text = strings.TrimSpace(text.String())
	speech.Topics = parseTopicLinks(card)
	return speech, true
}

// parseDetailBlocks is the fallback parser for the Hansard detail layout,
// scanning generic result blocks for member links and timestamps.
func parseDetailBlocks(doc *goquery.Document, sectionLabel string) []Speech {
	var speeches []Speech
	order := 0
	doc.Find("div[class*='result'], div[class*='item'], article").
		Each(func(_ int, block *goquery.Selection) {
			link := block.Find("a[href*='/members/en/']").First()
			if link.Length() == 0 {
				return
			}
			name, riding := parseSpeakerRiding(strings.TrimSpace(link.Text()))
			if name == "" {
				return
			}

			blockText := strings.Join(strings.Fields(block.Text()), " ")
			ts := timestampRe.FindStringSubmatch(blockText)
			if ts == nil {
				return
			}

			href, _ := link.Attr("href")
			memberURL := absoluteMemberURL(href)
			memberID := ""
			if m := memberIDRe.FindStringSubmatch(memberURL); m != nil {
				memberID = m[1]
			}

			speech := Speech{
				SpeakerName: name,
				Riding:      riding,
				MemberID:    memberID,
				MemberURL:   memberURL,
				Date:        ts[1],
				Time:        ts[2],
				Section:     sectionLabel,
				Order:       order,
			}
			if m := pageRefRe.FindStringSubmatch(blockText); m != nil {
				speech.PageRef = m[1]
			}
			if m := partyProvinceRe.FindStringSubmatch(blockText); m != nil {
				speech.Party = m[1]
				speech.Province = m[2]
			}

			var text strings.Builder
			block.Find("p").Each(func(_ int, p *goquery.Selection) {
				t := strings.TrimSpace(p.Text())
				if len(t) > 30 && !timestampRe.MatchString(t[:min(len(t), 20)]) {
					text.WriteString(t)
					text.WriteString("\n")
				}
			})
			speech.Text = strings.TrimSpace(text.String())
			speech.Topics = parseTopicLinks(block)

			speeches = append(speeches, speech)
			order++
		})
	return speeches
}

// parseTopicLinks extracts the bill/topic tags linked from a card.
func parseTopicLinks(sel *goquery.Selection) []TopicRef {
	var topics []TopicRef
	sel.Find("a[href*='Topic=']").Each(func(_ int, link *goquery.Selection) {
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}
		href, _ := link.Attr("href")
		topic := TopicRef{Title: title, URL: href}
		if href != "" && !strings.HasPrefix(href, "http") {
			topic.URL = "https://www.ourcommons.ca" + href
		}
		if m := topicIDRe.FindStringSubmatch(href); m != nil {
			topic.ID = m[1]
		}
		topics = append(topics, topic)
	})
	return topics
}

// parseSpeakerRiding splits "Name (Riding)" into its parts. Text without a
// trailing parenthetical is returned as the name with an empty riding.
func parseSpeakerRiding(text string) (name, riding string) {
	if m := speakerRidingRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(text), ""
}
