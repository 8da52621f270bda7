package align

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RecordSpeaker is one member attributed in the official record.
type RecordSpeaker struct {
	Name  string
	Party string
	Role  string
	Order int
}

// Intervention is one attributed speech in the official record, in document
// order.
type Intervention struct {
	SpeakerName string
	Text        string
	Order       int
}

// Record is the parsed official transcript used for cross-referencing.
type Record struct {
	Speakers      []RecordSpeaker
	Interventions []Intervention
	Available     bool
}

// RecordFetcher downloads and parses the official record for a debate.
type RecordFetcher struct {
	httpClient *http.Client
}

// NewRecordFetcher creates a fetcher with a 60s timeout; Hansard pages can
// run to several megabytes.
func NewRecordFetcher() *RecordFetcher {
	return &RecordFetcher{httpClient: &http.Client{Timeout: 60 * time.Second}}
}

// Fetch downloads hansardURL and parses it with the parser for the
// legislature code. A missing URL or unparseable page yields an unavailable
// record, not an error: alignment degrades gracefully without the official
// record.
func (f *RecordFetcher) Fetch(ctx context.Context, hansardURL, legislatureCode string) (*Record, error) {
	if hansardURL == "" {
		return &Record{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hansardURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "HansardFlow Parliament Tracker/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("align: fetch record: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("align: fetch record: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	return ParseRecord(body, legislatureCode)
}

// ParseRecord parses an official record page for the given legislature.
func ParseRecord(html []byte, legislatureCode string) (*Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("align: parse record html: %w", err)
	}

	switch legislatureCode {
	case "CA":
		return parseBlocks(doc, federalLayout), nil
	case "ON":
		return parseBlocks(doc, ontarioLayout), nil
	case "QC":
		return parseBlocks(doc, quebecLayout), nil
	}
	return &Record{}, nil
}

// recordLayout describes the selectors and role inference for one chamber's
// published record.
type recordLayout struct {
	blocks      string
	speaker     string
	party       string
	text        string
	defaultRole string
	roleOf      func(nameLower string) string
}

var federalLayout = recordLayout{
	blocks:      ".Intervention, .intervention, [class*='intervention'], .HansardContent, .hansard-content",
	speaker:     ".Affiliation, .PersonSpeaking, .SpeakerName, strong:first-child, b:first-child, .intervention-header",
	party:       ".Affiliation, .PartyAffiliation, .riding",
	text:        "p, .Paratext, .content",
	defaultRole: "MP",
	roleOf: func(name string) string {
		switch {
		case strings.Contains(name, "speaker"), strings.Contains(name, "président"):
			return "Speaker"
		case strings.Contains(name, "minister"), strings.Contains(name, "ministre"):
			return "Minister"
		}
		return ""
	},
}

var ontarioLayout = recordLayout{
	blocks:      ".hansard-block, .member-speech, .intervention, div[class*='speech'], div[class*='intervention']",
	speaker:     ".member-name, .speaker-name, strong:first-child, b:first-child",
	party:       ".party, .affiliation",
	text:        "p",
	defaultRole: "MPP",
	roleOf: func(name string) string {
		if strings.Contains(name, "speaker") {
			return "Speaker"
		}
		return ""
	},
}

var quebecLayout = recordLayout{
	blocks:      ".intervention, .debat-block, div[class*='intervention'], div[class*='debat']",
	speaker:     ".orateur, .locuteur, .speaker, strong:first-child, b:first-child",
	party:       ".parti, .affiliation, .formation",
	text:        "p",
	defaultRole: "MNA",
	roleOf: func(name string) string {
		switch {
		case strings.Contains(name, "président"):
			return "Président"
		case strings.Contains(name, "ministre"), strings.Contains(name, "premier"):
			return "Ministre"
		}
		return ""
	},
}

var parentheticalRe = regexp.MustCompile(`\(([^)]+)\)`)

// parseBlocks walks the record's intervention blocks and extracts speakers
// and attributed text.
func parseBlocks(doc *goquery.Document, layout recordLayout) *Record {
	record := &Record{Available: true}
	seen := make(map[string]struct{})
	order := 0

	doc.Find(layout.blocks).Each(func(_ int, block *goquery.Selection) {
		speakerEl := block.Find(layout.speaker).First()
		if speakerEl.Length() == 0 {
			return
		}
		name := CleanSpeakerName(speakerEl.Text())
		if len(name) < 2 {
			return
		}

		party := ""
		if partyEl := block.Find(layout.party).First(); partyEl.Length() > 0 {
			partyText := strings.TrimSpace(partyEl.Text())
			if m := parentheticalRe.FindStringSubmatch(partyText); m != nil {
				party = strings.TrimSpace(m[1])
			} else {
				party = partyText
			}
		}

		if _, dup := seen[name]; !dup {
			role := layout.roleOf(strings.ToLower(name))
			if role == "" {
				role = layout.defaultRole
			}
			record.Speakers = append(record.Speakers, RecordSpeaker{
				Name:  name,
				Party: party,
				Role:  role,
				Order: order,
			})
			seen[name] = struct{}{}
		}

		var parts []string
		speakerText := strings.TrimSpace(speakerEl.Text())
		block.Find(layout.text).Each(func(_ int, p *goquery.Selection) {
			text := strings.TrimSpace(p.Text())
			if text == "" || text == name || text == speakerText {
				return
			}
			parts = append(parts, text)
		})
		if len(parts) > 0 {
			record.Interventions = append(record.Interventions, Intervention{
				SpeakerName: name,
				Text:        strings.Join(parts, " "),
				Order:       order,
			})
			order++
		}
	})
	return record
}
