package hansard

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// feedItem mirrors one PublicationItem element of the Publication Search XML
// feed. ParaText bodies can contain inline markup, so they are captured as
// innerxml and flattened afterwards.
type feedItem struct {
	Date   string `xml:"Date,attr"`
	Hour   string `xml:"Hour,attr"`
	Minute string `xml:"Minute,attr"`
	Page   string `xml:"Page,attr"`

	Person *struct {
		ID         string `xml:"Id,attr"`
		ProfileURL string `xml:"ProfileUrl"`
		FirstName  string `xml:"FirstName"`
		LastName   string `xml:"LastName"`
		Riding     string `xml:"Constituency"`
		Caucus     struct {
			Abbr string `xml:"Abbr,attr"`
		} `xml:"Caucus"`
		Province struct {
			Code string `xml:"Code,attr"`
		} `xml:"Province"`
	} `xml:"Person"`

	OrderOfBusiness   string     `xml:"OrderOfBusiness"`
	SubjectOfBusiness string     `xml:"SubjectOfBusiness"`
	Paragraphs        []paraText `xml:"XmlContent>ParaText"`
}

// paraText captures a ParaText element verbatim; inline markup (bill links,
// emphasis) is stripped during flattening.
type paraText struct {
	Inner string `xml:",innerxml"`
}

var (
	xmlTagRe     = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// scrapeFeed fetches the Publication Search XML feed and returns the speeches
// for sittingDate, in document order.
func (s *Scraper) scrapeFeed(ctx context.Context, sittingDate string) ([]Speech, error) {
	params := url.Values{
		"PubType": {pubTypeHansard},
		"View":    {"L"},
		"xml":     {"1"},
		"RPP":     {"1000"},
		"Page":    {"1"},
		"ParlSes": {s.session},
		"order":   {"chron"},
	}
	body, err := s.get(ctx, s.feedBase, params)
	if err != nil {
		return nil, err
	}
	return parseFeed(body, sittingDate)
}

// parseFeed walks the feed document token by token. Publication elements
// carry a default date that items without their own Date attribute inherit.
func parseFeed(body []byte, sittingDate string) ([]Speech, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false

	var (
		speeches []Speech
		pubDate  string
		order    int
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "Publication":
			pubDate = xmlAttr(start, "Date")
		case "PublicationItem":
			var item feedItem
			if err := dec.DecodeElement(&item, &start); err != nil {
				return nil, fmt.Errorf("hansard: decode feed item: %w", err)
			}
			if speech, ok := feedItemSpeech(item, pubDate, sittingDate, order); ok {
				speeches = append(speeches, speech)
				order++
			}
		}
	}
	return speeches, nil
}

// feedItemSpeech converts one feed item into a Speech. Items for other dates
// and items without a named speaker or any text are dropped.
func feedItemSpeech(item feedItem, pubDate, sittingDate string, order int) (Speech, bool) {
	date := item.Date
	if date == "" {
		date = pubDate
	}
	if date != sittingDate {
		return Speech{}, false
	}

	speech := Speech{
		Date:    date,
		PageRef: item.Page,
		Section: "General",
		Order:   order,
	}

	if p := item.Person; p != nil {
		speech.MemberID = p.ID
		speech.MemberURL = absoluteMemberURL(strings.TrimSpace(p.ProfileURL))
		speech.SpeakerName = strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
		speech.Riding = strings.TrimSpace(p.Riding)
		speech.Party = strings.TrimSpace(p.Caucus.Abbr)
		speech.Province = strings.TrimSpace(p.Province.Code)
	}

	if section := strings.TrimSpace(item.OrderOfBusiness); section != "" {
		speech.Section = section
	}
	if subject := strings.TrimSpace(item.SubjectOfBusiness); subject != "" {
		speech.Topics = []TopicRef{{Title: subject}}
	}

	if h, errH := strconv.Atoi(item.Hour); errH == nil {
		if m, errM := strconv.Atoi(item.Minute); errM == nil {
			speech.Time = fmt.Sprintf("%02d:%02d", h, m)
		}
	}

	var parts []string
	for _, para := range item.Paragraphs {
		text := strings.TrimSpace(xmlTagRe.ReplaceAllString(para.Inner, " "))
		text = whitespaceRe.ReplaceAllString(html.UnescapeString(text), " ")
		if text != "" {
			parts = append(parts, text)
		}
	}
	speech.Text = strings.Join(parts, "\n")

	if speech.SpeakerName == "" || speech.Text == "" {
		return Speech{}, false
	}
	return speech, true
}

// absoluteMemberURL resolves the protocol-relative and root-relative profile
// URLs the feed emits.
func absoluteMemberURL(u string) string {
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return "https://www.ourcommons.ca" + u
	}
	return u
}

func xmlAttr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
