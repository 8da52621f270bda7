package votes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maplecivic/hansardflow/internal/store"
)

// divisionPatterns holds the selectors and count regexes for one legislature's
// published record. Ontario records divisions in English, Quebec in French.
type divisionPatterns struct {
	selectors string
	yeaRe     *regexp.Regexp
	nayRe     *regexp.Regexp
	abstainRe *regexp.Regexp
}

var englishDivisions = divisionPatterns{
	selectors: `.division, .vote-result, [class*='division'], [class*='vote']`,
	yeaRe:     regexp.MustCompile(`(?:Ayes|Yeas?|In favour)[:\s]*(\d+)`),
	nayRe:     regexp.MustCompile(`(?:Nays?|Against|Opposed)[:\s]*(\d+)`),
}

var frenchDivisions = divisionPatterns{
	selectors: `.vote, .division, [class*='vote'], [class*='scrutin']`,
	yeaRe:     regexp.MustCompile(`(?:Pour|En faveur)[:\s]*(\d+)`),
	nayRe:     regexp.MustCompile(`(?:Contre|Opposé)[:\s]*(\d+)`),
	abstainRe: regexp.MustCompile(`(?:Abstentions?)[:\s]*(\d+)`),
}

// extractProvincial parses division blocks out of the sitting's published
// record. The motion text is taken from the element preceding the division
// block, which is how both the Ontario Hansard and the Journal des débats
// lay out recorded votes.
func (e *Extractor) extractProvincial(ctx context.Context, debate *store.Debate, patterns divisionPatterns, idPrefix string) []store.Vote {
	if debate.HansardURL == "" {
		return nil
	}

	doc, err := e.getDocument(ctx, debate.HansardURL)
	if err != nil {
		e.log.Warn("failed to fetch sitting record for votes", "url", debate.HansardURL, "error", err)
		return nil
	}

	date := debate.Date.Format("2006-01-02")
	var result []store.Vote
	doc.Find(patterns.selectors).Each(func(i int, block *goquery.Selection) {
		text := block.Text()

		yeaMatch := patterns.yeaRe.FindStringSubmatch(text)
		nayMatch := patterns.nayRe.FindStringSubmatch(text)
		if yeaMatch == nil || nayMatch == nil {
			return
		}
		yea, _ := strconv.Atoi(yeaMatch[1])
		nay, _ := strconv.Atoi(nayMatch[1])

		// The bill is named in the motion, not in the tally lines.
		motion := motionBefore(block)
		bill := findBillNumber(motion)
		if bill == "" {
			bill = findBillNumber(text)
		}

		vote := store.Vote{
			DebateID:   debate.ID,
			MotionText: motion,
			BillNumber: bill,
			YeaCount:   yea,
			NayCount:   nay,
			Result:     "defeated",
			ExternalID: fmt.Sprintf("%s%s-%d", idPrefix, date, len(result)+1),
		}
		if yea > nay {
			vote.Result = "passed"
		}
		if patterns.abstainRe != nil {
			if m := patterns.abstainRe.FindStringSubmatch(text); m != nil {
				vote.Abstentions, _ = strconv.Atoi(m[1])
			}
		}
		result = append(result, vote)
	})

	e.log.Info("extracted provincial votes", "date", date, "votes", len(result))
	return result
}

// motionBefore returns the text of the element preceding a division block,
// truncated to 500 characters. Short preceding elements (headings, anchors)
// are skipped.
func motionBefore(block *goquery.Selection) string {
	prev := block.Prev()
	if prev.Length() == 0 {
		return ""
	}
	text := strings.TrimSpace(prev.Text())
	if len(text) <= 10 {
		return ""
	}
	if runes := []rune(text); len(runes) > 500 {
		text = string(runes[:500])
	}
	return text
}

// getDocument fetches a URL and parses the body as HTML.
func (e *Extractor) getDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 16<<20))
}
