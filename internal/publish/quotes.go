package publish

import (
	"sort"

	"github.com/maplecivic/hansardflow/internal/store"
)

const (
	maxKeyQuotes  = 6
	minQuoteChars = 50
	quoteMaxChars = 300
)

// Quote is one excerpt shown in the post's key-quotes section.
type Quote struct {
	SpeakerName string
	Party       string
	Riding      string
	Section     string
	Text        string
}

// SelectKeyQuotes picks up to max substantive quotes from the debate's
// contributions. Longer speeches rank higher; the first pass takes one quote
// per party for balance, the second fills remaining slots with other
// speakers.
func SelectKeyQuotes(contributions []store.Contribution, max int) []Quote {
	type scored struct {
		quote  Quote
		length int
	}

	var candidates []scored
	for _, c := range contributions {
		if len(c.Text) < minQuoteChars {
			continue
		}
		text := c.Text
		if runes := []rune(text); len(runes) > quoteMaxChars {
			text = string(runes[:quoteMaxChars]) + "..."
		}
		candidates = append(candidates, scored{
			quote: Quote{
				SpeakerName: c.SpeakerName,
				Party:       metaString(c.Metadata, "party"),
				Riding:      metaString(c.Metadata, "riding"),
				Section:     metaString(c.Metadata, "section"),
				Text:        text,
			},
			length: len(c.Text),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].length > candidates[j].length
	})

	var selected []Quote
	seenSpeakers := make(map[string]bool)
	seenParties := make(map[string]bool)

	for _, c := range candidates {
		if len(selected) >= max {
			break
		}
		if c.quote.Party == "" || seenParties[c.quote.Party] || seenSpeakers[c.quote.SpeakerName] {
			continue
		}
		selected = append(selected, c.quote)
		seenSpeakers[c.quote.SpeakerName] = true
		seenParties[c.quote.Party] = true
	}
	for _, c := range candidates {
		if len(selected) >= max {
			break
		}
		if seenSpeakers[c.quote.SpeakerName] {
			continue
		}
		selected = append(selected, c.quote)
		seenSpeakers[c.quote.SpeakerName] = true
	}
	return selected
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
