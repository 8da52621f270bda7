package align

import (
	"regexp"
	"strings"

	"github.com/maplecivic/hansardflow/internal/store"
)

// similarityThreshold is the word-overlap score at which a transcript
// segment is taken to open the next official intervention.
const similarityThreshold = 0.3

// interventionPrefixLen bounds how much of an intervention participates in
// the similarity check: a segment only ever covers the opening words.
const interventionPrefixLen = 200

// speakerPrefixRe matches a spoken attribution like "Mr. Smith: " or
// "The Speaker: " at the start of a segment.
var speakerPrefixRe = regexp.MustCompile(`^([A-Z][^:]{2,40}):\s`)

// MapSpeakers assigns a speaker name to each transcript segment it can
// attribute. Two signals are combined:
//
//   - A cursor over the record's interventions, in order. When a segment's
//     text overlaps the opening of the next intervention the cursor
//     advances and its speaker becomes current.
//   - A spoken attribution prefix in the segment itself ("Mr. Lee: ..."),
//     resolved against the record's speaker names, which overrides the
//     cursor. A prefix the record cannot resolve, or heard when no record
//     exists at all, is kept as spoken rather than dropped.
//
// The returned map is keyed by segment index; unattributed segments are
// absent. Names are the record's canonical speaker names where resolution
// succeeded, raw spoken labels otherwise.
func MapSpeakers(segments []store.TranscriptSegment, record *Record) map[int]string {
	mapping := make(map[int]string)

	var interventions []Intervention
	var canonical []string
	if record != nil && record.Available {
		interventions = record.Interventions
		canonical = make([]string, len(record.Speakers))
		for i, sp := range record.Speakers {
			canonical[i] = sp.Name
		}
	}

	cursor := 0
	current := ""
	for idx, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if cursor < len(interventions) {
			intervention := interventions[cursor]
			prefix := intervention.Text
			if len(prefix) > interventionPrefixLen {
				prefix = prefix[:interventionPrefixLen]
			}
			if jaccard(text, prefix) > similarityThreshold {
				current = intervention.SpeakerName
				cursor++
			}
		}

		if spoken := detectSpeakerPrefix(text); spoken != "" {
			if name, ok := ResolveName(spoken, canonical); ok {
				current = name
			} else {
				current = spoken
			}
		}

		if current != "" {
			mapping[idx] = current
		}
	}
	return mapping
}

// jaccard computes word-set overlap between two texts: the size of the
// intersection over the size of the union.
func jaccard(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// detectSpeakerPrefix returns the name of a spoken attribution at the start
// of a segment, or the empty string.
func detectSpeakerPrefix(text string) string {
	if m := speakerPrefixRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
