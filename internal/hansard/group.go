package hansard

import (
	"sort"
)

// sectionPriority orders topic groups for display: Government Orders first,
// unclassified material last.
var sectionPriority = map[string]int{
	"Government Orders":         0,
	"Oral Question Period":      1,
	"Routine Proceedings":       2,
	"Private Members' Business": 3,
	"Statements by Members":     4,
	"Adjournment Proceedings":   5,
	"General":                   6,
}

// groupByTopic groups speeches by their topic/bill tags for per-topic forum
// sections. A speech with several tags appears in each of its groups; a
// speech with none is grouped under its Order of Business section via a
// synthetic key. Groups are ordered by section priority, then descending
// speech count; speeches within a group are chronological.
func groupByTopic(speeches []Speech) []TopicGroup {
	type groupAccum struct {
		group    TopicGroup
		speakers map[string]struct{}
		parties  map[string]struct{}
	}

	groups := make(map[string]*groupAccum)
	var keys []string

	accum := func(key string, mk func() TopicGroup, speech Speech) {
		g, ok := groups[key]
		if !ok {
			g = &groupAccum{
				group:    mk(),
				speakers: make(map[string]struct{}),
				parties:  make(map[string]struct{}),
			}
			groups[key] = g
			keys = append(keys, key)
		}
		g.group.Speeches = append(g.group.Speeches, speech)
		g.speakers[speech.SpeakerName] = struct{}{}
		if speech.Party != "" {
			g.parties[speech.Party] = struct{}{}
		}
	}

	for _, speech := range speeches {
		if len(speech.Topics) == 0 {
			section := speech.Section
			if section == "" {
				section = "General"
			}
			accum("__section__"+section, func() TopicGroup {
				return TopicGroup{Title: section, Section: section}
			}, speech)
			continue
		}
		for _, topic := range speech.Topics {
			key := topic.ID
			if key == "" {
				key = topic.Title
			}
			accum(key, func() TopicGroup {
				return TopicGroup{Title: topic.Title, TopicID: topic.ID, Section: speech.Section}
			}, speech)
		}
	}

	result := make([]TopicGroup, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		sort.SliceStable(g.group.Speeches, func(i, j int) bool {
			a, b := g.group.Speeches[i], g.group.Speeches[j]
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			return a.Time < b.Time
		})
		g.group.SpeakerCount = len(g.speakers)
		g.group.Parties = sortedKeys(g.parties)
		result = append(result, g.group)
	}

	sort.SliceStable(result, func(i, j int) bool {
		pi, pj := priorityOf(result[i].Section), priorityOf(result[j].Section)
		if pi != pj {
			return pi < pj
		}
		return len(result[i].Speeches) > len(result[j].Speeches)
	})
	return result
}

func priorityOf(section string) int {
	if p, ok := sectionPriority[section]; ok {
		return p
	}
	return 99
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// uniqueSpeakers collapses the speeches into one summary per member, ordered
// by descending speech count.
func uniqueSpeakers(speeches []Speech) []SpeakerSummary {
	seen := make(map[string]*SpeakerSummary)
	var names []string
	for _, speech := range speeches {
		s, ok := seen[speech.SpeakerName]
		if !ok {
			s = &SpeakerSummary{
				Name:      speech.SpeakerName,
				Riding:    speech.Riding,
				Party:     speech.Party,
				Province:  speech.Province,
				MemberID:  speech.MemberID,
				MemberURL: speech.MemberURL,
			}
			seen[speech.SpeakerName] = s
			names = append(names, speech.SpeakerName)
		}
		s.SpeechCount++
	}

	speakers := make([]SpeakerSummary, 0, len(names))
	for _, name := range names {
		speakers = append(speakers, *seen[name])
	}
	sort.SliceStable(speakers, func(i, j int) bool {
		return speakers[i].SpeechCount > speakers[j].SpeechCount
	})
	return speakers
}
