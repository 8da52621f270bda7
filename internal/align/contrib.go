package align

import (
	"math"
	"strings"

	"github.com/maplecivic/hansardflow/internal/store"
)

// minContributionWords filters out stray fragments: anything under three
// words is treated as recognition noise.
const minContributionWords = 3

// BuildContributions folds the primary transcript's segments into
// per-speaker contributions: consecutive segments with the same attributed
// speaker merge into one contribution with combined text and the enclosing
// time range. When a secondary (French) transcript is given, its segments
// are attached to each contribution by time overlap as TextFR.
//
// speakerNames maps segment index to the attributed speaker name, as
// returned by [MapSpeakers]; unmapped segments open anonymous
// contributions.
func BuildContributions(debateID string, primary *store.Transcript, secondary *store.Transcript, speakerNames map[int]string) []store.Contribution {
	if primary == nil || len(primary.Segments) == 0 {
		return nil
	}

	var (
		contributions []store.Contribution
		group         []store.TranscriptSegment
		groupSpeaker  string
		order         int
	)

	flush := func() {
		if c, ok := buildOne(debateID, groupSpeaker, group, order); ok {
			contributions = append(contributions, c)
			order++
		}
		group = nil
	}

	for idx, seg := range primary.Segments {
		speaker := speakerNames[idx]
		if speaker != groupSpeaker && len(group) > 0 {
			flush()
		}
		groupSpeaker = speaker
		group = append(group, seg)
	}
	flush()

	if secondary != nil && len(secondary.Segments) > 0 {
		attachSecondary(contributions, secondary.Segments)
	}
	return contributions
}

// buildOne merges one segment group into a contribution. Groups whose
// combined text is too short are dropped.
func buildOne(debateID, speaker string, segments []store.TranscriptSegment, order int) (store.Contribution, bool) {
	if len(segments) == 0 {
		return store.Contribution{}, false
	}

	var parts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	text := strings.Join(parts, " ")
	if len(strings.Fields(text)) < minContributionWords {
		return store.Contribution{}, false
	}

	return store.Contribution{
		DebateID:      debateID,
		SpeakerName:   speaker,
		Text:          text,
		SequenceOrder: order,
		StartTime:     round2(segments[0].Start),
		EndTime:       round2(segments[len(segments)-1].End),
	}, true
}

// attachSecondary fills TextFR on each contribution from the secondary
// segments whose time range overlaps the contribution's.
func attachSecondary(contributions []store.Contribution, segments []store.TranscriptSegment) {
	for i := range contributions {
		start, end := contributions[i].StartTime, contributions[i].EndTime
		var parts []string
		for _, seg := range segments {
			if seg.Start < end && seg.End > start {
				if text := strings.TrimSpace(seg.Text); text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			contributions[i].TextFR = strings.Join(parts, " ")
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
