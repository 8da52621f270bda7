// Package align cross-references speech recognition output with the
// official record.
//
// Whisper produces timed text with no speaker attribution; the official
// Hansard (or Journal des débats) carries the attribution but no timing.
// This package parses the official record, normalises member names, maps
// transcript segments to speakers by text similarity, and folds the mapped
// segments into per-speaker contributions.
package align

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// honorificRes strips the titles and honorifics members are recorded with,
// English and French.
var honorificRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(The\s+)?Right\s+Honourable\s+`),
	regexp.MustCompile(`(?i)^(The\s+)?Honourable\s+`),
	regexp.MustCompile(`(?i)^(The\s+)?Hon\.\s*`),
	regexp.MustCompile(`(?i)^Mr\.\s*`),
	regexp.MustCompile(`(?i)^Mrs\.\s*`),
	regexp.MustCompile(`(?i)^Ms\.\s*`),
	regexp.MustCompile(`(?i)^Mme\s+`),
	regexp.MustCompile(`(?i)^M\.\s+`),
	regexp.MustCompile(`(?i)^L'honorable\s+`),
	regexp.MustCompile(`(?i)^Le\s+très\s+honorable\s+`),
}

var (
	trailingParenRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	titlePrefixRe   = regexp.MustCompile(`(?i)^(the\s+)?(right\s+)?(honourable|hon\.?|mr\.?|mrs\.?|ms\.?|mme\.?|m\.?)\s*`)
	spacesRe        = regexp.MustCompile(`\s+`)
)

// diacriticsStripper removes combining marks after NFD decomposition, so
// "Québec" normalises to "Quebec".
var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CleanSpeakerName strips honorifics, a trailing role parenthetical like
// "(Minister of Finance)", and a trailing colon from a raw Hansard name.
// Case and accents are preserved.
func CleanSpeakerName(raw string) string {
	name := strings.TrimSpace(raw)
	for _, re := range honorificRes {
		name = strings.TrimSpace(re.ReplaceAllString(name, ""))
	}
	name = strings.TrimSpace(trailingParenRe.ReplaceAllString(name, ""))
	return strings.TrimSpace(strings.TrimRight(name, ":"))
}

// NormalizeName reduces a name to a matching key: accents stripped,
// lowercased, titles removed, whitespace collapsed.
func NormalizeName(name string) string {
	normalized, _, err := transform.String(diacriticsStripper, name)
	if err != nil {
		normalized = name
	}
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	normalized = strings.TrimSpace(titlePrefixRe.ReplaceAllString(normalized, ""))
	return spacesRe.ReplaceAllString(normalized, " ")
}

// maxNameDistance is the edit-distance budget for fuzzy name resolution.
// Whisper regularly mangles one or two characters of a surname.
const maxNameDistance = 2

// ResolveName finds the canonical name that a (possibly misheard or
// abbreviated) spoken name refers to. Resolution order: exact normalized
// match, substring match either way, then closest Levenshtein match within
// the edit-distance budget. The second return is false when nothing
// plausible matches.
func ResolveName(spoken string, canonical []string) (string, bool) {
	target := NormalizeName(spoken)
	if target == "" {
		return "", false
	}

	normalized := make([]string, len(canonical))
	for i, name := range canonical {
		normalized[i] = NormalizeName(name)
		if normalized[i] == target {
			return canonical[i], true
		}
	}

	for i, n := range normalized {
		if n == "" {
			continue
		}
		if strings.Contains(n, target) || strings.Contains(target, n) {
			return canonical[i], true
		}
	}

	best := -1
	bestDist := maxNameDistance + 1
	for i, n := range normalized {
		if n == "" {
			continue
		}
		if d := matchr.Levenshtein(target, n); d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return canonical[best], true
}
