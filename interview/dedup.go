package interview

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// jaroWinklerDuplicate is the similarity score at or above which two
// normalized questions count as duplicates even when their token overlap
// is below the configured threshold. The backstop catches light
// paraphrases ("tell me about X" vs "could you tell me about X") that
// token sets miss; it only narrows the accepted set, never widens it.
const jaroWinklerDuplicate = 0.93

// normalizeQuestion lowercases, strips punctuation, and collapses runs of
// whitespace, the canonical form duplicate detection compares.
func normalizeQuestion(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
		default:
			sb.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// tokenOverlap returns the share of the smaller question's distinct
// tokens that also appear in the other. 1.0 when either normalizes to
// nothing, so empty questions always collide.
func tokenOverlap(a, b string) float64 {
	ta := tokenSet(normalizeQuestion(a))
	tb := tokenSet(normalizeQuestion(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 1.0
	}
	small, large := ta, tb
	if len(tb) < len(ta) {
		small, large = tb, ta
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func tokenSet(normalized string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		out[tok] = struct{}{}
	}
	return out
}

// isDuplicateQuestion reports whether the candidate question collides
// with any question already asked in this interview. The comparison never
// crosses interviews; each state only carries its own questions.
func isDuplicateQuestion(candidate string, asked []QuestionRecord, overlapThreshold float64) bool {
	normCandidate := normalizeQuestion(candidate)
	for _, q := range asked {
		if tokenOverlap(candidate, q.Text) >= overlapThreshold {
			return true
		}
		if matchr.JaroWinkler(normCandidate, normalizeQuestion(q.Text), false) >= jaroWinklerDuplicate {
			return true
		}
	}
	return false
}
