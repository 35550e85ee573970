package router

import (
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultSimilarityThreshold is the minimum normalized Levenshtein similarity
// for a tag to match a tool name
const DefaultSimilarityThreshold = 0.6

func stripExt(s string) string {
	return strings.TrimSuffix(s, filepath.Ext(s))
}

func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// resolveName maps a tool tag produced by the planner to a registered name.
// It tries an exact match, then case-insensitive, then without file
// extensions, then the most similar name at or above threshold. names must be
// sorted so ties resolve deterministically.
func resolveName(names []string, tag string, threshold float64) (string, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", false
	}

	for _, n := range names {
		if n == tag {
			return n, true
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, tag) {
			return n, true
		}
	}

	bare := strings.ToLower(stripExt(tag))
	for _, n := range names {
		if strings.ToLower(stripExt(n)) == bare {
			return n, true
		}
	}

	best, bestScore := "", 0.0
	for _, n := range names {
		score := similarity(bare, strings.ToLower(stripExt(n)))
		if score > bestScore {
			best, bestScore = n, score
		}
	}
	if best != "" && bestScore >= threshold {
		return best, true
	}
	return "", false
}
