package normalize

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns the normalized Levenshtein ratio of a and b in [0, 1]:
// 1 - distance/max(len). Lengths are counted in runes.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
