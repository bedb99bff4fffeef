package scorer

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Tokenize splits free-form text into lower-case, accent-folded tokens.
// Incident reports arrive in Portuguese with inconsistent accent usage
// ("evacuação" vs "evacuacao"), so lexicon terms are stored unaccented and
// input is folded to match.
func Tokenize(text string) []string {
	// the transform chain must be rebuilt per call to avoid a race on its internal state
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(normFunc, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = bare
	}
	return strings.Fields(folded)
}

// letterStats returns the number of letters and how many of them are upper
// case, for the capitalization signal.
func letterStats(text string) (letters, upper int) {
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters, upper
}

// longestRun returns the length of the longest run of a single repeated rune.
func longestRun(text string) int {
	var prev rune
	run, longest := 0, 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
