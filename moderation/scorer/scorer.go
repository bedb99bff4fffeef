// Package scorer implements the automated content scorer: a deterministic,
// explainable heuristic over weighted keyword lexicons. It is intentionally
// not a machine-learning model; the same input always produces the same
// score, recommendation, and reasons, which is what makes the audit trail
// replayable.
package scorer

import (
	"fmt"
	"sort"
	"strings"
)

// Recommendations for incident reports.
const (
	RecommendApprove = "approve"
	RecommendReject  = "reject"
	RecommendReview  = "review"
)

// Recommendations (actions) for chat messages.
const (
	RecommendBlock = "block"
	RecommendHide  = "hide"
	RecommendAllow = "allow"
)

// Result is the outcome of scoring one piece of content. Reasons enumerate
// every signal that fired, in a fixed order, so a human can audit the number.
type Result struct {
	Score          float64  `json:"score"`
	Recommendation string   `json:"recommendation"`
	Reasons        []string `json:"reasons"`
}

// Lexicon is a named list of weighted terms. Terms must be stored in the
// normalized token form produced by Tokenize (lower-case, accents folded).
type Lexicon struct {
	Name   string
	Weight float64
	Terms  []string
}

func (l *Lexicon) termSet() map[string]bool {
	m := make(map[string]bool, len(l.Terms))
	for _, t := range l.Terms {
		m[t] = true
	}
	return m
}

// Policy parameterizes the scorer for one channel. Reports and chat share the
// same algorithm shape with different lexicons, baselines, and threshold
// bands; the bands map a clamped score to a recommendation and are policy,
// not scorer, decisions.
type Policy struct {
	Channel  string
	Baseline float64

	// Lexicons are evaluated in slice order; reason output is deterministic.
	Lexicons []Lexicon

	// Per-category score adjustment (eg, boost landslide/flood reports).
	CategoryBoost map[string]float64

	// Length signals, in runes. A zero weight disables the signal.
	DetailLength int
	DetailBonus  float64
	ShortLength  int
	ShortPenalty float64

	// Excessive capitalization signal: fires when upper/letters exceeds
	// CapsRatio and there are at least 10 letters.
	CapsRatio  float64
	CapsWeight float64

	// Repeated-character run signal (chat only in the default policies).
	RepeatRunLength int
	RepeatRunWeight float64

	// Threshold bands, checked in order: High, then Low, then Mid, then
	// Default. LowMax < 0 or MidMin == 0 disables the respective band.
	HighMin    float64
	HighRec    string
	LowMax     float64
	LowRec     string
	MidMin     float64
	MidRec     string
	DefaultRec string
}

// Score evaluates content against the policy. It is a pure function: no I/O,
// no clock, no randomness, and it never fails for any non-empty input.
func (p *Policy) Score(content, category string) Result {
	score := p.Baseline
	var reasons []string

	tokens := Tokenize(content)
	for i := range p.Lexicons {
		lex := &p.Lexicons[i]
		set := lex.termSet()
		var matched []string
		for _, tok := range tokens {
			// de-pluralize
			if set[tok] || set[strings.TrimSuffix(tok, "s")] {
				matched = append(matched, tok)
			}
		}
		if len(matched) > 0 {
			score += float64(len(matched)) * lex.Weight
			reasons = append(reasons, fmt.Sprintf("%s terms matched (%d): %s", lex.Name, len(matched), strings.Join(dedupeSorted(matched), ", ")))
		}
	}

	if boost, ok := p.CategoryBoost[category]; ok && boost != 0 {
		score += boost
		reasons = append(reasons, fmt.Sprintf("category adjustment: %s", category))
	}

	length := len([]rune(content))
	if p.DetailBonus != 0 && length >= p.DetailLength {
		score += p.DetailBonus
		reasons = append(reasons, "detailed content")
	}
	if p.ShortPenalty != 0 && length < p.ShortLength {
		score += p.ShortPenalty
		reasons = append(reasons, "very short content")
	}

	if p.CapsWeight != 0 {
		letters, upper := letterStats(content)
		if letters >= 10 && float64(upper)/float64(letters) > p.CapsRatio {
			score += p.CapsWeight
			reasons = append(reasons, "excessive capitalization")
		}
	}

	if p.RepeatRunWeight != 0 && p.RepeatRunLength > 0 && longestRun(content) >= p.RepeatRunLength {
		score += p.RepeatRunWeight
		reasons = append(reasons, "repeated character run")
	}

	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	if reasons == nil {
		reasons = []string{"no signals fired"}
	}

	return Result{
		Score:          score,
		Recommendation: p.recommend(score),
		Reasons:        reasons,
	}
}

func (p *Policy) recommend(score float64) string {
	switch {
	case score >= p.HighMin:
		return p.HighRec
	case p.LowMax >= 0 && score <= p.LowMax:
		return p.LowRec
	case p.MidMin > 0 && score >= p.MidMin:
		return p.MidRec
	default:
		return p.DefaultRec
	}
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	sort.Strings(out)
	return out
}
