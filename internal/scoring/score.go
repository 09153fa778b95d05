// Package scoring turns request and response text into deterministic
// bias, privacy, safety and transparency scores.
//
// Every scorer follows the same shape: start from a baseline, add the weight
// of each pattern that matches, clamp to [0,100], then derive a categorical
// level from fixed thresholds. Nothing here is random, so the same input
// always produces the same score.
package scoring

import (
	"regexp"
	"strings"
)

const (
	minScore = 0
	maxScore = 100

	noContentDetail = "no content to analyze"
)

// pattern is one weighted signal. Negative weights are penalties.
type pattern struct {
	re     *regexp.Regexp
	weight float64
	detail string
}

// scan sums the weight of every pattern that matches text. Each pattern
// counts at most once, however often it occurs.
func scan(text string, table []pattern) (float64, []string) {
	var delta float64
	var hits []string
	for _, p := range table {
		if p.re.MatchString(text) {
			delta += p.weight
			hits = append(hits, p.detail)
		}
	}
	return delta, hits
}

// countDistinct returns how many patterns in table match text.
func countDistinct(text string, table []*regexp.Regexp) int {
	n := 0
	for _, re := range table {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

func clamp(v float64) float64 {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

func describe(prefix string, hits []string, none string) string {
	if len(hits) == 0 {
		return none
	}
	return prefix + ": " + strings.Join(hits, ", ")
}

// thresholdLevel maps score onto three labels with strict >80 and >50 cuts.
func thresholdLevel(score float64, high, mid, low string) string {
	switch {
	case score > 80:
		return high
	case score > 50:
		return mid
	default:
		return low
	}
}

// BiasLevel is the bias risk label. A high fairness score is "low" risk.
func BiasLevel(score float64) string {
	return thresholdLevel(score, "low", "medium", "high")
}

func PrivacyLevel(score float64) string {
	return thresholdLevel(score, "good", "moderate", "poor")
}

func SafetyLevel(score float64) string {
	return thresholdLevel(score, "safe", "moderate", "unsafe")
}

func TransparencyLevel(score float64) string {
	return thresholdLevel(score, "transparent", "moderate", "opaque")
}
