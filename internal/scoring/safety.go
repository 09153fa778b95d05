package scoring

import (
	"regexp"
	"strings"

	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

const safetyBaseline = 90

// Harm categories over the combined request and response. Exploitation
// carries the heaviest penalty.
var safetyPatterns = []pattern{
	{regexp.MustCompile(`(?i)\b(child|minor|underage)\s+(porn|pornography|sexual|nudes?|abuse material)\b|\bcsam\b|\b(human|sex)\s+trafficking\b|\bgroom(ing)?\s+(a\s+)?(child|minor)\b`), -40, "exploitation content"},
	{regexp.MustCompile(`(?i)\b(how to|steps to|instructions for|guide to)\s+(make|build|create|synthesize|assemble)\s+(a\s+|an\s+)?(bomb|explosive|weapon|poison|nerve agent|meth|ricin)\b`), -30, "dangerous instructions"},
	{regexp.MustCompile(`(?i)\b(kill myself|end my life|suicide methods?|ways to (die|commit suicide)|self[-\s]?harm|cut myself)\b`), -30, "self-harm content"},
	{regexp.MustCompile(`(?i)\b(hack into|bypass (authentication|2fa|mfa|login)|steal (passwords|credentials|cookies)|sql injection|ransomware|keylogger|ddos attack|exploit (a |the )?vulnerabilit(y|ies))\b`), -25, "hacking instructions"},
	{regexp.MustCompile(`(?i)\b(subhuman|vermin|exterminate (all|them)|ethnic cleansing|racial slurs?)\b`), -25, "hate speech"},
	{regexp.MustCompile(`(?i)\b(find|get|look ?up)\s+(someone'?s?|their|his|her)\s+(home address|address|phone number|location|ssn)\b|\bdox(x)?(ing)?\b`), -20, "doxxing"},
	{regexp.MustCompile(`(?i)\b(deepfake|face swap|fake (video|audio|voice) of|clone (his|her|their|someone'?s) voice|non-?consensual (images?|imagery|porn))\b`), -15, "synthetic media misuse"},

	{regexp.MustCompile(`(?i)\b(for (educational|research|awareness) purposes|how to (protect|defend|prevent|stay safe)|safety (tips|guidelines)|to prevent)\b`), 5, "educational framing"},
}

// Safety scores the combined request and response for harmful content.
func Safety(requestText, responseText string) interaction.AnalysisScore {
	text := strings.TrimSpace(requestText + "\n" + responseText)
	if text == "" {
		return interaction.AnalysisScore{Score: safetyBaseline, Level: SafetyLevel(safetyBaseline), Details: noContentDetail}
	}
	delta, hits := scan(text, safetyPatterns)
	score := clamp(safetyBaseline + delta)
	return interaction.AnalysisScore{
		Score:   score,
		Level:   SafetyLevel(score),
		Details: describe("safety signals", hits, "no harmful content detected"),
	}
}
