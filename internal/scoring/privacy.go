package scoring

import (
	"fmt"
	"regexp"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

const privacyBaseline = 80

// PII found in the outbound request. Weights reflect how damaging a leak is.
var privacyPatterns = []pattern{
	// SSN: 123-45-6789 or 123 45 6789
	{regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`), -25, "national id number"},
	// Visa, Mastercard, Discover, Amex
	{regexp.MustCompile(`\b(?:4\d{3}|5[1-5]\d{2}|6011)[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b|\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`), -25, "payment card number"},
	{regexp.MustCompile(`(?i)\b(password|passcode|pin|api[\s_-]?key|secret)\s*(is|:|=)\s*\S+`), -20, "credential statement"},
	{regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[a-z0-9]+\s+){1,4}(street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr)\b`), -15, "street address"},
	{regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), -10, "email address"},
	// (555) 123-4567, 555-123-4567, +1 555 123 4567
	{regexp.MustCompile(`(?:\+1[-\s]?)?\(?\b\d{3}\)?[-\s.]\d{3}[-\s.]\d{4}\b`), -10, "phone number"},
	{regexp.MustCompile(`(?i)\b(date of birth|born on|my birthday is|dob)\b`), -10, "birthdate"},
	{regexp.MustCompile(`(?i)\b(my name is|i am called|call me) [a-z]+`), -8, "self-identifying name"},
}

// Per-service adjustment for known data-handling practices.
var privacyServiceAdjustment = map[classifier.Service]float64{
	classifier.OpenAI:     5,
	classifier.Anthropic:  5,
	classifier.Cohere:     5,
	classifier.Perplexity: 0,
	classifier.Google:     -5,
	classifier.Meta:       -10,
}

const unknownServicePrivacyAdjustment = -10

func serviceAdjustment(service classifier.Service) float64 {
	if adj, ok := privacyServiceAdjustment[service]; ok {
		return adj
	}
	return unknownServicePrivacyAdjustment
}

// Privacy scores how much personal data the request exposes to service.
func Privacy(text string, service classifier.Service) interaction.AnalysisScore {
	adj := serviceAdjustment(service)
	if text == "" {
		score := clamp(privacyBaseline + adj)
		return interaction.AnalysisScore{Score: score, Level: PrivacyLevel(score), Details: noContentDetail}
	}
	delta, hits := scan(text, privacyPatterns)
	score := clamp(privacyBaseline + delta + adj)
	details := describe("personal data", hits, "no personal data detected")
	if adj != 0 {
		details += fmt.Sprintf("; service adjustment %+g (%s)", adj, service)
	}
	return interaction.AnalysisScore{
		Score:   score,
		Level:   PrivacyLevel(score),
		Details: details,
	}
}
