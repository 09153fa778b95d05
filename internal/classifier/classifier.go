// Package classifier maps request URLs to the AI service they target.
package classifier

import (
	"net/url"
	"strings"
)

// Service is the canonical name of an AI provider.
type Service string

const (
	OpenAI     Service = "openai"
	Anthropic  Service = "anthropic"
	Cohere     Service = "cohere"
	Perplexity Service = "perplexity"
	Google     Service = "google"
	Meta       Service = "meta"
	Unknown    Service = "unknown"
)

// Rule binds a domain pattern to a service. A pattern matches a host when the
// host equals it or ends with "."+pattern.
type Rule struct {
	Pattern string
	Service Service
}

// DefaultRules is the built-in endpoint table. Order is priority: the first
// matching rule wins.
var DefaultRules = []Rule{
	{"api.openai.com", OpenAI},
	{"chat.openai.com", OpenAI},
	{"chatgpt.com", OpenAI},

	{"api.anthropic.com", Anthropic},
	{"claude.ai", Anthropic},

	{"api.cohere.ai", Cohere},
	{"api.cohere.com", Cohere},

	{"api.perplexity.ai", Perplexity},
	{"perplexity.ai", Perplexity},

	{"generativelanguage.googleapis.com", Google},
	{"gemini.google.com", Google},
	{"bard.google.com", Google},

	{"meta.ai", Meta},
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// New builds a classifier over rules, evaluated in the given order. With no
// rules it uses DefaultRules.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		p := strings.ToLower(strings.TrimSpace(r.Pattern))
		if p == "" {
			continue
		}
		normalized = append(normalized, Rule{Pattern: p, Service: r.Service})
	}
	return &Classifier{rules: normalized}
}

var defaultClassifier = New()

// Classify reports which service rawURL targets using DefaultRules.
func Classify(rawURL string) Service {
	return defaultClassifier.Classify(rawURL)
}

// IsAIServiceRequest reports whether rawURL targets any known AI service.
func IsAIServiceRequest(rawURL string) bool {
	return defaultClassifier.IsAIServiceRequest(rawURL)
}

// Classify returns the service of the first rule matching rawURL, or Unknown.
func (c *Classifier) Classify(rawURL string) Service {
	host, ok := hostOf(rawURL)
	for _, r := range c.rules {
		if ok {
			if host == r.Pattern || strings.HasSuffix(host, "."+r.Pattern) {
				return r.Service
			}
			continue
		}
		// Unparseable input: fall back to a plain substring test.
		if strings.Contains(strings.ToLower(rawURL), r.Pattern) {
			return r.Service
		}
	}
	return Unknown
}

func (c *Classifier) IsAIServiceRequest(rawURL string) bool {
	return c.Classify(rawURL) != Unknown
}

// Rules returns a copy of the rule table in priority order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func hostOf(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}
