package scoring

import (
	"strings"
	"testing"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
)

func TestTransparency_ServiceBaseline(t *testing.T) {
	got := Transparency(classifier.OpenAI, "Tell me a neutral fact", "")
	if got.Score != 70 || got.Level != "moderate" {
		t.Errorf("got %v/%s, want 70/moderate", got.Score, got.Level)
	}
	if want := "service baseline 70 (openai); no response content yet"; got.Details != want {
		t.Errorf("details = %q, want %q", got.Details, want)
	}
}

func TestTransparency_UnknownServiceIsLowest(t *testing.T) {
	unknown := Transparency(classifier.Unknown, "", "").Score
	if unknown != 40 {
		t.Fatalf("unknown baseline = %v, want 40", unknown)
	}
	for service := range transparencyBase {
		if got := Transparency(service, "", "").Score; got <= unknown {
			t.Errorf("%s baseline %v is not above unknown %v", service, got, unknown)
		}
	}
}

func TestTransparency_Disclosure(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"single phrase", "As an AI, I can help with that.", 80},
		{"capped", "As an AI, I don't have access to real-time data. My training data has a knowledge cutoff.", 90},
		{"none found", "Paris is the capital of France.", 65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transparency(classifier.Anthropic, "hello", tt.response); got.Score != tt.want {
				t.Errorf("score = %v, want %v for response: %s", got.Score, tt.want, tt.response)
			}
		})
	}
}

func TestTransparency_UncertaintyCapped(t *testing.T) {
	resp := "I'm not sure, and this might be outdated. Please verify. I could be wrong."
	got := Transparency(classifier.OpenAI, "", resp)
	if got.Score != 69 {
		t.Errorf("score = %v, want 69", got.Score)
	}
	for _, want := range []string{"no AI self-disclosure", "4 uncertainty phrase(s)"} {
		if !strings.Contains(got.Details, want) {
			t.Errorf("details %q missing %q", got.Details, want)
		}
	}
}

func TestTransparency_SelfInquiry(t *testing.T) {
	got := Transparency(classifier.OpenAI, "Are you an AI? What are your limitations?", "")
	if got.Score != 75 {
		t.Errorf("score = %v, want 75", got.Score)
	}
	if !strings.Contains(got.Details, "request asks about the AI's nature") {
		t.Errorf("details = %q", got.Details)
	}
}

func TestTransparencyLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{90, "transparent"},
		{60, "moderate"},
		{40, "opaque"},
	}
	for _, tt := range tests {
		if got := TransparencyLevel(tt.score); got != tt.want {
			t.Errorf("TransparencyLevel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func BenchmarkTransparency(b *testing.B) {
	req := "Are you an AI? What are your limitations?"
	resp := "As an AI language model, I might be wrong, and I'm not certain about recent events."
	for i := 0; i < b.N; i++ {
		Transparency(classifier.Anthropic, req, resp)
	}
}
