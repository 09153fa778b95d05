package storage

import (
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

func completeResult() *interaction.AnalysisResult {
	safety := interaction.AnalysisScore{Score: 90, Level: "safe", Details: "no harmful content detected"}
	return &interaction.AnalysisResult{
		Bias:         interaction.AnalysisScore{Score: 85, Level: "low", Details: "b"},
		Privacy:      interaction.AnalysisScore{Score: 85, Level: "good", Details: "p"},
		Safety:       &safety,
		Transparency: interaction.AnalysisScore{Score: 60, Level: "moderate", Details: "t"},
		Status:       interaction.AnalysisComplete,
		Timestamp:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewAnalysisEvent(t *testing.T) {
	e := NewAnalysisEvent("id-1", 4, "openai", "https://api.openai.com/v1/chat", completeResult())

	if e.InteractionID != "id-1" || e.TabID != 4 {
		t.Errorf("identity = %q/%d, want id-1/4", e.InteractionID, e.TabID)
	}
	if e.Stage != "complete" {
		t.Errorf("stage = %q, want complete", e.Stage)
	}
	if e.SafetyScore != 90 || e.SafetyLevel != "safe" {
		t.Errorf("safety = %v/%s, want 90/safe", e.SafetyScore, e.SafetyLevel)
	}
	if e.OverallScore != 80 || e.Rating != "Good" {
		t.Errorf("overall = %v/%s, want 80/Good", e.OverallScore, e.Rating)
	}
	if want := []string{"b", "p", "no harmful content detected", "t"}; !slices.Equal(e.Details, want) {
		t.Errorf("details = %q, want %q", e.Details, want)
	}
}

func TestNewAnalysisEvent_Partial(t *testing.T) {
	r := completeResult()
	r.Safety = nil
	r.Status = interaction.AnalysisPartial

	e := NewAnalysisEvent("id-2", 1, "anthropic", "u", r)
	if e.Stage != "partial" {
		t.Errorf("stage = %q, want partial", e.Stage)
	}
	if e.SafetyScore != 0 || e.SafetyLevel != "" {
		t.Errorf("safety = %v/%q, want zero", e.SafetyScore, e.SafetyLevel)
	}
	if e.OverallScore != 57.5 || e.Rating != "Moderate" {
		t.Errorf("overall = %v/%s, want 57.5/Moderate", e.OverallScore, e.Rating)
	}
	if e.Details[2] != "" {
		t.Errorf("safety details = %q, want empty", e.Details[2])
	}
}

func TestTruncateDetails(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"héllo wörld", 5, "héllo"},
	}
	for _, tt := range tests {
		if got := TruncateDetails(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateDetails(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}

	long := strings.Repeat("x", DetailsLength+10)
	if got := TruncateDetails(long, DetailsLength); len(got) != DetailsLength {
		t.Errorf("len = %d, want %d", len(got), DetailsLength)
	}
}

func TestLogWriter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewLogWriter(zap.New(core))
	defer w.Close()

	w.Write(NewAnalysisEvent("id-1", 4, "openai", "u", completeResult()))

	entries := logs.FilterMessage("analysis_event").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d analysis events, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["interaction_id"] != "id-1" || fields["stage"] != "complete" || fields["rating"] != "Good" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["safety"]; !ok {
		t.Errorf("safety field missing from %v", fields)
	}
}
