package storage

import (
	"time"

	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
	"github.com/sumitx99/ethical-web-watchdog/internal/scoring"
)

// EventWriter persists analysis events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *AnalysisEvent)
	Close()
}

// AnalysisEvent is one analysis snapshot: the partial result when a request
// is seen, or the complete one once its response arrives.
type AnalysisEvent struct {
	InteractionID     string
	TabID             int32
	Service           string
	URL               string
	Stage             string // "partial" or "complete"
	Timestamp         time.Time
	BiasScore         float32
	BiasLevel         string
	PrivacyScore      float32
	PrivacyLevel      string
	SafetyScore       float32 // 0 while partial
	SafetyLevel       string  // "" while partial
	TransparencyScore float32
	TransparencyLevel string
	OverallScore      float32
	Rating            string
	Details           []string // bias, privacy, safety, transparency
}

// DetailsLength caps each stored details string.
const DetailsLength = 500

// NewAnalysisEvent flattens r into a storable event.
func NewAnalysisEvent(id string, tabID int, service, url string, r *interaction.AnalysisResult) *AnalysisEvent {
	e := &AnalysisEvent{
		InteractionID:     id,
		TabID:             int32(tabID),
		Service:           service,
		URL:               url,
		Stage:             string(r.Status),
		Timestamp:         r.Timestamp,
		BiasScore:         float32(r.Bias.Score),
		BiasLevel:         r.Bias.Level,
		PrivacyScore:      float32(r.Privacy.Score),
		PrivacyLevel:      r.Privacy.Level,
		TransparencyScore: float32(r.Transparency.Score),
		TransparencyLevel: r.Transparency.Level,
	}
	var safetyDetails string
	if r.Safety != nil {
		e.SafetyScore = float32(r.Safety.Score)
		e.SafetyLevel = r.Safety.Level
		safetyDetails = r.Safety.Details
	}
	overall := scoring.Overall(*r)
	e.OverallScore = float32(overall)
	e.Rating = scoring.Rating(overall)
	e.Details = []string{
		TruncateDetails(r.Bias.Details, DetailsLength),
		TruncateDetails(r.Privacy.Details, DetailsLength),
		TruncateDetails(safetyDetails, DetailsLength),
		TruncateDetails(r.Transparency.Details, DetailsLength),
	}
	return e
}

// TruncateDetails returns the first N characters (runes) of s. It never
// splits a multi-byte UTF-8 character.
func TruncateDetails(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
