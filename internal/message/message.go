// Package message defines the messages exchanged with observers and the
// popup, and validates inbound messages against JSON schemas.
package message

import (
	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

type Type string

// Push messages, sent to the tab that originated the interaction.
const (
	TypeInteractionDetected Type = "ai_interaction_detected"
	TypeAnalysisUpdate      Type = "analysis_update"
	TypeAnalysisComplete    Type = "analysis_complete"
)

// Pull messages, answered synchronously.
const (
	TypePing                  Type = "ping"
	TypeGetActiveInteractions Type = "get_active_interactions"
	TypeGetAnalysisResult     Type = "get_analysis_result"
	TypeTestAIService         Type = "test_ai_service"
)

// Envelope is a push message.
type Envelope struct {
	Type          Type                        `json:"type"`
	InteractionID string                      `json:"interactionId"`
	Service       classifier.Service          `json:"service,omitempty"`
	Analysis      *interaction.AnalysisResult `json:"analysis,omitempty"`
}

func InteractionDetected(id string, service classifier.Service) Envelope {
	return Envelope{Type: TypeInteractionDetected, InteractionID: id, Service: service}
}

func AnalysisUpdate(id string, analysis *interaction.AnalysisResult) Envelope {
	return Envelope{Type: TypeAnalysisUpdate, InteractionID: id, Analysis: analysis.Clone()}
}

func AnalysisComplete(id string, analysis *interaction.AnalysisResult) Envelope {
	return Envelope{Type: TypeAnalysisComplete, InteractionID: id, Analysis: analysis.Clone()}
}

// Request is an inbound pull message. Only the fields its Type uses are set.
type Request struct {
	Type          Type     `json:"type"`
	InteractionID string   `json:"interactionId,omitempty"`
	URL           string   `json:"url,omitempty"`
	Service       string   `json:"service,omitempty"`
	TestPrompts   []string `json:"testPrompts,omitempty"`
}

// Response is the reply to a pull message. Fields are populated per Type.
type Response map[string]any

// ErrorResponse is the reply to messages that cannot be handled.
func ErrorResponse(msg string) Response {
	return Response{"error": msg}
}
