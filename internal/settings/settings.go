// Package settings holds the user-facing watchdog settings and the policy
// the lifecycle controller derives from them.
package settings

import (
	"errors"
	"fmt"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Service toggles tracking for one AI service.
type Service struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type Settings struct {
	Notifications        bool      `json:"notifications"`
	AutoScan             bool      `json:"autoScan"`
	DetailedReports      bool      `json:"detailedReports"`
	AdversarialTesting   bool      `json:"adversarialTesting"`
	SensitivityThreshold int       `json:"sensitivityThreshold"`
	Services             []Service `json:"services"`
}

// Defaults returns the settings a fresh profile starts with.
func Defaults() Settings {
	return Settings{
		Notifications:        true,
		AutoScan:             true,
		SensitivityThreshold: 70,
		Services: []Service{
			{ID: string(classifier.OpenAI), Name: "OpenAI", Enabled: true},
			{ID: string(classifier.Anthropic), Name: "Anthropic", Enabled: true},
			{ID: string(classifier.Google), Name: "Google AI", Enabled: true},
			{ID: string(classifier.Perplexity), Name: "Perplexity", Enabled: true},
			{ID: string(classifier.Cohere), Name: "Cohere", Enabled: false},
			{ID: string(classifier.Meta), Name: "Meta AI", Enabled: false},
		},
	}
}

// Validate reports the first problem with s, wrapped in ErrInvalidSettings.
func (s Settings) Validate() error {
	if s.SensitivityThreshold < 0 || s.SensitivityThreshold > 100 {
		return fmt.Errorf("%w: sensitivityThreshold must be between 0 and 100, got %d", ErrInvalidSettings, s.SensitivityThreshold)
	}
	seen := make(map[string]bool, len(s.Services))
	for i, svc := range s.Services {
		if svc.ID == "" {
			return fmt.Errorf("%w: services[%d].id is required", ErrInvalidSettings, i)
		}
		if seen[svc.ID] {
			return fmt.Errorf("%w: duplicate service id %q", ErrInvalidSettings, svc.ID)
		}
		seen[svc.ID] = true
	}
	return nil
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	out := s
	out.Services = append([]Service(nil), s.Services...)
	return out
}

// ServiceEnabled reports whether tracking is on for id. Services absent from
// the list are enabled.
func (s Settings) ServiceEnabled(id string) bool {
	for _, svc := range s.Services {
		if svc.ID == id {
			return svc.Enabled
		}
	}
	return true
}
