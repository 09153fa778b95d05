// Package query answers pull requests against the live interaction store.
package query

import (
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

// Service reads the store directly. Every call reflects the store as of its
// last mutation.
type Service struct {
	store *interaction.Store
}

func NewService(store *interaction.Store) *Service {
	return &Service{store: store}
}

// ListInteractions returns a snapshot of every tracked interaction, oldest
// first.
func (s *Service) ListInteractions() []interaction.Interaction {
	return s.store.List()
}

// GetAnalysis returns the current analysis for id. It reports false for
// unknown or expired ids and for interactions not analysed yet.
func (s *Service) GetAnalysis(id string) (*interaction.AnalysisResult, bool) {
	it, ok := s.store.Get(id)
	if !ok || it.Analysis == nil {
		return nil, false
	}
	return it.Analysis, true
}
