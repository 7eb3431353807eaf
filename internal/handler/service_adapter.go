package handler

import (
	"github.com/hitoshi/studiomatch/internal/candidate"
)

// CandidateRegistryAdapter は candidate.Registry を CandidateRegistry に適合させるアダプタ。
type CandidateRegistryAdapter struct {
	registry *candidate.Registry
}

// NewCandidateRegistryAdapter はCandidateRegistryAdapterを生成する。
func NewCandidateRegistryAdapter(registry *candidate.Registry) *CandidateRegistryAdapter {
	return &CandidateRegistryAdapter{registry: registry}
}

// For はユーザーの候補集合を返す。
func (a *CandidateRegistryAdapter) For(userID string) CandidateSet {
	return a.registry.For(userID)
}

// compile-time interface check
var (
	_ CandidateRegistry = (*CandidateRegistryAdapter)(nil)
	_ CandidateSet      = (*candidate.Resolver)(nil)
)
