package promotion

import (
	"context"
	"slices"
)

// ScopeManager maintains the product and category membership of promotions.
// Scope is always replaced wholesale, never patched incrementally.
type ScopeManager struct {
	promos Repository
	scopes ScopeRepository
}

// NewScopeManager creates a ScopeManager over the given repositories.
func NewScopeManager(promos Repository, scopes ScopeRepository) *ScopeManager {
	return &ScopeManager{promos: promos, scopes: scopes}
}

// Get returns the current scope of a promotion, or ErrNotFound.
func (m *ScopeManager) Get(ctx context.Context, promotionID int64) (*Scope, error) {
	if _, err := m.promos.Get(ctx, promotionID); err != nil {
		return nil, err
	}
	return m.scopes.Get(ctx, promotionID)
}

// Set replaces the promotion's scope with the given sets. Duplicate ids in
// the input are tolerated and stored once; empty sets are valid and mean no
// explicit scope in that dimension. The swap is transactional, so partial
// scope states are never observable.
func (m *ScopeManager) Set(ctx context.Context, promotionID int64, s Scope) (*Scope, error) {
	if _, err := m.promos.Get(ctx, promotionID); err != nil {
		return nil, err
	}

	cleaned := Scope{
		ProductIDs:  dedupeIDs(s.ProductIDs),
		CategoryIDs: dedupeIDs(s.CategoryIDs),
	}
	if err := m.scopes.Replace(ctx, promotionID, cleaned); err != nil {
		return nil, err
	}
	return &cleaned, nil
}

// dedupeIDs returns a sorted copy of ids with duplicates removed.
func dedupeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	out = append(out, ids...)
	slices.Sort(out)
	return slices.Compact(out)
}
