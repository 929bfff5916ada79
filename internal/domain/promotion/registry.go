package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Registry manages the lifecycle of promotion definitions: validation,
// creation, partial updates, deletion, and the active views.
type Registry struct {
	repo        Repository
	redemptions RedemptionRepository
	now         func() time.Time
}

// NewRegistry creates a Registry backed by the given repositories. The
// redemption repository is consulted only to fold quota exhaustion into the
// availability predicate.
func NewRegistry(repo Repository, redemptions RedemptionRepository) *Registry {
	return &Registry{repo: repo, redemptions: redemptions, now: time.Now}
}

// List returns every promotion, newest first.
func (r *Registry) List(ctx context.Context) ([]Promotion, error) {
	return r.repo.List(ctx)
}

// Get returns a single promotion by id.
func (r *Registry) Get(ctx context.Context, id int64) (*Promotion, error) {
	return r.repo.Get(ctx, id)
}

// ListActive returns promotions currently available for use.
func (r *Registry) ListActive(ctx context.Context) ([]Promotion, error) {
	return r.repo.ListActive(ctx, r.now())
}

// CountActive counts promotions currently available for use.
func (r *Registry) CountActive(ctx context.Context) (int64, error) {
	return r.repo.CountActive(ctx, r.now())
}

// GetActiveByCode resolves a code (case-insensitive) to an available
// promotion. A promotion whose total quota is exhausted is reported as
// ErrNotFound here: exhaustion makes it unavailable to new callers.
func (r *Registry) GetActiveByCode(ctx context.Context, code string) (*Promotion, error) {
	p, err := r.repo.GetActiveByCode(ctx, code, r.now())
	if err != nil {
		return nil, err
	}
	if p.MaxTotalUses != nil {
		used, err := r.redemptions.CountByPromotion(ctx, p.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count redemptions")
		}
		if used >= int64(*p.MaxTotalUses) {
			return nil, ErrNotFound
		}
	}
	return p, nil
}

// Create validates the draft and persists it.
func (r *Registry) Create(ctx context.Context, d Draft) (*Promotion, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Code = strings.TrimSpace(d.Code)
	if err := validateDraft(d); err != nil {
		return nil, err
	}
	return r.repo.Create(ctx, d)
}

// Update applies a partial mutation: fields absent from u keep their stored
// values, present fields are validated against the effective kind (the new
// one when supplied, the stored one otherwise).
func (r *Registry) Update(ctx context.Context, id int64, u Update) (*Promotion, error) {
	p, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := *p
	applyUpdate(&merged, u)
	merged.Title = strings.TrimSpace(merged.Title)
	merged.Code = strings.TrimSpace(merged.Code)

	if err := validatePromotion(&merged); err != nil {
		return nil, err
	}
	return r.repo.Save(ctx, &merged)
}

// Delete hard-deletes a promotion and returns the removed record for
// confirmation. Deletion is blocked while redemption history exists.
func (r *Registry) Delete(ctx context.Context, id int64) (*Promotion, error) {
	return r.repo.Delete(ctx, id)
}

func applyUpdate(p *Promotion, u Update) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Code != nil {
		p.Code = *u.Code
	}
	if u.Kind != nil {
		p.Kind = *u.Kind
	}
	if u.DiscountPercent != nil {
		p.DiscountPercent = *u.DiscountPercent
	}
	if u.DiscountAmount != nil {
		p.DiscountAmount = *u.DiscountAmount
	}
	if u.MinOrderAmount != nil {
		p.MinOrderAmount = *u.MinOrderAmount
	}
	if u.StartsAt != nil {
		p.StartsAt = u.StartsAt
	}
	if u.EndsAt != nil {
		p.EndsAt = u.EndsAt
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	if u.MaxTotalUses != nil {
		p.MaxTotalUses = u.MaxTotalUses
	}
	if u.MaxUsesPerUser != nil {
		p.MaxUsesPerUser = u.MaxUsesPerUser
	}
}

func validateDraft(d Draft) error {
	if d.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if d.Code == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	return validateRule(d.Kind, d.DiscountPercent, d.DiscountAmount, d.MinOrderAmount, d.MaxTotalUses, d.MaxUsesPerUser)
}

func validatePromotion(p *Promotion) error {
	if p.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if p.Code == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	return validateRule(p.Kind, p.DiscountPercent, p.DiscountAmount, p.MinOrderAmount, p.MaxTotalUses, p.MaxUsesPerUser)
}

func validateRule(kind Kind, percent, amount, minOrder decimal.Decimal, maxTotal, maxPerUser *int32) error {
	switch kind {
	case KindPercent:
		if !percent.IsPositive() || percent.GreaterThan(hundred) {
			return &ValidationError{Field: "discount_percent", Reason: "must be greater than 0 and at most 100"}
		}
	case KindAmount:
		if amount.IsNegative() {
			return &ValidationError{Field: "discount_amount", Reason: "must be at least 0"}
		}
	case "":
		return &ValidationError{Field: "kind", Reason: "required"}
	default:
		return &ValidationError{Field: "kind", Reason: "must be percent or amount"}
	}
	if minOrder.IsNegative() {
		return &ValidationError{Field: "min_order_amount", Reason: "must be at least 0"}
	}
	if maxTotal != nil && *maxTotal < 0 {
		return &ValidationError{Field: "max_total_uses", Reason: "must be at least 0"}
	}
	if maxPerUser != nil && *maxPerUser < 0 {
		return &ValidationError{Field: "max_uses_per_user", Reason: "must be at least 0"}
	}
	return nil
}
