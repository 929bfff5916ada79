// Package promotion implements the promotion engine: definition lifecycle,
// scope membership, cart eligibility and discount computation, and the
// redemption ledger with quota enforcement.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercent discounts a percentage of the eligible subtotal.
	KindPercent Kind = "percent"
	// KindAmount discounts a fixed amount, capped at the eligible subtotal.
	KindAmount Kind = "amount"
)

var (
	// ErrNotFound is returned when a promotion id or code does not resolve,
	// or resolves to a promotion that is not currently available.
	ErrNotFound = errors.New("promotion not found")
	// ErrCodeExists is returned when a create or update collides with an
	// existing promotion code.
	ErrCodeExists = errors.New("promotion code already exists")
	// ErrNotAvailable is returned by redeem when the promotion exists but is
	// inactive or outside its validity window.
	ErrNotAvailable = errors.New("promotion not available")
	// ErrTotalQuotaExceeded is returned when a promotion has reached its
	// total redemption cap.
	ErrTotalQuotaExceeded = errors.New("promotion total quota exceeded")
	// ErrUserQuotaExceeded is returned when a customer has reached the
	// per-user redemption cap.
	ErrUserQuotaExceeded = errors.New("promotion user quota exceeded")
	// ErrNoEligibleItems is returned when no cart item falls within the
	// promotion's scope.
	ErrNoEligibleItems = errors.New("no eligible items in cart")
	// ErrMinOrderNotMet is returned when the eligible subtotal is below the
	// promotion's minimum order amount.
	ErrMinOrderNotMet = errors.New("minimum order amount not met")
	// ErrOrderRedeemed is returned when an order has already redeemed the
	// promotion.
	ErrOrderRedeemed = errors.New("order already used this promotion")
	// ErrHasRedemptions is returned when deleting a promotion that has
	// redemption history.
	ErrHasRedemptions = errors.New("promotion has redemption history")
)

// ValidationError reports a missing or out-of-range input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Promotion is a discount definition identified by a unique code.
// Exactly one of DiscountPercent / DiscountAmount is meaningful,
// determined by Kind.
type Promotion struct {
	ID              int64
	Title           string
	Description     string
	Code            string
	Kind            Kind
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	MinOrderAmount  decimal.Decimal
	StartsAt        *time.Time
	EndsAt          *time.Time
	Active          bool
	MaxTotalUses    *int32
	MaxUsesPerUser  *int32
	CreatedBy       *int64
	CreatedAt       time.Time
}

// AvailableAt reports whether the promotion's flag and time window admit use
// at the given instant. Quota exhaustion is checked separately, against the
// redemption count.
func (p *Promotion) AvailableAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

// Draft holds the caller-supplied fields for creating a promotion.
type Draft struct {
	Title           string
	Description     string
	Code            string
	Kind            Kind
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	MinOrderAmount  decimal.Decimal
	StartsAt        *time.Time
	EndsAt          *time.Time
	Active          bool
	MaxTotalUses    *int32
	MaxUsesPerUser  *int32
	CreatedBy       *int64
}

// Update is a partial promotion mutation. Nil fields retain their previous
// values; each present field is validated against the effective kind.
type Update struct {
	Title           *string
	Description     *string
	Code            *string
	Kind            *Kind
	DiscountPercent *decimal.Decimal
	DiscountAmount  *decimal.Decimal
	MinOrderAmount  *decimal.Decimal
	StartsAt        *time.Time
	EndsAt          *time.Time
	Active          *bool
	MaxTotalUses    *int32
	MaxUsesPerUser  *int32
}

// Repository defines persistence operations for promotion definitions.
type Repository interface {
	// List returns all promotions, newest first (ties broken by id descending).
	List(ctx context.Context) ([]Promotion, error)
	// Get returns a single promotion or ErrNotFound.
	Get(ctx context.Context, id int64) (*Promotion, error)
	// ListActive returns promotions available at now (flag, window, and total
	// quota), ordered by ends_at ascending with open-ended windows last.
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
	// CountActive counts promotions available at now.
	CountActive(ctx context.Context, now time.Time) (int64, error)
	// GetActiveByCode returns the promotion matching code (case-insensitive)
	// whose flag and time window admit use at now, or ErrNotFound. Quota
	// exhaustion is not part of this predicate so callers can report it
	// distinctly.
	GetActiveByCode(ctx context.Context, code string, now time.Time) (*Promotion, error)
	// Create persists a validated draft and returns the stored record.
	// Returns ErrCodeExists on a code collision.
	Create(ctx context.Context, d Draft) (*Promotion, error)
	// Save overwrites an existing promotion row. Returns ErrNotFound when the
	// id is gone and ErrCodeExists when the code collides with another row.
	Save(ctx context.Context, p *Promotion) (*Promotion, error)
	// Delete hard-deletes a promotion and returns the removed record.
	// Returns ErrNotFound when absent and ErrHasRedemptions when redemption
	// history blocks the delete.
	Delete(ctx context.Context, id int64) (*Promotion, error)
}

// Scope is the set of products and categories a promotion applies to.
// Empty sets in both dimensions mean the promotion is global.
type Scope struct {
	ProductIDs  []int64
	CategoryIDs []int64
}

// IsGlobal reports whether the scope covers every line item.
func (s Scope) IsGlobal() bool {
	return len(s.ProductIDs) == 0 && len(s.CategoryIDs) == 0
}

// ScopeRepository defines persistence for promotion scope membership.
type ScopeRepository interface {
	// Get returns the scope sets for a promotion, each ordered ascending.
	Get(ctx context.Context, promotionID int64) (*Scope, error)
	// Replace atomically swaps both scope relations for the promotion.
	// Partial states are never observable.
	Replace(ctx context.Context, promotionID int64, s Scope) error
}

// RedemptionRepository defines persistence for the redemption ledger.
type RedemptionRepository interface {
	// CountByPromotion returns the total number of redemptions recorded for
	// a promotion.
	CountByPromotion(ctx context.Context, promotionID int64) (int64, error)
	// CountByCustomer returns the number of redemptions recorded for a
	// (promotion, customer) pair.
	CountByCustomer(ctx context.Context, promotionID, customerID int64) (int64, error)
	// Redeem atomically re-checks availability and quotas under a promotion
	// row lock and inserts the redemption record. Returns ErrNotFound,
	// ErrNotAvailable, ErrTotalQuotaExceeded, ErrUserQuotaExceeded, or
	// ErrOrderRedeemed.
	Redeem(ctx context.Context, promotionID int64, customerID *int64, orderID int64, now time.Time) error
}
