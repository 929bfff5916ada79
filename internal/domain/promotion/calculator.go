package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// CategoryResolver resolves the category of each of a set of products in one
// batch lookup. Implemented by the product catalog.
type CategoryResolver interface {
	CategoriesByProductIDs(ctx context.Context, ids []int64) (map[int64]int64, error)
}

// LineItem is a cart line supplied by the caller for eligibility evaluation.
// The unit price is caller-asserted; it is not re-derived from the catalog.
type LineItem struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// ValidateRequest holds the input to the calculator.
type ValidateRequest struct {
	Code       string
	Items      []LineItem
	CustomerID *int64
}

// ValidateResult is the advisory outcome of a validation: the resolved
// promotion, the in-scope portion of the cart, and the computed discount.
// Amounts are exact decimals; rounding happens at the response boundary.
type ValidateResult struct {
	Promotion        Promotion
	EligibleSubtotal decimal.Decimal
	Discount         decimal.Decimal
}

// Calculator evaluates a coupon code against a cart. It is read-only with
// respect to redemption state: quota counts are read but nothing is recorded,
// so a passing validation is advisory until redeem is called.
type Calculator struct {
	promos      Repository
	scopes      ScopeRepository
	redemptions RedemptionRepository
	catalog     CategoryResolver
	now         func() time.Time
}

// NewCalculator creates a Calculator with the required collaborators.
func NewCalculator(
	promos Repository,
	scopes ScopeRepository,
	redemptions RedemptionRepository,
	catalog CategoryResolver,
) *Calculator {
	return &Calculator{
		promos:      promos,
		scopes:      scopes,
		redemptions: redemptions,
		catalog:     catalog,
		now:         time.Now,
	}
}

// Validate runs the eligibility pipeline, short-circuiting on the first
// failure: code resolution, total quota, per-user quota, scope membership,
// eligible subtotal, minimum order, then discount computation.
func (c *Calculator) Validate(ctx context.Context, req ValidateRequest) (*ValidateResult, error) {
	if req.Code == "" {
		return nil, &ValidationError{Field: "code", Reason: "required"}
	}
	if len(req.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "required"}
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &ValidationError{Field: "items", Reason: "quantity must be greater than 0"}
		}
		if item.Price.IsNegative() {
			return nil, &ValidationError{Field: "items", Reason: "price must be at least 0"}
		}
	}

	p, err := c.promos.GetActiveByCode(ctx, req.Code, c.now())
	if err != nil {
		return nil, err
	}

	if p.MaxTotalUses != nil {
		used, err := c.redemptions.CountByPromotion(ctx, p.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count redemptions")
		}
		if used >= int64(*p.MaxTotalUses) {
			return nil, ErrTotalQuotaExceeded
		}
	}

	if req.CustomerID != nil && p.MaxUsesPerUser != nil {
		used, err := c.redemptions.CountByCustomer(ctx, p.ID, *req.CustomerID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer redemptions")
		}
		if used >= int64(*p.MaxUsesPerUser) {
			return nil, ErrUserQuotaExceeded
		}
	}

	scope, err := c.scopes.Get(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load scope")
	}

	eligible, err := c.eligibleSubtotal(ctx, req.Items, scope)
	if err != nil {
		return nil, err
	}
	if !eligible.IsPositive() {
		return nil, ErrNoEligibleItems
	}
	if p.MinOrderAmount.IsPositive() && eligible.LessThan(p.MinOrderAmount) {
		return nil, ErrMinOrderNotMet
	}

	return &ValidateResult{
		Promotion:        *p,
		EligibleSubtotal: eligible,
		Discount:         computeDiscount(p, eligible),
	}, nil
}

// eligibleSubtotal sums price x quantity over the items covered by scope.
// A global scope covers everything; otherwise an item qualifies when its
// product id is listed directly or its product's category id is listed.
func (c *Calculator) eligibleSubtotal(ctx context.Context, items []LineItem, scope *Scope) (decimal.Decimal, error) {
	if scope.IsGlobal() {
		return subtotal(items), nil
	}

	inProduct := make(map[int64]struct{}, len(scope.ProductIDs))
	for _, id := range scope.ProductIDs {
		inProduct[id] = struct{}{}
	}
	inCategory := make(map[int64]struct{}, len(scope.CategoryIDs))
	for _, id := range scope.CategoryIDs {
		inCategory[id] = struct{}{}
	}

	// One batch lookup resolves every distinct product to its category.
	// Skipped when no category scope exists, since product membership alone
	// decides eligibility then.
	var categories map[int64]int64
	if len(inCategory) > 0 {
		ids := distinctProductIDs(items)
		resolved, err := c.catalog.CategoriesByProductIDs(ctx, ids)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "resolve categories")
		}
		categories = resolved
	}

	sum := decimal.Zero
	for _, item := range items {
		if _, ok := inProduct[item.ProductID]; !ok {
			cat, resolved := categories[item.ProductID]
			if !resolved {
				continue
			}
			if _, ok := inCategory[cat]; !ok {
				continue
			}
		}
		sum = sum.Add(lineTotal(item))
	}
	return sum, nil
}

// computeDiscount applies the promotion's rule to the eligible subtotal.
// Percent discounts are floored at zero; amount discounts never exceed the
// eligible subtotal.
func computeDiscount(p *Promotion, eligible decimal.Decimal) decimal.Decimal {
	switch p.Kind {
	case KindPercent:
		d := eligible.Mul(p.DiscountPercent).Div(hundred)
		if d.IsNegative() {
			return decimal.Zero
		}
		return d
	case KindAmount:
		return decimal.Min(p.DiscountAmount, eligible)
	default:
		return decimal.Zero
	}
}

func subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(lineTotal(item))
	}
	return sum
}

func lineTotal(item LineItem) decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func distinctProductIDs(items []LineItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
