package promotion

import (
	"context"
	"time"
)

// RedeemRequest holds the input to a redemption: the order being finalized
// and, when known, the customer placing it.
type RedeemRequest struct {
	OrderID    int64
	CustomerID *int64
}

// Ledger records promotion usage. Availability and quotas are re-checked at
// redemption time inside a single storage transaction, regardless of any
// earlier advisory validation: time may have passed and concurrent checkouts
// may have consumed the remaining quota.
type Ledger struct {
	store RedemptionRepository
	now   func() time.Time
}

// NewLedger creates a Ledger over the given redemption store.
func NewLedger(store RedemptionRepository) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Redeem records one use of the promotion against the order. The
// (promotion, order) pair is unique: a duplicate attempt fails with
// ErrOrderRedeemed instead of double-counting.
func (l *Ledger) Redeem(ctx context.Context, promotionID int64, req RedeemRequest) error {
	if req.OrderID <= 0 {
		return &ValidationError{Field: "order_id", Reason: "required"}
	}
	return l.store.Redeem(ctx, promotionID, req.CustomerID, req.OrderID, l.now())
}
