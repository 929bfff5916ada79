package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/promotion"
)

// promotionCreateRequest mirrors promotion.Draft at the JSON boundary.
// Money fields decode through decimal, so both quoted and bare numbers are
// accepted without binary floating point loss.
type promotionCreateRequest struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Code            string          `json:"code"`
	Kind            string          `json:"kind"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	MinOrderAmount  decimal.Decimal `json:"min_order_amount"`
	StartsAt        *time.Time      `json:"starts_at"`
	EndsAt          *time.Time      `json:"ends_at"`
	Active          *bool           `json:"active"`
	MaxTotalUses    *int32          `json:"max_total_uses"`
	MaxUsesPerUser  *int32          `json:"max_uses_per_user"`
	CreatedBy       *int64          `json:"created_by"`
}

// promotionUpdateRequest is the partial-update payload: every field is a
// pointer so "absent" and "present with value" stay distinguishable.
type promotionUpdateRequest struct {
	Title           *string          `json:"title"`
	Description     *string          `json:"description"`
	Code            *string          `json:"code"`
	Kind            *string          `json:"kind"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	DiscountAmount  *decimal.Decimal `json:"discount_amount"`
	MinOrderAmount  *decimal.Decimal `json:"min_order_amount"`
	StartsAt        *time.Time       `json:"starts_at"`
	EndsAt          *time.Time       `json:"ends_at"`
	Active          *bool            `json:"active"`
	MaxTotalUses    *int32           `json:"max_total_uses"`
	MaxUsesPerUser  *int32           `json:"max_uses_per_user"`
}

type promotionView struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Code            string     `json:"code"`
	Kind            string     `json:"kind"`
	DiscountPercent *float64   `json:"discount_percent,omitempty"`
	DiscountAmount  *float64   `json:"discount_amount,omitempty"`
	MinOrderAmount  float64    `json:"min_order_amount"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	Active          bool       `json:"active"`
	MaxTotalUses    *int32     `json:"max_total_uses,omitempty"`
	MaxUsesPerUser  *int32     `json:"max_uses_per_user,omitempty"`
	CreatedBy       *int64     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type scopePayload struct {
	ProductIDs  []int64 `json:"product_ids"`
	CategoryIDs []int64 `json:"category_ids"`
}

type validateRequest struct {
	Code       string            `json:"code"`
	Items      []lineItemRequest `json:"items"`
	CustomerID *int64            `json:"customer_id"`
}

type lineItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type validateView struct {
	Promotion        promotionView `json:"promotion"`
	EligibleSubtotal float64       `json:"eligible_subtotal"`
	Discount         float64       `json:"discount"`
}

type redeemRequest struct {
	OrderID    int64  `json:"order_id"`
	CustomerID *int64 `json:"customer_id"`
}

// ListPromotions returns every promotion, newest first.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, promotionViews(promos))
}

// GetPromotion returns a single promotion by id.
func (h *Handler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, toPromotionView(p))
}

// ListActivePromotions returns promotions currently available for use.
func (h *Handler) ListActivePromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.registry.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, promotionViews(promos))
}

// CountActivePromotions returns the number of available promotions.
func (h *Handler) CountActivePromotions(w http.ResponseWriter, r *http.Request) {
	n, err := h.registry.CountActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]int64{"count": n})
}

// GetPromotionByCode resolves a code to an available promotion.
func (h *Handler) GetPromotionByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	p, err := h.registry.GetActiveByCode(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, toPromotionView(p))
}

// CreatePromotion validates and persists a new promotion definition.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p, err := h.registry.Create(r.Context(), promotion.Draft{
		Title:           req.Title,
		Description:     req.Description,
		Code:            req.Code,
		Kind:            promotion.Kind(req.Kind),
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
		MinOrderAmount:  req.MinOrderAmount,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Active:          active,
		MaxTotalUses:    req.MaxTotalUses,
		MaxUsesPerUser:  req.MaxUsesPerUser,
		CreatedBy:       req.CreatedBy,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, toPromotionView(p))
}

// UpdatePromotion applies a partial update: only supplied fields change.
func (h *Handler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req promotionUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u := promotion.Update{
		Title:           req.Title,
		Description:     req.Description,
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
		MinOrderAmount:  req.MinOrderAmount,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Active:          req.Active,
		MaxTotalUses:    req.MaxTotalUses,
		MaxUsesPerUser:  req.MaxUsesPerUser,
	}
	if req.Kind != nil {
		kind := promotion.Kind(*req.Kind)
		u.Kind = &kind
	}

	p, err := h.registry.Update(r.Context(), id, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, toPromotionView(p))
}

// DeletePromotion hard-deletes a promotion and returns the removed record.
func (h *Handler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.registry.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, toPromotionView(p))
}

// GetPromotionScope returns the promotion's current scope sets.
func (h *Handler) GetPromotionScope(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.scopes.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, toScopePayload(s))
}

// SetPromotionScope replaces the promotion's scope with the submitted sets.
func (h *Handler) SetPromotionScope(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req scopePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.scopes.Set(r.Context(), id, promotion.Scope{
		ProductIDs:  req.ProductIDs,
		CategoryIDs: req.CategoryIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, toScopePayload(s))
}

// ValidatePromotion evaluates a coupon code against a cart and returns the
// computed discount. Nothing is recorded: the result is advisory, redeem is
// a separate call.
func (h *Handler) ValidatePromotion(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]promotion.LineItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = promotion.LineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		}
	}

	result, err := h.calculator.Validate(r.Context(), promotion.ValidateRequest{
		Code:       req.Code,
		Items:      items,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Currency rounding to two decimal places happens here, at the
	// presentation boundary, never inside the calculator.
	writeResult(w, http.StatusOK, validateView{
		Promotion:        toPromotionView(&result.Promotion),
		EligibleSubtotal: result.EligibleSubtotal.Round(2).InexactFloat64(),
		Discount:         result.Discount.Round(2).InexactFloat64(),
	})
}

// RedeemPromotion records one use of the promotion against an order.
func (h *Handler) RedeemPromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err = h.ledger.Redeem(r.Context(), id, promotion.RedeemRequest{
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]bool{"success": true})
}

func toPromotionView(p *promotion.Promotion) promotionView {
	v := promotionView{
		ID:             p.ID,
		Title:          p.Title,
		Description:    p.Description,
		Code:           p.Code,
		Kind:           string(p.Kind),
		MinOrderAmount: p.MinOrderAmount.Round(2).InexactFloat64(),
		StartsAt:       p.StartsAt,
		EndsAt:         p.EndsAt,
		Active:         p.Active,
		MaxTotalUses:   p.MaxTotalUses,
		MaxUsesPerUser: p.MaxUsesPerUser,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
	}
	switch p.Kind {
	case promotion.KindPercent:
		pct := p.DiscountPercent.InexactFloat64()
		v.DiscountPercent = &pct
	case promotion.KindAmount:
		amt := p.DiscountAmount.Round(2).InexactFloat64()
		v.DiscountAmount = &amt
	}
	return v
}

func promotionViews(promos []promotion.Promotion) []promotionView {
	out := make([]promotionView, len(promos))
	for i := range promos {
		out[i] = toPromotionView(&promos[i])
	}
	return out
}

func toScopePayload(s *promotion.Scope) scopePayload {
	p := scopePayload{
		ProductIDs:  s.ProductIDs,
		CategoryIDs: s.CategoryIDs,
	}
	if p.ProductIDs == nil {
		p.ProductIDs = []int64{}
	}
	if p.CategoryIDs == nil {
		p.CategoryIDs = []int64{}
	}
	return p
}
