// Package handler exposes the promotion engine and catalog over REST.
//
// Every response uses one envelope: {"status":"<code>","result":...} on
// success, {"status":"<code>","message":...} on failure, where <code> is the
// numeric HTTP status as a string.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/auth"
	"github.com/BraraBy/eCom-P-sub000/internal/domain/product"
	"github.com/BraraBy/eCom-P-sub000/internal/domain/promotion"
)

// Handler implements the REST surface, delegating business logic to the
// domain services.
type Handler struct {
	registry   *promotion.Registry
	scopes     *promotion.ScopeManager
	calculator *promotion.Calculator
	ledger     *promotion.Ledger
	products   product.Repository
	apikeys    auth.Repository
	pepper     []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
// pepper is the HMAC key used to hash incoming API keys for lookup.
func NewHandler(
	registry *promotion.Registry,
	scopes *promotion.ScopeManager,
	calculator *promotion.Calculator,
	ledger *promotion.Ledger,
	products product.Repository,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		registry:   registry,
		scopes:     scopes,
		calculator: calculator,
		ledger:     ledger,
		products:   products,
		apikeys:    apikeys,
		pepper:     pepper,
	}
}

// Routes builds the API router. Mutating promotion endpoints require a valid
// API key; read and checkout endpoints are public.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/promotions", func(r chi.Router) {
		r.Get("/", h.ListPromotions)
		r.Get("/active", h.ListActivePromotions)
		r.Get("/active/count", h.CountActivePromotions)
		r.Get("/by-code/{code}", h.GetPromotionByCode)
		r.Post("/validate", h.ValidatePromotion)
		r.Get("/{id}", h.GetPromotion)
		r.Get("/{id}/scope", h.GetPromotionScope)
		r.Post("/{id}/redeem", h.RedeemPromotion)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAPIKey)
			r.Post("/", h.CreatePromotion)
			r.Put("/{id}", h.UpdatePromotion)
			r.Delete("/{id}", h.DeletePromotion)
			r.Put("/{id}/scope", h.SetPromotionScope)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
	})

	return r
}

// envelope is the single response wrapper for every endpoint.
type envelope struct {
	Status  string `json:"status"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeResult(w http.ResponseWriter, status int, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Status: strconv.Itoa(status),
		Result: result,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Status:  strconv.Itoa(status),
		Message: message,
	})
}

// writeError maps a domain error to its HTTP status. Unexpected errors are
// logged and answered with a generic message: raw storage detail never
// reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
	}
	writeMessage(w, status, message)
}

func statusFor(err error) (int, string) {
	var vErr *promotion.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, vErr.Error()
	}

	switch {
	case errors.Is(err, promotion.ErrNotFound):
		return http.StatusNotFound, "promotion not found or not available"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, promotion.ErrCodeExists),
		errors.Is(err, promotion.ErrNotAvailable),
		errors.Is(err, promotion.ErrTotalQuotaExceeded),
		errors.Is(err, promotion.ErrUserQuotaExceeded),
		errors.Is(err, promotion.ErrNoEligibleItems),
		errors.Is(err, promotion.ErrMinOrderNotMet),
		errors.Is(err, promotion.ErrOrderRedeemed),
		errors.Is(err, promotion.ErrHasRedemptions):
		return http.StatusConflict, conflictMessage(err)
	}
	return http.StatusInternalServerError, "internal error"
}

// conflictMessage returns the stable client-facing wording for each conflict
// kind. These are deliberate translations; constraint names stay internal.
func conflictMessage(err error) string {
	switch {
	case errors.Is(err, promotion.ErrCodeExists):
		return "promotion code already exists"
	case errors.Is(err, promotion.ErrNotAvailable):
		return "promotion not available"
	case errors.Is(err, promotion.ErrTotalQuotaExceeded):
		return "total quota exceeded"
	case errors.Is(err, promotion.ErrUserQuotaExceeded):
		return "user quota exceeded"
	case errors.Is(err, promotion.ErrNoEligibleItems):
		return "no eligible items"
	case errors.Is(err, promotion.ErrMinOrderNotMet):
		return "minimum order not met"
	case errors.Is(err, promotion.ErrOrderRedeemed):
		return "order already used this promotion"
	case errors.Is(err, promotion.ErrHasRedemptions):
		return "promotion has redemption history"
	}
	return err.Error()
}

// decodeJSON reads the request body into dst, rejecting malformed payloads.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &promotion.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &promotion.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}
