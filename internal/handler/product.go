package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/product"
	"github.com/BraraBy/eCom-P-sub000/internal/domain/promotion"
)

type productView struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	CategoryID int64   `json:"category_id"`
	ImageURL   string  `json:"image_url,omitempty"`
}

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]productView, len(products))
	for i, p := range products {
		out[i] = toProductView(&p)
	}
	writeResult(w, http.StatusOK, out)
}

// GetProduct returns a single product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, &promotion.ValidationError{Field: "id", Reason: "must be a positive integer"})
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, toProductView(p))
}

func toProductView(p *product.Product) productView {
	return productView{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price.Round(2).InexactFloat64(),
		CategoryID: p.CategoryID,
		ImageURL:   p.ImageURL,
	}
}
