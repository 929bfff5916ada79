// Package product exposes the read side of the catalog consumed by the
// promotion engine and the storefront.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item available for purchase.
type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	CategoryID int64
	ImageURL   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	// CategoriesByProductIDs resolves each existing product id to its
	// category id in a single batch query. Unknown ids are simply absent
	// from the result.
	CategoriesByProductIDs(ctx context.Context, ids []int64) (map[int64]int64, error)
}
