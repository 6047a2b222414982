package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fjod/coffee_saga/internal/apperr"
)

var (
	ErrProductNotFound    = apperr.New(apperr.NotFound, "PRODUCT_NOT_FOUND", "product not found")
	ErrProductUnavailable = apperr.New(apperr.UpstreamUnavailable, "PRODUCT_UNAVAILABLE", "product service unavailable")
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

type Source int

const (
	// SourceUnknown is the zero value; such a result was never filled in.
	SourceUnknown Source = iota
	// SourceRemote marks a product resolved by the product service.
	SourceRemote
	// SourceFallback marks the placeholder returned while the product service is degraded.
	SourceFallback
)

// Result is the tagged outcome of a lookup. Only a remote result describes a real product.
type Result struct {
	Product Product
	Source  Source
}

// IsFallback reports whether the result must not be used as a real product.
// A zero Result counts as one.
func (r Result) IsFallback() bool {
	return r.Source != SourceRemote
}

// Client resolves products by id.
type Client interface {
	GetProduct(ctx context.Context, id int64) (Result, error)
}

// Unavailable is the placeholder for id while the product service cannot be reached.
func Unavailable(id int64) Result {
	return Result{
		Product: Product{ID: id, Name: "unavailable", Price: decimal.Zero, Available: false},
		Source:  SourceFallback,
	}
}

// FallbackClient always answers with the unavailable placeholder.
type FallbackClient struct{}

func (FallbackClient) GetProduct(_ context.Context, id int64) (Result, error) {
	return Unavailable(id), ErrProductUnavailable
}
