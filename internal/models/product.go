package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// db.json stores prices as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product, a catalog item owned by the remote store.
type Product struct {
	ID               int             `json:"id"`
	Name             string          `json:"name"`
	ShortDescription string          `json:"shortDescription"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Category         string          `json:"category"`
	Image            string          `json:"image"`
	Stars            int             `json:"stars"`
}

// Category, a catalog category as served by /categories.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProductFilter holds the catalog search criteria.
// Search is a partial, case-insensitive name match; Category must match exactly.
type ProductFilter struct {
	Search   string `form:"search" json:"search"`
	Category string `form:"category" json:"category"`
}

// Normalize trims both criteria.
func (f ProductFilter) Normalize() ProductFilter {
	return ProductFilter{
		Search:   strings.TrimSpace(f.Search),
		Category: strings.TrimSpace(f.Category),
	}
}

// IsZero reports whether the filter selects the whole catalog.
func (f ProductFilter) IsZero() bool {
	n := f.Normalize()
	return n.Search == "" && n.Category == ""
}
