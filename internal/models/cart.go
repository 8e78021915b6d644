package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MinQuantity is the smallest quantity a cart line can hold.
	MinQuantity = 1
	// MaxQuantity is the largest quantity a cart line can hold.
	MaxQuantity = 99
)

// CartLine, a quantity of one product in the cart.
// Price is the unit price captured when the product was first added.
type CartLine struct {
	ID        string          `json:"id"`
	ProductID int             `json:"productId" binding:"required,min=1"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" binding:"required,min=1,max=99"`
}

// Subtotal returns price × quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// WithQuantity returns a copy of the line carrying quantity q.
func (l CartLine) WithQuantity(q int) CartLine {
	l.Quantity = q
	return l
}

// Validate checks the line invariants.
func (l CartLine) Validate() error {
	if l.ProductID < 1 {
		return fmt.Errorf("cart line %q: invalid product id %d", l.ID, l.ProductID)
	}
	if l.Price.IsNegative() {
		return fmt.Errorf("cart line %q: negative price %s", l.ID, l.Price)
	}
	if !QuantityInRange(l.Quantity) {
		return fmt.Errorf("cart line %q: quantity %d out of range [%d, %d]", l.ID, l.Quantity, MinQuantity, MaxQuantity)
	}
	return nil
}

// CartLineWithProduct, a cart line joined with its product by the store's expand.
// Product is nil when the referenced product no longer exists.
type CartLineWithProduct struct {
	CartLine
	Product *Product `json:"product,omitempty"`
}

// Name returns the product name, or a placeholder when the join is missing.
func (l CartLineWithProduct) Name() string {
	if l.Product == nil {
		return fmt.Sprintf("Product #%d", l.ProductID)
	}
	return l.Product.Name
}

// Image returns the product image URL, empty when the join is missing.
func (l CartLineWithProduct) Image() string {
	if l.Product == nil {
		return ""
	}
	return l.Product.Image
}

// QuantityInRange reports whether q is an acceptable line quantity.
func QuantityInRange(q int) bool {
	return q >= MinQuantity && q <= MaxQuantity
}

// CartTotal sums the subtotals of lines.
func CartTotal(lines []CartLineWithProduct) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// CartItemCount sums the quantities of lines.
func CartItemCount(lines []CartLineWithProduct) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
