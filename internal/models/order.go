package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt, the summary handed to the buyer after a successful checkout.
type Receipt struct {
	Number      string          `json:"number"`
	Email       string          `json:"email,omitempty"`
	Lines       []ReceiptLine   `json:"lines"`
	TotalItems  int             `json:"total_items"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	PurchasedAt time.Time       `json:"purchased_at"`
}

// ReceiptLine, one purchased cart line.
type ReceiptLine struct {
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// NewReceipt builds a receipt from the purchased lines.
func NewReceipt(number, email string, lines []CartLineWithProduct, now time.Time) Receipt {
	r := Receipt{
		Number:      number,
		Email:       email,
		Lines:       make([]ReceiptLine, 0, len(lines)),
		TotalItems:  CartItemCount(lines),
		TotalPrice:  CartTotal(lines),
		PurchasedAt: now,
	}
	for _, l := range lines {
		r.Lines = append(r.Lines, ReceiptLine{
			ProductID: l.ProductID,
			Name:      l.Name(),
			Price:     l.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal(),
		})
	}
	return r
}

// CheckoutForm, the optional data sent with a purchase confirmation.
type CheckoutForm struct {
	Email string `json:"email" form:"email" binding:"omitempty,email"`
}
