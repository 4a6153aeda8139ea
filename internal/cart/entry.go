package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
)

type UnitKind string

const (
	Weight UnitKind = "kg"
	Piece  UnitKind = "piece"
)

// Normalize treats an unknown or empty unit as weight, which is how the
// catalog labels fruit sold loose.
func (k UnitKind) Normalize() UnitKind {
	if k == Piece {
		return Piece
	}
	return Weight
}

// Product is the catalog snapshot taken when a good is put in the basket.
type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
	Stock decimal.Decimal `json:"stock"`
	Unit  UnitKind        `json:"unit"`
}

type Entry struct {
	ProductID int64           `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Stock     decimal.Decimal `json:"stock"`
	Unit      UnitKind        `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (e Entry) LineTotal() decimal.Decimal {
	return e.UnitPrice.Mul(e.Quantity)
}

// ValidateAmount is the unit kind rule applied before an amount reaches the
// basket: whole positive counts for pieces, positive multiples of step for
// weight.
func ValidateAmount(kind UnitKind, amount, step decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Fields("invalid amount", map[string]string{"amount": "must be greater than zero"})
	}

	switch kind.Normalize() {
	case Piece:
		if !amount.Equal(amount.Floor()) {
			return apperr.Fields("invalid amount", map[string]string{"amount": "must be a whole number"})
		}
	case Weight:
		if step.IsPositive() && !amount.Mod(step).IsZero() {
			return apperr.Fields("invalid amount", map[string]string{
				"amount": fmt.Sprintf("must be a multiple of %s", step.String()),
			})
		}
	}
	return nil
}
