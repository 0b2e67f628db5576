package pricing

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// Quote is the priced result of applying markup then discount to a base
// supplier price. All amounts are USD cents.
type Quote struct {
	BaseCents     int64
	MarkedUpCents int64
	DiscountCents int64
	TotalCents    int64
	MarkupPercent int
	DiscountPct   int
}

// Price applies the global or regional markup to the supplier base price,
// then the promo discount on the marked-up price. Each stage rounds half-up
// to whole cents before the next stage reads it.
func Price(baseCents int64, markupPercent, discountPercent int) (Quote, error) {
	if baseCents < 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "base price cannot be negative")
	}
	if markupPercent < 0 || markupPercent > 200 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "markup percent out of range")
	}
	if discountPercent < 0 || discountPercent > 100 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "discount percent out of range")
	}

	base := decimal.NewFromInt(baseCents)

	markupFactor := decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(markupPercent)).Div(oneHundred))
	markedUp := base.Mul(markupFactor).Round(0)

	discount := markedUp.Mul(decimal.NewFromInt(int64(discountPercent))).Div(oneHundred).Round(0)
	total := markedUp.Sub(discount)

	return Quote{
		BaseCents:     baseCents,
		MarkedUpCents: markedUp.IntPart(),
		DiscountCents: discount.IntPart(),
		TotalCents:    total.IntPart(),
		MarkupPercent: markupPercent,
		DiscountPct:   discountPercent,
	}, nil
}
