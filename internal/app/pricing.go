package app

import (
	"context"
	"fmt"
	"math"

	"roomstay/internal/domain"
)

// PricingEngine turns ledger rows into a price breakdown. Amounts are
// integer minor units; each night is rounded individually before summing.
type PricingEngine struct {
	ledger  domain.InventoryLedger
	taxRate float64
}

func NewPricingEngine(ledger domain.InventoryLedger, taxRate float64) *PricingEngine {
	return &PricingEngine{ledger: ledger, taxRate: taxRate}
}

// Quote prices one room for the stay: per-night base net of the per-night
// discount, then the fixed tax rate on the discounted subtotal. Coupon
// discounts are applied later at confirmation and never re-enter the tax
// base. A stay is only quotable when the ledger has a row for every night;
// missing rows mean the price schedule was not generated yet and the caller
// must trigger generation before retrying.
func (p *PricingEngine) Quote(ctx context.Context, roomID int64, stay domain.StayRange) (domain.Quote, error) {
	days, err := p.ledger.NightlyRates(ctx, roomID, stay)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("nightly rates for room %d: %w", roomID, err)
	}
	if len(days) < stay.Nights() {
		return domain.Quote{}, fmt.Errorf("price schedule missing for room %d: %w", roomID, domain.ErrNotFound)
	}

	var subtotal int64
	refundable, payLater := true, true
	for _, d := range days {
		night := d.BasePrice - int64(math.Round(float64(d.BasePrice)*d.DiscountPercent/100))
		subtotal += night
		refundable = refundable && d.Refundable
		payLater = payLater && d.PayLater
	}
	tax := int64(math.Round(float64(subtotal) * p.taxRate))

	return domain.Quote{
		RoomID:     roomID,
		Nights:     stay.Nights(),
		Subtotal:   subtotal,
		TaxAmount:  tax,
		Total:      subtotal + tax,
		Refundable: refundable,
		PayLater:   payLater,
	}, nil
}

// QuoteRooms scales a single-room quote linearly by room count. All rooms of
// one type within a booking are priced off the first room even when sibling
// rooms carry slightly different nightly rates in the ledger; this is a
// known approximation inherited from the pricing rules, not a bug.
func (p *PricingEngine) QuoteRooms(ctx context.Context, roomID int64, stay domain.StayRange, rooms int) (domain.Quote, error) {
	if rooms < 1 {
		return domain.Quote{}, fmt.Errorf("room count %d: %w", rooms, domain.ErrValidation)
	}
	q, err := p.Quote(ctx, roomID, stay)
	if err != nil {
		return domain.Quote{}, err
	}
	n := int64(rooms)
	q.Subtotal *= n
	q.TaxAmount *= n
	q.Total *= n
	return q, nil
}
