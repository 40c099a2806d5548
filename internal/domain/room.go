package domain

import "time"

// InventoryDay is one ledger row: price and remaining stock for one room
// on one calendar night. available_rooms never goes below zero; the only
// writers are the guarded decrement and its compensating increment.
type InventoryDay struct {
	RoomID          int64
	Date            time.Time
	BasePrice       int64
	DiscountPercent float64
	AvailableRooms  int
	Refundable      bool
	PayLater        bool
}

// RoomCandidate is immutable catalog data used for selection.
type RoomCandidate struct {
	ID         int64
	RoomTypeID int64
	HotelID    int64
	Capacity   int
	RoomNumber int
}

// StayRange is a half-open [Checkin, Checkout) range of hotel nights,
// normalized to UTC midnight. A same-day stay counts as one night.
type StayRange struct {
	Checkin  time.Time
	Checkout time.Time
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NewStayRange(checkin, checkout time.Time) (StayRange, error) {
	in, out := midnightUTC(checkin), midnightUTC(checkout)
	if in.IsZero() || out.Before(in) {
		return StayRange{}, ErrInvalidDateRange
	}
	if out.Equal(in) {
		// day-use stay: charge and hold a single night
		out = in.AddDate(0, 0, 1)
	}
	return StayRange{Checkin: in, Checkout: out}, nil
}

func (s StayRange) Nights() int {
	return int(s.Checkout.Sub(s.Checkin).Hours() / 24)
}

// Dates enumerates the nights in the range, checkin first.
func (s StayRange) Dates() []time.Time {
	out := make([]time.Time, 0, s.Nights())
	for d := s.Checkin; d.Before(s.Checkout); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (s StayRange) Equal(o StayRange) bool {
	return s.Checkin.Equal(o.Checkin) && s.Checkout.Equal(o.Checkout)
}

// Quote is a price breakdown for one room over a stay range. Amounts are
// integer minor units. DiscountAmount (coupons) is applied at confirmation
// and is not part of the tax base.
type Quote struct {
	RoomID     int64
	Nights     int
	Subtotal   int64
	TaxAmount  int64
	Total      int64
	Refundable bool
	PayLater   bool
}

type DiscountResult struct {
	Valid      bool
	DiscountID *int64
	Amount     int64
}
