package domain

import (
	"context"
	"time"
)

// InventoryLedger is the per-room, per-night availability table. Hold is the
// only conditional mutation; Release is its unconditional inverse.
type InventoryLedger interface {
	// Hold atomically decrements available_rooms for every night in the
	// range, or none at all. applied=false means at least one night could
	// not satisfy the guard (or has no ledger row) and nothing was changed.
	Hold(ctx context.Context, roomID int64, stay StayRange, qty int) (applied bool, err error)

	// Release increments available_rooms for every night in the range.
	// Callers must track outstanding holds; releasing twice double-credits.
	Release(ctx context.Context, roomID int64, stay StayRange, qty int) error

	// MinAvailable returns the minimum available_rooms across the range.
	// Nights with no ledger row count as zero.
	MinAvailable(ctx context.Context, roomID int64, stay StayRange) (int, error)

	// CandidateRooms lists rooms of the type whose per-room minimum
	// availability over the range is >= 1 and whose capacity fits
	// minCapacity guests, ordered by room number for determinism.
	CandidateRooms(ctx context.Context, roomTypeID int64, stay StayRange, minCapacity int) ([]RoomCandidate, error)

	// NightlyRates returns the ledger rows for the range in date order.
	NightlyRates(ctx context.Context, roomID int64, stay StayRange) ([]InventoryDay, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b Booking, details []BookingDetail) error
	Get(ctx context.Context, id string) (Booking, error)
	Details(ctx context.Context, bookingID string) ([]BookingDetail, error)

	// FindLiveCreated returns the account's unexpired CREATED booking for
	// the hotel, or nil. Backs the double-submit guard.
	FindLiveCreated(ctx context.Context, accountID, hotelID int64, now time.Time) (*Booking, error)

	// TransitionStatus conditionally moves a booking from any of the given
	// states to the target state. ok=false means no row matched, i.e. the
	// booking was missing or in a disallowed state.
	TransitionStatus(ctx context.Context, id string, from []BookingStatus, to BookingStatus) (ok bool, err error)

	// ReplaceDetails swaps the detail rows for a booking in one transaction
	// (date changes release old holds and acquire new ones).
	ReplaceDetails(ctx context.Context, bookingID string, details []BookingDetail) error

	UpdateTotals(ctx context.Context, id string, subtotal, tax, discount, total int64) error

	// ListExpired returns CREATED bookings past their expiry, oldest first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Booking, error)
}

type RoomCatalog interface {
	RoomByID(ctx context.Context, roomID int64) (RoomCandidate, error)
	RoomsOfType(ctx context.Context, roomTypeID int64) ([]RoomCandidate, error)
}

// PartnerClient is the payment/discount provider. Only the effects the core
// consumes are modeled; gateway integration itself lives elsewhere.
type PartnerClient interface {
	ValidateDiscount(ctx context.Context, code string, subtotal int64, hotelID, roomID int64, nights int) (DiscountResult, error)
	MarkPaymentFailed(ctx context.Context, bookingID string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
