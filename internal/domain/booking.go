package domain

import "time"

type BookingStatus string

const (
	StatusCreated             BookingStatus = "CREATED"
	StatusPendingConfirmation BookingStatus = "PENDING_CONFIRMATION"
	StatusConfirmed           BookingStatus = "CONFIRMED"
	StatusCheckedIn           BookingStatus = "CHECKED_IN"
	StatusCheckedOut          BookingStatus = "CHECKED_OUT"
	StatusCompleted           BookingStatus = "COMPLETED"
	StatusCancelled           BookingStatus = "CANCELLED"
)

// transitions is the full lifecycle graph. CANCELLED is reachable from every
// pre-checkout state; CHECKED_OUT and COMPLETED are terminal for cancellation.
var transitions = map[BookingStatus][]BookingStatus{
	StatusCreated:             {StatusPendingConfirmation, StatusCancelled},
	StatusPendingConfirmation: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:           {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn:           {StatusCheckedOut, StatusCompleted},
	StatusCheckedOut:          {StatusCompleted},
}

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Cancellable reports whether a booking in this state may still be cancelled.
// Holds outstanding in any of these states must be released on cancellation.
func (s BookingStatus) Cancellable() bool {
	return s == StatusCreated || s == StatusPendingConfirmation || s == StatusConfirmed
}

// CancellableStatuses is the conditional-update guard set used by repositories.
var CancellableStatuses = []BookingStatus{StatusCreated, StatusPendingConfirmation, StatusConfirmed}

type Booking struct {
	ID              string
	AccountID       int64
	HotelID         int64
	Status          BookingStatus
	Subtotal        int64
	TaxAmount       int64
	DiscountAmount  int64
	TotalAmount     int64
	SpecialRequests string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Expired reports whether an unconfirmed hold has outlived its TTL.
// Only CREATED bookings expire; everything past payment keeps its inventory.
func (b Booking) Expired(now time.Time) bool {
	return b.Status == StatusCreated && now.After(b.ExpiresAt)
}

type BookingDetail struct {
	ID            int64
	BookingID     string
	RoomID        int64
	Checkin       time.Time
	Checkout      time.Time
	Guests        int
	PricePerNight int64
	Nights        int
	TotalPrice    int64
}

type BookingView struct {
	Booking
	Details []BookingDetail
}
