package domain_test

import (
	"testing"
	"time"

	"roomstay/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStayRange_Nights(t *testing.T) {
	s, err := domain.NewStayRange(date(2026, 3, 10), date(2026, 3, 13))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if s.Nights() != 3 {
		t.Fatalf("nights = %d, want 3", s.Nights())
	}
	if got := len(s.Dates()); got != 3 {
		t.Fatalf("dates = %d, want 3", got)
	}
}

func TestStayRange_SameDayCountsOneNight(t *testing.T) {
	s, err := domain.NewStayRange(date(2026, 3, 10), date(2026, 3, 10))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if s.Nights() != 1 {
		t.Fatalf("nights = %d, want 1", s.Nights())
	}
}

func TestStayRange_CheckoutBeforeCheckin(t *testing.T) {
	if _, err := domain.NewStayRange(date(2026, 3, 10), date(2026, 3, 9)); err != domain.ErrInvalidDateRange {
		t.Fatalf("err = %v, want ErrInvalidDateRange", err)
	}
}

func TestBookingStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to domain.BookingStatus
		ok       bool
	}{
		{domain.StatusCreated, domain.StatusPendingConfirmation, true},
		{domain.StatusCreated, domain.StatusCancelled, true},
		{domain.StatusPendingConfirmation, domain.StatusConfirmed, true},
		{domain.StatusConfirmed, domain.StatusCheckedIn, true},
		{domain.StatusCheckedIn, domain.StatusCheckedOut, true},
		{domain.StatusCheckedOut, domain.StatusCompleted, true},
		{domain.StatusCompleted, domain.StatusCancelled, false},
		{domain.StatusCheckedOut, domain.StatusCancelled, false},
		{domain.StatusCancelled, domain.StatusCreated, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestBooking_Expired(t *testing.T) {
	now := time.Now().UTC()
	b := domain.Booking{Status: domain.StatusCreated, ExpiresAt: now.Add(-time.Minute)}
	if !b.Expired(now) {
		t.Fatalf("expected expired")
	}
	b.Status = domain.StatusPendingConfirmation
	if b.Expired(now) {
		t.Fatalf("non-CREATED bookings never expire")
	}
}
