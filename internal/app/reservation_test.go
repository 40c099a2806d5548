package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomstay/internal/app"
	"roomstay/internal/domain"
)

type fixture struct {
	ledger   *fakeLedger
	bookings *fakeBookings
	partner  *fakePartner
	cache    *fakeCache
	svc      *app.ReservationService
}

func newFixture(t *testing.T, opts ...app.ReservationOption) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   newFakeLedger(),
		bookings: newFakeBookings(),
		partner:  &fakePartner{},
		cache:    &fakeCache{},
	}
	alloc := app.NewAllocator(f.ledger)
	pricing := app.NewPricingEngine(f.ledger, 0.10)
	f.svc = app.NewReservationService(f.bookings, f.ledger, alloc, pricing, f.partner, f.cache, opts...)
	return f
}

func (f *fixture) seedRooms(stay domain.StayRange, n int, avail int) {
	for i := int64(1); i <= int64(n); i++ {
		f.ledger.addRoom(domain.RoomCandidate{ID: i, RoomTypeID: 10, HotelID: 1, Capacity: 2, RoomNumber: int(100 + i)},
			stay, avail, 1_000_000, 10)
	}
}

func createInput(stay domain.StayRange, rooms, guests int) app.CreateBookingInput {
	return app.CreateBookingInput{
		AccountID:  42,
		HotelID:    1,
		RoomTypeID: 10,
		Checkin:    stay.Checkin,
		Checkout:   stay.Checkout,
		Rooms:      rooms,
		Guests:     guests,
	}
}

func TestCreatePersistsBookingAndHolds(t *testing.T) {
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, app.WithHoldTTL(10*time.Minute), app.WithClock(func() time.Time { return base }))
	stay := mustStay(t, "2026-10-10", "2026-10-13")
	f.seedRooms(stay, 3, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 2, 4))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCreated, b.Status)
	assert.Equal(t, int64(5_400_000), b.Subtotal)
	assert.Equal(t, int64(540_000), b.TaxAmount)
	assert.Equal(t, int64(5_940_000), b.TotalAmount)
	assert.Equal(t, base.Add(10*time.Minute), b.ExpiresAt)

	details, err := f.bookings.Details(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, int64(900_000), details[0].PricePerNight)
	assert.Equal(t, 2, details[0].Guests)

	// the two lowest room numbers were held for all three nights
	for _, d := range details {
		for _, night := range stay.Dates() {
			assert.Equal(t, 0, f.ledger.avail(d.RoomID, night))
		}
	}
}

func TestCreateIdempotentPerLiveBooking(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 2, 1)

	first, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)
	callsAfterFirst := f.ledger.holdCalls

	second, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, callsAfterFirst, f.ledger.holdCalls, "retry must not touch the ledger")
}

func TestCreateInsufficientInventory(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)

	_, err := f.svc.Create(context.Background(), createInput(stay, 2, 4))
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	for _, night := range stay.Dates() {
		assert.Equal(t, 1, f.ledger.avail(1, night))
	}
}

func TestCreateReleasesHoldsWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)
	f.bookings.createErr = errors.New("db down")

	_, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.Error(t, err)
	for _, night := range stay.Dates() {
		assert.Equal(t, 1, f.ledger.avail(1, night))
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")

	_, err := f.svc.Create(context.Background(), createInput(stay, 0, 2))
	assert.ErrorIs(t, err, domain.ErrValidation)

	in := createInput(stay, 1, 2)
	in.Checkout = in.Checkin.AddDate(0, 0, -1)
	_, err = f.svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestConfirmMovesToPendingAndAppliesDiscount(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-13")
	f.seedRooms(stay, 1, 1)
	f.partner.discount = domain.DiscountResult{Valid: true, Amount: 100_000}

	b, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)

	view, err := f.svc.Confirm(context.Background(), b.ID, 42, "card", "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingConfirmation, view.Status)
	assert.Equal(t, int64(100_000), view.DiscountAmount)
	assert.Equal(t, int64(2_870_000), view.TotalAmount)

	// re-confirming a pending booking is a harmless no-op
	again, err := f.svc.Confirm(context.Background(), b.ID, 42, "card", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingConfirmation, again.Status)
}

func TestConfirmOwnershipAndExpiry(t *testing.T) {
	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, app.WithHoldTTL(5*time.Minute), app.WithClock(func() time.Time { return clock }))
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), b.ID, 99, "card", "")
	assert.ErrorIs(t, err, domain.ErrOwnershipMismatch)

	clock = clock.Add(6 * time.Minute)
	_, err = f.svc.Confirm(context.Background(), b.ID, 42, "card", "")
	assert.ErrorIs(t, err, domain.ErrBookingExpired)
}

func TestCancelReleasesHoldsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-13")
	f.seedRooms(stay, 2, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 2, 4))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), b.ID, 42))
	assert.Equal(t, domain.StatusCancelled, f.bookings.status(b.ID))
	for _, id := range []int64{1, 2} {
		for _, night := range stay.Dates() {
			assert.Equal(t, 1, f.ledger.avail(id, night))
		}
	}
	assert.Contains(t, f.partner.failedIDs, b.ID)

	// second cancel loses the status race and must not double-credit
	err = f.svc.Cancel(context.Background(), b.ID, 42)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	for _, night := range stay.Dates() {
		assert.Equal(t, 1, f.ledger.avail(1, night))
	}
}

func TestCancelGuards(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)

	err = f.svc.Cancel(context.Background(), b.ID, 99)
	assert.ErrorIs(t, err, domain.ErrOwnershipMismatch)

	err = f.svc.Cancel(context.Background(), "no-such-id", 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// walk the booking to COMPLETED, then cancelling is a state error
	_, err = f.svc.Confirm(context.Background(), b.ID, 42, "card", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkConfirmed(context.Background(), b.ID))
	require.NoError(t, f.svc.CheckIn(context.Background(), b.ID))
	require.NoError(t, f.svc.CheckOut(context.Background(), b.ID))
	require.NoError(t, f.svc.Complete(context.Background(), b.ID))

	err = f.svc.Cancel(context.Background(), b.ID, 42)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	for _, night := range stay.Dates() {
		assert.Equal(t, 0, f.ledger.avail(1, night), "terminal cancel must not touch inventory")
	}
}

func TestHandlePaymentEvent(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)

	require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), b.ID, true))
	assert.Equal(t, domain.StatusPendingConfirmation, f.bookings.status(b.ID))

	// duplicate success events from the provider are absorbed
	require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), b.ID, true))

	require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), b.ID, false))
	assert.Equal(t, domain.StatusCancelled, f.bookings.status(b.ID))
	for _, night := range stay.Dates() {
		assert.Equal(t, 1, f.ledger.avail(1, night))
	}
}

func TestChangeDatesMovesHolds(t *testing.T) {
	f := newFixture(t)
	oldStay := mustStay(t, "2026-10-10", "2026-10-13")
	newStay := mustStay(t, "2026-10-20", "2026-10-22")
	f.seedRooms(oldStay, 1, 1)
	for _, night := range newStay.Dates() {
		f.ledger.inv[1][dkey(night)] = &domain.InventoryDay{
			RoomID: 1, Date: night, BasePrice: 1_000_000, DiscountPercent: 10,
			AvailableRooms: 1, Refundable: true,
		}
	}

	b, err := f.svc.Create(context.Background(), createInput(oldStay, 1, 2))
	require.NoError(t, err)

	updated, err := f.svc.ChangeDates(context.Background(), b.ID, 42, newStay.Checkin, newStay.Checkout)
	require.NoError(t, err)
	assert.Equal(t, int64(1_800_000), updated.Subtotal)
	assert.Equal(t, int64(1_980_000), updated.TotalAmount)

	for _, night := range oldStay.Dates() {
		assert.Equal(t, 1, f.ledger.avail(1, night), "old nights freed")
	}
	for _, night := range newStay.Dates() {
		assert.Equal(t, 0, f.ledger.avail(1, night), "new nights held")
	}

	details, err := f.bookings.Details(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].Checkin.Equal(newStay.Checkin))
	assert.Equal(t, 2, details[0].Nights)
}

func TestChangeDatesRestoresOldHoldsOnFailure(t *testing.T) {
	f := newFixture(t)
	oldStay := mustStay(t, "2026-10-10", "2026-10-13")
	newStay := mustStay(t, "2026-10-20", "2026-10-22")
	f.seedRooms(oldStay, 1, 1)
	// no ledger rows exist for the new range, so the new hold must fail

	b, err := f.svc.Create(context.Background(), createInput(oldStay, 1, 2))
	require.NoError(t, err)

	_, err = f.svc.ChangeDates(context.Background(), b.ID, 42, newStay.Checkin, newStay.Checkout)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)

	// the old holds were restored: the booking still owns its nights
	for _, night := range oldStay.Dates() {
		assert.Equal(t, 0, f.ledger.avail(1, night))
	}
	details, err := f.bookings.Details(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, details[0].Checkin.Equal(oldStay.Checkin), "details unchanged")
}

func TestChangeDatesStateGuard(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(context.Background(), b.ID, 42))

	_, err = f.svc.ChangeDates(context.Background(), b.ID, 42, stay.Checkin.AddDate(0, 0, 5), stay.Checkout.AddDate(0, 0, 5))
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestExpireReapsOnlyExpiredCreated(t *testing.T) {
	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, app.WithHoldTTL(5*time.Minute), app.WithClock(func() time.Time { return clock }))
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)

	// still inside the TTL: no-op
	require.NoError(t, f.svc.Expire(context.Background(), b))
	assert.Equal(t, domain.StatusCreated, f.bookings.status(b.ID))

	clock = clock.Add(10 * time.Minute)
	require.NoError(t, f.svc.Expire(context.Background(), b))
	assert.Equal(t, domain.StatusCancelled, f.bookings.status(b.ID))
	for _, night := range stay.Dates() {
		assert.Equal(t, 1, f.ledger.avail(1, night))
	}

	// a second reaper losing the race is silent
	require.NoError(t, f.svc.Expire(context.Background(), b))
	for _, night := range stay.Dates() {
		assert.Equal(t, 1, f.ledger.avail(1, night))
	}
}

func TestOperationalTransitionsFollowStateMachine(t *testing.T) {
	f := newFixture(t)
	stay := mustStay(t, "2026-10-10", "2026-10-12")
	f.seedRooms(stay, 1, 1)

	b, err := f.svc.Create(context.Background(), createInput(stay, 1, 2))
	require.NoError(t, err)

	// CREATED cannot check in
	assert.ErrorIs(t, f.svc.CheckIn(context.Background(), b.ID), domain.ErrInvalidStateTransition)

	_, err = f.svc.Confirm(context.Background(), b.ID, 42, "card", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkConfirmed(context.Background(), b.ID))
	require.NoError(t, f.svc.CheckIn(context.Background(), b.ID))

	// checked-in guests may complete without an explicit check-out
	require.NoError(t, f.svc.Complete(context.Background(), b.ID))
	assert.Equal(t, domain.StatusCompleted, f.bookings.status(b.ID))

	assert.ErrorIs(t, f.svc.CheckOut(context.Background(), b.ID), domain.ErrInvalidStateTransition)
}
