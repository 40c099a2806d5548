package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"roomstay/internal/domain"
)

// ---- in-memory ledger ----
//
// The mutex stands in for the database's row-level atomicity: Hold checks
// the guard and decrements the whole range under one critical section, the
// same all-or-nothing the SQL transaction gives the real repo.

type fakeLedger struct {
	mu    sync.Mutex
	rooms []domain.RoomCandidate
	inv   map[int64]map[string]*domain.InventoryDay // room -> date -> row

	holdErr    error // injected fault
	holdCalls  int
	releaseErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{inv: map[int64]map[string]*domain.InventoryDay{}}
}

func dkey(t time.Time) string { return t.Format("2006-01-02") }

func (f *fakeLedger) addRoom(c domain.RoomCandidate, stay domain.StayRange, avail int, price int64, pct float64) {
	f.rooms = append(f.rooms, c)
	m := f.inv[c.ID]
	if m == nil {
		m = map[string]*domain.InventoryDay{}
		f.inv[c.ID] = m
	}
	for _, d := range stay.Dates() {
		m[dkey(d)] = &domain.InventoryDay{
			RoomID: c.ID, Date: d, BasePrice: price, DiscountPercent: pct,
			AvailableRooms: avail, Refundable: true,
		}
	}
}

func (f *fakeLedger) avail(roomID int64, day time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.inv[roomID][dkey(day)]; ok {
		return row.AvailableRooms
	}
	return 0
}

func (f *fakeLedger) Hold(ctx context.Context, roomID int64, stay domain.StayRange, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdCalls++
	if f.holdErr != nil {
		return false, f.holdErr
	}
	rows := f.inv[roomID]
	for _, d := range stay.Dates() {
		row, ok := rows[dkey(d)]
		if !ok || row.AvailableRooms < qty {
			return false, nil
		}
	}
	for _, d := range stay.Dates() {
		rows[dkey(d)].AvailableRooms -= qty
	}
	return true, nil
}

func (f *fakeLedger) Release(ctx context.Context, roomID int64, stay domain.StayRange, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	for _, d := range stay.Dates() {
		if row, ok := f.inv[roomID][dkey(d)]; ok {
			row.AvailableRooms += qty
		}
	}
	return nil
}

func (f *fakeLedger) MinAvailable(ctx context.Context, roomID int64, stay domain.StayRange) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	min := -1
	for _, d := range stay.Dates() {
		row, ok := f.inv[roomID][dkey(d)]
		if !ok {
			return 0, nil
		}
		if min == -1 || row.AvailableRooms < min {
			min = row.AvailableRooms
		}
	}
	if min < 0 {
		min = 0
	}
	return min, nil
}

func (f *fakeLedger) CandidateRooms(ctx context.Context, roomTypeID int64, stay domain.StayRange, minCapacity int) ([]domain.RoomCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RoomCandidate
	for _, r := range f.rooms {
		if r.RoomTypeID != roomTypeID || r.Capacity < minCapacity {
			continue
		}
		ok := true
		for _, d := range stay.Dates() {
			row, exists := f.inv[r.ID][dkey(d)]
			if !exists || row.AvailableRooms < 1 {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	// rooms are registered in room-number order in the tests
	return out, nil
}

func (f *fakeLedger) NightlyRates(ctx context.Context, roomID int64, stay domain.StayRange) ([]domain.InventoryDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.InventoryDay
	for _, d := range stay.Dates() {
		if row, ok := f.inv[roomID][dkey(d)]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

// ---- in-memory booking repository ----

type fakeBookings struct {
	mu       sync.Mutex
	bookings map[string]domain.Booking
	details  map[string][]domain.BookingDetail

	createErr  error
	replaceErr error
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{
		bookings: map[string]domain.Booking{},
		details:  map[string][]domain.BookingDetail{},
	}
}

func (f *fakeBookings) Create(ctx context.Context, b domain.Booking, details []domain.BookingDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.bookings[b.ID] = b
	f.details[b.ID] = append([]domain.BookingDetail(nil), details...)
	return nil
}

func (f *fakeBookings) Get(ctx context.Context, id string) (domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) Details(ctx context.Context, id string) ([]domain.BookingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BookingDetail(nil), f.details[id]...), nil
}

func (f *fakeBookings) FindLiveCreated(ctx context.Context, accountID, hotelID int64, now time.Time) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.AccountID == accountID && b.HotelID == hotelID &&
			b.Status == domain.StatusCreated && b.ExpiresAt.After(now) {
			bc := b
			return &bc, nil
		}
	}
	return nil, nil
}

func (f *fakeBookings) TransitionStatus(ctx context.Context, id string, from []domain.BookingStatus, to domain.BookingStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			f.bookings[id] = b
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookings) ReplaceDetails(ctx context.Context, id string, details []domain.BookingDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.details[id] = append([]domain.BookingDetail(nil), details...)
	return nil
}

func (f *fakeBookings) UpdateTotals(ctx context.Context, id string, subtotal, tax, discount, total int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Subtotal, b.TaxAmount, b.DiscountAmount, b.TotalAmount = subtotal, tax, discount, total
	f.bookings[id] = b
	return nil
}

func (f *fakeBookings) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.Expired(now) && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) status(id string) domain.BookingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings[id].Status
}

// ---- partner & cache ----

type fakePartner struct {
	mu          sync.Mutex
	discount    domain.DiscountResult
	discountErr error
	failedIDs   []string
}

func (f *fakePartner) ValidateDiscount(ctx context.Context, code string, subtotal int64, hotelID, roomID int64, nights int) (domain.DiscountResult, error) {
	if f.discountErr != nil {
		return domain.DiscountResult{}, f.discountErr
	}
	return f.discount, nil
}

func (f *fakePartner) MarkPaymentFailed(ctx context.Context, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedIDs = append(f.failedIDs, bookingID)
	return nil
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.BookingView:
		*d = v.(domain.BookingView)
	case *domain.Quote:
		*d = v.(domain.Quote)
	default:
		return false, errors.New("unsupported cache type")
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}
