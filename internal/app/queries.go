package app

import (
	"context"
	"fmt"
	"time"

	"roomstay/internal/domain"
)

// QueryService serves the read side: booking views, quotes and availability,
// all cache-fronted. Mutations evict booking views through the shared cache.
type QueryService struct {
	bookings domain.BookingRepository
	ledger   domain.InventoryLedger
	pricing  *PricingEngine
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(bookings domain.BookingRepository, ledger domain.InventoryLedger, pricing *PricingEngine, cache domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{bookings: bookings, ledger: ledger, pricing: pricing, cache: cache, cacheTTL: ttl}
}

func (s *QueryService) GetBooking(ctx context.Context, id string, accountID int64) (domain.BookingView, error) {
	key := "booking:" + id
	var v domain.BookingView
	if ok, _ := s.cache.Get(ctx, key, &v); ok {
		if v.AccountID != accountID {
			return domain.BookingView{}, domain.ErrOwnershipMismatch
		}
		return v, nil
	}

	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return domain.BookingView{}, err
	}
	details, err := s.bookings.Details(ctx, id)
	if err != nil {
		return domain.BookingView{}, fmt.Errorf("booking details: %w", err)
	}
	v = domain.BookingView{Booking: b, Details: details}
	_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))

	if v.AccountID != accountID {
		return domain.BookingView{}, domain.ErrOwnershipMismatch
	}
	return v, nil
}

func (s *QueryService) QuoteRoom(ctx context.Context, roomID int64, checkin, checkout time.Time, rooms int) (domain.Quote, error) {
	stay, err := domain.NewStayRange(checkin, checkout)
	if err != nil {
		return domain.Quote{}, err
	}
	key := fmt.Sprintf("quote:%d:%s:%s:%d", roomID,
		stay.Checkin.Format("2006-01-02"), stay.Checkout.Format("2006-01-02"), rooms)
	var q domain.Quote
	if ok, _ := s.cache.Get(ctx, key, &q); ok {
		return q, nil
	}
	q, err = s.pricing.QuoteRooms(ctx, roomID, stay, rooms)
	if err != nil {
		return domain.Quote{}, err
	}
	_ = s.cache.Set(ctx, key, q, int(s.cacheTTL.Seconds()))
	return q, nil
}

// Availability reports how many rooms of the type can be booked over the
// range: the count of rooms with at least one free unit on every night.
// Quotes and availability tolerate short staleness; booking correctness
// never depends on them, only on the guarded decrement.
func (s *QueryService) Availability(ctx context.Context, roomTypeID int64, checkin, checkout time.Time, guests int) (int, error) {
	stay, err := domain.NewStayRange(checkin, checkout)
	if err != nil {
		return 0, err
	}
	if guests < 1 {
		guests = 1
	}
	cands, err := s.ledger.CandidateRooms(ctx, roomTypeID, stay, guests)
	if err != nil {
		return 0, err
	}
	return len(cands), nil
}
