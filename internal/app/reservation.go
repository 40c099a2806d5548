package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"roomstay/internal/adapters/observability"
	"roomstay/internal/domain"
)

const defaultHoldTTL = 15 * time.Minute

// ReservationService owns the booking lifecycle and orchestrates the
// allocator with compensating rollback. Compensation is collected on the
// forward pass and unwound on any failure, including panics after holds
// were taken; already-persisted BookingDetail rows are the source of truth
// for what to release, the in-memory hold list the fallback before any rows
// exist.
type ReservationService struct {
	bookings domain.BookingRepository
	ledger   domain.InventoryLedger
	alloc    *Allocator
	pricing  *PricingEngine
	partner  domain.PartnerClient
	cache    domain.Cache
	holdTTL  time.Duration
	now      func() time.Time
}

type ReservationOption func(*ReservationService)

func WithHoldTTL(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithClock overrides the time source, for expiry tests.
func WithClock(fn func() time.Time) ReservationOption {
	return func(s *ReservationService) { s.now = fn }
}

func NewReservationService(
	bookings domain.BookingRepository,
	ledger domain.InventoryLedger,
	alloc *Allocator,
	pricing *PricingEngine,
	partner domain.PartnerClient,
	cache domain.Cache,
	opts ...ReservationOption,
) *ReservationService {
	s := &ReservationService{
		bookings: bookings,
		ledger:   ledger,
		alloc:    alloc,
		pricing:  pricing,
		partner:  partner,
		cache:    cache,
		holdTTL:  defaultHoldTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateBookingInput struct {
	AccountID       int64
	HotelID         int64
	RoomTypeID      int64
	Checkin         time.Time
	Checkout        time.Time
	Rooms           int
	Guests          int
	SpecialRequests string
}

// Create places an all-or-nothing hold on N rooms and persists the booking
// in CREATED state. If the account already has a live unexpired CREATED
// booking for the hotel it is returned as-is, so page reloads cannot
// double-hold inventory.
func (s *ReservationService) Create(ctx context.Context, in CreateBookingInput) (bk domain.Booking, err error) {
	stay, err := domain.NewStayRange(in.Checkin, in.Checkout)
	if err != nil {
		return domain.Booking{}, err
	}
	if in.Rooms < 1 {
		return domain.Booking{}, fmt.Errorf("rooms must be >= 1: %w", domain.ErrValidation)
	}
	if in.Guests < 1 {
		return domain.Booking{}, fmt.Errorf("guests must be >= 1: %w", domain.ErrValidation)
	}

	now := s.now()
	if existing, err := s.bookings.FindLiveCreated(ctx, in.AccountID, in.HotelID, now); err != nil {
		return domain.Booking{}, fmt.Errorf("find live booking: %w", err)
	} else if existing != nil {
		return *existing, nil
	}

	guestsPerRoom := (in.Guests + in.Rooms - 1) / in.Rooms
	held, err := s.alloc.Reserve(ctx, in.RoomTypeID, stay, in.Rooms, guestsPerRoom)
	if err != nil {
		return domain.Booking{}, err
	}

	// Every exit past this point without a committed booking must give the
	// holds back, including unexpected panics.
	committed := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("create booking: unexpected fault: %v", r)
		}
		if committed || err == nil {
			return
		}
		if relErr := s.alloc.ReleaseRooms(ctx, roomIDs(held), stay); relErr != nil {
			log.Error().Err(relErr).Bool("alert", true).
				Msg("create rollback failed, ledger may be inconsistent")
		}
	}()

	quote, err := s.pricing.Quote(ctx, held[0].ID, stay)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("quote: %w", err)
	}

	n := int64(len(held))
	b := domain.Booking{
		ID:              uuid.NewString(),
		AccountID:       in.AccountID,
		HotelID:         in.HotelID,
		Status:          domain.StatusCreated,
		Subtotal:        quote.Subtotal * n,
		TaxAmount:       quote.TaxAmount * n,
		TotalAmount:     quote.Total * n,
		SpecialRequests: in.SpecialRequests,
		ExpiresAt:       now.Add(s.holdTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	details := make([]domain.BookingDetail, len(held))
	for i, room := range held {
		details[i] = domain.BookingDetail{
			BookingID:     b.ID,
			RoomID:        room.ID,
			Checkin:       stay.Checkin,
			Checkout:      stay.Checkout,
			Guests:        guestsPerRoom,
			PricePerNight: quote.Subtotal / int64(quote.Nights),
			Nights:        quote.Nights,
			TotalPrice:    quote.Subtotal,
		}
	}
	if err := s.bookings.Create(ctx, b, details); err != nil {
		return domain.Booking{}, fmt.Errorf("persist booking: %w", err)
	}
	committed = true

	observability.ObserveTransition(string(domain.StatusCreated))
	log.Info().Str("booking_id", b.ID).Int64("account_id", b.AccountID).
		Int("rooms", len(held)).Int("nights", quote.Nights).
		Time("expires_at", b.ExpiresAt).Msg("booking created")
	return b, nil
}

// Confirm validates an optional discount code and moves CREATED to
// PENDING_CONFIRMATION. Re-confirming an already pending booking with
// unchanged dates is a no-op. Expired holds are never confirmable.
func (s *ReservationService) Confirm(ctx context.Context, bookingID string, accountID int64, paymentMethod, discountCode string) (domain.BookingView, error) {
	b, details, err := s.load(ctx, bookingID, accountID)
	if err != nil {
		return domain.BookingView{}, err
	}
	if b.Expired(s.now()) {
		return domain.BookingView{}, domain.ErrBookingExpired
	}
	if b.Status == domain.StatusPendingConfirmation {
		return domain.BookingView{Booking: b, Details: details}, nil
	}
	if b.Status != domain.StatusCreated {
		return domain.BookingView{}, domain.ErrInvalidStateTransition
	}
	if len(details) == 0 {
		return domain.BookingView{}, fmt.Errorf("booking %s has no held rooms: %w", bookingID, domain.ErrNotFound)
	}

	// Re-assert the existing holds: every night of every held room must
	// still have a ledger row covering the stay.
	stay := stayOf(details[0])
	for _, d := range details {
		rates, err := s.ledger.NightlyRates(ctx, d.RoomID, stay)
		if err != nil {
			return domain.BookingView{}, fmt.Errorf("re-assert hold room %d: %w", d.RoomID, err)
		}
		if len(rates) < d.Nights {
			return domain.BookingView{}, fmt.Errorf("ledger rows missing for held room %d: %w", d.RoomID, domain.ErrInsufficientInventory)
		}
	}

	if discountCode != "" {
		res, err := s.partner.ValidateDiscount(ctx, discountCode, b.Subtotal, b.HotelID, details[0].RoomID, details[0].Nights)
		if err != nil {
			return domain.BookingView{}, fmt.Errorf("validate discount: %w", err)
		}
		if res.Valid && res.Amount > 0 {
			total := b.Subtotal + b.TaxAmount - res.Amount
			if total < 0 {
				total = 0
			}
			if err := s.bookings.UpdateTotals(ctx, b.ID, b.Subtotal, b.TaxAmount, res.Amount, total); err != nil {
				return domain.BookingView{}, fmt.Errorf("apply discount: %w", err)
			}
			b.DiscountAmount, b.TotalAmount = res.Amount, total
		}
	}

	ok, err := s.bookings.TransitionStatus(ctx, b.ID, []domain.BookingStatus{domain.StatusCreated}, domain.StatusPendingConfirmation)
	if err != nil {
		return domain.BookingView{}, fmt.Errorf("confirm transition: %w", err)
	}
	if !ok {
		return domain.BookingView{}, domain.ErrInvalidStateTransition
	}
	b.Status = domain.StatusPendingConfirmation
	s.evict(ctx, b.ID)

	observability.ObserveTransition(string(domain.StatusPendingConfirmation))
	log.Info().Str("booking_id", b.ID).Str("payment_method", paymentMethod).
		Int64("discount", b.DiscountAmount).Msg("booking pending confirmation")
	return domain.BookingView{Booking: b, Details: details}, nil
}

// HandlePaymentEvent consumes the payment provider's status change.
// SUCCESS drives CREATED to PENDING_CONFIRMATION, FAILED cancels and
// releases the holds.
func (s *ReservationService) HandlePaymentEvent(ctx context.Context, bookingID string, success bool) error {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if !success {
		return s.cancel(ctx, b, false)
	}
	if b.Expired(s.now()) {
		return domain.ErrBookingExpired
	}
	ok, err := s.bookings.TransitionStatus(ctx, b.ID, []domain.BookingStatus{domain.StatusCreated}, domain.StatusPendingConfirmation)
	if err != nil {
		return fmt.Errorf("payment transition: %w", err)
	}
	if !ok {
		// already past CREATED is fine for an at-least-once event feed
		if b.Status == domain.StatusPendingConfirmation || b.Status == domain.StatusConfirmed {
			return nil
		}
		return domain.ErrInvalidStateTransition
	}
	s.evict(ctx, b.ID)
	observability.ObserveTransition(string(domain.StatusPendingConfirmation))
	return nil
}

// Cancel cancels the caller's booking and releases every outstanding hold.
func (s *ReservationService) Cancel(ctx context.Context, bookingID string, accountID int64) error {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.AccountID != accountID {
		return domain.ErrOwnershipMismatch
	}
	return s.cancel(ctx, b, true)
}

// cancel drives any cancellable state to CANCELLED. The conditional status
// write is the exactly-once gate: only the caller that wins it releases the
// holds, so repeated cancels can never double-credit the ledger.
func (s *ReservationService) cancel(ctx context.Context, b domain.Booking, notifyPartner bool) error {
	if !b.Status.Cancellable() {
		return domain.ErrInvalidStateTransition
	}
	ok, err := s.bookings.TransitionStatus(ctx, b.ID, domain.CancellableStatuses, domain.StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel transition: %w", err)
	}
	if !ok {
		return domain.ErrInvalidStateTransition
	}

	details, err := s.bookings.Details(ctx, b.ID)
	if err != nil {
		observability.ObserveRollbackFailure()
		return fmt.Errorf("load holds to release for %s: %w", b.ID, err)
	}
	s.releaseDetails(ctx, b.ID, details)

	if notifyPartner {
		if err := s.partner.MarkPaymentFailed(ctx, b.ID); err != nil {
			log.Warn().Err(err).Str("booking_id", b.ID).Msg("mark payment failed")
		}
	}
	s.evict(ctx, b.ID)
	observability.ObserveTransition(string(domain.StatusCancelled))
	log.Info().Str("booking_id", b.ID).Msg("booking cancelled")
	return nil
}

// Expire reaps one expired CREATED booking: CANCELLED plus hold release.
// Losing the transition race (the guest confirmed in the meantime, or
// another reaper got here first) is not an error.
func (s *ReservationService) Expire(ctx context.Context, b domain.Booking) error {
	if !b.Expired(s.now()) {
		return nil
	}
	ok, err := s.bookings.TransitionStatus(ctx, b.ID, []domain.BookingStatus{domain.StatusCreated}, domain.StatusCancelled)
	if err != nil {
		return fmt.Errorf("expire transition: %w", err)
	}
	if !ok {
		return nil
	}
	details, err := s.bookings.Details(ctx, b.ID)
	if err != nil {
		observability.ObserveRollbackFailure()
		return fmt.Errorf("load holds to release for %s: %w", b.ID, err)
	}
	s.releaseDetails(ctx, b.ID, details)
	if err := s.partner.MarkPaymentFailed(ctx, b.ID); err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Msg("mark payment failed")
	}
	s.evict(ctx, b.ID)
	observability.ObserveTransition(string(domain.StatusCancelled))
	log.Info().Str("booking_id", b.ID).Time("expired_at", b.ExpiresAt).Msg("expired booking reaped")
	return nil
}

// ChangeDates moves a CREATED or PENDING_CONFIRMATION booking to new dates:
// release old holds, acquire new ones, reprice. Any failure after the old
// holds were released restores them before surfacing the error.
func (s *ReservationService) ChangeDates(ctx context.Context, bookingID string, accountID int64, checkin, checkout time.Time) (domain.Booking, error) {
	newStay, err := domain.NewStayRange(checkin, checkout)
	if err != nil {
		return domain.Booking{}, err
	}
	b, details, err := s.load(ctx, bookingID, accountID)
	if err != nil {
		return domain.Booking{}, err
	}
	if b.Status != domain.StatusCreated && b.Status != domain.StatusPendingConfirmation {
		return domain.Booking{}, domain.ErrInvalidStateTransition
	}
	if len(details) == 0 {
		return domain.Booking{}, fmt.Errorf("booking %s has no held rooms: %w", bookingID, domain.ErrNotFound)
	}
	oldStay := stayOf(details[0])
	if newStay.Equal(oldStay) {
		return b, nil
	}
	ids := detailRoomIDs(details)

	released := make([]int64, 0, len(ids))
	for _, id := range ids {
		if err := s.ledger.Release(ctx, id, oldStay, 1); err != nil {
			s.restoreOrAlert(ctx, b.ID, released, oldStay)
			return domain.Booking{}, fmt.Errorf("release old dates: %w", err)
		}
		observability.ObserveRelease()
		released = append(released, id)
	}

	acquired := make([]int64, 0, len(ids))
	for _, id := range ids {
		applied, err := s.ledger.Hold(ctx, id, newStay, 1)
		if err != nil || !applied {
			if relErr := s.alloc.ReleaseRooms(ctx, acquired, newStay); relErr != nil {
				log.Error().Err(relErr).Bool("alert", true).Str("booking_id", b.ID).
					Msg("date-change rollback failed, ledger may be inconsistent")
			}
			s.restoreOrAlert(ctx, b.ID, released, oldStay)
			if err != nil {
				observability.ObserveHold("error")
				return domain.Booking{}, fmt.Errorf("hold new dates room %d: %w", id, err)
			}
			observability.ObserveHold("conflict")
			return domain.Booking{}, domain.ErrInsufficientInventory
		}
		observability.ObserveHold("held")
		acquired = append(acquired, id)
	}

	unwind := func() {
		if relErr := s.alloc.ReleaseRooms(ctx, acquired, newStay); relErr != nil {
			log.Error().Err(relErr).Bool("alert", true).Str("booking_id", b.ID).
				Msg("date-change rollback failed, ledger may be inconsistent")
		}
		s.restoreOrAlert(ctx, b.ID, released, oldStay)
	}

	quote, err := s.pricing.Quote(ctx, ids[0], newStay)
	if err != nil {
		unwind()
		return domain.Booking{}, fmt.Errorf("reprice: %w", err)
	}

	newDetails := make([]domain.BookingDetail, len(details))
	for i, d := range details {
		newDetails[i] = domain.BookingDetail{
			BookingID:     b.ID,
			RoomID:        d.RoomID,
			Checkin:       newStay.Checkin,
			Checkout:      newStay.Checkout,
			Guests:        d.Guests,
			PricePerNight: quote.Subtotal / int64(quote.Nights),
			Nights:        quote.Nights,
			TotalPrice:    quote.Subtotal,
		}
	}
	if err := s.bookings.ReplaceDetails(ctx, b.ID, newDetails); err != nil {
		unwind()
		return domain.Booking{}, fmt.Errorf("replace details: %w", err)
	}

	n := int64(len(details))
	b.Subtotal, b.TaxAmount = quote.Subtotal*n, quote.TaxAmount*n
	b.TotalAmount = b.Subtotal + b.TaxAmount - b.DiscountAmount
	if b.TotalAmount < 0 {
		b.TotalAmount = 0
	}
	if err := s.bookings.UpdateTotals(ctx, b.ID, b.Subtotal, b.TaxAmount, b.DiscountAmount, b.TotalAmount); err != nil {
		// details already point at the new dates; totals drift is repairable,
		// holds are not, so do not unwind the ledger here
		log.Error().Err(err).Str("booking_id", b.ID).Msg("update totals after date change")
	}
	s.evict(ctx, b.ID)
	log.Info().Str("booking_id", b.ID).Time("checkin", newStay.Checkin).
		Time("checkout", newStay.Checkout).Msg("booking dates changed")
	return b, nil
}

// Operational transitions, hotel-staff driven. Only the state-machine guard
// is enforced here.

func (s *ReservationService) MarkConfirmed(ctx context.Context, bookingID string) error {
	return s.operational(ctx, bookingID, []domain.BookingStatus{domain.StatusPendingConfirmation}, domain.StatusConfirmed)
}

func (s *ReservationService) CheckIn(ctx context.Context, bookingID string) error {
	return s.operational(ctx, bookingID, []domain.BookingStatus{domain.StatusConfirmed}, domain.StatusCheckedIn)
}

func (s *ReservationService) CheckOut(ctx context.Context, bookingID string) error {
	return s.operational(ctx, bookingID, []domain.BookingStatus{domain.StatusCheckedIn}, domain.StatusCheckedOut)
}

func (s *ReservationService) Complete(ctx context.Context, bookingID string) error {
	return s.operational(ctx, bookingID, []domain.BookingStatus{domain.StatusCheckedIn, domain.StatusCheckedOut}, domain.StatusCompleted)
}

func (s *ReservationService) operational(ctx context.Context, bookingID string, from []domain.BookingStatus, to domain.BookingStatus) error {
	if _, err := s.bookings.Get(ctx, bookingID); err != nil {
		return err
	}
	ok, err := s.bookings.TransitionStatus(ctx, bookingID, from, to)
	if err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	if !ok {
		return domain.ErrInvalidStateTransition
	}
	s.evict(ctx, bookingID)
	observability.ObserveTransition(string(to))
	return nil
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func (s *ReservationService) load(ctx context.Context, bookingID string, accountID int64) (domain.Booking, []domain.BookingDetail, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, nil, err
	}
	if b.AccountID != accountID {
		return domain.Booking{}, nil, domain.ErrOwnershipMismatch
	}
	details, err := s.bookings.Details(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, nil, fmt.Errorf("booking details: %w", err)
	}
	return b, details, nil
}

func (s *ReservationService) releaseDetails(ctx context.Context, bookingID string, details []domain.BookingDetail) {
	for _, d := range details {
		if err := s.alloc.ReleaseRooms(ctx, []int64{d.RoomID}, stayOf(d)); err != nil {
			log.Error().Err(err).Bool("alert", true).Str("booking_id", bookingID).
				Int64("room_id", d.RoomID).Msg("hold release failed, ledger may be inconsistent")
		}
	}
}

func (s *ReservationService) restoreOrAlert(ctx context.Context, bookingID string, ids []int64, stay domain.StayRange) {
	if len(ids) == 0 {
		return
	}
	if err := s.alloc.RestoreHolds(ctx, ids, stay); err != nil {
		log.Error().Err(err).Bool("alert", true).Str("booking_id", bookingID).
			Msg("old-date hold restore failed, ledger may be inconsistent")
	}
}

func (s *ReservationService) evict(ctx context.Context, bookingID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, "booking:"+bookingID)
}

func stayOf(d domain.BookingDetail) domain.StayRange {
	return domain.StayRange{Checkin: d.Checkin, Checkout: d.Checkout}
}

func detailRoomIDs(details []domain.BookingDetail) []int64 {
	out := make([]int64, len(details))
	for i, d := range details {
		out[i] = d.RoomID
	}
	return out
}
