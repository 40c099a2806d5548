package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"roomstay/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// -----------------------------------------------------------------------------
// InventoryLedger
// -----------------------------------------------------------------------------

// Hold decrements every night in [stay.Checkin, stay.Checkout) by qty, or
// nothing at all. The guarded UPDATE only touches rows where the guard holds,
// so a partial row count means another caller raced us for part of the range;
// the transaction is rolled back and applied=false is returned with the
// ledger untouched.
func (r *Repo) Hold(ctx context.Context, roomID int64, stay domain.StayRange, qty int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin hold tx: %w", err)
	}
	res, err := tx.ExecContext(ctx, holdSQL, qty, roomID, stay.Checkin, stay.Checkout, qty)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("hold room %d: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("hold rows affected: %w", err)
	}
	if int(n) != stay.Nights() {
		_ = tx.Rollback()
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit hold: %w", err)
	}
	return true, nil
}

func (r *Repo) Release(ctx context.Context, roomID int64, stay domain.StayRange, qty int) error {
	_, err := r.db.ExecContext(ctx, releaseSQL, qty, roomID, stay.Checkin, stay.Checkout)
	if err != nil {
		return fmt.Errorf("release room %d: %w", roomID, err)
	}
	return nil
}

func (r *Repo) MinAvailable(ctx context.Context, roomID int64, stay domain.StayRange) (int, error) {
	var min, count int
	err := r.db.QueryRowContext(ctx, minAvailableSQL, roomID, stay.Checkin, stay.Checkout).Scan(&min, &count)
	if err != nil {
		return 0, fmt.Errorf("min available: %w", err)
	}
	if count < stay.Nights() {
		// gaps in the price schedule count as zero inventory
		return 0, nil
	}
	return min, nil
}

func (r *Repo) CandidateRooms(ctx context.Context, roomTypeID int64, stay domain.StayRange, minCapacity int) ([]domain.RoomCandidate, error) {
	rows, err := r.db.QueryContext(ctx, candidateRoomsSQL,
		stay.Checkin, stay.Checkout, roomTypeID, minCapacity, stay.Nights())
	if err != nil {
		return nil, fmt.Errorf("candidate rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.RoomCandidate
	for rows.Next() {
		var c domain.RoomCandidate
		if err := rows.Scan(&c.ID, &c.RoomTypeID, &c.HotelID, &c.Capacity, &c.RoomNumber); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) NightlyRates(ctx context.Context, roomID int64, stay domain.StayRange) ([]domain.InventoryDay, error) {
	rows, err := r.db.QueryContext(ctx, nightlyRatesSQL, roomID, stay.Checkin, stay.Checkout)
	if err != nil {
		return nil, fmt.Errorf("nightly rates: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryDay
	for rows.Next() {
		var d domain.InventoryDay
		if err := rows.Scan(&d.RoomID, &d.Date, &d.BasePrice, &d.DiscountPercent,
			&d.AvailableRooms, &d.Refundable, &d.PayLater); err != nil {
			return nil, fmt.Errorf("scan nightly rate: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// RoomCatalog
// -----------------------------------------------------------------------------

func (r *Repo) RoomByID(ctx context.Context, roomID int64) (domain.RoomCandidate, error) {
	var c domain.RoomCandidate
	err := r.db.QueryRowContext(ctx, roomByIDSQL, roomID).
		Scan(&c.ID, &c.RoomTypeID, &c.HotelID, &c.Capacity, &c.RoomNumber)
	if err == sql.ErrNoRows {
		return domain.RoomCandidate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RoomCandidate{}, fmt.Errorf("room by id: %w", err)
	}
	return c, nil
}

func (r *Repo) RoomsOfType(ctx context.Context, roomTypeID int64) ([]domain.RoomCandidate, error) {
	rows, err := r.db.QueryContext(ctx, roomsOfTypeSQL, roomTypeID)
	if err != nil {
		return nil, fmt.Errorf("rooms of type: %w", err)
	}
	defer rows.Close()

	var out []domain.RoomCandidate
	for rows.Next() {
		var c domain.RoomCandidate
		if err := rows.Scan(&c.ID, &c.RoomTypeID, &c.HotelID, &c.Capacity, &c.RoomNumber); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// BookingRepository
// -----------------------------------------------------------------------------

// Create persists the header and its detail rows in one transaction, so the
// BookingDetail set always mirrors the ledger holds taken for this booking.
func (r *Repo) Create(ctx context.Context, b domain.Booking, details []domain.BookingDetail) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertBookingSQL,
		b.ID, b.AccountID, b.HotelID, string(b.Status),
		b.Subtotal, b.TaxAmount, b.DiscountAmount, b.TotalAmount,
		b.SpecialRequests, b.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	for _, d := range details {
		if _, err := tx.ExecContext(ctx, insertDetailSQL,
			b.ID, d.RoomID, d.Checkin, d.Checkout, d.Guests,
			d.PricePerNight, d.Nights, d.TotalPrice,
		); err != nil {
			return fmt.Errorf("insert detail room %d: %w", d.RoomID, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) Get(ctx context.Context, id string) (domain.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
}

func (r *Repo) Details(ctx context.Context, bookingID string) ([]domain.BookingDetail, error) {
	rows, err := r.db.QueryContext(ctx, detailsSQL, bookingID)
	if err != nil {
		return nil, fmt.Errorf("booking details: %w", err)
	}
	defer rows.Close()

	var out []domain.BookingDetail
	for rows.Next() {
		var d domain.BookingDetail
		if err := rows.Scan(&d.ID, &d.BookingID, &d.RoomID, &d.Checkin, &d.Checkout,
			&d.Guests, &d.PricePerNight, &d.Nights, &d.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan detail: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) FindLiveCreated(ctx context.Context, accountID, hotelID int64, now time.Time) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, findLiveCreatedSQL, accountID, hotelID, now))
	if err == domain.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) TransitionStatus(ctx context.Context, id string, from []domain.BookingStatus, to domain.BookingStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := make([]any, 0, len(from)+2)
	args = append(args, string(to), id)
	ph := make([]string, len(from))
	for i, s := range from {
		ph[i] = "?"
		args = append(args, string(s))
	}
	stmt := transitionStatusPrefix + "(" + strings.Join(ph, ",") + ")"
	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *Repo) ReplaceDetails(ctx context.Context, bookingID string, details []domain.BookingDetail) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteDetailsSQL, bookingID); err != nil {
		return fmt.Errorf("delete details: %w", err)
	}
	for _, d := range details {
		if _, err := tx.ExecContext(ctx, insertDetailSQL,
			bookingID, d.RoomID, d.Checkin, d.Checkout, d.Guests,
			d.PricePerNight, d.Nights, d.TotalPrice,
		); err != nil {
			return fmt.Errorf("insert detail room %d: %w", d.RoomID, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) UpdateTotals(ctx context.Context, id string, subtotal, tax, discount, total int64) error {
	res, err := r.db.ExecContext(ctx, updateTotalsSQL, subtotal, tax, discount, total, id)
	if err != nil {
		return fmt.Errorf("update totals: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, listExpiredSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBookingRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// scan helpers
// -----------------------------------------------------------------------------

type rowScanner interface{ Scan(dest ...any) error }

func scanBooking(row *sql.Row) (domain.Booking, error) {
	b, err := scanBookingFrom(row)
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

func scanBookingRows(rows *sql.Rows) (domain.Booking, error) {
	return scanBookingFrom(rows)
}

func scanBookingFrom(s rowScanner) (domain.Booking, error) {
	var b domain.Booking
	var status string
	var special sql.NullString
	if err := s.Scan(
		&b.ID, &b.AccountID, &b.HotelID, &status,
		&b.Subtotal, &b.TaxAmount, &b.DiscountAmount, &b.TotalAmount,
		&special, &b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)
	if special.Valid {
		b.SpecialRequests = special.String
	}
	return b, nil
}
