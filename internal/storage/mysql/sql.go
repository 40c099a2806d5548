package mysql

// Ledger writes. The decrement guard (available_rooms >= qty) is what makes
// concurrent holds safe: only rows still satisfying it at write time are
// touched, and the surrounding transaction in repo.Hold rolls the statement
// back unless every night in the range was affected.
const holdSQL = `
UPDATE room_inventory
SET available_rooms = available_rooms - ?
WHERE room_id = ? AND stay_date >= ? AND stay_date < ? AND available_rooms >= ?
`

const releaseSQL = `
UPDATE room_inventory
SET available_rooms = available_rooms + ?
WHERE room_id = ? AND stay_date >= ? AND stay_date < ?
`

// -----------------------------------------------------------------------------
// LEDGER READS
// -----------------------------------------------------------------------------

const minAvailableSQL = `
SELECT COALESCE(MIN(available_rooms), 0), COUNT(*)
FROM room_inventory
WHERE room_id = ? AND stay_date >= ? AND stay_date < ?
`

// Rooms of the type with at least one unit free on every night of the range.
// COUNT(*) = nights filters out rooms with missing ledger rows (no schedule
// generated yet counts as zero availability). room_number ascending keeps
// selection deterministic.
const candidateRoomsSQL = `
SELECT r.id, r.room_type_id, r.hotel_id, r.capacity, r.room_number
FROM rooms r
JOIN room_inventory i ON i.room_id = r.id AND i.stay_date >= ? AND i.stay_date < ?
WHERE r.room_type_id = ? AND r.status = 'ACTIVE' AND r.capacity >= ?
GROUP BY r.id, r.room_type_id, r.hotel_id, r.capacity, r.room_number
HAVING MIN(i.available_rooms) >= 1 AND COUNT(i.stay_date) = ?
ORDER BY r.room_number ASC
`

const nightlyRatesSQL = `
SELECT room_id, stay_date, base_price, discount_percent, available_rooms, refundable, pay_later
FROM room_inventory
WHERE room_id = ? AND stay_date >= ? AND stay_date < ?
ORDER BY stay_date ASC
`

// -----------------------------------------------------------------------------
// CATALOG
// -----------------------------------------------------------------------------

const roomByIDSQL = `
SELECT id, room_type_id, hotel_id, capacity, room_number
FROM rooms
WHERE id = ? AND status = 'ACTIVE'
`

const roomsOfTypeSQL = `
SELECT id, room_type_id, hotel_id, capacity, room_number
FROM rooms
WHERE room_type_id = ? AND status = 'ACTIVE'
ORDER BY room_number ASC
`

// -----------------------------------------------------------------------------
// BOOKINGS
// -----------------------------------------------------------------------------

const insertBookingSQL = `
INSERT INTO bookings
  (id, account_id, hotel_id, status, subtotal, tax_amount, discount_amount, total_amount,
   special_requests, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertDetailSQL = `
INSERT INTO booking_details
  (booking_id, room_id, checkin, checkout, guests, price_per_night, nights, total_price)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const getBookingSQL = `
SELECT id, account_id, hotel_id, status, subtotal, tax_amount, discount_amount, total_amount,
       special_requests, expires_at, created_at, updated_at
FROM bookings
WHERE id = ?
`

const detailsSQL = `
SELECT id, booking_id, room_id, checkin, checkout, guests, price_per_night, nights, total_price
FROM booking_details
WHERE booking_id = ?
ORDER BY room_id ASC
`

const findLiveCreatedSQL = `
SELECT id, account_id, hotel_id, status, subtotal, tax_amount, discount_amount, total_amount,
       special_requests, expires_at, created_at, updated_at
FROM bookings
WHERE account_id = ? AND hotel_id = ? AND status = 'CREATED' AND expires_at > ?
ORDER BY created_at DESC
LIMIT 1
`

// transitionStatusPrefix gets an IN (...) guard appended at call time; the
// conditional status write is the state-machine gate (zero rows affected
// means the booking was missing or raced into a disallowed state).
const transitionStatusPrefix = `
UPDATE bookings
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status IN `

const deleteDetailsSQL = `DELETE FROM booking_details WHERE booking_id = ?`

const updateTotalsSQL = `
UPDATE bookings
SET subtotal = ?, tax_amount = ?, discount_amount = ?, total_amount = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

const listExpiredSQL = `
SELECT id, account_id, hotel_id, status, subtotal, tax_amount, discount_amount, total_amount,
       special_requests, expires_at, created_at, updated_at
FROM bookings
WHERE status = 'CREATED' AND expires_at <= ?
ORDER BY expires_at ASC
LIMIT ?
`
