package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"roomstay/internal/app"
	"roomstay/internal/domain"
)

type Handlers struct {
	R *app.ReservationService
	Q *app.QueryService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Delete("/v1/bookings/{id}", h.cancelBooking)
	s.mux.Post("/v1/bookings/{id}/confirm", h.confirmBooking)
	s.mux.Post("/v1/bookings/{id}/payment-events", h.paymentEvent)
	s.mux.Patch("/v1/bookings/{id}/dates", h.changeDates)
	s.mux.Post("/v1/bookings/{id}/check-in", h.checkIn)
	s.mux.Post("/v1/bookings/{id}/check-out", h.checkOut)
	s.mux.Post("/v1/bookings/{id}/complete", h.complete)

	s.mux.Get("/v1/rooms/{id}/quote", h.quoteRoom)
	s.mux.Get("/v1/room-types/{id}/availability", h.availability)
}

const dateLayout = "2006-01-02"

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Status: status, Title: title, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainErr maps the error taxonomy onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalidDateRange), errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrOwnershipMismatch):
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, domain.ErrInsufficientInventory):
		writeProblem(w, http.StatusConflict, "Insufficient Inventory", err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		writeProblem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, domain.ErrBookingExpired):
		writeProblem(w, http.StatusGone, "Hold Expired", err.Error())
	default:
		log.Error().Err(err).Msg("internal error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "something went wrong")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// accountID is taken from a header set by the auth layer in front of us;
// authentication itself is out of scope.
func accountID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-Account-ID"), 10, 64)
	return id, err == nil && id > 0
}

func parseDate(s string) (time.Time, error) { return time.Parse(dateLayout, s) }

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// ---- bookings ----

type createBookingRequest struct {
	HotelID         int64  `json:"hotel_id"`
	RoomTypeID      int64  `json:"room_type_id"`
	Checkin         string `json:"checkin"`
	Checkout        string `json:"checkout"`
	Rooms           int    `json:"rooms"`
	Guests          int    `json:"guests"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

type bookingResponse struct {
	ID              string    `json:"id"`
	AccountID       int64     `json:"account_id"`
	HotelID         int64     `json:"hotel_id"`
	Status          string    `json:"status"`
	Subtotal        int64     `json:"subtotal"`
	TaxAmount       int64     `json:"tax_amount"`
	DiscountAmount  int64     `json:"discount_amount"`
	TotalAmount     int64     `json:"total_amount"`
	SpecialRequests string    `json:"special_requests,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`

	Details []detailResponse `json:"details,omitempty"`
}

type detailResponse struct {
	RoomID        int64  `json:"room_id"`
	Checkin       string `json:"checkin"`
	Checkout      string `json:"checkout"`
	Guests        int    `json:"guests"`
	PricePerNight int64  `json:"price_per_night"`
	Nights        int    `json:"nights"`
	TotalPrice    int64  `json:"total_price"`
}

func toBookingResponse(b domain.Booking, details []domain.BookingDetail) bookingResponse {
	resp := bookingResponse{
		ID: b.ID, AccountID: b.AccountID, HotelID: b.HotelID, Status: string(b.Status),
		Subtotal: b.Subtotal, TaxAmount: b.TaxAmount, DiscountAmount: b.DiscountAmount,
		TotalAmount: b.TotalAmount, SpecialRequests: b.SpecialRequests, ExpiresAt: b.ExpiresAt,
	}
	for _, d := range details {
		resp.Details = append(resp.Details, detailResponse{
			RoomID:  d.RoomID,
			Checkin: d.Checkin.Format(dateLayout), Checkout: d.Checkout.Format(dateLayout),
			Guests: d.Guests, PricePerNight: d.PricePerNight, Nights: d.Nights, TotalPrice: d.TotalPrice,
		})
	}
	return resp
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "X-Account-ID header required")
		return
	}
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	checkin, err := parseDate(req.Checkin)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkin must be YYYY-MM-DD")
		return
	}
	checkout, err := parseDate(req.Checkout)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkout must be YYYY-MM-DD")
		return
	}
	if req.Rooms == 0 {
		req.Rooms = 1
	}
	if req.Guests == 0 {
		req.Guests = 1
	}

	b, err := h.R.Create(r.Context(), app.CreateBookingInput{
		AccountID:       acct,
		HotelID:         req.HotelID,
		RoomTypeID:      req.RoomTypeID,
		Checkin:         checkin,
		Checkout:        checkout,
		Rooms:           req.Rooms,
		Guests:          req.Guests,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b, nil))
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "X-Account-ID header required")
		return
	}
	view, err := h.Q.GetBooking(r.Context(), chi.URLParam(r, "id"), acct)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	resp := toBookingResponse(view.Booking, view.Details)

	etag, body := calcETagAndBody(resp)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getBooking body")
	}
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "X-Account-ID header required")
		return
	}
	if err := h.R.Cancel(r.Context(), chi.URLParam(r, "id"), acct); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type confirmRequest struct {
	PaymentMethod string `json:"payment_method"`
	DiscountCode  string `json:"discount_code,omitempty"`
}

func (h *Handlers) confirmBooking(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "X-Account-ID header required")
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	view, err := h.R.Confirm(r.Context(), chi.URLParam(r, "id"), acct, req.PaymentMethod, req.DiscountCode)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(view.Booking, view.Details))
}

type paymentEventRequest struct {
	Status string `json:"status"` // SUCCESS | FAILED
}

func (h *Handlers) paymentEvent(w http.ResponseWriter, r *http.Request) {
	var req paymentEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if req.Status != "SUCCESS" && req.Status != "FAILED" {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "status must be SUCCESS or FAILED")
		return
	}
	if err := h.R.HandlePaymentEvent(r.Context(), chi.URLParam(r, "id"), req.Status == "SUCCESS"); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeDatesRequest struct {
	Checkin  string `json:"checkin"`
	Checkout string `json:"checkout"`
}

func (h *Handlers) changeDates(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "X-Account-ID header required")
		return
	}
	var req changeDatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	checkin, err := parseDate(req.Checkin)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkin must be YYYY-MM-DD")
		return
	}
	checkout, err := parseDate(req.Checkout)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkout must be YYYY-MM-DD")
		return
	}
	b, err := h.R.ChangeDates(r.Context(), chi.URLParam(r, "id"), acct, checkin, checkout)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, nil))
}

func (h *Handlers) checkIn(w http.ResponseWriter, r *http.Request) {
	h.operational(w, r, h.R.CheckIn)
}

func (h *Handlers) checkOut(w http.ResponseWriter, r *http.Request) {
	h.operational(w, r, h.R.CheckOut)
}

func (h *Handlers) complete(w http.ResponseWriter, r *http.Request) {
	h.operational(w, r, h.R.Complete)
}

func (h *Handlers) operational(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- quotes & availability ----

type quoteResponse struct {
	RoomID     int64 `json:"room_id"`
	Nights     int   `json:"nights"`
	Subtotal   int64 `json:"subtotal"`
	TaxAmount  int64 `json:"tax_amount"`
	Total      int64 `json:"total"`
	Refundable bool  `json:"refundable"`
	PayLater   bool  `json:"pay_later"`
}

func (h *Handlers) quoteRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "id must be a number")
		return
	}
	checkin, err := parseDate(r.URL.Query().Get("checkin"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkin must be YYYY-MM-DD")
		return
	}
	checkout, err := parseDate(r.URL.Query().Get("checkout"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkout must be YYYY-MM-DD")
		return
	}
	rooms := 1
	if rs := r.URL.Query().Get("rooms"); rs != "" {
		if n, err := strconv.Atoi(rs); err == nil && n > 0 {
			rooms = n
		}
	}
	q, err := h.Q.QuoteRoom(r.Context(), roomID, checkin, checkout, rooms)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		RoomID: q.RoomID, Nights: q.Nights, Subtotal: q.Subtotal,
		TaxAmount: q.TaxAmount, Total: q.Total, Refundable: q.Refundable, PayLater: q.PayLater,
	})
}

func (h *Handlers) availability(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "id must be a number")
		return
	}
	checkin, err := parseDate(r.URL.Query().Get("checkin"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkin must be YYYY-MM-DD")
		return
	}
	checkout, err := parseDate(r.URL.Query().Get("checkout"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "checkout must be YYYY-MM-DD")
		return
	}
	guests := 1
	if gs := r.URL.Query().Get("guests"); gs != "" {
		if n, err := strconv.Atoi(gs); err == nil && n > 0 {
			guests = n
		}
	}
	n, err := h.Q.Availability(r.Context(), typeID, checkin, checkout, guests)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available_rooms": n})
}
