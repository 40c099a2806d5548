package payhub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"roomstay/internal/adapters/observability"
	"roomstay/internal/domain"
)

// Client talks to the payment/discount provider. The core only consumes two
// effects: coupon validation and marking a payment failed on cancellation.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var (
	ErrNotFound     = errors.New("payhub: not found")
	ErrUnauthorized = errors.New("payhub: unauthorized")
)

type validateRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
	HotelID  int64  `json:"hotel_id"`
	RoomID   int64  `json:"room_id"`
	Nights   int    `json:"nights"`
}

type validateResponse struct {
	Valid      bool   `json:"valid"`
	DiscountID *int64 `json:"discount_id,omitempty"`
	Amount     int64  `json:"amount"`
}

// ValidateDiscount checks a coupon code against the provider. An unknown
// code comes back as a clean "not valid", not an error.
func (c *Client) ValidateDiscount(ctx context.Context, code string, subtotal int64, hotelID, roomID int64, nights int) (domain.DiscountResult, error) {
	body := validateRequest{Code: code, Subtotal: subtotal, HotelID: hotelID, RoomID: roomID, Nights: nights}
	var out validateResponse
	err := c.post(ctx, c.base+"/v1/discounts/validate", "validate_discount", body, &out)
	if errors.Is(err, ErrNotFound) {
		return domain.DiscountResult{Valid: false}, nil
	}
	if err != nil {
		return domain.DiscountResult{}, err
	}
	return domain.DiscountResult{Valid: out.Valid, DiscountID: out.DiscountID, Amount: out.Amount}, nil
}

// MarkPaymentFailed tells the provider a booking's payment is void
// (cancellation cascade). A 404 means no payment was ever started, which is
// fine for a hold cancelled before checkout.
func (c *Client) MarkPaymentFailed(ctx context.Context, bookingID string) error {
	url := fmt.Sprintf("%s/v1/payments/%s/fail", c.base, bookingID)
	err := c.post(ctx, url, "mark_payment_failed", struct{}{}, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// post performs a JSON POST with client-side rate limiting and retries on
// 429 and transient 5xx.
func (c *Client) post(ctx context.Context, url, endpoint string, in, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", c.key)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return lastErr
		}
		observability.ObserveExternal("payhub", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil
			}
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<attempt)) * time.Millisecond
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
