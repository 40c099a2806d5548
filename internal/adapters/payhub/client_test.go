package payhub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"roomstay/internal/adapters/payhub"
)

func TestClient_ValidateDiscount_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{"valid": true, "amount": 50000})
		}
	}))
	defer ts.Close()

	cl, err := payhub.New(ts.URL, "test-key", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := cl.ValidateDiscount(ctx, "SUMMER", 1_000_000, 1, 2, 3)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Valid || res.Amount != 50000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_ValidateDiscount_UnknownCodeIsNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, err := payhub.New(ts.URL, "test-key", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	res, err := cl.ValidateDiscount(context.Background(), "NOPE", 100, 1, 1, 1)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Valid {
		t.Fatalf("expected invalid result for unknown code")
	}
}

func TestClient_MarkPaymentFailed_404IsOK(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, err := payhub.New(ts.URL, "test-key", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cl.MarkPaymentFailed(context.Background(), "b-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestClient_RequiresKey(t *testing.T) {
	if _, err := payhub.New("http://x", "", 5); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
