package pms

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"acp-gateway/internal/adapter"
	"acp-gateway/internal/model"
	"acp-gateway/internal/resilience"
)

// fakePMS is an httptest-backed upstream with configurable handlers.
type fakePMS struct {
	server       *httptest.Server
	availability func(w http.ResponseWriter, r *http.Request)
	bookings     func(w http.ResponseWriter, r *http.Request)

	tokenCalls   atomic.Int64
	availCalls   atomic.Int64
	bookingCalls atomic.Int64
}

func newFakePMS(t *testing.T) *fakePMS {
	t.Helper()
	f := &fakePMS{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", ExpiresIn: 3600})
	})
	mux.HandleFunc("GET /v1/properties/{id}/availability", func(w http.ResponseWriter, r *http.Request) {
		f.availCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.availability != nil {
			f.availability(w, r)
			return
		}
		json.NewEncoder(w).Encode(availabilityResponse{Rooms: []roomEntry{
			{RoomType: "double", Rate: rate{AmountMinor: 24000, Currency: "USD"}, Available: 3},
			{RoomType: "suite", Rate: rate{AmountMinor: 48000, Currency: "USD"}, Available: 0},
		}})
	})
	mux.HandleFunc("POST /v1/properties/{id}/bookings", func(w http.ResponseWriter, r *http.Request) {
		f.bookingCalls.Add(1)
		if f.bookings != nil {
			f.bookings(w, r)
			return
		}
		var req bookingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ValidateOnly {
			json.NewEncoder(w).Encode(bookingResponse{ChargedMinor: req.TotalMinor, Currency: req.Currency, Valid: true})
			return
		}
		json.NewEncoder(w).Encode(bookingResponse{
			ConfirmationCode: "CONF-001",
			ChargedMinor:     req.TotalMinor,
			Currency:         req.Currency,
		})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestAdapter(f *fakePMS, cache resilience.AvailabilityCache) *Adapter {
	cfg := adapter.Config{BaseURL: f.server.URL, ClientID: "cid", ClientSecret: "secret"}
	a := New(cfg, cache, slog.New(slog.DiscardHandler))
	// The fake upstream speaks plain HTTP.
	a.client.httpClient = f.server.Client()
	return a
}

func TestCheckAvailability(t *testing.T) {
	f := newFakePMS(t)
	a := newTestAdapter(f, nil)

	terms := &model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", RoomType: "double", Guests: 2}
	options, err := a.CheckAvailability(context.Background(), "hotel-1", terms)
	if err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("options = %d, want 2", len(options))
	}
	if options[0].RoomType != "double" || options[0].Price != 24000 || options[0].Available != 3 {
		t.Errorf("options[0] = %+v, want 3 double rooms at 24000", options[0])
	}
	if f.tokenCalls.Load() != 1 {
		t.Errorf("token calls = %d, want 1", f.tokenCalls.Load())
	}
}

func TestCheckAvailabilityUsesCache(t *testing.T) {
	f := newFakePMS(t)
	a := newTestAdapter(f, resilience.NewMemoryCache())
	ctx := context.Background()

	terms := &model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", RoomType: "double", Guests: 2}
	for i := 0; i < 3; i++ {
		if _, err := a.CheckAvailability(ctx, "hotel-1", terms); err != nil {
			t.Fatalf("CheckAvailability() #%d error = %v", i, err)
		}
	}
	if f.availCalls.Load() != 1 {
		t.Errorf("upstream availability calls = %d, want 1 (rest from cache)", f.availCalls.Load())
	}

	// Different terms are a different key.
	other := &model.StayTerms{CheckIn: "2026-09-05", CheckOut: "2026-09-06", Guests: 1}
	if _, err := a.CheckAvailability(ctx, "hotel-1", other); err != nil {
		t.Fatalf("CheckAvailability() other terms error = %v", err)
	}
	if f.availCalls.Load() != 2 {
		t.Errorf("upstream availability calls = %d, want 2", f.availCalls.Load())
	}
}

func TestCreateBooking(t *testing.T) {
	f := newFakePMS(t)
	a := newTestAdapter(f, nil)

	result, err := a.CreateBooking(context.Background(), &adapter.CreateBookingRequest{
		EntityID:      "hotel-1",
		Terms:         model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", RoomType: "double", Guests: 2},
		AgreedPrice:   24000,
		Currency:      "USD",
		AgentID:       "agent-a",
		TransactionID: "tx-1",
	})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if result.ConfirmationCode != "CONF-001" {
		t.Errorf("confirmation = %s, want CONF-001", result.ConfirmationCode)
	}
	if result.ChargedPrice != 24000 {
		t.Errorf("charged = %d, want 24000", result.ChargedPrice)
	}
}

func TestCreateBookingDryRun(t *testing.T) {
	f := newFakePMS(t)
	a := newTestAdapter(f, nil)

	result, err := a.CreateBooking(context.Background(), &adapter.CreateBookingRequest{
		EntityID:    "hotel-1",
		Terms:       model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", RoomType: "double", Guests: 2},
		AgreedPrice: 24000,
		Currency:    "USD",
		DryRun:      true,
	})
	if err != nil {
		t.Fatalf("CreateBooking() dry run error = %v", err)
	}
	if !result.DryRun || !result.WouldCreateBooking {
		t.Errorf("result = %+v, want dry-run validation success", result)
	}
	if result.ConfirmationCode != "" {
		t.Errorf("dry run produced confirmation code %s", result.ConfirmationCode)
	}
}

func TestCreateBookingPriceMismatch(t *testing.T) {
	f := newFakePMS(t)
	f.bookings = func(w http.ResponseWriter, r *http.Request) {
		// Upstream charges 5% over the agreed price.
		json.NewEncoder(w).Encode(bookingResponse{
			ConfirmationCode: "CONF-BAD",
			ChargedMinor:     25200,
			Currency:         "USD",
		})
	}
	a := newTestAdapter(f, nil)

	_, err := a.CreateBooking(context.Background(), &adapter.CreateBookingRequest{
		EntityID:    "hotel-1",
		Terms:       model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", RoomType: "double", Guests: 2},
		AgreedPrice: 24000,
		Currency:    "USD",
	})
	if !errors.Is(err, model.ErrPriceMismatch) {
		t.Errorf("CreateBooking() error = %v, want ErrPriceMismatch", err)
	}
}

func TestCreateBookingWithinTolerance(t *testing.T) {
	f := newFakePMS(t)
	f.bookings = func(w http.ResponseWriter, r *http.Request) {
		// 0.5% drift, inside the 1% tolerance.
		json.NewEncoder(w).Encode(bookingResponse{
			ConfirmationCode: "CONF-002",
			ChargedMinor:     24120,
			Currency:         "USD",
		})
	}
	a := newTestAdapter(f, nil)

	result, err := a.CreateBooking(context.Background(), &adapter.CreateBookingRequest{
		EntityID:    "hotel-1",
		Terms:       model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", RoomType: "double", Guests: 2},
		AgreedPrice: 24000,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if result.ChargedPrice != 24120 {
		t.Errorf("charged = %d, want 24120", result.ChargedPrice)
	}
}

func TestBookingInvalidatesEntityCache(t *testing.T) {
	f := newFakePMS(t)
	a := newTestAdapter(f, resilience.NewMemoryCache())
	ctx := context.Background()

	terms := &model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", RoomType: "double", Guests: 2}
	if _, err := a.CheckAvailability(ctx, "hotel-1", terms); err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}

	if _, err := a.CreateBooking(ctx, &adapter.CreateBookingRequest{
		EntityID:    "hotel-1",
		Terms:       *terms,
		AgreedPrice: 24000,
		Currency:    "USD",
	}); err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}

	if _, err := a.CheckAvailability(ctx, "hotel-1", terms); err != nil {
		t.Fatalf("CheckAvailability() after booking error = %v", err)
	}
	if f.availCalls.Load() != 2 {
		t.Errorf("upstream availability calls = %d, want 2 (cache invalidated by booking)", f.availCalls.Load())
	}
}

func TestUpstreamErrorMapping(t *testing.T) {
	f := newFakePMS(t)
	f.availability = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{Code: "not_found", Message: "no such property"})
	}
	a := newTestAdapter(f, nil)

	terms := &model.StayTerms{CheckIn: "2026-09-01", CheckOut: "2026-09-03", Guests: 1}
	_, err := a.CheckAvailability(context.Background(), "ghost", terms)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("CheckAvailability() error = %v, want ErrNotFound", err)
	}
}
