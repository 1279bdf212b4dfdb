package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"acquisition_backend/platform/logger"
)

type testCalendarConfig struct {
	url    string
	apiKey string
}

func (c testCalendarConfig) GetCalendarURL() string    { return c.url }
func (c testCalendarConfig) GetCalendarAPIKey() string { return c.apiKey }
func (c testCalendarConfig) IsCalendarEnabled() bool   { return c.url != "" }

func TestBookSendsAuthAndIdempotencyKey(t *testing.T) {
	var gotAuth, gotIdemKey, gotPath string
	var gotBody BookingRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdemKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "bk_123", "start": "2026-03-03T15:00:00Z", "end": "2026-03-03T15:30:00Z", "join_url": "https://meet.example.com/bk_123"}`))
	}))
	defer srv.Close()

	c := New(testCalendarConfig{url: srv.URL, apiKey: "secret"}, logger.New("development"))
	booking, err := c.Book(context.Background(), BookingRequest{
		IdempotencyKey: "lead-1:SCHEDULED:0",
		Title:          "Intro call",
		InviteeName:    "Dana",
		InviteeEmail:   "dana@example.com",
		Start:          time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC),
		End:            time.Date(2026, time.March, 3, 15, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1/bookings" {
		t.Fatalf("expected path /v1/bookings, got %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotIdemKey != "lead-1:SCHEDULED:0" {
		t.Fatalf("expected idempotency key header, got %q", gotIdemKey)
	}
	if gotBody.InviteeEmail != "dana@example.com" {
		t.Fatalf("expected invitee email in body, got %q", gotBody.InviteeEmail)
	}
	if booking.ID != "bk_123" {
		t.Fatalf("expected booking id bk_123, got %s", booking.ID)
	}
	if booking.JoinURL != "https://meet.example.com/bk_123" {
		t.Fatalf("unexpected join url: %s", booking.JoinURL)
	}
}

func TestBookSlotTaken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(testCalendarConfig{url: srv.URL}, logger.New("development"))
	_, err := c.Book(context.Background(), BookingRequest{InviteeEmail: "dana@example.com"})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBookUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testCalendarConfig{url: srv.URL}, logger.New("development"))
	_, err := c.Book(context.Background(), BookingRequest{InviteeEmail: "dana@example.com"})
	if err == nil {
		t.Fatalf("expected error for upstream failure")
	}
	if errors.Is(err, ErrSlotTaken) {
		t.Fatalf("upstream failure should not read as a taken slot")
	}
}

func TestPing(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testCalendarConfig{url: srv.URL, apiKey: "secret"}, logger.New("development"))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/v1/ping" {
		t.Fatalf("expected path /v1/ping, got %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	if err := New(testCalendarConfig{url: down.URL}, logger.New("development")).Ping(context.Background()); err == nil {
		t.Fatalf("expected error for unavailable service")
	}
}

func TestBookDecodesAlternateFieldNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uid": "cal_987", "start": "2026-03-05T10:00:00Z", "end": "2026-03-05T10:30:00Z", "meeting_url": "https://meet.example.com/cal_987"}`))
	}))
	defer srv.Close()

	c := New(testCalendarConfig{url: srv.URL}, logger.New("development"))
	booking, err := c.Book(context.Background(), BookingRequest{InviteeEmail: "dana@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.ID != "cal_987" {
		t.Fatalf("expected uid fallback, got %q", booking.ID)
	}
	if booking.JoinURL != "https://meet.example.com/cal_987" {
		t.Fatalf("expected meeting_url fallback, got %q", booking.JoinURL)
	}
}
