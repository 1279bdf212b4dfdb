// Package calendar books meetings against an external scheduling service.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// ErrSlotTaken means the requested time was booked by someone else first.
var ErrSlotTaken = errors.New("calendar: slot no longer available")

// BookingRequest describes the meeting to create.
type BookingRequest struct {
	IdempotencyKey string    `json:"-"`
	Title          string    `json:"title"`
	InviteeName    string    `json:"invitee_name"`
	InviteeEmail   string    `json:"invitee_email"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Notes          string    `json:"notes,omitempty"`
}

// Booking is the confirmed meeting as the calendar service recorded it.
type Booking struct {
	ID      string    `json:"id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	JoinURL string    `json:"join_url,omitempty"`
}

// Client is the HTTP client for the calendar booking API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

// New creates a calendar client from configuration.
func New(cfg config.CalendarConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.GetCalendarURL(), "/"),
		apiKey:     cfg.GetCalendarAPIKey(),
		log:        log,
	}
}

// Book creates a booking. Passing the same idempotency key again returns
// the booking created the first time instead of a duplicate.
func (c *Client) Book(ctx context.Context, req BookingRequest) (*Booking, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode booking request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/bookings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Error("calendar request failed", "error", err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		// Success - continue to decode
	case http.StatusUnauthorized:
		c.log.Error("calendar unauthorized", "status", resp.StatusCode)
		return nil, fmt.Errorf("unauthorized: invalid API key")
	case http.StatusConflict:
		c.log.Warn("calendar slot taken", "start", req.Start)
		return nil, ErrSlotTaken
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		c.log.Error("calendar rejected booking", "status", resp.StatusCode)
		return nil, fmt.Errorf("bad request: invalid booking parameters")
	default:
		c.log.Error("calendar upstream error", "status", resp.StatusCode)
		return nil, fmt.Errorf("upstream error: status %d", resp.StatusCode)
	}

	var apiResp apiBooking
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		c.log.Error("calendar decode failed", "error", err)
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return apiResp.toBooking(), nil
}

// Ping checks if the calendar service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ping", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping failed: status %d", resp.StatusCode)
	}
	return nil
}

// apiBooking is the raw response from the booking API.
type apiBooking struct {
	ID      string     `json:"id"`
	UID     string     `json:"uid"`
	Start   *time.Time `json:"start"`
	End     *time.Time `json:"end"`
	JoinURL *string    `json:"join_url"`
	MeetURL *string    `json:"meeting_url"`
}

func (a *apiBooking) toBooking() *Booking {
	b := &Booking{ID: a.ID}
	if b.ID == "" {
		b.ID = a.UID
	}
	if a.Start != nil {
		b.Start = *a.Start
	}
	if a.End != nil {
		b.End = *a.End
	}
	if a.JoinURL != nil {
		b.JoinURL = *a.JoinURL
	} else if a.MeetURL != nil {
		b.JoinURL = *a.MeetURL
	}
	return b
}
