// Package pms implements the ACP adapter for hotel property management
// systems exposing the standard rates-and-bookings API.
package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"acp-gateway/internal/model"
	"acp-gateway/internal/transport"
)

const (
	pathToken        = "/auth/token"
	pathAvailability = "/v1/properties/%s/availability"
	pathBookings     = "/v1/properties/%s/bookings"

	userAgent = "ACP-Gateway/1.0"
)

// Client is the PMS API HTTP client. Authentication uses OAuth2 client
// credentials; callers supply the bearer token per request so the token
// lifecycle stays outside the client.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

// NewClient creates a PMS API client for one upstream installation.
func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport.NewChromeTransport(30 * time.Second),
		},
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// === Authentication ===

// FetchToken exchanges client credentials for a bearer token.
// Shaped to plug into a resilience token source directly.
func (c *Client) FetchToken(ctx context.Context) (string, time.Time, error) {
	body := &tokenRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		GrantType:    "client_credentials",
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshaling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathToken, bytes.NewReader(jsonBody))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	var resp tokenResponse
	if err := c.do(req, &resp); err != nil {
		return "", time.Time{}, fmt.Errorf("fetching token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("empty access token from auth endpoint")
	}
	return resp.AccessToken, time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second), nil
}

// === Availability ===

// GetAvailability queries room options for a stay. Room type is optional;
// when empty the upstream returns every bookable type.
func (c *Client) GetAvailability(ctx context.Context, token, entityID string, terms *model.StayTerms) ([]roomEntry, error) {
	q := url.Values{}
	q.Set("check_in", terms.CheckIn)
	q.Set("check_out", terms.CheckOut)
	if terms.RoomType != "" {
		q.Set("room_type", terms.RoomType)
	}
	if terms.Guests > 0 {
		q.Set("guests", strconv.Itoa(terms.Guests))
	}

	path := fmt.Sprintf(pathAvailability, url.PathEscape(entityID)) + "?" + q.Encode()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, token)
	if err != nil {
		return nil, fmt.Errorf("creating availability request: %w", err)
	}

	var resp availabilityResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// === Bookings ===

// CreateBooking commits (or, with ValidateOnly, rehearses) a reservation.
func (c *Client) CreateBooking(ctx context.Context, token, entityID string, breq *bookingRequest) (*bookingResponse, error) {
	path := fmt.Sprintf(pathBookings, url.PathEscape(entityID))
	req, err := c.newRequest(ctx, http.MethodPost, path, breq, token)
	if err != nil {
		return nil, fmt.Errorf("creating booking request: %w", err)
	}

	var resp bookingResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// newRequest builds an authenticated API request.
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}, token string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// do executes the request and decodes the response.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("PMS", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp.StatusCode, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// parseError converts PMS API errors to model.APIError.
func (c *Client) parseError(statusCode int, body []byte) error {
	var upErr errorResponse
	json.Unmarshal(body, &upErr) // Best effort parse

	switch statusCode {
	case 401, 403:
		return model.NewUnauthorizedError("PMS authentication failed")
	case 404:
		return model.NewNotFoundError("property")
	case 409:
		// Rate changed between quote and booking.
		return model.NewValidationError("price", nonEmpty(upErr.Message, "rate changed"))
	case 422:
		return model.NewValidationError("terms", nonEmpty(upErr.Message, "stay cannot be booked"))
	case 429:
		return model.NewRateLimitError("PMS")
	default:
		return model.NewUpstreamError("PMS",
			fmt.Errorf("status %d: %s", statusCode, upErr.Message))
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
