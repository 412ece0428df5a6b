package pms

// Wire types for the upstream property management system API.

// tokenRequest is the body for POST /auth/token.
type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

// tokenResponse is the auth endpoint's reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// availabilityResponse is the reply to an availability query.
type availabilityResponse struct {
	Rooms []roomEntry `json:"rooms"`
}

// roomEntry is one bookable room type with its current rate and the
// number of rooms left.
type roomEntry struct {
	RoomType  string `json:"room_type"`
	Rate      rate   `json:"rate"`
	Available int    `json:"available"`
}

// rate is a money amount in minor units.
type rate struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// bookingRequest is the body for POST /v1/properties/{id}/bookings.
type bookingRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	RoomType string `json:"room_type"`
	Guests   int    `json:"guests"`

	TotalMinor int64  `json:"total_minor"`
	Currency   string `json:"currency"`

	// Reference ties the upstream reservation back to our transaction.
	Reference string `json:"reference"`
	AgentRef  string `json:"agent_ref,omitempty"`

	// ValidateOnly runs the booking checks without committing.
	ValidateOnly bool `json:"validate_only,omitempty"`
}

// bookingResponse is the booking endpoint's reply.
type bookingResponse struct {
	ConfirmationCode string `json:"confirmation_code,omitempty"`
	ChargedMinor     int64  `json:"charged_minor"`
	Currency         string `json:"currency"`
	Valid            bool   `json:"valid,omitempty"` // validate_only replies
}

// errorResponse is the upstream's error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
