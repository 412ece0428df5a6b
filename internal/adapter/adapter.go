// Package adapter defines the interface for property management system
// integrations. Adapters translate vendor-specific PMS APIs to ACP format.
package adapter

import (
	"context"

	"acp-gateway/internal/model"
)

// Adapter abstracts property management system operations into a unified
// interface. Each PMS vendor provides its own implementation.
//
// All methods return ACP-format responses ready for API serialization.
// Vendor-specific error handling is encapsulated within each implementation.
type Adapter interface {
	// CheckAvailability returns the bookable room options for a stay.
	// An empty slice means nothing matched the terms; that is not an error.
	CheckAvailability(ctx context.Context, entityID string, terms *model.StayTerms) ([]model.RoomOption, error)

	// CreateBooking commits a reservation at the agreed price.
	// With DryRun set, the upstream validates the booking without creating
	// it and the result carries WouldCreateBooking instead of a
	// confirmation code.
	// Returns a price-mismatch error when the upstream would charge more
	// than the agreed price allows.
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*model.BookingResult, error)
}

// CreateBookingRequest contains data for committing one reservation.
type CreateBookingRequest struct {
	EntityID string          `json:"entity_id"`
	Terms    model.StayTerms `json:"terms"`

	// AgreedPrice is the negotiated total in minor units. The upstream's
	// charged price must match it within the configured tolerance.
	AgreedPrice int64  `json:"agreed_price"`
	Currency    string `json:"currency"`

	// AgentID and TransactionID are forwarded for the upstream's records.
	AgentID       string `json:"agent_id"`
	TransactionID string `json:"transaction_id"`

	DryRun bool `json:"dry_run,omitempty"`
}

// Config holds common configuration for adapters.
// Vendor-specific settings live in each property's adapter_config blob.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}
