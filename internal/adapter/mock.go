package adapter

import (
	"context"

	"acp-gateway/internal/model"
)

// Mock implements Adapter for testing.
// Each method can be configured via function fields.
type Mock struct {
	CheckAvailabilityFunc func(ctx context.Context, entityID string, terms *model.StayTerms) ([]model.RoomOption, error)
	CreateBookingFunc     func(ctx context.Context, req *CreateBookingRequest) (*model.BookingResult, error)
}

// CheckAvailability calls the configured CheckAvailabilityFunc or returns
// no availability.
func (m *Mock) CheckAvailability(ctx context.Context, entityID string, terms *model.StayTerms) ([]model.RoomOption, error) {
	if m.CheckAvailabilityFunc != nil {
		return m.CheckAvailabilityFunc(ctx, entityID, terms)
	}
	return nil, nil
}

// CreateBooking calls the configured CreateBookingFunc or returns an error.
func (m *Mock) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*model.BookingResult, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// Verify Mock implements Adapter interface at compile time.
var _ Adapter = (*Mock)(nil)
