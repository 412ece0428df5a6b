package pms

import (
	"context"
	"encoding/json"
	"log/slog"

	"acp-gateway/internal/adapter"
	"acp-gateway/internal/model"
	"acp-gateway/internal/resilience"
)

// defaultPriceTolerancePct is how far the charged price may drift above
// the agreed price before the booking is rejected.
const defaultPriceTolerancePct = 1.0

// Adapter implements adapter.Adapter against a PMS installation, with the
// full resilience wrapper: circuit breaking, rate-limit retries,
// availability caching, and credential refresh.
type Adapter struct {
	client       *Client
	executor     *resilience.Executor
	tokens       *resilience.TokenSource
	cache        resilience.AvailabilityCache
	tolerancePct float64
	logger       *slog.Logger
}

// New wires a PMS adapter. The cache may be nil to disable availability
// caching.
func New(cfg adapter.Config, cache resilience.AvailabilityCache, logger *slog.Logger) *Adapter {
	client := NewClient(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret)
	return &Adapter{
		client:       client,
		executor:     resilience.NewExecutor("pms", logger),
		tokens:       resilience.NewTokenSource(client.FetchToken),
		cache:        cache,
		tolerancePct: defaultPriceTolerancePct,
		logger:       logger,
	}
}

// CheckAvailability answers from the cache when it can, otherwise calls
// the upstream under the resilience wrapper and caches the result.
func (a *Adapter) CheckAvailability(ctx context.Context, entityID string, terms *model.StayTerms) ([]model.RoomOption, error) {
	key := resilience.CacheKey(entityID, terms.CheckIn, terms.CheckOut, terms.RoomType)
	if a.cache != nil {
		if raw, ok, err := a.cache.Get(ctx, key); err == nil && ok {
			var options []model.RoomOption
			if err := json.Unmarshal(raw, &options); err == nil {
				return options, nil
			}
			// Corrupt entry; fall through to the upstream.
		}
	}

	var rooms []roomEntry
	err := a.executor.Do(ctx, func(ctx context.Context) error {
		token, err := a.tokens.Token(ctx)
		if err != nil {
			return err
		}
		rooms, err = a.client.GetAvailability(ctx, token, entityID, terms)
		return err
	})
	if err != nil {
		return nil, err
	}

	options := make([]model.RoomOption, 0, len(rooms))
	for _, r := range rooms {
		options = append(options, model.RoomOption{
			RoomType:  r.RoomType,
			Price:     r.Rate.AmountMinor,
			Currency:  r.Rate.Currency,
			Available: r.Available,
		})
	}

	if a.cache != nil {
		raw, err := json.Marshal(options)
		if err == nil {
			if cerr := a.cache.Set(ctx, key, raw, resilience.DefaultAvailabilityTTL); cerr != nil {
				a.logger.Warn("caching availability", "entity_id", entityID, "error", cerr)
			}
		}
	}
	return options, nil
}

// CreateBooking commits a reservation and enforces the price tolerance on
// the charged amount. A successful real booking invalidates the entity's
// cached availability.
func (a *Adapter) CreateBooking(ctx context.Context, req *adapter.CreateBookingRequest) (*model.BookingResult, error) {
	breq := &bookingRequest{
		CheckIn:      req.Terms.CheckIn,
		CheckOut:     req.Terms.CheckOut,
		RoomType:     req.Terms.RoomType,
		Guests:       req.Terms.Guests,
		TotalMinor:   req.AgreedPrice,
		Currency:     req.Currency,
		Reference:    req.TransactionID,
		AgentRef:     req.AgentID,
		ValidateOnly: req.DryRun,
	}

	var resp *bookingResponse
	err := a.executor.Do(ctx, func(ctx context.Context) error {
		token, err := a.tokens.Token(ctx)
		if err != nil {
			return err
		}
		resp, err = a.client.CreateBooking(ctx, token, req.EntityID, breq)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !model.WithinTolerance(req.AgreedPrice, resp.ChargedMinor, a.tolerancePct) {
		a.logger.Warn("upstream price outside tolerance",
			"entity_id", req.EntityID,
			"agreed", req.AgreedPrice,
			"charged", resp.ChargedMinor)
		return nil, model.NewPriceMismatchError(req.AgreedPrice, resp.ChargedMinor, req.Currency)
	}

	if req.DryRun {
		return &model.BookingResult{
			ChargedPrice:       resp.ChargedMinor,
			Currency:           resp.Currency,
			DryRun:             true,
			WouldCreateBooking: resp.Valid,
		}, nil
	}

	if a.cache != nil {
		if cerr := a.cache.InvalidateEntity(ctx, req.EntityID); cerr != nil {
			a.logger.Warn("invalidating availability cache", "entity_id", req.EntityID, "error", cerr)
		}
	}

	return &model.BookingResult{
		ConfirmationCode: resp.ConfirmationCode,
		ChargedPrice:     resp.ChargedMinor,
		Currency:         resp.Currency,
	}, nil
}

// CircuitState exposes the breaker state for health reporting.
func (a *Adapter) CircuitState() string {
	return a.executor.CircuitState()
}

// Verify Adapter implements the interface at compile time.
var _ adapter.Adapter = (*Adapter)(nil)
