package booking

import "fmt"

// PricingStrategy defines the interface for quoting a booking at creation time.
type PricingStrategy interface {
	// Calculate returns the quoted total in minor currency units.
	Calculate(params PricingParams) (int64, error)
}

// PricingParams holds the inputs for price calculation.
type PricingParams struct {
	EntityType EntityType
	Guests     int
}

// StandardPricingStrategy charges a per-guest tariff per entity type. Listing-specific
// prices live in the catalogue service; this tariff is the booking service's quote.
type StandardPricingStrategy struct {
	perGuestCents map[EntityType]int64
}

// NewStandardPricingStrategy creates a StandardPricingStrategy from per-guest rates in
// minor units. Missing entity types are quoted at zero (price on request).
func NewStandardPricingStrategy(perGuestCents map[EntityType]int64) *StandardPricingStrategy {
	rates := make(map[EntityType]int64, len(perGuestCents))
	for k, v := range perGuestCents {
		rates[k] = v
	}
	return &StandardPricingStrategy{perGuestCents: rates}
}

// Calculate computes the quote: rate(entityType) * guests.
func (s *StandardPricingStrategy) Calculate(params PricingParams) (int64, error) {
	if !params.EntityType.IsValid() {
		return 0, fmt.Errorf("unknown entity type for pricing: %s", params.EntityType)
	}
	if params.Guests < 1 {
		return 0, fmt.Errorf("guests must be positive")
	}
	rate := s.perGuestCents[params.EntityType]
	if rate < 0 {
		return 0, fmt.Errorf("negative rate configured for %s", params.EntityType)
	}
	return rate * int64(params.Guests), nil
}
