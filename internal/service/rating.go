package service

import (
	"context"

	"ridecontract/internal/domain"
)

// AverageRating averages the ratings given to the role across rides using
// integer division. It returns None when no ride carries such a rating.
func AverageRating(rides []*domain.Ride, role domain.Role) domain.Option[domain.Rating] {
	var sum, count uint64
	for _, ride := range rides {
		if ride == nil {
			continue
		}

		rating := ride.RiderRating
		if role == domain.RoleDriver {
			rating = ride.DriverRating
		}
		if value, ok := rating.Get(); ok {
			sum += uint64(value)
			count++
		}
	}

	if count == 0 {
		return domain.None[domain.Rating]()
	}
	return domain.Some(domain.Rating(sum / count))
}

// GetDriverAvgRating returns the average rating riders gave to driver.
func (s *ContractService) GetDriverAvgRating(ctx context.Context, driver domain.Identity) (domain.Option[domain.Rating], error) {
	return s.averageFor(ctx, driver, domain.RoleDriver)
}

// GetRiderAvgRating returns the average rating drivers gave to rider.
func (s *ContractService) GetRiderAvgRating(ctx context.Context, rider domain.Identity) (domain.Option[domain.Rating], error) {
	return s.averageFor(ctx, rider, domain.RoleRider)
}

func (s *ContractService) averageFor(ctx context.Context, subject domain.Identity, role domain.Role) (domain.Option[domain.Rating], error) {
	if subject == "" {
		return domain.None[domain.Rating](), ErrInvalidCaller
	}

	rides, err := s.store.Rides().ListRated(ctx, subject, role)
	if err != nil {
		return domain.None[domain.Rating](), err
	}
	return AverageRating(rides, role), nil
}
