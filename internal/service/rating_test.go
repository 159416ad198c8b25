package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ridecontract/internal/domain"
)

func ratedRide(driverRating, riderRating *domain.Rating) *domain.Ride {
	return &domain.Ride{
		DriverRating: domain.FromPtr(driverRating),
		RiderRating:  domain.FromPtr(riderRating),
	}
}

func rating(v domain.Rating) *domain.Rating { return &v }

func TestAverageRating(t *testing.T) {
	tests := []struct {
		name  string
		rides []*domain.Ride
		role  domain.Role
		want  domain.Option[domain.Rating]
	}{
		{
			name: "empty input",
			role: domain.RoleDriver,
			want: domain.None[domain.Rating](),
		},
		{
			name: "integer division",
			rides: []*domain.Ride{
				ratedRide(rating(4), nil),
				ratedRide(rating(5), nil),
				ratedRide(rating(3), nil),
			},
			role: domain.RoleDriver,
			want: domain.Some(domain.Rating(4)),
		},
		{
			name: "unrated rides are skipped",
			rides: []*domain.Ride{
				ratedRide(rating(2), nil),
				ratedRide(nil, rating(5)),
				nil,
			},
			role: domain.RoleDriver,
			want: domain.Some(domain.Rating(2)),
		},
		{
			name: "rider role reads rider ratings",
			rides: []*domain.Ride{
				ratedRide(rating(5), rating(1)),
				ratedRide(rating(5), rating(2)),
			},
			role: domain.RoleRider,
			want: domain.Some(domain.Rating(1)),
		},
		{
			name:  "no rating for role",
			rides: []*domain.Ride{ratedRide(rating(5), nil)},
			role:  domain.RoleRider,
			want:  domain.None[domain.Rating](),
		},
		{
			name:  "zero ratings count",
			rides: []*domain.Ride{ratedRide(rating(0), nil), ratedRide(rating(1), nil)},
			role:  domain.RoleDriver,
			want:  domain.Some(domain.Rating(0)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AverageRating(tt.rides, tt.role))
		})
	}
}
