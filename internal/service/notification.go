package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ridecontract/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRideRequested   NotificationType = "RIDE_REQUESTED"
	NotificationRideAccepted    NotificationType = "RIDE_ACCEPTED"
	NotificationRideCompleted   NotificationType = "RIDE_COMPLETED"
	NotificationRideDisputed    NotificationType = "RIDE_DISPUTED"
	NotificationDisputeResolved NotificationType = "DISPUTE_RESOLVED"
	NotificationPaymentReleased NotificationType = "PAYMENT_RELEASED"
	NotificationRideCancelled   NotificationType = "RIDE_CANCELLED"
	NotificationRideUpdated     NotificationType = "RIDE_UPDATED"
	NotificationFundsAdded      NotificationType = "FUNDS_ADDED"
	NotificationRefundIssued    NotificationType = "REFUND_ISSUED"
	NotificationRatingReceived  NotificationType = "RATING_RECEIVED"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RideID      string           `json:"ride_id"`
	RecipientID domain.Identity  `json:"recipient_id"`
	ActorID     domain.Identity  `json:"actor_id"`
	Message     string           `json:"message"`
	Amount      uint64           `json:"amount,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Publisher delivers serialized notifications to subscribers.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// NotificationService logs contract events and publishes them to subscribers.
type NotificationService struct {
	logger    *slog.Logger
	publisher Publisher
}

// NewNotificationService creates a new NotificationService. publisher may be nil.
func NewNotificationService(logger *slog.Logger, publisher Publisher) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{logger: logger, publisher: publisher}
}

// NotifyRideRequested records that a rider opened a new ride.
func (s *NotificationService) NotifyRideRequested(ctx context.Context, ride *domain.Ride) error {
	return s.send(ctx, Notification{
		Type:        NotificationRideRequested,
		RideID:      ride.ID,
		RecipientID: ride.Rider,
		ActorID:     ride.Rider,
		Message:     fmt.Sprintf("Ride requested at price %d", ride.Price),
	})
}

// NotifyTransition notifies the counterparty of caller about a completed
// transition. settled is the escrow movement the transition made, if any.
func (s *NotificationService) NotifyTransition(ctx context.Context, op Operation, ride *domain.Ride, caller domain.Identity, settled *Settlement) error {
	notification := Notification{
		Type:    notificationTypes[op],
		RideID:  ride.ID,
		ActorID: caller,
		Message: transitionMessages[op],
	}
	if notification.Type == "" {
		return nil
	}

	if settled != nil {
		notification.Amount = settled.Amount
		if settled.Kind != domain.TransferDeposit {
			notification.RecipientID = settled.Party
			return s.send(ctx, notification)
		}
	}

	// Notify the other party.
	if caller == ride.Rider {
		driver, ok := ride.Driver.Get()
		if !ok {
			return nil // No one to notify
		}
		notification.RecipientID = driver
	} else {
		notification.RecipientID = ride.Rider
	}
	return s.send(ctx, notification)
}

var notificationTypes = map[Operation]NotificationType{
	OpAcceptRide:            NotificationRideAccepted,
	OpCompleteRide:          NotificationRideCompleted,
	OpMarkRideComplete:      NotificationRideCompleted,
	OpDisputeRide:           NotificationRideDisputed,
	OpResolveDispute:        NotificationDisputeResolved,
	OpReleasePayment:        NotificationPaymentReleased,
	OpCancelRide:            NotificationRideCancelled,
	OpUpdateRideDestination: NotificationRideUpdated,
	OpUpdateRidePrice:       NotificationRideUpdated,
	OpAddFunds:              NotificationFundsAdded,
	OpRequestRefund:         NotificationRefundIssued,
	OpRateDriver:            NotificationRatingReceived,
	OpRateRider:             NotificationRatingReceived,
}

var transitionMessages = map[Operation]string{
	OpAcceptRide:            "A driver accepted the ride",
	OpCompleteRide:          "The driver completed the ride",
	OpMarkRideComplete:      "The driver completed the ride",
	OpDisputeRide:           "The rider disputed the ride",
	OpResolveDispute:        "The dispute has been resolved",
	OpReleasePayment:        "Payment has been released",
	OpCancelRide:            "The ride has been cancelled",
	OpUpdateRideDestination: "The rider changed the destination",
	OpUpdateRidePrice:       "The rider changed the price",
	OpAddFunds:              "The rider added funds to the escrow",
	OpRequestRefund:         "The escrow has been refunded",
	OpRateDriver:            "You received a rating",
	OpRateRider:             "You received a rating",
}

// send logs the notification and publishes it when a publisher is configured.
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	notification.ID = uuid.New().String()
	notification.CreatedAt = time.Now().UTC()

	s.logger.InfoContext(ctx, "ride contract notification",
		slog.String("type", string(notification.Type)),
		slog.String("ride_id", notification.RideID),
		slog.String("recipient", string(notification.RecipientID)),
		slog.Uint64("amount", notification.Amount),
	)

	if s.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to publish notification",
			slog.String("type", string(notification.Type)),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
