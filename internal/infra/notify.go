package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
)

// StoreNotifier implements domain.NotificationScheduler by writing the
// (fireAt, prayer) pairs to the shared store for the platform notification
// scheduler to pick up. Fire-and-forget: the platform owns delivery.
type StoreNotifier struct {
	persister *PersistenceAdapter
	logger    *zap.Logger
}

// NewStoreNotifier creates a store-backed notification scheduler.
func NewStoreNotifier(persister *PersistenceAdapter, logger *zap.Logger) *StoreNotifier {
	return &StoreNotifier{persister: persister, logger: logger}
}

// Schedule hands the notification list to the platform scheduler verbatim.
func (n *StoreNotifier) Schedule(ctx context.Context, notes []domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.persister.SaveNotifications(notes); err != nil {
		return err
	}
	n.logger.Debug("notifications scheduled", zap.Int("count", len(notes)))
	return nil
}

// Ensure StoreNotifier implements domain.NotificationScheduler.
var _ domain.NotificationScheduler = (*StoreNotifier)(nil)
