// util/notification_service.go

package util

import (
	"context"

	"go.uber.org/zap"

	logger "github.com/harborgrid-justin/lithic-sub009/logging"
)

// Notifier is the best-effort notification collaborator. Failures are
// never fatal to the caller.
type Notifier interface {
	NotifyAdmins(ctx context.Context, message string) error
	NotifyUser(ctx context.Context, userID, message string) error
}

// NotificationService is the default Notifier: it logs. Deployments wire
// a real delivery channel (queue, email) behind the same interface.
type NotificationService struct{}

var _ Notifier = &NotificationService{}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

func (n *NotificationService) NotifyAdmins(ctx context.Context, message string) error {
	logger.Info("NOTIFICATION: admins", zap.String("message", message))
	return nil
}

func (n *NotificationService) NotifyUser(ctx context.Context, userID, message string) error {
	logger.Info("NOTIFICATION: user",
		zap.String("userId", userID),
		zap.String("message", message))
	return nil
}
