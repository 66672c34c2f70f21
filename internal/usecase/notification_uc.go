package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"notification-service/internal/domain"
	"notification-service/internal/repository"
)

// Pusher is the slice of the session registry the usecase needs: one
// best-effort batched fan-out call per event.
type Pusher interface {
	PushToUsers(userIDs []string, payload any)
}

type NotificationUsecase struct {
	repo   repository.Repository
	pusher Pusher
	logger *zap.Logger
}

func NewNotificationUsecase(r repository.Repository, p Pusher, logger *zap.Logger) *NotificationUsecase {
	return &NotificationUsecase{
		repo:   r,
		pusher: p,
		logger: logger,
	}
}

// CreateForRecipients persists one notification row per recipient in a
// single batch, then issues exactly one push fan-out carrying the whole
// batch. Persistence strictly precedes push so a client that receives the
// push can immediately query the durable record. A persistence failure
// aborts the push; whether the event is retried is the broker's call.
func (uc *NotificationUsecase) CreateForRecipients(
	ctx context.Context,
	recipientIDs []string,
	notifType, title, body string,
	metadata map[string]any,
) ([]*domain.Notification, error) {
	if len(recipientIDs) == 0 {
		return nil, nil
	}

	rows := make([]*domain.Notification, 0, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		rows = append(rows, &domain.Notification{
			RecipientID: recipientID,
			Type:        notifType,
			Title:       title,
			Body:        body,
			Metadata:    metadata,
			Read:        false,
		})
	}

	created, err := uc.repo.CreateBatch(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("persist notification batch: %w", err)
	}

	uc.pusher.PushToUsers(recipientIDs, domain.NewPushFrame(created))

	uc.logger.Info("notifications created",
		zap.String("type", notifType),
		zap.Int("recipients", len(created)))
	return created, nil
}

// List returns one page of the caller's notifications, newest first,
// together with the total row count and the unread count.
func (uc *NotificationUsecase) List(ctx context.Context, userID string, limit, offset int) (*domain.NotificationPage, error) {
	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := uc.repo.ListByRecipient(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := uc.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*domain.Notification{}
	}

	return &domain.NotificationPage{
		Notifications: rows,
		Total:         total,
		UnreadCount:   unread,
	}, nil
}

func (uc *NotificationUsecase) CountUnread(ctx context.Context, userID string) (int, error) {
	return uc.repo.CountUnread(ctx, userID)
}

// MarkAsRead flips one notification to read. Returns ErrNotFound when the
// id does not exist or belongs to another user; the two are
// indistinguishable to the caller.
func (uc *NotificationUsecase) MarkAsRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	return uc.repo.MarkAsRead(ctx, id, userID)
}

func (uc *NotificationUsecase) MarkAllAsRead(ctx context.Context, userID string) error {
	return uc.repo.MarkAllAsRead(ctx, userID)
}

func (uc *NotificationUsecase) Delete(ctx context.Context, id, userID string) error {
	return uc.repo.Delete(ctx, id, userID)
}
