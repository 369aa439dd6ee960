package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
	"github.com/campushq/campus-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationService records domain events per user. Writes go through an
// in-memory worker queue so callers never block on the insert.
type NotificationService struct {
	repo    notificationStore
	queue   *jobs.Queue
	enabled bool
	logger  *zap.Logger
}

// NotificationServiceConfig sizes the background queue.
type NotificationServiceConfig struct {
	Enabled    bool
	Workers    int
	QueueSize  int
	MaxRetries int
}

// NewNotificationService builds a NotificationService. Start must be called
// before Record will accept events.
func NewNotificationService(repo notificationStore, cfg NotificationServiceConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, enabled: cfg.Enabled, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *NotificationService) Stop() {
	if !s.enabled {
		return
	}
	s.queue.Stop()
}

// Record enqueues a notification for asynchronous persistence. A full queue
// is reported to the caller; other services treat that as non-fatal.
func (s *NotificationService) Record(ctx context.Context, n *models.Notification) error {
	if !s.enabled {
		return nil
	}
	if n.UserID == "" || n.Type == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification requires a user and a type")
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    n.Type,
		Payload: n,
	})
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, claims *models.JWTClaims, unreadOnly bool, limit int) ([]models.Notification, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.repo.ListByUser(ctx, claims.UserID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification id is required")
	}
	if err := s.repo.MarkRead(ctx, id, claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Create(ctx, n)
}
