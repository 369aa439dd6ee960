package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type mockNotificationStore struct {
	mu      sync.Mutex
	created []*models.Notification
	marked  []string
	markErr error
}

func (m *mockNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.created {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *mockNotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, id)
	return nil
}

func (m *mockNotificationStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func TestNotificationRecordPersistsAsync(t *testing.T) {
	store := &mockNotificationStore{}
	svc := NewNotificationService(store, NotificationServiceConfig{Enabled: true, Workers: 1, QueueSize: 4}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	err := svc.Record(context.Background(), &models.Notification{UserID: "u1", Type: models.NotificationInvitationCreated, Message: "hi"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotificationRecordDisabledIsNoop(t *testing.T) {
	store := &mockNotificationStore{}
	svc := NewNotificationService(store, NotificationServiceConfig{Enabled: false}, zap.NewNop())

	err := svc.Record(context.Background(), &models.Notification{UserID: "u1", Type: models.NotificationJoinRequested})
	require.NoError(t, err)
	assert.Zero(t, store.count())
}

func TestNotificationRecordRequiresUserAndType(t *testing.T) {
	store := &mockNotificationStore{}
	svc := NewNotificationService(store, NotificationServiceConfig{Enabled: true, Workers: 1}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	err := svc.Record(context.Background(), &models.Notification{Message: "missing fields"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestNotificationListScopedToCaller(t *testing.T) {
	store := &mockNotificationStore{created: []*models.Notification{
		{ID: "n1", UserID: "u1", Type: models.NotificationWorkflowAccepted},
		{ID: "n2", UserID: "u2", Type: models.NotificationWorkflowAccepted},
	}}
	svc := NewNotificationService(store, NotificationServiceConfig{Enabled: true}, zap.NewNop())

	items, err := svc.List(context.Background(), &models.JWTClaims{UserID: "u1"}, false, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n1", items[0].ID)
}

func TestNotificationMarkReadRequiresClaims(t *testing.T) {
	svc := NewNotificationService(&mockNotificationStore{}, NotificationServiceConfig{Enabled: true}, zap.NewNop())

	err := svc.MarkRead(context.Background(), "n1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
