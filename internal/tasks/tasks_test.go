package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"relove/market/internal/config"
	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/tasks"
)

// --- Mocks ---

// MockEmailSender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

// MockBookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) Book(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	args := m.Called(ctx, booking)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) FindByID(ctx context.Context, bookingID primitive.ObjectID) (*models.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) ListByBuyer(ctx context.Context, buyerEmail string) ([]models.Booking, error) {
	args := m.Called(ctx, buyerEmail)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockBookingService) Delete(ctx context.Context, bookingID primitive.ObjectID) error {
	return m.Called(ctx, bookingID).Error(0)
}

func (m *MockBookingService) Reconcile(ctx context.Context) (services.ReconcileStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(services.ReconcileStats), args.Error(1)
}

// --- Tests ---

func TestHandleEmailDeliveryTask_BuildsRawMessage(t *testing.T) {
	mockEmailSender := new(MockEmailSender)
	cfg := &config.Config{SmtpFromAddress: "market@example.com"}
	p := tasks.NewTaskProcessor(cfg, mockEmailSender, nil, nil)

	payloadBytes, _ := json.Marshal(services.EmailJob{
		To:      "seller@example.com",
		Subject: "Your item was booked",
		Body:    "A buyer booked your listing.",
	})
	task := asynq.NewTask(tasks.TypeEmailDelivery, payloadBytes)

	mockEmailSender.On("Send",
		mock.Anything,
		[]string{"seller@example.com"},
		"Your item was booked",
		mock.MatchedBy(func(raw []byte) bool {
			msg := string(raw)
			return strings.Contains(msg, "From: market@example.com") &&
				strings.Contains(msg, "Subject: Your item was booked") &&
				strings.Contains(msg, "A buyer booked your listing.")
		}),
	).Return(nil)

	err := p.HandleEmailDeliveryTask(context.Background(), task)
	assert.NoError(t, err)
	mockEmailSender.AssertExpectations(t)
}

func TestHandleEmailDeliveryTask_BadPayloadSkipsRetry(t *testing.T) {
	p := tasks.NewTaskProcessor(&config.Config{}, new(MockEmailSender), nil, nil)

	task := asynq.NewTask(tasks.TypeEmailDelivery, []byte("not-json"))
	err := p.HandleEmailDeliveryTask(context.Background(), task)

	assert.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleEmailDeliveryTask_MissingRecipientSkipsRetry(t *testing.T) {
	p := tasks.NewTaskProcessor(&config.Config{}, new(MockEmailSender), nil, nil)

	payloadBytes, _ := json.Marshal(services.EmailJob{Subject: "no recipient"})
	task := asynq.NewTask(tasks.TypeEmailDelivery, payloadBytes)

	err := p.HandleEmailDeliveryTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleReconcileTask_ReportsStats(t *testing.T) {
	mockBookings := new(MockBookingService)
	p := tasks.NewTaskProcessor(&config.Config{}, new(MockEmailSender), mockBookings, nil)

	mockBookings.On("Reconcile", mock.Anything).Return(services.ReconcileStats{BookedFlagsSet: 2}, nil)

	err := p.HandleReconcileTask(context.Background(), asynq.NewTask(tasks.TypeReconcile, nil))
	assert.NoError(t, err)
	mockBookings.AssertExpectations(t)
}

func TestHandleReconcileTask_PropagatesErrorForRetry(t *testing.T) {
	mockBookings := new(MockBookingService)
	p := tasks.NewTaskProcessor(&config.Config{}, new(MockEmailSender), mockBookings, nil)

	dbErr := errors.New("connection reset")
	mockBookings.On("Reconcile", mock.Anything).Return(services.ReconcileStats{}, dbErr)

	err := p.HandleReconcileTask(context.Background(), asynq.NewTask(tasks.TypeReconcile, nil))
	assert.ErrorIs(t, err, dbErr)
}
