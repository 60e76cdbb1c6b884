package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/models"
	"relove/market/internal/services"
)

// --- Mocks ---

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Upsert(ctx context.Context, email string, profile bson.M) (*mongo.UpdateResult, error) {
	args := m.Called(ctx, email, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mongo.UpdateResult), args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) Verify(ctx context.Context, userID primitive.ObjectID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) Delete(ctx context.Context, userID primitive.ObjectID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockProductService
type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductService) FindByID(ctx context.Context, productID primitive.ObjectID) (*models.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductService) ListUnsold(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductService) ListAll(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductService) ListByCategory(ctx context.Context, category string) ([]models.Product, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductService) ListBySeller(ctx context.Context, sellerEmail string) ([]models.Product, error) {
	args := m.Called(ctx, sellerEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductService) ListAdvertised(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductService) ListReported(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductService) Advertise(ctx context.Context, productID primitive.ObjectID) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *MockProductService) Report(ctx context.Context, productID primitive.ObjectID) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *MockProductService) Delete(ctx context.Context, productID primitive.ObjectID) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *MockProductService) AttachImage(ctx context.Context, productID primitive.ObjectID, imageKey string) error {
	args := m.Called(ctx, productID, imageKey)
	return args.Error(0)
}

func (m *MockProductService) Categories(ctx context.Context) ([]models.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

func (m *MockProductService) EnsureDefaultCategories(ctx context.Context) error {
	args := m.Called(ctx)
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
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockBookingService) Delete(ctx context.Context, bookingID primitive.ObjectID) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

func (m *MockBookingService) Reconcile(ctx context.Context) (services.ReconcileStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(services.ReconcileStats), args.Error(1)
}

// MockPaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreateIntent(ctx context.Context, amount float64, currency string) (*services.PaymentIntent, error) {
	args := m.Called(ctx, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PaymentIntent), args.Error(1)
}

func (m *MockPaymentService) Record(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

// MockTaskQueue
type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) EnqueueReconcile(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskQueue) EnqueueEmail(ctx context.Context, job services.EmailJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockTaskQueue) EnqueueImageResize(ctx context.Context, objectKey string) error {
	args := m.Called(ctx, objectKey)
	return args.Error(0)
}
