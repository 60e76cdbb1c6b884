package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

func setupBookingTest(t *testing.T) (services.IBookingService, services.IProductService, *mongo.Database) {
	db := utils.SetupTestDB(t, "test_market_bookings", "bookings", "products", "payments")
	return services.NewBookingService(db, nil), services.NewProductService(db, nil), db
}

func TestBookingService_Book_FlagsProduct(t *testing.T) {
	bookings, products, _ := setupBookingTest(t)
	ctx := context.Background()

	product, err := products.Create(ctx, &models.Product{Name: "Desk", SellerEmail: "seller@example.com"})
	require.NoError(t, err)

	booking, err := bookings.Book(ctx, &models.Booking{
		ProductID:  product.ID.Hex(),
		BuyerEmail: "buyer@example.com",
		Paid:       true, // must be reset
	})
	require.NoError(t, err)
	require.False(t, booking.ID.IsZero())
	assert.False(t, booking.Paid)
	assert.False(t, booking.CreatedAt.IsZero())

	stored, err := products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, stored.Booked)
}

// The booking insert must survive even when the product side of the sequence
// cannot be applied.
func TestBookingService_Book_SurvivesMissingProduct(t *testing.T) {
	bookings, _, db := setupBookingTest(t)
	ctx := context.Background()

	ghostProduct := primitive.NewObjectID().Hex()
	booking, err := bookings.Book(ctx, &models.Booking{
		ProductID:  ghostProduct,
		BuyerEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	count, err := db.Collection("bookings").CountDocuments(ctx, bson.M{"_id": booking.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// Deleting a booking leaves the product flagged; the reconcile pass is the
// repair path.
func TestBookingService_Delete_LeavesProductFlagged(t *testing.T) {
	bookings, products, _ := setupBookingTest(t)
	ctx := context.Background()

	product, err := products.Create(ctx, &models.Product{Name: "Chair"})
	require.NoError(t, err)
	booking, err := bookings.Book(ctx, &models.Booking{ProductID: product.ID.Hex(), BuyerEmail: "b@example.com"})
	require.NoError(t, err)

	require.NoError(t, bookings.Delete(ctx, booking.ID))

	stored, err := products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, stored.Booked)
}

func TestBookingService_Delete_NotFound(t *testing.T) {
	bookings, _, _ := setupBookingTest(t)
	err := bookings.Delete(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestBookingService_ListByBuyer(t *testing.T) {
	bookings, products, _ := setupBookingTest(t)
	ctx := context.Background()

	p1, err := products.Create(ctx, &models.Product{Name: "A"})
	require.NoError(t, err)
	p2, err := products.Create(ctx, &models.Product{Name: "B"})
	require.NoError(t, err)

	_, err = bookings.Book(ctx, &models.Booking{ProductID: p1.ID.Hex(), BuyerEmail: "mine@example.com"})
	require.NoError(t, err)
	_, err = bookings.Book(ctx, &models.Booking{ProductID: p2.ID.Hex(), BuyerEmail: "mine@example.com"})
	require.NoError(t, err)
	_, err = bookings.Book(ctx, &models.Booking{ProductID: p2.ID.Hex(), BuyerEmail: "other@example.com"})
	require.NoError(t, err)

	mine, err := bookings.ListByBuyer(ctx, "mine@example.com")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestBookingService_Reconcile_RepairsDivergedFlags(t *testing.T) {
	bookings, products, db := setupBookingTest(t)
	ctx := context.Background()

	// Case 1: unpaid booking whose product missed the booked flag.
	missedFlag, err := products.Create(ctx, &models.Product{Name: "MissedFlag"})
	require.NoError(t, err)
	_, err = db.Collection("bookings").InsertOne(ctx, models.Booking{
		ID:         primitive.NewObjectID(),
		ProductID:  missedFlag.ID.Hex(),
		BuyerEmail: "b@example.com",
	})
	require.NoError(t, err)

	// Case 2: product flagged booked with no live booking.
	stale, err := products.Create(ctx, &models.Product{Name: "Stale"})
	require.NoError(t, err)
	_, err = db.Collection("products").UpdateByID(ctx, stale.ID, bson.M{"$set": bson.M{"booked": true}})
	require.NoError(t, err)

	// Case 3: paid payment whose booking and product missed the cascade.
	missedCascade, err := products.Create(ctx, &models.Product{Name: "MissedCascade"})
	require.NoError(t, err)
	_, err = db.Collection("bookings").InsertOne(ctx, models.Booking{
		ID:         primitive.NewObjectID(),
		ProductID:  missedCascade.ID.Hex(),
		BuyerEmail: "c@example.com",
	})
	require.NoError(t, err)
	_, err = db.Collection("payments").InsertOne(ctx, models.Payment{
		ID:            primitive.NewObjectID(),
		ProductID:     missedCascade.ID.Hex(),
		TransactionID: "txn_replay",
		Paid:          true,
	})
	require.NoError(t, err)

	stats, err := bookings.Reconcile(ctx)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.BookedFlagsSet, 1)
	assert.Equal(t, 1, stats.BookedFlagsCleared)
	assert.Equal(t, 1, stats.CascadesReplayed)

	repaired, err := products.FindByID(ctx, missedFlag.ID)
	require.NoError(t, err)
	assert.True(t, repaired.Booked)

	cleared, err := products.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, cleared.Booked)

	soldNow, err := products.FindByID(ctx, missedCascade.ID)
	require.NoError(t, err)
	assert.True(t, soldNow.Sold)

	var replayedBooking models.Booking
	err = db.Collection("bookings").FindOne(ctx, bson.M{"product_id": missedCascade.ID.Hex()}).Decode(&replayedBooking)
	require.NoError(t, err)
	assert.True(t, replayedBooking.Paid)
	assert.Equal(t, "txn_replay", replayedBooking.TransactionID)
}
