package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

func setupProductService(t *testing.T) (services.IProductService, *mongo.Database) {
	db := utils.SetupTestDB(t, "test_market_products", "products", "categories")
	return services.NewProductService(db, nil), db
}

func TestProductService_Create_ZeroesStatusFlags(t *testing.T) {
	svc, _ := setupProductService(t)
	ctx := context.Background()

	// Flags in the payload must not survive creation.
	created, err := svc.Create(ctx, &models.Product{
		Name:          "Old Bike",
		SellerEmail:   "seller@example.com",
		Category:      "Vehicles",
		ResellPrice:   80,
		Advertisement: true,
		Booked:        true,
		Sold:          true,
		Reported:      true,
	})
	require.NoError(t, err)
	require.False(t, created.ID.IsZero())
	assert.False(t, created.PublishedDate.IsZero())

	stored, err := svc.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.Advertisement)
	assert.False(t, stored.Booked)
	assert.False(t, stored.Sold)
	assert.False(t, stored.Reported)
}

func TestProductService_ListUnsold_ExcludesSoldAndSortsNewestFirst(t *testing.T) {
	svc, db := setupProductService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := svc.Create(ctx, &models.Product{Name: "Oldest", PublishedDate: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &models.Product{Name: "Newest", PublishedDate: now})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &models.Product{Name: "Middle", PublishedDate: now.Add(-24 * time.Hour)})
	require.NoError(t, err)

	sold, err := svc.Create(ctx, &models.Product{Name: "Sold", PublishedDate: now.Add(-time.Hour)})
	require.NoError(t, err)
	// Flip sold directly; Create always zeroes the flag.
	_, err = db.Collection("products").UpdateByID(ctx, sold.ID, bson.M{"$set": bson.M{"sold": true}})
	require.NoError(t, err)

	products, err := svc.ListUnsold(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)

	names := []string{products[0].Name, products[1].Name, products[2].Name}
	assert.Equal(t, []string{"Newest", "Middle", "Oldest"}, names)
}

func TestProductService_AdvertiseAndReport(t *testing.T) {
	svc, _ := setupProductService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &models.Product{Name: "Lamp"})
	require.NoError(t, err)

	require.NoError(t, svc.Advertise(ctx, created.ID))
	// Re-applying the flag is idempotent.
	require.NoError(t, svc.Advertise(ctx, created.ID))
	require.NoError(t, svc.Report(ctx, created.ID))

	stored, err := svc.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Advertisement)
	assert.True(t, stored.Reported)

	assert.ErrorIs(t, svc.Advertise(ctx, primitive.NewObjectID()), mongo.ErrNoDocuments)
}

func TestProductService_EnsureDefaultCategories_SeedsOnce(t *testing.T) {
	svc, _ := setupProductService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureDefaultCategories(ctx))
	require.NoError(t, svc.EnsureDefaultCategories(ctx))

	categories, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, len(services.DefaultCategories))
}
