package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"relove/market/internal/cache"
	"relove/market/internal/db"
	"relove/market/internal/models"
)

// IProductService defines the interface for product listing operations.
type IProductService interface {
	Create(ctx context.Context, product *models.Product) (*models.Product, error)
	FindByID(ctx context.Context, productID primitive.ObjectID) (*models.Product, error)
	ListUnsold(ctx context.Context) ([]models.Product, error)
	ListAll(ctx context.Context) ([]models.Product, error)
	ListByCategory(ctx context.Context, category string) ([]models.Product, error)
	ListBySeller(ctx context.Context, sellerEmail string) ([]models.Product, error)
	ListAdvertised(ctx context.Context) ([]models.Product, error)
	ListReported(ctx context.Context) ([]models.Product, error)
	Advertise(ctx context.Context, productID primitive.ObjectID) error
	Report(ctx context.Context, productID primitive.ObjectID) error
	Delete(ctx context.Context, productID primitive.ObjectID) error
	AttachImage(ctx context.Context, productID primitive.ObjectID, imageKey string) error
	Categories(ctx context.Context) ([]models.Category, error)
	EnsureDefaultCategories(ctx context.Context) error
}

const (
	productsCollection   = "products"
	categoriesCollection = "categories"
)

// DefaultCategories seed the read-only reference collection on first boot.
var DefaultCategories = []string{"Furniture", "Electronics", "Vehicles", "Books", "Clothing"}

// productService implements IProductService.
type productService struct {
	db            *mongo.Database
	categoryCache *cache.CategoryCache // may be nil; cache is best effort
}

// NewProductService creates a new ProductService.
func NewProductService(db *mongo.Database, categoryCache *cache.CategoryCache) IProductService {
	return &productService{db: db, categoryCache: categoryCache}
}

// Create inserts a new product listing with every status flag false.
func (s *productService) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	collection := s.db.Collection(productsCollection)

	product.Advertisement = false
	product.Reported = false
	product.Booked = false
	product.Sold = false
	if product.PublishedDate.IsZero() {
		product.PublishedDate = time.Now().UTC()
	}

	operation := func() error {
		product.ID = primitive.NewObjectID()
		_, insertErr := collection.InsertOne(ctx, product)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert product for seller %s: %w", product.SellerEmail, err)
	}
	return product, nil
}

// FindByID returns a single product by its id.
func (s *productService) FindByID(ctx context.Context, productID primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	err := s.db.Collection(productsCollection).FindOne(ctx, bson.M{"_id": productID}).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding product %s: %w", productID.Hex(), err)
	}
	return &product, nil
}

// find runs a filtered query sorted newest first.
func (s *productService) find(ctx context.Context, filter bson.M) ([]models.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "published_date", Value: -1}})
	cursor, err := s.db.Collection(productsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("product query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err = cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

// ListUnsold returns every product not yet sold, newest first. The sold flag
// may be absent on documents written by earlier snapshots, hence $ne.
func (s *productService) ListUnsold(ctx context.Context) ([]models.Product, error) {
	return s.find(ctx, bson.M{"sold": bson.M{"$ne": true}})
}

// ListAll returns every product regardless of status (admin view).
func (s *productService) ListAll(ctx context.Context) ([]models.Product, error) {
	return s.find(ctx, bson.M{})
}

// ListByCategory returns unsold products in a category, newest first.
func (s *productService) ListByCategory(ctx context.Context, category string) ([]models.Product, error) {
	return s.find(ctx, bson.M{"category": category, "sold": bson.M{"$ne": true}})
}

// ListBySeller returns all of a seller's products, sold or not.
func (s *productService) ListBySeller(ctx context.Context, sellerEmail string) ([]models.Product, error) {
	return s.find(ctx, bson.M{"seller_email": sellerEmail})
}

// ListAdvertised returns unsold products flagged for promoted placement.
func (s *productService) ListAdvertised(ctx context.Context) ([]models.Product, error) {
	return s.find(ctx, bson.M{"advertisement": true, "sold": bson.M{"$ne": true}})
}

// ListReported returns products flagged by buyers for admin review.
func (s *productService) ListReported(ctx context.Context) ([]models.Product, error) {
	return s.find(ctx, bson.M{"reported": true})
}

// setFlag flips a single status flag on a product. Re-applying is a no-op
// (MatchedCount still 1), so the operation is idempotent.
func (s *productService) setFlag(ctx context.Context, productID primitive.ObjectID, field string) error {
	result, err := s.db.Collection(productsCollection).UpdateByID(ctx, productID, bson.M{"$set": bson.M{field: true}})
	if err != nil {
		return fmt.Errorf("db error setting %s on product %s: %w", field, productID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Advertise marks a product for promoted listing placement.
func (s *productService) Advertise(ctx context.Context, productID primitive.ObjectID) error {
	return s.setFlag(ctx, productID, "advertisement")
}

// Report flags a product for admin review.
func (s *productService) Report(ctx context.Context, productID primitive.ObjectID) error {
	return s.setFlag(ctx, productID, "reported")
}

// Delete removes a product listing. There is deliberately no guard against
// deleting a booked or sold product; the reconciler treats a missing product
// as a dead reference.
func (s *productService) Delete(ctx context.Context, productID primitive.ObjectID) error {
	result, err := s.db.Collection(productsCollection).DeleteOne(ctx, bson.M{"_id": productID})
	if err != nil {
		return fmt.Errorf("db error deleting product %s: %w", productID.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// AttachImage stores the processed image key on a product.
func (s *productService) AttachImage(ctx context.Context, productID primitive.ObjectID, imageKey string) error {
	result, err := s.db.Collection(productsCollection).UpdateByID(ctx, productID, bson.M{"$set": bson.M{"image": imageKey}})
	if err != nil {
		return fmt.Errorf("db error attaching image to product %s: %w", productID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Categories returns the static category list, served from the Redis cache
// when warm.
func (s *productService) Categories(ctx context.Context) ([]models.Category, error) {
	if cached, ok := s.categoryCache.Get(ctx); ok {
		return cached, nil
	}

	cursor, err := s.db.Collection(categoriesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer cursor.Close(ctx)

	var categories []models.Category
	if err = cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}

	s.categoryCache.Set(ctx, categories)
	return categories, nil
}

// EnsureDefaultCategories seeds the reference collection when it is empty.
func (s *productService) EnsureDefaultCategories(ctx context.Context) error {
	collection := s.db.Collection(categoriesCollection)
	count, err := collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(DefaultCategories))
	for _, name := range DefaultCategories {
		docs = append(docs, models.Category{ID: primitive.NewObjectID(), Name: name})
	}
	if _, err := collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	return nil
}
