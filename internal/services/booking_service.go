package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/db"
	"relove/market/internal/models"
)

// IBookingService defines the interface for booking operations and the
// reconciliation contract that repairs the non-atomic write sequences.
type IBookingService interface {
	Book(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindByID(ctx context.Context, bookingID primitive.ObjectID) (*models.Booking, error)
	ListByBuyer(ctx context.Context, buyerEmail string) ([]models.Booking, error)
	Delete(ctx context.Context, bookingID primitive.ObjectID) error
	Reconcile(ctx context.Context) (ReconcileStats, error)
}

const bookingsCollection = "bookings"

// ReconcileStats reports what a reconciliation pass repaired.
type ReconcileStats struct {
	BookedFlagsSet     int
	BookedFlagsCleared int
	CascadesReplayed   int
}

// bookingService implements IBookingService.
type bookingService struct {
	db    *mongo.Database
	queue ITaskQueue // may be nil (tests, bg-only mode)
}

// NewBookingService creates a new BookingService.
func NewBookingService(db *mongo.Database, queue ITaskQueue) IBookingService {
	return &bookingService{db: db, queue: queue}
}

// Book inserts the booking and then flips the product's booked flag in a
// second, independent write. The two writes are not transactional: if the
// product update misses, the booking still exists. The miss is logged and a
// reconciliation task is enqueued to repair it.
func (s *bookingService) Book(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	collection := s.db.Collection(bookingsCollection)
	booking.Paid = false
	booking.CreatedAt = time.Now().UTC()

	operation := func() error {
		booking.ID = primitive.NewObjectID()
		_, insertErr := collection.InsertOne(ctx, booking)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert booking for buyer %s on product %s: %w",
			booking.BuyerEmail, booking.ProductID, err)
	}

	s.markProductBooked(ctx, booking)
	s.notifySeller(ctx, booking)
	return booking, nil
}

// notifySeller queues a booking notification for the product's seller, best
// effort.
func (s *bookingService) notifySeller(ctx context.Context, booking *models.Booking) {
	if s.queue == nil {
		return
	}
	productID, err := primitive.ObjectIDFromHex(booking.ProductID)
	if err != nil {
		return
	}
	var product models.Product
	if err := s.db.Collection(productsCollection).FindOne(ctx, bson.M{"_id": productID}).Decode(&product); err != nil {
		return
	}
	if product.SellerEmail == "" {
		return
	}
	job := EmailJob{
		To:      product.SellerEmail,
		Subject: fmt.Sprintf("Your item %q was booked", product.Name),
		Body: fmt.Sprintf("%s booked %q for %.2f. You will be notified again once payment completes.",
			booking.BuyerEmail, product.Name, booking.ResellPrice),
	}
	if err := s.queue.EnqueueEmail(ctx, job); err != nil {
		log.Printf("WARN: failed to enqueue booking notification for %s: %v", product.SellerEmail, err)
	}
}

// markProductBooked is the second leg of the booking sequence. Misses never
// roll the booking back.
func (s *bookingService) markProductBooked(ctx context.Context, booking *models.Booking) {
	productID, err := primitive.ObjectIDFromHex(booking.ProductID)
	if err != nil {
		log.Printf("WARN: booking %s carries unparseable product id %q; product flag left unset",
			booking.ID.Hex(), booking.ProductID)
		s.requestReconcile(ctx)
		return
	}

	result, err := s.db.Collection(productsCollection).UpdateByID(ctx, productID, bson.M{"$set": bson.M{"booked": true}})
	if err != nil {
		log.Printf("CRITICAL: booking %s inserted but product %s booked-flag update failed: %v",
			booking.ID.Hex(), booking.ProductID, err)
		s.requestReconcile(ctx)
		return
	}
	if result.MatchedCount == 0 {
		log.Printf("WARN: booking %s references product %s which no longer exists", booking.ID.Hex(), booking.ProductID)
		s.requestReconcile(ctx)
	}
}

func (s *bookingService) requestReconcile(ctx context.Context) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueReconcile(ctx); err != nil {
		log.Printf("WARN: failed to enqueue reconciliation task: %v", err)
	}
}

// FindByID returns a single booking.
func (s *bookingService) FindByID(ctx context.Context, bookingID primitive.ObjectID) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.Collection(bookingsCollection).FindOne(ctx, bson.M{"_id": bookingID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding booking %s: %w", bookingID.Hex(), err)
	}
	return &booking, nil
}

// ListByBuyer returns all bookings placed by an email address.
func (s *bookingService) ListByBuyer(ctx context.Context, buyerEmail string) ([]models.Booking, error) {
	cursor, err := s.db.Collection(bookingsCollection).Find(ctx, bson.M{"buyer_email": buyerEmail})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for %s: %w", buyerEmail, err)
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings for %s: %w", buyerEmail, err)
	}
	return bookings, nil
}

// Delete removes a booking. It deliberately does not clear the product's
// booked flag; the periodic reconciliation pass is the documented repair
// path for products left booked with no live booking.
func (s *bookingService) Delete(ctx context.Context, bookingID primitive.ObjectID) error {
	result, err := s.db.Collection(bookingsCollection).DeleteOne(ctx, bson.M{"_id": bookingID})
	if err != nil {
		return fmt.Errorf("db error deleting booking %s: %w", bookingID.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Reconcile repairs the inconsistency windows the non-atomic sequences leave
// behind:
//  1. an unpaid booking whose product shows booked=false gets the flag set;
//  2. a product showing booked=true with no live booking gets the flag
//     cleared (sold products are left alone);
//  3. a paid payment whose booking or product missed the cascade gets the
//     paid/sold updates replayed.
func (s *bookingService) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	products := s.db.Collection(productsCollection)
	bookings := s.db.Collection(bookingsCollection)
	payments := s.db.Collection(paymentsCollection)

	// Pass 1: bookings whose product missed the booked flag.
	cursor, err := bookings.Find(ctx, bson.M{"paid": bson.M{"$ne": true}})
	if err != nil {
		return stats, fmt.Errorf("reconcile: failed to scan bookings: %w", err)
	}
	var openBookings []models.Booking
	if err = cursor.All(ctx, &openBookings); err != nil {
		return stats, fmt.Errorf("reconcile: failed to decode bookings: %w", err)
	}
	liveByProduct := make(map[string]bool, len(openBookings))
	for _, b := range openBookings {
		liveByProduct[b.ProductID] = true
		productID, idErr := primitive.ObjectIDFromHex(b.ProductID)
		if idErr != nil {
			continue
		}
		result, updErr := products.UpdateOne(ctx,
			bson.M{"_id": productID, "booked": bson.M{"$ne": true}},
			bson.M{"$set": bson.M{"booked": true}})
		if updErr != nil {
			log.Printf("WARN: reconcile could not set booked flag for product %s: %v", b.ProductID, updErr)
			continue
		}
		if result.ModifiedCount > 0 {
			stats.BookedFlagsSet++
		}
	}

	// Paid bookings also count as live claims on their product.
	paidCursor, err := bookings.Find(ctx, bson.M{"paid": true})
	if err != nil {
		return stats, fmt.Errorf("reconcile: failed to scan paid bookings: %w", err)
	}
	var paidBookings []models.Booking
	if err = paidCursor.All(ctx, &paidBookings); err != nil {
		return stats, fmt.Errorf("reconcile: failed to decode paid bookings: %w", err)
	}
	for _, b := range paidBookings {
		liveByProduct[b.ProductID] = true
	}

	// Pass 2: products flagged booked with no live booking.
	bookedCursor, err := products.Find(ctx, bson.M{"booked": true, "sold": bson.M{"$ne": true}})
	if err != nil {
		return stats, fmt.Errorf("reconcile: failed to scan booked products: %w", err)
	}
	var bookedProducts []models.Product
	if err = bookedCursor.All(ctx, &bookedProducts); err != nil {
		return stats, fmt.Errorf("reconcile: failed to decode booked products: %w", err)
	}
	for _, p := range bookedProducts {
		if liveByProduct[p.ID.Hex()] {
			continue
		}
		result, updErr := products.UpdateByID(ctx, p.ID, bson.M{"$set": bson.M{"booked": false}})
		if updErr != nil {
			log.Printf("WARN: reconcile could not clear booked flag for product %s: %v", p.ID.Hex(), updErr)
			continue
		}
		if result.ModifiedCount > 0 {
			stats.BookedFlagsCleared++
		}
	}

	// Pass 3: paid payments whose cascade partially missed.
	payCursor, err := payments.Find(ctx, bson.M{"paid": true})
	if err != nil {
		return stats, fmt.Errorf("reconcile: failed to scan payments: %w", err)
	}
	var paidPayments []models.Payment
	if err = payCursor.All(ctx, &paidPayments); err != nil {
		return stats, fmt.Errorf("reconcile: failed to decode payments: %w", err)
	}
	for _, p := range paidPayments {
		replayed := false
		bookingResult, updErr := bookings.UpdateMany(ctx,
			bson.M{"product_id": p.ProductID, "paid": bson.M{"$ne": true}},
			bson.M{"$set": bson.M{"paid": true, "transactionId": p.TransactionID}})
		if updErr == nil && bookingResult.ModifiedCount > 0 {
			replayed = true
		}
		if productID, idErr := primitive.ObjectIDFromHex(p.ProductID); idErr == nil {
			productResult, updErr := products.UpdateOne(ctx,
				bson.M{"_id": productID, "sold": bson.M{"$ne": true}},
				bson.M{"$set": bson.M{"sold": true}})
			if updErr == nil && productResult.ModifiedCount > 0 {
				replayed = true
			}
		}
		if replayed {
			stats.CascadesReplayed++
		}
	}

	return stats, nil
}
