package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/config"
	"relove/market/internal/db"
	"relove/market/internal/models"
)

// IPaymentService defines the interface for payment operations.
type IPaymentService interface {
	CreateIntent(ctx context.Context, amount float64, currency string) (*PaymentIntent, error)
	Record(ctx context.Context, payment *models.Payment) (*models.Payment, error)
}

const paymentsCollection = "payments"

// PaymentIntent is the client-facing slice of a Stripe PaymentIntent.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"intent_id"`
	Status       string `json:"status"`
}

// paymentService implements IPaymentService.
type paymentService struct {
	db    *mongo.Database
	cfg   *config.Config
	queue ITaskQueue // may be nil
}

// NewPaymentService creates a new PaymentService and points the Stripe SDK
// at the configured secret key.
func NewPaymentService(db *mongo.Database, cfg *config.Config, queue ITaskQueue) IPaymentService {
	if cfg.StripeSecretKey != "" {
		stripe.Key = cfg.StripeSecretKey
	}
	return &paymentService{db: db, cfg: cfg, queue: queue}
}

// CreateIntent creates a Stripe PaymentIntent for the given amount and
// returns its client secret for the frontend to confirm.
func (s *paymentService) CreateIntent(ctx context.Context, amount float64, currency string) (*PaymentIntent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %v", amount)
	}
	if currency == "" {
		currency = "usd"
	}

	// Stripe amounts are integer cents.
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amount * 100)),
		Currency: stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &PaymentIntent{
		ClientSecret: pi.ClientSecret,
		IntentID:     pi.ID,
		Status:       string(pi.Status),
	}, nil
}

// Record inserts the payment document and then replays the paid/sold cascade
// across the three collections: payment paid flag and booking paid flag are
// matched by product_id equality, the product sold flag by _id. The four
// writes are independent; a partial miss is logged and handed to the
// reconciler rather than rolled back.
func (s *paymentService) Record(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	collection := s.db.Collection(paymentsCollection)
	payment.CreatedAt = time.Now().UTC()

	operation := func() error {
		payment.ID = primitive.NewObjectID()
		_, insertErr := collection.InsertOne(ctx, payment)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert payment for product %s (transaction %s): %w",
			payment.ProductID, payment.TransactionID, err)
	}

	missed := false

	// Payment paid flag, matched by product_id.
	if _, err := collection.UpdateMany(ctx,
		bson.M{"product_id": payment.ProductID},
		bson.M{"$set": bson.M{"paid": true}}); err != nil {
		log.Printf("CRITICAL: payment %s inserted but paid-flag update failed: %v", payment.ID.Hex(), err)
		missed = true
	} else {
		payment.Paid = true
	}

	// Booking paid flag, matched by product_id.
	bookingResult, err := s.db.Collection(bookingsCollection).UpdateMany(ctx,
		bson.M{"product_id": payment.ProductID},
		bson.M{"$set": bson.M{"paid": true, "transactionId": payment.TransactionID}})
	if err != nil {
		log.Printf("CRITICAL: payment %s recorded but booking paid-flag update failed: %v", payment.ID.Hex(), err)
		missed = true
	} else if bookingResult.MatchedCount == 0 {
		log.Printf("WARN: payment %s has no booking for product %s", payment.ID.Hex(), payment.ProductID)
	}

	// Product sold flag, matched by _id.
	productID, idErr := primitive.ObjectIDFromHex(payment.ProductID)
	if idErr != nil {
		log.Printf("WARN: payment %s carries unparseable product id %q; sold flag left unset",
			payment.ID.Hex(), payment.ProductID)
		missed = true
	} else {
		productResult, updErr := s.db.Collection(productsCollection).UpdateByID(ctx, productID,
			bson.M{"$set": bson.M{"sold": true}})
		if updErr != nil {
			log.Printf("CRITICAL: payment %s recorded but product %s sold-flag update failed: %v",
				payment.ID.Hex(), payment.ProductID, updErr)
			missed = true
		} else if productResult.MatchedCount == 0 {
			log.Printf("WARN: payment %s references product %s which no longer exists",
				payment.ID.Hex(), payment.ProductID)
		}
	}

	if missed && s.queue != nil {
		if err := s.queue.EnqueueReconcile(ctx); err != nil {
			log.Printf("WARN: failed to enqueue reconciliation task: %v", err)
		}
	}

	s.sendReceipt(ctx, payment)
	return payment, nil
}

// sendReceipt queues a receipt email for the buyer, best effort.
func (s *paymentService) sendReceipt(ctx context.Context, payment *models.Payment) {
	if s.queue == nil {
		return
	}

	buyerEmail := payment.BuyerEmail
	if buyerEmail == "" {
		var booking models.Booking
		err := s.db.Collection(bookingsCollection).FindOne(ctx, bson.M{"product_id": payment.ProductID}).Decode(&booking)
		if err != nil {
			if !errors.Is(err, mongo.ErrNoDocuments) {
				log.Printf("WARN: could not look up booking for payment %s receipt: %v", payment.ID.Hex(), err)
			}
			return
		}
		buyerEmail = booking.BuyerEmail
	}
	if buyerEmail == "" {
		return
	}

	job := EmailJob{
		To:      buyerEmail,
		Subject: "Payment received",
		Body: fmt.Sprintf("Your payment for product %s was received (transaction %s). The item is now marked sold.",
			payment.ProductID, payment.TransactionID),
	}
	if err := s.queue.EnqueueEmail(ctx, job); err != nil {
		log.Printf("WARN: failed to enqueue receipt email for %s: %v", buyerEmail, err)
	}
}
