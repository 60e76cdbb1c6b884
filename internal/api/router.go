package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/api/handlers"
	"relove/market/internal/api/middleware"
	"relove/market/internal/cache"
	"relove/market/internal/captcha"
	"relove/market/internal/config"
	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/storage"
)

// DefaultPolicy is the access table for every protected route. Routes
// mapped to RoleAny require a valid token but no particular role; routes
// absent from the table are public.
var DefaultPolicy = middleware.Policy{
	"GET /users":              models.RoleAny,
	"PUT /verify-users/:id":   models.RoleAdmin,
	"DELETE /users/:id":       models.RoleAdmin,
	"GET /buyers":             models.RoleAdmin,
	"GET /sellers":            models.RoleAdmin,
	"GET /all-products-admin": models.RoleAdmin,

	"POST /products":            models.RoleSeller,
	"GET /products/:email":      models.RoleSeller,
	"PUT /products/:id":         models.RoleSeller,
	"POST /products/:id/images": models.RoleSeller,
	"DELETE /products/:id":      models.RoleAny,

	"PUT /reported":        models.RoleBuyer,
	"GET /reported":        models.RoleAdmin,
	"DELETE /reported/:id": models.RoleAdmin,

	"POST /booked":       models.RoleBuyer,
	"GET /booked/:email": models.RoleAny,
	"DELETE /booked/:id": models.RoleBuyer,
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskQueue services.ITaskQueue) *gin.Engine {
	categoryCache := cache.NewCategoryCache(rdb, cfg.CategoryCacheTTL)

	userService := services.NewUserService(db)
	productService := services.NewProductService(db, categoryCache)
	bookingService := services.NewBookingService(db, taskQueue)
	paymentService := services.NewPaymentService(db, cfg, taskQueue)

	var s3StorageService storage.IS3Storage
	if cfg.AwsS3Bucket != "" {
		var err error
		s3StorageService, err = storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
		}
	} else {
		log.Println("AWS_S3_BUCKET not configured, image uploads disabled.")
	}

	captchaVerifier := captcha.NewTurnstileVerifier(cfg)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.CaptchaHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CorsAllowedOrigins) == 1 && cfg.CorsAllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.CorsAllowedOrigins
	}

	r.Use(cors.New(corsConfig))
	r.Use(rateLimiter.Limit())

	userHandler := handlers.NewRestUserHandler(cfg, userService)
	productHandler := handlers.NewRestProductHandler(productService, s3StorageService, taskQueue)
	bookingHandler := handlers.NewRestBookingHandler(bookingService)
	paymentHandler := handlers.NewRestPaymentHandler(paymentService)

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "%s server is running", cfg.AppName)
	})

	// Public routes. The profile upsert mints tokens for anyone, so it sits
	// behind the bot gate instead of the credential check.
	r.PUT("/user/:email", middleware.VerifyHuman(captchaVerifier), userHandler.UpsertUser)
	r.GET("/users/:email", userHandler.GetUserByEmail)
	r.GET("/categories", productHandler.ListCategories)
	r.GET("/categories/:name", productHandler.ListByCategory)
	r.GET("/all-products", productHandler.ListUnsold)
	r.GET("/product/:id", productHandler.GetProductByID)
	r.GET("/advertisement", productHandler.ListAdvertised)
	r.GET("/booked-item/:id", bookingHandler.GetBookingByID)
	r.POST("/create-payment-intent", paymentHandler.CreatePaymentIntent)
	r.POST("/payments", paymentHandler.RecordPayment)

	// Protected routes: credential check, then the role gate driven by the
	// policy table.
	protected := r.Group("/")
	protected.Use(middleware.Authenticate(cfg.JwtSecret), middleware.Authorize(userService, DefaultPolicy))
	{
		protected.GET("/users", userHandler.ListUsers)
		protected.PUT("/verify-users/:id", userHandler.VerifyUser)
		protected.DELETE("/users/:id", userHandler.DeleteUser)
		protected.GET("/buyers", userHandler.ListBuyers)
		protected.GET("/sellers", userHandler.ListSellers)
		protected.GET("/all-products-admin", productHandler.ListAll)

		protected.POST("/products", productHandler.CreateProduct)
		protected.GET("/products/:email", productHandler.ListBySeller)
		protected.PUT("/products/:id", productHandler.Advertise)
		protected.POST("/products/:id/images", productHandler.RequestImageUpload)
		protected.DELETE("/products/:id", productHandler.DeleteProduct)

		protected.PUT("/reported", productHandler.Report)
		protected.GET("/reported", productHandler.ListReported)
		protected.DELETE("/reported/:id", productHandler.DeleteProduct)

		protected.POST("/booked", bookingHandler.CreateBooking)
		protected.GET("/booked/:email", bookingHandler.ListByBuyer)
		protected.DELETE("/booked/:id", bookingHandler.DeleteBooking)
	}

	return r
}
