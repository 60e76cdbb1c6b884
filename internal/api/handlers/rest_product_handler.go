package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/api/middleware"
	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/storage"
)

// RestProductHandler handles REST requests for product listings and the
// category reference data.
type RestProductHandler struct {
	products services.IProductService
	storage  storage.IS3Storage  // may be nil when S3 is not configured
	queue    services.ITaskQueue // may be nil
}

// NewRestProductHandler creates a new RestProductHandler.
func NewRestProductHandler(products services.IProductService, s3 storage.IS3Storage, queue services.ITaskQueue) *RestProductHandler {
	return &RestProductHandler{products: products, storage: s3, queue: queue}
}

// CreateProduct handles POST /products. The seller identity comes from the
// authenticated claims, not the payload.
func (h *RestProductHandler) CreateProduct(c *gin.Context) {
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product payload"})
		return
	}
	product.SellerEmail = c.GetString(middleware.ContextKeyEmail)

	created, err := h.products.Create(c.Request.Context(), &product)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetProductByID handles GET /product/:id.
func (h *RestProductHandler) GetProductByID(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID format"})
		return
	}

	product, err := h.products.FindByID(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve product"})
		}
		return
	}
	c.JSON(http.StatusOK, product)
}

// ListUnsold handles GET /all-products: every product not yet sold, newest
// first.
func (h *RestProductHandler) ListUnsold(c *gin.Context) {
	h.respondList(c)(h.products.ListUnsold(c.Request.Context()))
}

// ListAll handles GET /all-products-admin.
func (h *RestProductHandler) ListAll(c *gin.Context) {
	h.respondList(c)(h.products.ListAll(c.Request.Context()))
}

// ListByCategory handles GET /categories/:name.
func (h *RestProductHandler) ListByCategory(c *gin.Context) {
	h.respondList(c)(h.products.ListByCategory(c.Request.Context(), c.Param("name")))
}

// ListAdvertised handles GET /advertisement.
func (h *RestProductHandler) ListAdvertised(c *gin.Context) {
	h.respondList(c)(h.products.ListAdvertised(c.Request.Context()))
}

// ListReported handles GET /reported.
func (h *RestProductHandler) ListReported(c *gin.Context) {
	h.respondList(c)(h.products.ListReported(c.Request.Context()))
}

// ListBySeller handles GET /products/:email. Sellers can only list their own
// products.
func (h *RestProductHandler) ListBySeller(c *gin.Context) {
	email := c.Param("email")
	if email != c.GetString(middleware.ContextKeyEmail) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot list another seller's products"})
		return
	}
	h.respondList(c)(h.products.ListBySeller(c.Request.Context(), email))
}

func (h *RestProductHandler) respondList(c *gin.Context) func([]models.Product, error) {
	return func(products []models.Product, err error) {
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
			return
		}
		if products == nil {
			products = []models.Product{}
		}
		c.JSON(http.StatusOK, products)
	}
}

// Advertise handles PUT /products/:id, marking a product for promoted
// placement. Idempotent.
func (h *RestProductHandler) Advertise(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID format"})
		return
	}
	if err := h.products.Advertise(c.Request.Context(), productID); err != nil {
		h.respondFlagError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advertisement": true})
}

// reportRequest names the product to report. The id travels in the request
// body rather than the path; any buyer can report any product.
type reportRequest struct {
	ProductID string `json:"product_id"`
}

// Report handles PUT /reported.
func (h *RestProductHandler) Report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report payload"})
		return
	}
	productID, err := primitive.ObjectIDFromHex(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID format"})
		return
	}
	if err := h.products.Report(c.Request.Context(), productID); err != nil {
		h.respondFlagError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reported": true})
}

func (h *RestProductHandler) respondFlagError(c *gin.Context, err error) {
	if errors.Is(err, mongo.ErrNoDocuments) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
}

// DeleteProduct handles DELETE /products/:id and DELETE /reported/:id. There
// is no ownership guard beyond the route policy, matching the source
// system's latest guard set.
func (h *RestProductHandler) DeleteProduct(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID format"})
		return
	}
	if err := h.products.Delete(c.Request.Context(), productID); err != nil {
		h.respondFlagError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListCategories handles GET /categories.
func (h *RestProductHandler) ListCategories(c *gin.Context) {
	categories, err := h.products.Categories(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list categories"})
		return
	}
	c.JSON(http.StatusOK, categories)
}

// imageUploadRequest asks for a pre-signed upload slot for a product photo.
type imageUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// RequestImageUpload handles POST /products/:id/images. It hands the seller
// a pre-signed S3 PUT URL, stores the object key on the product and queues a
// downscale pass for oversized uploads.
func (h *RestProductHandler) RequestImageUpload(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image storage is not configured"})
		return
	}

	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID format"})
		return
	}

	var req imageUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Filename and content type are required"})
		return
	}

	product, err := h.products.FindByID(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve product"})
		}
		return
	}
	if product.SellerEmail != c.GetString(middleware.ContextKeyEmail) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot upload images for another seller's product"})
		return
	}

	uploadURL, objectKey, err := h.storage.GeneratePresignedPutURL(c.Request.Context(), productID.Hex(), req.Filename, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload"})
		return
	}

	if err := h.products.AttachImage(c.Request.Context(), productID, objectKey); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach image"})
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueImageResize(c.Request.Context(), objectKey); err != nil {
			log.Printf("WARN: failed to enqueue image resize for %s: %v", objectKey, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"upload_url": uploadURL, "key": objectKey})
}
