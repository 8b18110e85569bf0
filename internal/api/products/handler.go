package productsapi

import (
	"net/http"
	"strings"

	"gateflow/database"
	"gateflow/internal/domain/products"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ProductRequest struct {
	Name               string  `json:"name" binding:"required"`
	Slug               string  `json:"slug" binding:"required"`
	Description        string  `json:"description"`
	PriceCents         int64   `json:"price_cents" binding:"required"`
	Currency           string  `json:"currency"`
	FileURL            string  `json:"file_url"`
	AccessDurationDays int     `json:"access_duration_days"`
	Published          bool    `json:"published"`
	OTOProductID       *string `json:"oto_product_id"`
	OTODiscountPercent int     `json:"oto_discount_percent"`
	OTOExpiresHours    int     `json:"oto_expires_hours"`
}

func CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := products.Product{
		Name:               req.Name,
		Slug:               strings.ToLower(strings.TrimSpace(req.Slug)),
		Description:        req.Description,
		PriceCents:         req.PriceCents,
		Currency:           normalizeCurrency(req.Currency),
		FileURL:            req.FileURL,
		AccessDurationDays: req.AccessDurationDays,
		Published:          req.Published,
		OTODiscountPercent: req.OTODiscountPercent,
		OTOExpiresHours:    req.OTOExpiresHours,
	}
	if req.OTOProductID != nil && *req.OTOProductID != "" {
		id, err := uuid.Parse(*req.OTOProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid oto_product_id"})
			return
		}
		p.OTOProductID = &id
	}

	if err := database.DB.Create(&p).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Slug may already exist", "details": err.Error()})
		return
	}

	invalidateCatalogCache(p.Slug)
	c.JSON(http.StatusCreated, p)
}

func UpdateProduct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var p products.Product
	if err := database.DB.Where("id = ?", id).First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	oldSlug := p.Slug

	p.Name = req.Name
	p.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	p.Description = req.Description
	p.PriceCents = req.PriceCents
	p.Currency = normalizeCurrency(req.Currency)
	p.FileURL = req.FileURL
	p.AccessDurationDays = req.AccessDurationDays
	p.Published = req.Published
	p.OTODiscountPercent = req.OTODiscountPercent
	p.OTOExpiresHours = req.OTOExpiresHours
	p.OTOProductID = nil
	if req.OTOProductID != nil && *req.OTOProductID != "" {
		otoID, err := uuid.Parse(*req.OTOProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid oto_product_id"})
			return
		}
		p.OTOProductID = &otoID
	}

	if err := database.DB.Save(&p).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}

	invalidateCatalogCache(oldSlug, p.Slug)
	c.JSON(http.StatusOK, p)
}

func DeleteProduct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var p products.Product
	if err := database.DB.Where("id = ?", id).First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	if err := database.DB.Delete(&p).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
		return
	}

	invalidateCatalogCache(p.Slug)
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

func ListAllProducts(c *gin.Context) {
	var list []products.Product
	if err := database.DB.Order("created_at DESC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func normalizeCurrency(cur string) string {
	cur = strings.ToLower(strings.TrimSpace(cur))
	if cur == "" {
		return "usd"
	}
	return cur
}
