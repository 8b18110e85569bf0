package productsapi

import (
	"net/http"

	"gateflow/database"
	"gateflow/internal/domain/products"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BumpRequest struct {
	BumpProductID          string `json:"bump_product_id" binding:"required"`
	Headline               string `json:"headline"`
	PriceCentsOverride     *int64 `json:"price_cents_override"`
	AccessDurationOverride *int   `json:"access_duration_override"`
	Active                 *bool  `json:"active"`
}

// CreateBump attaches an order bump to the product in the path.
func CreateBump(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var req BumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bumpProductID, err := uuid.Parse(req.BumpProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bump_product_id"})
		return
	}
	if bumpProductID == productID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A product cannot bump itself"})
		return
	}

	var main, bumpProduct products.Product
	if err := database.DB.Where("id = ?", productID).First(&main).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err := database.DB.Where("id = ?", bumpProductID).First(&bumpProduct).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bump product not found"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	bump := products.OrderBump{
		ProductID:              productID,
		BumpProductID:          bumpProductID,
		Headline:               req.Headline,
		PriceCentsOverride:     req.PriceCentsOverride,
		AccessDurationOverride: req.AccessDurationOverride,
		Active:                 active,
	}
	if err := database.DB.Create(&bump).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order bump"})
		return
	}

	invalidateCatalogCache(main.Slug)
	c.JSON(http.StatusCreated, bump)
}

func UpdateBump(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bump id"})
		return
	}

	var bump products.OrderBump
	if err := database.DB.Preload("Product").Where("id = ?", id).First(&bump).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order bump not found"})
		return
	}

	var req BumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bump.Headline = req.Headline
	bump.PriceCentsOverride = req.PriceCentsOverride
	bump.AccessDurationOverride = req.AccessDurationOverride
	if req.Active != nil {
		bump.Active = *req.Active
	}

	if err := database.DB.Save(&bump).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order bump"})
		return
	}

	if bump.Product != nil {
		invalidateCatalogCache(bump.Product.Slug)
	}
	c.JSON(http.StatusOK, bump)
}

func DeleteBump(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bump id"})
		return
	}

	var bump products.OrderBump
	if err := database.DB.Preload("Product").Where("id = ?", id).First(&bump).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order bump not found"})
		return
	}

	if err := database.DB.Delete(&bump).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order bump"})
		return
	}

	if bump.Product != nil {
		invalidateCatalogCache(bump.Product.Slug)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order bump deleted"})
}
