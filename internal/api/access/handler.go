package accessapi

import (
	"net/http"
	"time"

	"gateflow/database"
	"gateflow/internal/domain/access"
	"gateflow/internal/infra/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LibraryItem struct {
	ProductID   string     `json:"product_id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	FileURL     string     `json:"file_url"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// GetLibrary lists the calling user's active entitlements.
func GetLibrary(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var grants []access.Grant
	if err := database.DB.
		Preload("Product").
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&grants).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load library"})
		return
	}

	now := time.Now()
	items := []LibraryItem{}
	for _, g := range grants {
		if g.Expired(now) || g.Product == nil {
			continue
		}
		items = append(items, LibraryItem{
			ProductID: g.ProductID.String(),
			Name:      g.Product.Name,
			Slug:      g.Product.Slug,
			FileURL:   g.Product.FileURL,
			GrantedAt: g.GrantedAt,
			ExpiresAt: g.ExpiresAt,
		})
	}

	c.JSON(http.StatusOK, items)
}

type GrantRequest struct {
	UserID       uint   `json:"user_id" binding:"required"`
	ProductID    string `json:"product_id" binding:"required"`
	DurationDays int    `json:"duration_days"`
}

// AdminGrant manually entitles a user to a product (support resolutions,
// giveaways). duration_days 0 means unlimited.
func AdminGrant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
		return
	}

	now := time.Now()
	grant := access.Grant{
		UserID:       req.UserID,
		ProductID:    productID,
		GrantedAt:    now,
		ExpiresAt:    access.ExpiryFrom(now, req.DurationDays),
		DurationDays: req.DurationDays,
	}

	if err := database.DB.
		Where("user_id = ? AND product_id = ?", req.UserID, productID).
		Delete(&access.Grant{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to replace grant"})
		return
	}
	if err := database.DB.Create(&grant).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create grant"})
		return
	}

	c.JSON(http.StatusCreated, grant)
}

// AdminRevoke hard-deletes a user's entitlement.
func AdminRevoke(c *gin.Context) {
	var req struct {
		UserID    uint   `json:"user_id" binding:"required"`
		ProductID string `json:"product_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
		return
	}

	res := database.DB.
		Where("user_id = ? AND product_id = ?", req.UserID, productID).
		Delete(&access.Grant{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke grant"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
		return
	}

	metrics.IncAccessRevoked("manual")
	c.JSON(http.StatusOK, gin.H{"message": "Access revoked"})
}

// AdminListGrants lists grants for one user.
func AdminListGrants(c *gin.Context) {
	var grants []access.Grant
	if err := database.DB.
		Preload("Product").
		Where("user_id = ?", c.Param("id")).
		Order("granted_at DESC").
		Find(&grants).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load grants"})
		return
	}
	c.JSON(http.StatusOK, grants)
}
