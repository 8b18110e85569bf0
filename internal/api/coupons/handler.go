package couponsapi

import (
	"net/http"
	"time"

	"gateflow/database"
	"gateflow/internal/domain/coupons"
	"gateflow/internal/domain/products"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CouponRequest struct {
	Code          string     `json:"code" binding:"required"`
	ProductID     *string    `json:"product_id"`
	DiscountType  string     `json:"discount_type" binding:"required"`
	DiscountValue int64      `json:"discount_value" binding:"required"`
	MaxUses       int        `json:"max_uses"`
	ValidFrom     *time.Time `json:"valid_from"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

type ValidateCouponRequest struct {
	Code      string `json:"code" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
}

func CreateCoupon(c *gin.Context) {
	var req CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input. Please check your fields."})
		return
	}

	if req.DiscountType != coupons.DiscountPercent && req.DiscountType != coupons.DiscountFixed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "discount_type must be percent or fixed"})
		return
	}

	coupon := coupons.Coupon{
		Code:          coupons.NormalizeCode(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MaxUses:       req.MaxUses,
		ValidFrom:     req.ValidFrom,
		ExpiresAt:     req.ExpiresAt,
	}
	if req.ProductID != nil && *req.ProductID != "" {
		id, err := uuid.Parse(*req.ProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
			return
		}
		coupon.ProductID = &id
	}

	if err := database.DB.Create(&coupon).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Coupon code may already exist"})
		return
	}

	c.JSON(http.StatusCreated, coupon)
}

func ListCoupons(c *gin.Context) {
	var list []coupons.Coupon
	if err := database.DB.Order("created_at DESC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load coupons"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func DeleteCoupon(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coupon id"})
		return
	}

	res := database.DB.Where("id = ?", id).Delete(&coupons.Coupon{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete coupon"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted"})
}

// ValidateCoupon is the public endpoint checkout pages call while the buyer
// types a code. It never mutates usage counters.
func ValidateCoupon(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coupon code and product_id are required"})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
		return
	}

	var product products.Product
	if err := database.DB.Where("id = ? AND published = ?", productID, true).First(&product).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	coupon, err := FindByCode(database.DB, req.Code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
		return
	}

	if err := coupon.Validate(productID, time.Now()); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":            true,
		"code":             coupon.Code,
		"discount_type":    coupon.DiscountType,
		"discount_value":   coupon.DiscountValue,
		"discounted_cents": coupon.Apply(product.PriceCents),
	})
}

// FindByCode looks a coupon up by its normalized code.
func FindByCode(db *gorm.DB, code string) (*coupons.Coupon, error) {
	var coupon coupons.Coupon
	err := db.Where("code = ?", coupons.NormalizeCode(code)).First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}
