package products

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Slug        string    `gorm:"not null;uniqueIndex:idx_products_slug" json:"slug"`
	Description string    `json:"description"`
	PriceCents  int64     `gorm:"not null" json:"price_cents"`
	Currency    string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	FileURL     string    `json:"file_url"`

	// 0 = unlimited access
	AccessDurationDays int `gorm:"not null;default:0" json:"access_duration_days"`

	Published bool `gorm:"not null;default:false" json:"published"`

	// One-time offer shown after purchase. A single-use coupon for the OTO
	// product is generated when a purchase of this product completes.
	OTOProductID       *uuid.UUID `gorm:"type:uuid;column:oto_product_id" json:"oto_product_id,omitempty"`
	OTODiscountPercent int        `gorm:"column:oto_discount_percent;default:0" json:"oto_discount_percent"`
	OTOExpiresHours    int        `gorm:"column:oto_expires_hours;default:24" json:"oto_expires_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}

// OrderBump is an upsell offer shown on the checkout page of a main product.
type OrderBump struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ProductID     uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	Product       *Product  `gorm:"foreignKey:ProductID" json:"-"`
	BumpProductID uuid.UUID `gorm:"type:uuid;not null" json:"bump_product_id"`
	BumpProduct   *Product  `gorm:"foreignKey:BumpProductID" json:"bump_product,omitempty"`

	Headline string `json:"headline"`

	PriceCentsOverride     *int64 `json:"price_cents_override,omitempty"`
	AccessDurationOverride *int   `json:"access_duration_override,omitempty"`

	Active bool `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *OrderBump) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return
}

// BumpPriceCents returns the price the bump sells for: the override when the
// admin set one, otherwise the bump product's own price.
func (b *OrderBump) BumpPriceCents() int64 {
	if b.PriceCentsOverride != nil {
		return *b.PriceCentsOverride
	}
	if b.BumpProduct != nil {
		return b.BumpProduct.PriceCents
	}
	return 0
}
