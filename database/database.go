package database

import (
	"fmt"
	"log"
	"os"

	"gateflow/internal/domain/access"
	"gateflow/internal/domain/billing"
	"gateflow/internal/domain/coupons"
	"gateflow/internal/domain/notify"
	"gateflow/internal/domain/products"
	"gateflow/internal/domain/users"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		log.Fatal("❌ DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}

	DB = db

	// ✅ REQUIRED for UUID generation
	if err := DB.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Fatal("❌ Failed to enable pgcrypto extension:", err)
	}

	// ✅ Auto-migrate all domain models
	if err := DB.AutoMigrate(
		// accounts
		&users.User{},
		&users.MagicLinkToken{},

		// catalog
		&products.Product{},
		&products.OrderBump{},
		&coupons.Coupon{},

		// commerce
		&billing.Transaction{},
		&billing.WebhookEvent{},
		&access.Grant{},

		// outbound
		&notify.WebhookEndpoint{},
	); err != nil {
		log.Fatal("❌ AutoMigrate error:", err)
	}

	fmt.Println("✅ Connected and migrated successfully")
}
