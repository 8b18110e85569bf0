package purchases

import (
	"context"
	"errors"
	"fmt"

	"gateflow/internal/domain/access"
	"gateflow/internal/domain/billing"
	"gateflow/internal/domain/coupons"
	"gateflow/internal/domain/products"
	"gateflow/internal/domain/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a GORM connection as the purchase Store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transact(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) FindTransactionBySession(ctx context.Context, sessionID string) (*billing.Transaction, error) {
	var t billing.Transaction
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) FindTransactionByPaymentIntent(ctx context.Context, paymentIntentID string) (*billing.Transaction, error) {
	var t billing.Transaction
	err := s.db.WithContext(ctx).Where("stripe_payment_intent_id = ?", paymentIntentID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) ClaimTransactionBySession(ctx context.Context, sessionID string) (*billing.Transaction, error) {
	var t billing.Transaction
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_id = ?", sessionID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) CreateTransaction(ctx context.Context, t *billing.Transaction) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoNothing: true,
		}).
		Create(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateSession
	}
	return nil
}

func (s *gormStore) SaveTransaction(ctx context.Context, t *billing.Transaction) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *gormStore) FindProduct(ctx context.Context, id uuid.UUID) (*products.Product, error) {
	var p products.Product
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) FindBump(ctx context.Context, productID, bumpProductID uuid.UUID) (*products.OrderBump, error) {
	var b products.OrderBump
	err := s.db.WithContext(ctx).
		Preload("BumpProduct").
		Where("product_id = ? AND bump_product_id = ?", productID, bumpProductID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *gormStore) FindUserByEmail(ctx context.Context, email string) (*users.User, error) {
	var u users.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *gormStore) CreateUser(ctx context.Context, u *users.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *gormStore) CreateMagicToken(ctx context.Context, t *users.MagicLinkToken) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *gormStore) UpsertGrant(ctx context.Context, g *access.Grant) (bool, error) {
	var existing access.Grant
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", g.UserID, g.ProductID).
		First(&existing).Error
	if err == nil {
		// Refresh expiry rather than duplicating the pair.
		updates := map[string]interface{}{
			"expires_at":        g.ExpiresAt,
			"duration_days":     g.DurationDays,
			"granted_at":        g.GrantedAt,
			"source_session_id": g.SourceSessionID,
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return false, fmt.Errorf("refresh grant: %w", err)
		}
		g.ID = existing.ID
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	// The unique (user_id, product_id) index backstops concurrent inserts.
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"expires_at", "duration_days", "granted_at", "source_session_id",
			}),
		}).
		Create(g)
	if res.Error != nil {
		return false, fmt.Errorf("create grant: %w", res.Error)
	}
	return true, nil
}

func (s *gormStore) DeleteGrant(ctx context.Context, userID uint, productID uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&access.Grant{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) IncrementCouponUse(ctx context.Context, couponID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&coupons.Coupon{}).
		Where("id = ?", couponID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
}

func (s *gormStore) CreateCoupon(ctx context.Context, c *coupons.Coupon) error {
	return s.db.WithContext(ctx).Create(c).Error
}
