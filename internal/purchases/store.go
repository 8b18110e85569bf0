package purchases

import (
	"context"
	"errors"

	"gateflow/internal/domain/access"
	"gateflow/internal/domain/billing"
	"gateflow/internal/domain/coupons"
	"gateflow/internal/domain/products"
	"gateflow/internal/domain/users"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Store lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateSession is returned by CreateTransaction when a row for the
// session already exists. Callers treat it as "another delivery got here
// first" and re-read the row instead of failing.
var ErrDuplicateSession = errors.New("transaction already exists for session")

// Store is the persistence boundary of the purchase appliers. The production
// implementation wraps GORM; tests substitute an in-memory fake.
type Store interface {
	// Transact runs fn atomically. The Store passed to fn is scoped to the
	// transaction.
	Transact(ctx context.Context, fn func(Store) error) error

	FindTransactionBySession(ctx context.Context, sessionID string) (*billing.Transaction, error)
	FindTransactionByPaymentIntent(ctx context.Context, paymentIntentID string) (*billing.Transaction, error)
	// ClaimTransactionBySession loads the session's row under a row lock held
	// until the surrounding Transact commits. Concurrent appliers for the same
	// session serialize here: the loser blocks, then observes the terminal
	// status the winner committed.
	ClaimTransactionBySession(ctx context.Context, sessionID string) (*billing.Transaction, error)
	// CreateTransaction inserts t, returning ErrDuplicateSession when the
	// session_id unique key already has a row.
	CreateTransaction(ctx context.Context, t *billing.Transaction) error
	SaveTransaction(ctx context.Context, t *billing.Transaction) error

	FindProduct(ctx context.Context, id uuid.UUID) (*products.Product, error)
	FindBump(ctx context.Context, productID, bumpProductID uuid.UUID) (*products.OrderBump, error)

	FindUserByEmail(ctx context.Context, email string) (*users.User, error)
	CreateUser(ctx context.Context, u *users.User) error
	CreateMagicToken(ctx context.Context, t *users.MagicLinkToken) error

	// UpsertGrant creates the grant or refreshes the expiry of an existing
	// (user, product) pair. Returns true when the user did not have the
	// product before.
	UpsertGrant(ctx context.Context, g *access.Grant) (created bool, err error)
	// DeleteGrant hard-deletes a grant; returns false when none existed.
	DeleteGrant(ctx context.Context, userID uint, productID uuid.UUID) (deleted bool, err error)

	IncrementCouponUse(ctx context.Context, couponID uuid.UUID) error
	CreateCoupon(ctx context.Context, c *coupons.Coupon) error
}
