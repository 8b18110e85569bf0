package purchases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gateflow/internal/domain/access"
	"gateflow/internal/domain/billing"
	"gateflow/internal/domain/coupons"
	"gateflow/internal/domain/products"
	"gateflow/internal/domain/users"
	"gateflow/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ScenarioLoggedIn          = "logged_in"
	ScenarioExistingUserEmail = "existing_user_email"
	ScenarioGuestNew          = "guest_new"
)

// ErrMissingCustomer means the event payload carries neither a user ID nor a
// customer email, so there is nobody to grant access to. Callers acknowledge
// and log it; retrying the delivery cannot fix it.
var ErrMissingCustomer = errors.New("missing customer email and user id")

// CompletionInput carries everything the completion applier needs, extracted
// from the checkout session (or its metadata) by the caller.
type CompletionInput struct {
	SessionID       string
	ProductID       uuid.UUID
	BumpProductID   *uuid.UUID
	CouponID        *uuid.UUID
	CustomerEmail   string
	UserID          *uint
	AmountCents     int64
	Currency        string
	PaymentIntentID string
}

// CompletionResult is the discriminated outcome of completing a purchase.
// Scenario drives whether a magic-link email must go out.
type CompletionResult struct {
	SessionID        string     `json:"session_id"`
	Scenario         string     `json:"scenario"`
	AccessGranted    bool       `json:"access_granted"`
	AlreadyHadAccess bool       `json:"already_had_access"`
	AlreadyProcessed bool       `json:"already_processed"`
	RequiresLogin    bool       `json:"requires_login"`
	IsGuestPurchase  bool       `json:"is_guest_purchase"`
	AccessExpiresAt  *time.Time `json:"access_expires_at,omitempty"`
	UserID           uint       `json:"user_id"`
	CustomerEmail    string     `json:"customer_email"`
	MagicLinkToken   string     `json:"-"`
	OTOCouponCode    string     `json:"oto_coupon_code,omitempty"`
}

// RevocationResult reports what a refund or dispute applier did.
type RevocationResult struct {
	Found         bool
	AlreadyDone   bool
	AccessRevoked bool
	SessionID     string
	UserID        *uint
	ProductID     uuid.UUID
}

// Service hosts the side-effect appliers. It is the single source of truth
// for "complete a payment and grant access" and its inverse.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Complete applies a successful payment: upserts the Transaction to
// completed, creates or refreshes the access grants, burns the coupon and
// generates any one-time offer. Safe to invoke twice for the same session,
// concurrently included: invocations serialize on the transaction row, and
// every one after the first reports AlreadyProcessed and mutates nothing.
func (s *Service) Complete(ctx context.Context, in CompletionInput) (*CompletionResult, error) {
	if in.CustomerEmail == "" && in.UserID == nil {
		return nil, ErrMissingCustomer
	}

	res := &CompletionResult{SessionID: in.SessionID, CustomerEmail: in.CustomerEmail}

	err := s.store.Transact(ctx, func(st Store) error {
		tx, err := st.ClaimTransactionBySession(ctx, in.SessionID)
		if errors.Is(err, ErrNotFound) {
			// Session created outside the checkout API (or the pending row
			// was lost); record it now so the unique session_id key still
			// guards against double application.
			tx = &billing.Transaction{
				SessionID:     in.SessionID,
				ProductID:     in.ProductID,
				BumpProductID: in.BumpProductID,
				CouponID:      in.CouponID,
				CustomerEmail: in.CustomerEmail,
				UserID:        in.UserID,
				AmountCents:   in.AmountCents,
				Currency:      in.Currency,
				Status:        billing.StatusPending,
			}
			if cerr := st.CreateTransaction(ctx, tx); errors.Is(cerr, ErrDuplicateSession) {
				// A concurrent delivery inserted the row first; lock it and
				// fall through to the status check.
				tx, err = st.ClaimTransactionBySession(ctx, in.SessionID)
				if err != nil {
					return fmt.Errorf("find transaction after conflict: %w", err)
				}
			} else if cerr != nil {
				return fmt.Errorf("create transaction: %w", cerr)
			}
		} else if err != nil {
			return fmt.Errorf("find transaction: %w", err)
		}

		if tx.Status != billing.StatusPending {
			res.AlreadyProcessed = true
			res.UserID = deref(tx.UserID)
			return nil
		}

		user, err := s.resolveCustomer(ctx, st, in, res)
		if err != nil {
			return err
		}

		product, err := st.FindProduct(ctx, tx.ProductID)
		if err != nil {
			return fmt.Errorf("find product %s: %w", tx.ProductID, err)
		}

		now := time.Now()
		expiry := access.ExpiryFrom(now, product.AccessDurationDays)
		created, err := st.UpsertGrant(ctx, &access.Grant{
			UserID:          user.ID,
			ProductID:       product.ID,
			GrantedAt:       now,
			ExpiresAt:       expiry,
			DurationDays:    product.AccessDurationDays,
			SourceSessionID: tx.SessionID,
		})
		if err != nil {
			return fmt.Errorf("grant access: %w", err)
		}
		res.AccessGranted = true
		res.AlreadyHadAccess = !created
		res.AccessExpiresAt = expiry

		if tx.BumpProductID != nil {
			if err := s.grantBump(ctx, st, tx, user.ID, now); err != nil {
				return err
			}
		}

		if tx.CouponID != nil {
			if err := st.IncrementCouponUse(ctx, *tx.CouponID); err != nil {
				return fmt.Errorf("increment coupon use: %w", err)
			}
		}

		if code, err := s.generateOTO(ctx, st, product, now); err != nil {
			return err
		} else {
			res.OTOCouponCode = code
		}

		if res.RequiresLogin {
			token, err := s.issueMagicToken(ctx, st, user.ID, now)
			if err != nil {
				return err
			}
			res.MagicLinkToken = token
		}

		tx.Status = billing.StatusCompleted
		tx.CompletedAt = &now
		tx.UserID = &user.ID
		if tx.CustomerEmail == "" {
			tx.CustomerEmail = in.CustomerEmail
		}
		if in.PaymentIntentID != "" {
			tx.StripePaymentIntentID = &in.PaymentIntentID
		}
		if tx.AmountCents == 0 {
			tx.AmountCents = in.AmountCents
			tx.Currency = in.Currency
		}
		if err := st.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("complete transaction: %w", err)
		}

		res.UserID = user.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyProcessed {
		metrics.IncPurchase(res.Scenario)
		metrics.AddPurchaseRevenue(strings.ToLower(in.Currency), in.AmountCents)
		log.Info().
			Str("session_id", in.SessionID).
			Str("scenario", res.Scenario).
			Bool("already_had_access", res.AlreadyHadAccess).
			Msg("purchase completed")
	}
	return res, nil
}

// CompleteByPaymentIntent resolves the pending transaction for a payment
// intent and completes it. The same purchase commonly arrives both as
// checkout.session.completed and payment_intent.succeeded; converging on the
// transaction's session key makes the two deliveries one logical operation.
func (s *Service) CompleteByPaymentIntent(ctx context.Context, paymentIntentID, customerEmail string, amountCents int64, currency string) (*CompletionResult, error) {
	tx, err := s.store.FindTransactionByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}

	email := tx.CustomerEmail
	if email == "" {
		email = customerEmail
	}
	if amountCents == 0 {
		amountCents = tx.AmountCents
		currency = tx.Currency
	}
	return s.Complete(ctx, CompletionInput{
		SessionID:       tx.SessionID,
		ProductID:       tx.ProductID,
		BumpProductID:   tx.BumpProductID,
		CouponID:        tx.CouponID,
		CustomerEmail:   email,
		UserID:          tx.UserID,
		AmountCents:     amountCents,
		Currency:        currency,
		PaymentIntentID: paymentIntentID,
	})
}

// resolveCustomer decides the purchase scenario and returns the owning user,
// creating a guest account when nobody matches the email.
func (s *Service) resolveCustomer(ctx context.Context, st Store, in CompletionInput, res *CompletionResult) (*users.User, error) {
	if in.UserID != nil {
		res.Scenario = ScenarioLoggedIn
		return &users.User{ID: *in.UserID, Email: in.CustomerEmail}, nil
	}

	user, err := st.FindUserByEmail(ctx, in.CustomerEmail)
	if err == nil {
		res.Scenario = ScenarioExistingUserEmail
		res.RequiresLogin = true
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	guest := &users.User{
		Name:         guestNameFromEmail(in.CustomerEmail),
		Email:        in.CustomerEmail,
		AuthProvider: "magic",
		Role:         "user",
	}
	if err := st.CreateUser(ctx, guest); err != nil {
		return nil, fmt.Errorf("create guest user: %w", err)
	}
	res.Scenario = ScenarioGuestNew
	res.RequiresLogin = true
	res.IsGuestPurchase = true
	return guest, nil
}

func (s *Service) grantBump(ctx context.Context, st Store, tx *billing.Transaction, userID uint, now time.Time) error {
	bump, err := st.FindBump(ctx, tx.ProductID, *tx.BumpProductID)
	if errors.Is(err, ErrNotFound) {
		// Bump config was deleted between checkout and completion; grant on
		// the bump product's own terms.
		bumpProduct, err := st.FindProduct(ctx, *tx.BumpProductID)
		if err != nil {
			return fmt.Errorf("find bump product: %w", err)
		}
		_, err = st.UpsertGrant(ctx, &access.Grant{
			UserID:          userID,
			ProductID:       bumpProduct.ID,
			GrantedAt:       now,
			ExpiresAt:       access.ExpiryFrom(now, bumpProduct.AccessDurationDays),
			DurationDays:    bumpProduct.AccessDurationDays,
			SourceSessionID: tx.SessionID,
		})
		return err
	}
	if err != nil {
		return fmt.Errorf("find bump: %w", err)
	}

	days := 0
	if bump.BumpProduct != nil {
		days = bump.BumpProduct.AccessDurationDays
	}
	days = access.ResolveDuration(days, bump.AccessDurationOverride)
	_, err = st.UpsertGrant(ctx, &access.Grant{
		UserID:          userID,
		ProductID:       bump.BumpProductID,
		GrantedAt:       now,
		ExpiresAt:       access.ExpiryFrom(now, days),
		DurationDays:    days,
		SourceSessionID: tx.SessionID,
	})
	if err != nil {
		return fmt.Errorf("grant bump access: %w", err)
	}
	return nil
}

// generateOTO creates the single-use one-time-offer coupon configured on the
// purchased product, if any. Returns the generated code.
func (s *Service) generateOTO(ctx context.Context, st Store, product *products.Product, now time.Time) (string, error) {
	if product.OTOProductID == nil || product.OTODiscountPercent <= 0 {
		return "", nil
	}

	hours := product.OTOExpiresHours
	if hours <= 0 {
		hours = 24
	}
	expires := now.Add(time.Duration(hours) * time.Hour)

	oto := &coupons.Coupon{
		Code:          "OTO-" + strings.ToUpper(randomToken()[:10]),
		ProductID:     product.OTOProductID,
		DiscountType:  coupons.DiscountPercent,
		DiscountValue: int64(product.OTODiscountPercent),
		MaxUses:       1,
		ExpiresAt:     &expires,
		OneTime:       true,
	}
	if err := st.CreateCoupon(ctx, oto); err != nil {
		return "", fmt.Errorf("create oto coupon: %w", err)
	}
	return oto.Code, nil
}

func (s *Service) issueMagicToken(ctx context.Context, st Store, userID uint, now time.Time) (string, error) {
	token := randomToken()
	expires := now.Add(24 * time.Hour)
	if err := st.CreateMagicToken(ctx, &users.MagicLinkToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expires,
	}); err != nil {
		return "", fmt.Errorf("create magic token: %w", err)
	}
	return token, nil
}

// Refund locates the transaction by payment intent (falling back to session),
// flips it to refunded and deletes the access grants. A missing transaction
// is an anomaly, not an error: the money already moved at the processor.
func (s *Service) Refund(ctx context.Context, paymentIntentID, sessionID string) (*RevocationResult, error) {
	return s.revoke(ctx, paymentIntentID, sessionID, billing.StatusRefunded, nil, nil)
}

// Dispute has the same revocation semantics as Refund and additionally
// records the processor's dispute metadata for manual review.
func (s *Service) Dispute(ctx context.Context, paymentIntentID, sessionID, disputeID, reason string) (*RevocationResult, error) {
	return s.revoke(ctx, paymentIntentID, sessionID, billing.StatusDisputed, &disputeID, &reason)
}

func (s *Service) revoke(ctx context.Context, paymentIntentID, sessionID, status string, disputeID, disputeReason *string) (*RevocationResult, error) {
	res := &RevocationResult{}

	err := s.store.Transact(ctx, func(st Store) error {
		tx, err := s.locateTransaction(ctx, st, paymentIntentID, sessionID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		res.Found = true
		res.SessionID = tx.SessionID
		res.UserID = tx.UserID
		res.ProductID = tx.ProductID

		if tx.Terminal() {
			res.AlreadyDone = true
			return nil
		}

		if tx.UserID != nil {
			deleted, err := st.DeleteGrant(ctx, *tx.UserID, tx.ProductID)
			if err != nil {
				return fmt.Errorf("revoke grant: %w", err)
			}
			res.AccessRevoked = deleted
			if tx.BumpProductID != nil {
				if _, err := st.DeleteGrant(ctx, *tx.UserID, *tx.BumpProductID); err != nil {
					return fmt.Errorf("revoke bump grant: %w", err)
				}
			}
		}

		now := time.Now()
		tx.Status = status
		if status == billing.StatusDisputed {
			tx.DisputedAt = &now
		} else {
			tx.RefundedAt = &now
		}
		tx.DisputeID = disputeID
		tx.DisputeReason = disputeReason
		if err := st.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("save %s transaction: %w", status, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Found && !res.AlreadyDone {
		cause := "refund"
		if status == billing.StatusDisputed {
			cause = "dispute"
		}
		metrics.IncAccessRevoked(cause)
		log.Info().
			Str("session_id", res.SessionID).
			Str("status", status).
			Bool("access_revoked", res.AccessRevoked).
			Msg("purchase revoked")
	} else if !res.Found {
		log.Warn().
			Str("payment_intent_id", paymentIntentID).
			Str("session_id", sessionID).
			Msgf("%s for unknown transaction", status)
	}
	return res, nil
}

func (s *Service) locateTransaction(ctx context.Context, st Store, paymentIntentID, sessionID string) (*billing.Transaction, error) {
	if paymentIntentID != "" {
		tx, err := st.FindTransactionByPaymentIntent(ctx, paymentIntentID)
		if err == nil {
			// Re-read under the row lock so revocation serializes with a
			// completion of the same session.
			return st.ClaimTransactionBySession(ctx, tx.SessionID)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if sessionID != "" {
		return st.ClaimTransactionBySession(ctx, sessionID)
	}
	return nil, ErrNotFound
}

func guestNameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func randomToken() string {
	b := make([]byte, 24)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func deref(v *uint) uint {
	if v == nil {
		return 0
	}
	return *v
}
