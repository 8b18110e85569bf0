package workers

import (
	"context"
	"time"

	"gateflow/config"
	"gateflow/internal/domain/billing"
	stripeinfra "gateflow/internal/infra/stripe"
	"gateflow/internal/purchases"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
	"gorm.io/gorm"
)

// PaymentReconciler periodically scans for stale pending transactions and asks
// Stripe whether the session actually got paid. This covers deliveries that
// never arrived (webhook outage, process crash mid-handle): the customer paid
// but no grant was written.
type PaymentReconciler struct {
	db         *gorm.DB
	purchases  *purchases.Service
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending transaction must be to retry
	log        zerolog.Logger

	// fetchSession is swappable in tests.
	fetchSession func(id string) (*stripe.CheckoutSession, error)
}

func NewPaymentReconciler(db *gorm.DB, svc *purchases.Service, interval, staleAfter time.Duration, logger zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &PaymentReconciler{
		db:         db,
		purchases:  svc,
		interval:   interval,
		staleAfter: staleAfter,
		log:        logger.With().Str("component", "payment-reconciler").Logger(),
		fetchSession: func(id string) (*stripe.CheckoutSession, error) {
			stripe.Key = config.STRIPE_SECRET_KEY
			return checkoutsession.Get(id, &stripe.CheckoutSessionParams{})
		},
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment reconciler")
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)

	var pending []billing.Transaction
	err := w.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", billing.StatusPending, cutoff).
		Order("created_at asc").
		Limit(200).
		Find(&pending).Error
	if err != nil {
		w.log.Error().Err(err).Msg("list pending transactions failed")
		return
	}

	for i := range pending {
		tx := &pending[i]
		sess, err := w.fetchSession(tx.SessionID)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", tx.SessionID).Msg("fetch checkout session failed")
			continue
		}
		if stripeinfra.NormalizePaymentStatus(string(sess.PaymentStatus)) != "paid" {
			continue
		}

		res, err := w.purchases.Complete(ctx, completionInput(tx, sess))
		if err != nil {
			w.log.Error().Err(err).Str("session_id", tx.SessionID).Msg("reconcile completion failed")
			continue
		}
		if !res.AlreadyProcessed {
			w.log.Info().
				Str("session_id", tx.SessionID).
				Str("scenario", res.Scenario).
				Msg("reconciled paid session")
		}
	}
}

func completionInput(tx *billing.Transaction, sess *stripe.CheckoutSession) purchases.CompletionInput {
	in := purchases.CompletionInput{
		SessionID:     tx.SessionID,
		ProductID:     tx.ProductID,
		BumpProductID: tx.BumpProductID,
		CouponID:      tx.CouponID,
		CustomerEmail: tx.CustomerEmail,
		UserID:        tx.UserID,
		AmountCents:   tx.AmountCents,
		Currency:      tx.Currency,
	}
	if in.CustomerEmail == "" && sess.CustomerDetails != nil {
		in.CustomerEmail = sess.CustomerDetails.Email
	}
	if sess.PaymentIntent != nil {
		in.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.AmountTotal > 0 {
		in.AmountCents = sess.AmountTotal
	}
	return in
}
