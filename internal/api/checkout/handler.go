package checkout

import (
	"fmt"
	"net/http"
	"time"

	"gateflow/config"
	"gateflow/database"
	couponsapi "gateflow/internal/api/coupons"
	"gateflow/internal/domain/billing"
	"gateflow/internal/domain/products"
	stripeinfra "gateflow/internal/infra/stripe"
	"gateflow/internal/purchases"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v75"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
)

// Handler owns the storefront checkout flow. The purchase service is the same
// one the webhook handlers use, so verify and webhook converge on one
// idempotent completion path.
type Handler struct {
	Purchases     *purchases.Service
	SendMagicLink func(email, token string)
}

type CreateSessionRequest struct {
	ProductID     string `json:"product_id" binding:"required"`
	BumpProductID string `json:"bump_product_id"`
	CouponCode    string `json:"coupon_code"`
}

// CreateSession builds the Stripe Checkout Session for a product page:
// validates product, bump and coupon, computes the total, records the
// pending Transaction keyed by the session ID.
func (h *Handler) CreateSession(c *gin.Context) {
	stripe.Key = config.STRIPE_SECRET_KEY

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid product_id"})
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

	metadata := map[string]string{
		"product_id": product.ID.String(),
	}

	lineItems := []*stripe.CheckoutSessionLineItemParams{
		productLineItem(&product, product.PriceCents),
	}

	mainPrice := product.PriceCents
	var couponID *uuid.UUID
	if req.CouponCode != "" {
		coupon, err := couponsapi.FindByCode(database.DB, req.CouponCode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown coupon code"})
			return
		}
		if err := coupon.Validate(product.ID, time.Now()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mainPrice = coupon.Apply(product.PriceCents)
		couponID = &coupon.ID
		metadata["coupon_id"] = coupon.ID.String()
		lineItems[0] = productLineItem(&product, mainPrice)
	}

	var bumpProduct *products.Product
	var bumpProductID *uuid.UUID
	total := mainPrice
	if req.BumpProductID != "" {
		id, err := uuid.Parse(req.BumpProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bump_product_id"})
			return
		}

		var bump products.OrderBump
		if err := database.DB.
			Preload("BumpProduct").
			Where("product_id = ? AND bump_product_id = ? AND active = ?", product.ID, id, true).
			First(&bump).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Order bump not available for this product"})
			return
		}

		bumpProduct = bump.BumpProduct
		bumpProductID = &bump.BumpProductID
		bumpPrice := bump.BumpPriceCents()
		total += bumpPrice
		metadata["bump_product_id"] = bump.BumpProductID.String()
		lineItems = append(lineItems, productLineItem(bumpProduct, bumpPrice))
	}

	var userID *uint
	if uid := c.GetUint("user_id"); uid != 0 {
		userID = &uid
		metadata["user_id"] = fmt.Sprint(uid)
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(config.APP_URL + "/thank-you?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(config.APP_URL + "/p/" + product.Slug + "?canceled=1"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		Metadata:   metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if userID != nil {
		params.ClientReferenceID = stripe.String(fmt.Sprint(*userID))
	}
	if email := c.GetString("email"); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	s, err := checkoutsession.New(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session", "details": err.Error()})
		return
	}

	tx := billing.Transaction{
		SessionID:     s.ID,
		ProductID:     product.ID,
		BumpProductID: bumpProductID,
		CouponID:      couponID,
		CustomerEmail: c.GetString("email"),
		UserID:        userID,
		AmountCents:   total,
		Currency:      product.Currency,
		Status:        billing.StatusPending,
	}
	if s.PaymentIntent != nil {
		tx.StripePaymentIntentID = stripe.String(s.PaymentIntent.ID)
	}
	if err := database.DB.Create(&tx).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record transaction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": s.URL, "session_id": s.ID})
}

// Verify is the thank-you page poll: fetches the session from Stripe and, if
// paid, runs the same completion applier the webhook uses. Idempotent on the
// session key, so racing the webhook is harmless.
func (h *Handler) Verify(c *gin.Context) {
	stripe.Key = config.STRIPE_SECRET_KEY

	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing session_id"})
		return
	}

	fullSession, err := checkoutsession.Get(sessionID, &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Expand: []*string{stripe.String("payment_intent")},
		},
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Checkout session not found"})
		return
	}

	// A fully discounted session reports no_payment_required, which still
	// counts as paid.
	if stripeinfra.NormalizePaymentStatus(string(fullSession.PaymentStatus)) != "paid" {
		c.JSON(http.StatusOK, gin.H{"paid": false, "status": string(fullSession.PaymentStatus)})
		return
	}

	in, err := completionInput(fullSession)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"paid": true, "processed": false, "error": err.Error()})
		return
	}

	res, err := h.Purchases.Complete(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"paid": true, "processed": false, "error": err.Error()})
		return
	}

	if res.RequiresLogin && res.MagicLinkToken != "" && h.SendMagicLink != nil {
		h.SendMagicLink(res.CustomerEmail, res.MagicLinkToken)
	}

	body := gin.H{
		"paid":               true,
		"processed":          true,
		"scenario":           res.Scenario,
		"access_granted":     res.AccessGranted || res.AlreadyProcessed,
		"already_had_access": res.AlreadyHadAccess,
		"requires_login":     res.RequiresLogin,
		"send_magic_link":    res.RequiresLogin,
		"is_guest_purchase":  res.IsGuestPurchase,
	}
	if res.AccessExpiresAt != nil {
		body["access_expires_at"] = res.AccessExpiresAt
	}
	if res.OTOCouponCode != "" {
		body["oto_coupon_code"] = res.OTOCouponCode
	}
	c.JSON(http.StatusOK, body)
}

func completionInput(session *stripe.CheckoutSession) (purchases.CompletionInput, error) {
	in := purchases.CompletionInput{
		SessionID:   session.ID,
		AmountCents: session.AmountTotal,
		Currency:    string(session.Currency),
	}

	if raw := session.Metadata["product_id"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return in, fmt.Errorf("invalid product_id metadata %q", raw)
		}
		in.ProductID = id
	} else {
		return in, fmt.Errorf("checkout session missing product_id metadata")
	}
	if raw := session.Metadata["bump_product_id"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			in.BumpProductID = &id
		}
	}
	if raw := session.Metadata["coupon_id"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			in.CouponID = &id
		}
	}
	if raw := session.Metadata["user_id"]; raw != "" {
		var uid uint
		if _, err := fmt.Sscanf(raw, "%d", &uid); err == nil {
			in.UserID = &uid
		}
	}

	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		in.CustomerEmail = session.CustomerDetails.Email
	} else {
		in.CustomerEmail = session.CustomerEmail
	}
	if session.PaymentIntent != nil {
		in.PaymentIntentID = session.PaymentIntent.ID
	}
	return in, nil
}

func productLineItem(p *products.Product, priceCents int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(p.Currency),
			UnitAmount: stripe.Int64(priceCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(p.Name),
			},
		},
	}
}
