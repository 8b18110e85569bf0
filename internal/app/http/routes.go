package routes

import (
	accessapi "gateflow/internal/api/access"
	adminapi "gateflow/internal/api/admin"
	authapi "gateflow/internal/api/auth"
	"gateflow/internal/api/checkout"
	couponsapi "gateflow/internal/api/coupons"
	productsapi "gateflow/internal/api/products"
	stripewebhooks "gateflow/internal/api/stripewebhook"
	"gateflow/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *gin.Engine, webhooks *stripewebhooks.Handler, co *checkout.Handler) {
	// ✅ Apply input sanitization to public routes only

	r.POST("/webhooks/stripe", webhooks.Handle)
	r.GET("/webhooks/stripe", stripewebhooks.MethodNotAllowed)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/products", productsapi.ListPublishedProducts)
	r.GET("/products/:slug", productsapi.GetStorefrontProduct)

	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/coupons/validate", couponsapi.ValidateCoupon)

	public.POST("/register", authapi.Register)
	public.POST("/login", authapi.Login)
	public.POST("/auth/magic-link", authapi.RequestMagicLink)
	public.POST("/auth/magic", authapi.RedeemMagicLink)

	public.GET("/auth/google", authapi.GoogleStart)
	public.GET("/auth/google/callback", authapi.GoogleCallback)

	// Checkout works for guests too; OptionalAuth attaches the user when
	// a valid token is present so purchases can be linked to an account.
	public.POST("/checkout/session", middleware.OptionalAuth(), co.CreateSession)
	public.GET("/checkout/verify", middleware.OptionalAuth(), co.Verify)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware())
	auth.GET("/me", authapi.GetCurrentUser)
	auth.GET("/library", accessapi.GetLibrary)
	auth.POST("/change-password", authapi.ChangePassword)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireRole("admin"))
	admin.GET("/dashboard", adminapi.AdminDashboard)
	admin.GET("/stats", adminapi.GetAdminStats)
	admin.GET("/users", adminapi.ListAllUsers)
	admin.GET("/transactions", adminapi.ListTransactions)
	admin.POST("/transactions/:id/refund", adminapi.RefundTransaction)

	admin.GET("/products", productsapi.ListAllProducts)
	admin.POST("/products", productsapi.CreateProduct)
	admin.PUT("/products/:id", productsapi.UpdateProduct)
	admin.DELETE("/products/:id", productsapi.DeleteProduct)

	admin.POST("/products/:id/bumps", productsapi.CreateBump)
	admin.PUT("/bumps/:id", productsapi.UpdateBump)
	admin.DELETE("/bumps/:id", productsapi.DeleteBump)

	admin.GET("/coupons", couponsapi.ListCoupons)
	admin.POST("/coupons", couponsapi.CreateCoupon)
	admin.DELETE("/coupons/:id", couponsapi.DeleteCoupon)

	admin.GET("/grants/:id", accessapi.AdminListGrants)
	admin.POST("/grants", accessapi.AdminGrant)
	admin.DELETE("/grants", accessapi.AdminRevoke)

	admin.GET("/webhook-endpoints", adminapi.ListWebhookEndpoints)
	admin.POST("/webhook-endpoints", adminapi.CreateWebhookEndpoint)
	admin.DELETE("/webhook-endpoints/:id", adminapi.DeleteWebhookEndpoint)
	admin.POST("/webhook-endpoints/ping", adminapi.PingWebhookEndpoints)
}
