package admin

import (
	"net/http"
	"time"

	"gateflow/config"
	"gateflow/database"
	"gateflow/internal/domain/billing"
	"gateflow/internal/domain/users"
	stripeinfra "gateflow/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/refund"
)

type AdminStats struct {
	TotalUsers        int            `json:"total_users"`
	TotalRevenue      float64        `json:"total_revenue"`
	RecentRevenue     float64        `json:"recent_revenue"`
	SalesByStatus     map[string]int `json:"sales_by_status"`
	TopProducts       []ProductSales `json:"top_products"`
}

type ProductSales struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func AdminDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the admin dashboard 👑",
	})
}

func GetAdminStats(c *gin.Context) {
	var stats AdminStats

	var totalUsers int64
	var totalRevenueCents int64
	var recentRevenueCents int64

	database.DB.Model(&users.User{}).Count(&totalUsers)
	database.DB.Model(&billing.Transaction{}).
		Where("status = ?", billing.StatusCompleted).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&totalRevenueCents)

	thirtyDaysAgo := time.Now().AddDate(0, 0, -30)
	database.DB.Model(&billing.Transaction{}).
		Where("status = ? AND completed_at >= ?", billing.StatusCompleted, thirtyDaysAgo).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&recentRevenueCents)

	stats.TotalUsers = int(totalUsers)
	stats.TotalRevenue = stripeinfra.MajorUnits(totalRevenueCents)
	stats.RecentRevenue = stripeinfra.MajorUnits(recentRevenueCents)

	type statusCount struct {
		Status string
		Count  int
	}
	var byStatus []statusCount
	database.DB.Model(&billing.Transaction{}).
		Select("status, COUNT(id) as count").
		Group("status").
		Scan(&byStatus)

	stats.SalesByStatus = map[string]int{}
	for _, sc := range byStatus {
		stats.SalesByStatus[sc.Status] = sc.Count
	}

	var top []ProductSales
	database.DB.
		Table("transactions").
		Select("products.name, COUNT(transactions.id) as count").
		Joins("JOIN products ON transactions.product_id = products.id").
		Where("transactions.status = ?", billing.StatusCompleted).
		Group("products.name").
		Order("count DESC").
		Limit(5).
		Scan(&top)
	stats.TopProducts = top

	c.JSON(http.StatusOK, stats)
}

func ListAllUsers(c *gin.Context) {
	var list []users.User
	if err := database.DB.Order("created_at DESC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users"})
		return
	}

	type AdminUser struct {
		ID           uint      `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		Role         string    `json:"role"`
		AuthProvider string    `json:"auth_provider"`
		CreatedAt    time.Time `json:"created_at"`
	}

	var out []AdminUser
	for _, u := range list {
		out = append(out, AdminUser{
			ID:           u.ID,
			Name:         u.Name,
			Email:        u.Email,
			Role:         u.Role,
			AuthProvider: u.AuthProvider,
			CreatedAt:    u.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, out)
}

// ListTransactions supports ?status= filtering for the admin order table.
func ListTransactions(c *gin.Context) {
	q := database.DB.Preload("Product").Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var txs []billing.Transaction
	if err := q.Limit(200).Find(&txs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
		return
	}
	c.JSON(http.StatusOK, txs)
}

// RefundTransaction files the refund with Stripe. Local state is NOT flipped
// here: the charge.refunded webhook is the single mutation path, so manual
// and processor-initiated refunds converge.
func RefundTransaction(c *gin.Context) {
	stripe.Key = config.STRIPE_SECRET_KEY

	var tx billing.Transaction
	if err := database.DB.Where("id = ?", c.Param("id")).First(&tx).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}

	if tx.Status != billing.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Only completed transactions can be refunded", "status": tx.Status})
		return
	}
	if tx.StripePaymentIntentID == nil || *tx.StripePaymentIntentID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Transaction has no payment intent to refund"})
		return
	}

	r, err := refund.New(&stripe.RefundParams{
		PaymentIntent: tx.StripePaymentIntentID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create refund", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Refund created; access will be revoked when the webhook confirms",
		"refund_id": r.ID,
	})
}
