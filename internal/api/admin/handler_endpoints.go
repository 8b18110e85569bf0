package admin

import (
	"net/http"

	"gateflow/database"
	notifydomain "gateflow/internal/domain/notify"
	"gateflow/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EndpointRequest struct {
	URL    string `json:"url" binding:"required"`
	Secret string `json:"secret" binding:"required"`
	Events string `json:"events"`
	Active *bool  `json:"active"`
}

func CreateWebhookEndpoint(c *gin.Context) {
	var req EndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	ep := notifydomain.WebhookEndpoint{
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
		Active: active,
	}
	if err := database.DB.Create(&ep).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create endpoint"})
		return
	}
	c.JSON(http.StatusCreated, ep)
}

func ListWebhookEndpoints(c *gin.Context) {
	var eps []notifydomain.WebhookEndpoint
	if err := database.DB.Order("created_at DESC").Find(&eps).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load endpoints"})
		return
	}
	c.JSON(http.StatusOK, eps)
}

func DeleteWebhookEndpoint(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid endpoint id"})
		return
	}

	res := database.DB.Where("id = ?", id).Delete(&notifydomain.WebhookEndpoint{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete endpoint"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Endpoint deleted"})
}

// Notifier is wired at startup for the test-ping endpoint.
var Notifier *notify.Notifier

// PingWebhookEndpoints sends a test event through the notifier so operators
// can verify their subscriber wiring.
func PingWebhookEndpoints(c *gin.Context) {
	if Notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Notifier not configured"})
		return
	}
	Notifier.Trigger(c.Request.Context(), "ping", map[string]interface{}{
		"message": "GateFlow webhook test",
	})
	c.JSON(http.StatusOK, gin.H{"message": "Ping dispatched"})
}
