package auth

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"gateflow/database"
	"gateflow/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func generateMagicToken() string {
	bytes := make([]byte, 24)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// RequestMagicLink issues a fresh login token for an existing account. The
// response never reveals whether the email exists.
func RequestMagicLink(c *gin.Context) {
	var body struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid email"})
		return
	}

	var user users.User
	if err := database.DB.Where("email = ?", body.Email).First(&user).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "If that account exists, a login link is on its way."})
		return
	}

	token := users.MagicLinkToken{
		UserID:    user.ID,
		Token:     generateMagicToken(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := database.DB.Create(&token).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create login token"})
		return
	}

	SendMagicLinkAsync(user.Email, token.Token)
	c.JSON(http.StatusOK, gin.H{"message": "If that account exists, a login link is on its way."})
}

// RedeemMagicLink exchanges a single-use token for a session JWT.
func RedeemMagicLink(c *gin.Context) {
	var body struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing token"})
		return
	}

	var token users.MagicLinkToken
	if err := database.DB.Preload("User").Where("token = ?", body.Token).First(&token).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired login link"})
		return
	}

	if token.UsedAt != nil || time.Now().After(token.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired login link"})
		return
	}

	now := time.Now()
	if err := database.DB.Model(&token).Update("used_at", &now).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to redeem login link"})
		return
	}

	tokenString, err := issueAppJWT(token.User)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tokenString})
}

// SendMagicLinkAsync mails the login link off the request path. Failures are
// logged only; a lost email is recoverable by requesting another link.
func SendMagicLinkAsync(email, token string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("magic link mailer panic")
			}
		}()
		if err := SendMagicLinkEmail(email, token); err != nil {
			log.Error().Err(err).Str("email", email).Msg("failed to send magic link")
		}
	}()
}
