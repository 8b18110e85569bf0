package productsapi

import (
	"encoding/json"
	"net/http"
	"time"

	"gateflow/cache"
	"gateflow/database"
	"gateflow/internal/domain/products"

	"github.com/gin-gonic/gin"
)

const catalogCacheTTL = 60 * time.Second

// ListPublishedProducts serves the public storefront catalog, cache-aside
// through Redis when available.
func ListPublishedProducts(c *gin.Context) {
	const key = "storefront:products"

	if body, ok := cacheGet(key); ok {
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	var list []products.Product
	if err := database.DB.Where("published = ?", true).Order("created_at DESC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}

	cacheSetJSON(key, list)
	c.JSON(http.StatusOK, list)
}

// GetStorefrontProduct returns one published product with its active order
// bumps, as rendered on a checkout page.
func GetStorefrontProduct(c *gin.Context) {
	slug := c.Param("slug")
	key := "storefront:product:" + slug

	if body, ok := cacheGet(key); ok {
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	var p products.Product
	if err := database.DB.Where("slug = ? AND published = ?", slug, true).First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	var bumps []products.OrderBump
	if err := database.DB.
		Preload("BumpProduct").
		Where("product_id = ? AND active = ?", p.ID, true).
		Find(&bumps).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order bumps"})
		return
	}

	payload := gin.H{"product": p, "bumps": bumps}
	cacheSetJSON(key, payload)
	c.JSON(http.StatusOK, payload)
}

func cacheGet(key string) ([]byte, bool) {
	if cache.Redis == nil {
		return nil, false
	}
	body, err := cache.Redis.Get(cache.Ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

func cacheSetJSON(key string, v interface{}) {
	if cache.Redis == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		return
	}
	cache.Redis.Set(cache.Ctx, key, body, catalogCacheTTL)
}

func invalidateCatalogCache(slugs ...string) {
	if cache.Redis == nil {
		return
	}
	keys := []string{"storefront:products"}
	for _, s := range slugs {
		keys = append(keys, "storefront:product:"+s)
	}
	cache.Redis.Del(cache.Ctx, keys...)
}
