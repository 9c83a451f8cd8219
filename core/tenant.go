package core

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the calling game server's static API key.
const APIKeyHeader = "X-Minetest-ApiSecret"

// invalidUTF8Key stands in for a header value that is not valid UTF-8.
// It is looked up like any other key and never matches a provisioned tenant.
const invalidUTF8Key = "invalid-utf8"

const tenantContextKey = "tenant_id"

// TenantResolver maps an API key to the tenant that owns it.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, apiKey string) (TenantID, bool, error)
}

// apiKeyFromHeader returns the first API key header value and whether it was present.
func apiKeyFromHeader(h http.Header) (string, bool) {
	values := h.Values(APIKeyHeader)
	if len(values) == 0 {
		return "", false
	}
	if !utf8.ValidString(values[0]) {
		return invalidUTF8Key, true
	}
	return values[0], true
}

// TenantAuth resolves the caller's tenant from the API key header and aborts
// with 401 before the body is read when there is none.
func TenantAuth(resolver TenantResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := apiKeyFromHeader(c.Request.Header)
		if !ok || key == "" {
			respondText(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}

		tenant, found, err := resolver.ResolveTenant(c.Request.Context(), key)
		if err != nil {
			internalError(c, "tenant", err)
			c.Abort()
			return
		}
		if !found {
			respondText(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}

		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// tenantFrom returns the tenant TenantAuth stored on the context.
func tenantFrom(c *gin.Context) (TenantID, bool) {
	v, ok := c.Get(tenantContextKey)
	if !ok {
		return 0, false
	}
	tenant, ok := v.(TenantID)
	return tenant, ok
}
