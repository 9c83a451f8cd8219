package core

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter constructs the Gin engine with the five command routes wired.
// Each route runs metrics -> body limit -> tenant auth -> command handler;
// every other path answers 404 without consulting the API key.
func NewRouter(cfg Config, store CredentialStore, tenants TenantResolver, metrics *Metrics) *gin.Engine {
	r := gin.Default()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = false

	r.Use(metrics.Middleware())
	r.Use(BodyLimit(cfg.MaxBodyBytes))

	handlers := NewCommandHandlers(store)
	auth := TenantAuth(tenants)
	for _, cmd := range Commands {
		r.Any(cmd.Path(), auth, handlers.Handle(cmd))
	}

	r.NoRoute(func(c *gin.Context) {
		respondText(c, http.StatusNotFound, "Not found")
	})

	return r
}

// NewHTTPServer wraps handler with the per-request read deadline. Requests
// whose headers and body do not arrive within timeout are dropped.
func NewHTTPServer(cfg Config, handler http.Handler) *http.Server {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		IdleTimeout:       timeout,
	}
}
