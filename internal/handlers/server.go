package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
)

// NewServer wraps the router with CORS for the configured origins.
func NewServer(c *conf.Config, h *Handler) *http.Server {
	r := h.Router(c.Metrics.Enabled)
	return &http.Server{
		Addr:         c.Addr(),
		WriteTimeout: time.Second * 60 * 5,
		ReadTimeout:  time.Second * 60 * 5,
		IdleTimeout:  time.Second * 60,
		Handler: handlers.CORS(
			handlers.AllowedOrigins(c.Basic.AllowedOrigins),
			handlers.AllowedHeaders([]string{"Accept", "Accept-Language", "Content-Type", "Content-Language", "Origin", "Authorization"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowCredentials(),
		)(r),
	}
}
