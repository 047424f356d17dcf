package config

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const redacted = "********"

// APIServer serves the effective settings, read-only.
type APIServer struct {
	cfg *Config
}

// NewAPIServer creates a settings API over cfg.
func NewAPIServer(cfg *Config) *APIServer {
	return &APIServer{
		cfg: cfg,
	}
}

// Register mounts the routes on group.
func (a *APIServer) Register(group *gin.RouterGroup) {
	group.GET("/config", a.HandleGetConfig)
}

// HandleGetConfig handles GET /api/v1/config. Cookie values and the API
// key are masked.
func (a *APIServer) HandleGetConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, a.cfg.Redacted())
}

// Redacted returns a copy of c with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c
	if len(c.HTTP.Cookies) > 0 {
		out.HTTP.Cookies = make(map[string]string, len(c.HTTP.Cookies))
		for domain := range c.HTTP.Cookies {
			out.HTTP.Cookies[domain] = redacted
		}
	}
	if c.AI.APIKey != "" {
		out.AI.APIKey = redacted
	}
	return &out
}
