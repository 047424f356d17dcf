// Package api is the local HTTP bridge a note-taking host talks to. It
// exposes fetching, importing and subscription management as JSON routes
// under /api/v1.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/kimport/config"
	"github.com/pevans/kimport/importer"
	"github.com/pevans/kimport/post"
	"github.com/pevans/kimport/sources"
)

// Server serves the bridge routes.
type Server struct {
	importer *importer.Importer
	store    *sources.SourceStore
	cfg      *config.Config
}

// Option configures a Server.
type Option func(*Server)

// WithSources enables the subscription and sync routes.
func WithSources(store *sources.SourceStore) Option {
	return func(s *Server) { s.store = store }
}

// WithConfig enables the read-only settings route.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// NewServer creates a bridge over imp.
func NewServer(imp *importer.Importer, opts ...Option) *Server {
	s := &Server{importer: imp}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupRouter configures the Gin router with every route.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/platforms", s.HandlePlatforms)
	api.POST("/posts/fetch", s.HandleFetchPost)
	api.GET("/comments", s.HandleComments)
	api.POST("/imports", s.HandleImport)

	if s.store != nil {
		sources.NewAPIServer(s.store, s.importer.Registry()).Register(api)
		api.POST("/sync", s.HandleSync)
	}
	if s.cfg != nil {
		config.NewAPIServer(s.cfg).Register(api)
	}

	return router
}

// FetchRequest is the request for POST /posts/fetch.
type FetchRequest struct {
	URL string `json:"url" binding:"required"`
}

// CommentsResponse is the response for GET /comments.
type CommentsResponse struct {
	Comments []post.CommentNode `json:"comments"`
	Total    int                `json:"total"`
}

// ImportRequest is the request for POST /imports. Unset fields use the
// configured defaults.
type ImportRequest struct {
	URL         string `json:"url" binding:"required"`
	MaxPosts    *int   `json:"max_posts,omitempty"`
	Comments    *bool  `json:"comments,omitempty"`
	LocalImages *bool  `json:"local_images,omitempty"`
}

// SyncRequest is the request for POST /sync. No ids syncs every enabled
// source.
type SyncRequest struct {
	SourceIDs []string `json:"source_ids,omitempty"`
}

// SyncResponse is the response for POST /sync.
type SyncResponse struct {
	Results []importer.SyncResult `json:"results"`
}

// HandlePlatforms handles GET /api/v1/platforms.
func (s *Server) HandlePlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": s.importer.Registry().Platforms()})
}

// HandleFetchPost handles POST /api/v1/posts/fetch.
func (s *Server) HandleFetchPost(c *gin.Context) {
	var req FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, sources.ErrorResponse("bad_request", err.Error()))
		return
	}

	p, err := s.importer.Registry().FetchPost(c.Request.Context(), req.URL)
	if err != nil {
		handleFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// HandleComments handles GET /api/v1/comments?url=.
func (s *Server) HandleComments(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		c.JSON(http.StatusBadRequest, sources.ErrorResponse("bad_request", "url query parameter is required"))
		return
	}

	registry := s.importer.Registry()
	p, err := registry.FetchPost(c.Request.Context(), raw)
	if err != nil {
		handleFetchError(c, err)
		return
	}

	comments := registry.FetchComments(c.Request.Context(), p)
	if comments == nil {
		comments = []post.CommentNode{}
	}
	c.JSON(http.StatusOK, CommentsResponse{Comments: comments, Total: post.CountComments(comments)})
}

// HandleImport handles POST /api/v1/imports.
func (s *Server) HandleImport(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, sources.ErrorResponse("bad_request", err.Error()))
		return
	}

	opts := s.importer.Defaults()
	if req.MaxPosts != nil {
		if *req.MaxPosts < 0 {
			c.JSON(http.StatusBadRequest, sources.ErrorResponse("validation_error", "max_posts must not be negative"))
			return
		}
		opts.MaxPosts = *req.MaxPosts
	}
	if req.Comments != nil {
		opts.Comments = *req.Comments
	}
	if req.LocalImages != nil {
		opts.LocalImages = *req.LocalImages
	}

	report, err := s.importer.ImportURL(c.Request.Context(), req.URL, opts)
	if err != nil {
		handleFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleSync handles POST /api/v1/sync.
func (s *Server) HandleSync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, sources.ErrorResponse("bad_request", err.Error()))
			return
		}
	}

	ids := make([]uuid.UUID, 0, len(req.SourceIDs))
	for _, raw := range req.SourceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, sources.ErrorResponse("validation_error", "invalid source id: "+raw))
			return
		}
		ids = append(ids, id)
	}

	results, err := s.importer.SyncSources(c.Request.Context(), s.store, ids...)
	if err != nil {
		if errors.Is(err, sources.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, sources.ErrorResponse("not_found", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, sources.ErrorResponse("internal_error", err.Error()))
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Results: results})
}

// handleFetchError maps a typed fetch failure to a status and error code.
func handleFetchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, post.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, sources.ErrorResponse("invalid_url", err.Error()))
	case errors.Is(err, post.ErrBlocked):
		c.JSON(http.StatusForbidden, sources.ErrorResponse("blocked", post.Cause(err)))
	case errors.Is(err, post.ErrNoContent):
		c.JSON(http.StatusUnprocessableEntity, sources.ErrorResponse("no_content", err.Error()))
	case errors.Is(err, post.ErrFetch):
		c.JSON(http.StatusBadGateway, sources.ErrorResponse("fetch_failed", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, sources.ErrorResponse("internal_error", err.Error()))
	}
}
