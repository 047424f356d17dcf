package sources

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/kimport/post"
)

// Detector maps a URL to the list target it names.
type Detector interface {
	Detect(rawURL string) (post.Target, error)
}

// APIServer serves subscription management routes.
type APIServer struct {
	store    *SourceStore
	detector Detector
}

// NewAPIServer creates the subscription routes for store. URLs posted to
// create a source are resolved with detector.
func NewAPIServer(store *SourceStore, detector Detector) *APIServer {
	return &APIServer{store: store, detector: detector}
}

// Register mounts the routes on group.
func (s *APIServer) Register(group *gin.RouterGroup) {
	group.GET("/sources", s.HandleListSources)
	group.GET("/sources/:id", s.HandleGetSource)
	group.POST("/sources", s.HandleCreateSource)
	group.PUT("/sources/:id", s.HandleUpdateSource)
	group.DELETE("/sources/:id", s.HandleDeleteSource)
}

// ListSourcesResponse is the response for GET /sources.
type ListSourcesResponse struct {
	Sources []Source `json:"sources"`
	Total   int      `json:"total"`
}

// CreateSourceRequest is the request for POST /sources.
type CreateSourceRequest struct {
	URL      string   `json:"url" binding:"required"`
	Name     string   `json:"name,omitempty"`
	MaxPosts int      `json:"max_posts,omitempty"`
	Options  *Options `json:"options,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"` // Default: true
}

// UpdateSourceRequest is the request for PUT /sources/{id}.
type UpdateSourceRequest struct {
	Name     *string  `json:"name,omitempty"`
	MaxPosts *int     `json:"max_posts,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
	Options  *Options `json:"options,omitempty"`
}

// ErrorResponse is the error body shared by every API route.
func ErrorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func (s *APIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSourceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", err.Error()))
	case errors.Is(err, ErrDuplicateSource):
		c.JSON(http.StatusConflict, ErrorResponse("conflict", err.Error()))
	case errors.Is(err, ErrInvalidSource), errors.Is(err, post.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse("validation_error", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse("internal_error", "Failed to process request"))
	}
}

// HandleListSources handles GET /sources.
func (s *APIServer) HandleListSources(c *gin.Context) {
	filter := SourceFilter{}

	if platformParam := c.Query("platform"); platformParam != "" {
		platform := post.Platform(platformParam)
		filter.Platform = &platform
	}
	if enabledParam := c.Query("enabled"); enabledParam != "" {
		enabled := enabledParam == "true"
		filter.Enabled = &enabled
	}

	sources, err := s.store.ListSources(filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if sources == nil {
		sources = []Source{}
	}

	c.JSON(http.StatusOK, ListSourcesResponse{
		Sources: sources,
		Total:   len(sources),
	})
}

// HandleGetSource handles GET /sources/{id}.
func (s *APIServer) HandleGetSource(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("bad_request", "Invalid source ID"))
		return
	}

	source, err := s.store.GetSource(sourceID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, source)
}

// HandleCreateSource handles POST /sources.
func (s *APIServer) HandleCreateSource(c *gin.Context) {
	var req CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("validation_error", err.Error()))
		return
	}

	target, err := s.detector.Detect(req.URL)
	if err != nil {
		s.handleError(c, err)
		return
	}

	var enabledAt *time.Time
	if req.Enabled == nil || *req.Enabled {
		now := time.Now()
		enabledAt = &now
	}

	source, err := s.store.CreateSource(target, req.URL, req.Name, req.MaxPosts, req.Options, enabledAt)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, source)
}

// HandleUpdateSource handles PUT /sources/{id}.
func (s *APIServer) HandleUpdateSource(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("bad_request", "Invalid source ID"))
		return
	}

	var req UpdateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("bad_request", err.Error()))
		return
	}

	update := SourceUpdate{
		Name:     req.Name,
		MaxPosts: req.MaxPosts,
		Options:  req.Options,
	}

	if req.Enabled != nil {
		if *req.Enabled {
			now := time.Now()
			zero := 0
			update.EnabledAt = &now
			// Re-enabling resets the auto-disable counter.
			update.FetchErrorCount = &zero
			update.ClearLastError = true
		} else {
			update.ClearEnabledAt = true
		}
	}

	if err := s.store.UpdateSource(sourceID, update); err != nil {
		s.handleError(c, err)
		return
	}

	source, err := s.store.GetSource(sourceID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, source)
}

// HandleDeleteSource handles DELETE /sources/{id}.
func (s *APIServer) HandleDeleteSource(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("bad_request", "Invalid source ID"))
		return
	}

	if err := s.store.DeleteSource(sourceID); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
