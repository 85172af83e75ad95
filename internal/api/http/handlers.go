package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/domain/instance"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// Instances is the instance service as seen by the control surface
type Instances interface {
	Create(widgetID string) (string, error)
	Launch(ctx context.Context, req instance.LaunchRequest) (instance.LaunchResult, error)
	Terminate(ctx context.Context, widgetID, instanceID string) error
	Destroy(ctx context.Context, widgetID, instanceID string) error
	Resize(ctx context.Context, widgetID, instanceID string, width, height int) error
	TriggerUpdate(ctx context.Context, widgetID, instanceID string, content types.Content, force bool) error
	ChangePeriod(ctx context.Context, widgetID, instanceID string, period float64) error
	Foreach(widgetID string, fn func(types.InstanceInfo) bool) error
	Find(widgetID, instanceID string) (types.InstanceInfo, bool)
	List() []types.InstanceInfo
	Stats() types.Stats
	Emit(ctx context.Context, env types.Bundle) error
}

// LevelController reads and changes the daemon log level
type LevelController interface {
	Level() string
	SetLevel(level string) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	instances Instances
	levels    LevelController
	logger    *zap.Logger
	version   string
}

// NewHandlers creates a new handler set
func NewHandlers(instances Instances, logger *zap.Logger, version string) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{instances: instances, logger: logger, version: version}
}

// WithLogLevel exposes the log level at /v1/log-level
func (h *Handlers) WithLogLevel(levels LevelController) *Handlers {
	h.levels = levels
	return h
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	v1.GET("/stats", h.Stats)
	v1.GET("/instances", h.ListInstances)
	v1.POST("/envelopes", h.InjectEnvelope)
	if h.levels != nil {
		v1.GET("/log-level", h.GetLogLevel)
		v1.PUT("/log-level", h.SetLogLevel)
	}

	w := v1.Group("/widgets/:widget")
	w.POST("/launch", h.Launch)
	w.GET("/instances", h.ListWidgetInstances)
	w.POST("/instances", h.CreateInstance)
	w.GET("/instances/:instance", h.GetInstance)
	w.DELETE("/instances/:instance", h.Destroy)
	w.POST("/instances/:instance/terminate", h.Terminate)
	w.POST("/instances/:instance/resize", h.Resize)
	w.POST("/instances/:instance/update", h.Update)
	w.POST("/instances/:instance/period", h.Period)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "widgetd",
		"version": h.version,
	})
}

// Health reports registry statistics
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"instances": h.instances.Stats(),
	})
}

// Stats returns registry statistics
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.instances.Stats())
}

// ListInstances lists every tracked instance
func (h *Handlers) ListInstances(c *gin.Context) {
	list := h.instances.List()
	c.JSON(http.StatusOK, gin.H{
		"instances": list,
		"count":     len(list),
	})
}

// ListWidgetInstances lists the instances of one widget. The optional
// limit query stops the walk early.
func (h *Handlers) ListWidgetInstances(c *gin.Context) {
	widgetID := c.Param("widget")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	list := make([]types.InstanceInfo, 0)
	err := h.instances.Foreach(widgetID, func(info types.InstanceInfo) bool {
		list = append(list, info)
		return limit == 0 || len(list) < limit
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"widget_id": widgetID,
		"instances": list,
		"count":     len(list),
	})
}

// GetInstance returns one instance
func (h *Handlers) GetInstance(c *gin.Context) {
	info, ok := h.instances.Find(c.Param("widget"), c.Param("instance"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// CreateInstance registers a new instance without launching it
func (h *Handlers) CreateInstance(c *gin.Context) {
	instanceID, err := h.instances.Create(c.Param("widget"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"instance_id": instanceID,
		"widget_id":   c.Param("widget"),
	})
}

type launchRequest struct {
	InstanceID string        `json:"instance_id"`
	Content    types.Content `json:"content_info"`
	Width      int           `json:"width" binding:"gte=0"`
	Height     int           `json:"height" binding:"gte=0"`
}

// Launch starts the widget process for a new or existing instance
func (h *Handlers) Launch(c *gin.Context) {
	var req launchRequest
	if !bindOptional(c, &req) {
		return
	}

	res, err := h.instances.Launch(c.Request.Context(), instance.LaunchRequest{
		WidgetID:   c.Param("widget"),
		InstanceID: req.InstanceID,
		Content:    req.Content,
		Width:      req.Width,
		Height:     req.Height,
	})
	if err != nil {
		// The instance id is still useful for a retry
		status := statusFor(err)
		c.JSON(status, gin.H{
			"error":       err.Error(),
			"instance_id": res.InstanceID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instance_id": res.InstanceID,
		"pid":         res.PID,
	})
}

// Terminate asks the widget process to stop the instance
func (h *Handlers) Terminate(c *gin.Context) {
	err := h.instances.Terminate(c.Request.Context(), c.Param("widget"), c.Param("instance"))
	h.accepted(c, err)
}

// Destroy asks the widget process to delete the instance
func (h *Handlers) Destroy(c *gin.Context) {
	err := h.instances.Destroy(c.Request.Context(), c.Param("widget"), c.Param("instance"))
	h.accepted(c, err)
}

// Resize sends a new size to the instance
func (h *Handlers) Resize(c *gin.Context) {
	var req struct {
		Width  int `json:"width" binding:"required,gt=0"`
		Height int `json:"height" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	err := h.instances.Resize(c.Request.Context(), c.Param("widget"), c.Param("instance"), req.Width, req.Height)
	h.accepted(c, err)
}

// Update asks the instance to refresh its content
func (h *Handlers) Update(c *gin.Context) {
	var req struct {
		Content types.Content `json:"content_info"`
		Force   bool          `json:"force"`
	}
	if !bindOptional(c, &req) {
		return
	}
	err := h.instances.TriggerUpdate(c.Request.Context(), c.Param("widget"), c.Param("instance"), req.Content, req.Force)
	h.accepted(c, err)
}

// Period changes the update period of the instance
func (h *Handlers) Period(c *gin.Context) {
	var req struct {
		Period *float64 `json:"period" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	err := h.instances.ChangePeriod(c.Request.Context(), c.Param("widget"), c.Param("instance"), *req.Period)
	h.accepted(c, err)
}

// InjectEnvelope sends a raw lifecycle envelope to the viewer endpoint over
// the bus, as a widget process would
func (h *Handlers) InjectEnvelope(c *gin.Context) {
	var env types.Bundle
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := h.instances.Emit(c.Request.Context(), env); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

// GetLogLevel returns the current log level
func (h *Handlers) GetLogLevel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"level": h.levels.Level()})
}

// SetLogLevel changes the log level at runtime
func (h *Handlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Level string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := h.levels.SetLevel(req.Level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("Log level changed", zap.String("level", req.Level))
	c.JSON(http.StatusOK, gin.H{"level": h.levels.Level()})
}

func (h *Handlers) accepted(c *gin.Context, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":     true,
		"widget_id":   c.Param("widget"),
		"instance_id": c.Param("instance"),
	})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bindOptional binds a JSON body when one is present
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps instance errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, instance.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, instance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, instance.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, instance.ErrIPC):
		return http.StatusBadGateway
	case errors.Is(err, instance.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
