package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opsdeck/appman/internal/domain/registry"
	"github.com/opsdeck/appman/internal/domain/supervisor"
	"github.com/opsdeck/appman/internal/shared/apperr"
)

// Handlers holds the HTTP handler dependencies. Every handler goes through
// the supervisor; none of them touch the executor or probe directly.
type Handlers struct {
	super  *supervisor.Supervisor
	logger *zap.Logger
}

// NewHandlers creates HTTP handlers backed by a supervisor.
func NewHandlers(super *supervisor.Supervisor, logger *zap.Logger) *Handlers {
	return &Handlers{
		super:  super,
		logger: logger,
	}
}

// Root returns service identification
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "appman",
		"status":  "running",
		"apps":    h.super.Registry().Len(),
	})
}

// Health returns health status
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// appSummary is the list representation of a registered app.
type appSummary struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Script      string `json:"script"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// ListApps returns every registered app in registry order.
func (h *Handlers) ListApps(c *gin.Context) {
	reg := h.super.Registry()
	apps := reg.List()

	out := make([]appSummary, 0, len(apps))
	for _, app := range apps {
		out = append(out, appSummary{
			Name:        app.Name,
			Path:        app.Path,
			Script:      app.Script,
			Description: app.Description,
			Default:     app.Name == reg.Default(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"apps":        out,
		"default_app": reg.Default(),
	})
}

// Status reports liveness for one app via the process-table probe.
func (h *Handlers) Status(c *gin.Context) {
	name := c.Param("name")

	info, err := h.super.Status(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app":     name,
		"running": info.Running(),
		"pids":    info.PIDs,
	})
}

// Action runs one lifecycle action (start, stop, restart, build) through
// the app's control script and returns the captured output.
func (h *Handlers) Action(c *gin.Context) {
	name := c.Param("name")
	action := registry.Action(c.Param("action"))

	if !action.Valid() || action == registry.ActionStatus || action == registry.ActionLogs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + string(action)})
		return
	}

	result, err := h.super.Do(c.Request.Context(), name, action)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Action completed",
		zap.String("app", name),
		zap.String("action", string(action)),
		zap.String("execution_id", string(result.ExecutionID)),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut))

	c.JSON(http.StatusOK, gin.H{
		"app":     name,
		"action":  string(action),
		"success": result.Success(),
		"result":  result,
	})
}

// Logs tails an app's log file. Query parameters: channel (backend or
// frontend, default backend) and lines (default and cap configured).
func (h *Handlers) Logs(c *gin.Context) {
	name := c.Param("name")
	channel := registry.Channel(c.DefaultQuery("channel", string(registry.ChannelBackend)))
	if !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log channel: " + string(channel)})
		return
	}

	lines := 0
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be a non-negative integer"})
			return
		}
		lines = n
	}

	out, err := h.super.Logs(c.Request.Context(), name, channel, lines)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app":     name,
		"channel": string(channel),
		"lines":   out,
		"count":   len(out),
	})
}

// Update pulls the app's repository and restarts it. Admin only; the
// RequireAdmin middleware gates the route.
func (h *Handlers) Update(c *gin.Context) {
	name := c.Param("name")

	result, err := h.super.Update(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app":     name,
		"action":  "update",
		"success": result.Success(),
		"result":  result,
	})
}

// Branch fetches and checks out a git branch in the app root. Admin only.
// The branch travels as a query parameter since names like feature/x do
// not fit a path segment.
func (h *Handlers) Branch(c *gin.Context) {
	name := c.Param("name")
	branch := c.Query("branch")
	if branch == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "branch query parameter is required"})
		return
	}

	result, err := h.super.Branch(c.Request.Context(), name, branch)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app":     name,
		"action":  "branch",
		"branch":  branch,
		"success": result.Success(),
		"result":  result,
	})
}

// Rollback discards the last N commits and restarts the app. Admin only.
func (h *Handlers) Rollback(c *gin.Context) {
	name := c.Param("name")

	commits, err := strconv.Atoi(c.Query("commits"))
	if err != nil || commits < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commits must be a positive integer"})
		return
	}

	result, err := h.super.Rollback(c.Request.Context(), name, commits)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app":     name,
		"action":  "rollback",
		"commits": commits,
		"success": result.Success(),
		"result":  result,
	})
}

// ForceStop kills every process matching the app's signature, bypassing
// the control script. Admin only.
func (h *Handlers) ForceStop(c *gin.Context) {
	name := c.Param("name")

	count, err := h.super.StopAll(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app":     name,
		"stopped": count,
	})
}

// fail maps the core's typed errors to HTTP status codes. Anything not in
// the taxonomy is a 500 and gets logged with its cause.
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnknownApp), errors.Is(err, apperr.ErrLogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrScriptNotFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrSpawnFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
