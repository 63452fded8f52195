package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetclient/internal/app"
	"github.com/dkeye/meetclient/internal/app/orch"
	"github.com/dkeye/meetclient/internal/config"
)

// Controller is the session surface the control API drives.
type Controller interface {
	Snapshot() orch.Snapshot
	ToggleAudio(ctx context.Context, on bool) error
	ToggleVideo(ctx context.Context, on bool) error
	SendChat(ctx context.Context, text string) error
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type chatRequest struct {
	Message string `json:"message"`
}

func SetupRouter(cfg *config.Config, ctrl Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": ctrl.Snapshot().State})
	})

	api := r.Group("/api")
	api.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})
	api.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Snapshot().Peers)
	})
	api.GET("/participants", func(c *gin.Context) {
		s := ctrl.Snapshot()
		c.JSON(http.StatusOK, gin.H{"count": s.ParticipantCount, "participants": s.Participants})
	})
	api.GET("/messages", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Snapshot().Messages)
	})
	api.POST("/audio", toggleHandler(ctrl.ToggleAudio))
	api.POST("/video", toggleHandler(ctrl.ToggleVideo))
	api.POST("/chat", func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid message"})
			return
		}
		if err := ctrl.SendChat(c.Request.Context(), req.Message); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func toggleHandler(toggle func(context.Context, bool) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req toggleRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid enabled"})
			return
		}
		if err := toggle(c.Request.Context(), *req.Enabled); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orch.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, orch.ErrNoLocalTrack):
		status = http.StatusNotFound
	case errors.Is(err, orch.ErrNotActive):
		status = http.StatusConflict
	case errors.Is(err, app.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Str("module", "adapters.http").Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
