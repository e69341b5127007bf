package dlqmonitor

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"orderflow/internal/config"
	"orderflow/internal/logger"
	apperrors "orderflow/pkg/errors"
	"orderflow/pkg/ratelimit"
)

// API exposes the monitor's admin operations over HTTP. Targets maps a
// queue name to its main queue URL for replay.
type API struct {
	monitor *Monitor
	targets map[string]string
	logger  logger.Logger
}

func NewAPI(monitor *Monitor, targets map[string]string, log logger.Logger) *API {
	return &API{
		monitor: monitor,
		targets: targets,
		logger:  log,
	}
}

func (a *API) Register(router gin.IRouter, rl config.RateLimitConfig) {
	group := router.Group("/dlq")
	if rl.Enabled {
		cfg := ratelimit.DefaultConfig()
		if rl.RPS > 0 {
			cfg.RPS = rl.RPS
		}
		if rl.Burst > 0 {
			cfg.Burst = rl.Burst
		}
		if rl.CleanupInterval > 0 {
			cfg.CleanupInterval = time.Duration(rl.CleanupInterval) * time.Second
		}
		if rl.MaxAge > 0 {
			cfg.MaxAge = time.Duration(rl.MaxAge) * time.Second
		}
		group.Use(ratelimit.Middleware(cfg))
	}

	group.GET("/summary", a.getSummary)
	group.GET("/messages", a.getMessages)
	group.POST("/replay", a.postReplay)
}

func (a *API) getSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queues": a.monitor.Summary()})
}

func (a *API) getMessages(c *gin.Context) {
	messages := a.monitor.Messages(c.Query("queue"))
	c.JSON(http.StatusOK, gin.H{
		"count":    len(messages),
		"messages": messages,
	})
}

type replayRequest struct {
	MessageID   string `json:"messageId" binding:"required"`
	TargetQueue string `json:"targetQueue" binding:"required"`
}

func (a *API) postReplay(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "messageId and targetQueue are required",
			"error_code": "VALIDATION_ERROR",
		})
		return
	}

	targetURL, ok := a.targets[req.TargetQueue]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "unknown target queue: " + req.TargetQueue,
			"error_code": "VALIDATION_ERROR",
		})
		return
	}

	if err := a.monitor.Replay(c.Request.Context(), req.MessageID, targetURL); err != nil {
		a.logger.Warnw("dlq replay failed", "message_id", req.MessageID, "error", err)
		status := http.StatusBadGateway
		if apperrors.IsNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error":      err.Error(),
			"error_code": "REPLAY_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messageId":   req.MessageID,
		"targetQueue": req.TargetQueue,
		"status":      "replayed",
	})
}
