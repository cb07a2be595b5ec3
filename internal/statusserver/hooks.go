package statusserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keyrate/internal/errno"
)

type hook struct {
	runID   string
	metrics http.Handler
}

func newHook(runID string, gatherer prometheus.Gatherer) *hook {
	return &hook{
		runID:   runID,
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

func (h *hook) traceID(c *gin.Context) {
	traceId := uuid.New().String()
	c.Set("trace-id", traceId)

	c.Header("X-Request-Id", traceId)
	c.Header("X-Run-Id", h.runID)
}

func (h *hook) ping(c *gin.Context) {
	c.JSON(http.StatusOK, errno.ErrOK.WithData("pong").WithID(c.GetString("trace-id")))
}

func (h *hook) serveMetrics(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
