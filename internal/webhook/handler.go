// Package webhook exposes the relay over HTTP.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"sigrelay/internal/relay"
	logx "sigrelay/pkg/logx"
)

const (
	rootBody       = "sigrelay is running"
	defaultLimit   = 64 << 10
	defaultWebhook = "/webhook"
)

// Processor runs one webhook body through the relay.
type Processor interface {
	Process(ctx context.Context, body []byte) relay.Outcome
}

// response is the JSON body of every webhook answer.
type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type RouterConfig struct {
	// Path is the webhook route; POST / is always accepted too.
	Path string
	// BodyLimit caps the body in bytes (default 64 KiB).
	BodyLimit int64
}

var ginModeOnce sync.Once

// NewRouter builds the gin engine serving the liveness and webhook routes.
func NewRouter(cfg RouterConfig, p Processor, log logx.Logger) *gin.Engine {
	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })
	if cfg.Path == "" {
		cfg.Path = defaultWebhook
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaultLimit
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "webhook"))

	r := gin.New()
	r.Use(RequestID(), Recovery(log), AccessLog(log))

	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, rootBody) })
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	h := &handler{p: p, limit: cfg.BodyLimit, log: log}
	r.POST(cfg.Path, h.webhook)
	if cfg.Path != "/" {
		r.POST("/", h.webhook)
	}
	return r
}

type handler struct {
	p     Processor
	limit int64
	log   logx.Logger
}

func (h *handler) webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.Warn("webhook body too large", logx.Int64("limit", h.limit),
				logx.String("request_id", c.GetString(ctxRequestID)))
			c.JSON(http.StatusRequestEntityTooLarge, response{Error: "payload_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, response{Error: "bad_request"})
		return
	}

	out := h.p.Process(c.Request.Context(), body)
	if !out.Accepted() {
		c.JSON(http.StatusUnauthorized, response{Error: "invalid_secret"})
		return
	}
	c.JSON(http.StatusOK, response{OK: true})
}
