package notifications

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/eternisai/devotional-push/internal/errors"
	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/subscriptions"
	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/gin-gonic/gin"
)

const notConfiguredMessage = "push notifications not configured"

// SubscribeRequest is the body of POST /push/subscribe.
type SubscribeRequest struct {
	Subscription *webpush.Subscription `json:"subscription"`
	subscriptions.PreferencesInput
}

// UnsubscribeRequest is the body of DELETE /push/subscribe.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// TestSendRequest is the optional body of POST /push/test.
type TestSendRequest struct {
	Endpoint string `json:"endpoint"`
}

// TestSendResponse reports the outcome of an operator test send.
type TestSendResponse struct {
	Success bool            `json:"success"`
	Outcome webpush.Outcome `json:"outcome"`
	Status  int             `json:"status"`
	Error   string          `json:"error,omitempty"`
}

type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.WithComponent("push-handler"),
	}
}

// RegisterRoutes mounts the push API on group. operator guards the test send
// and cron guards the dispatch trigger.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup, operator, cron gin.HandlerFunc) {
	push := group.Group("/push")
	push.GET("/vapid-public-key", h.GetPublicKey)
	push.POST("/subscribe", h.Subscribe)
	push.DELETE("/subscribe", h.Unsubscribe)
	push.POST("/test", operator, h.TestSend)
	push.POST("/dispatch", cron, h.Dispatch)
}

func (h *Handler) GetPublicKey(c *gin.Context) {
	key, err := h.service.PublicKey()
	if err != nil {
		apierrors.ServiceUnavailable(c, notConfiguredMessage, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": key})
}

func (h *Handler) Subscribe(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "invalid request body", map[string]any{"reason": err.Error()})
		return
	}
	if req.Subscription == nil {
		apierrors.BadRequest(c, "subscription is required", map[string]any{"field": "subscription"})
		return
	}

	rec, err := h.service.Subscribe(c.Request.Context(), *req.Subscription, req.Normalize())
	if err != nil {
		if errors.Is(err, subscriptions.ErrInvalidRecord) || errors.Is(err, webpush.ErrInvalidSubscription) {
			apierrors.BadRequest(c, "invalid subscription", map[string]any{"reason": err.Error()})
			return
		}
		log.Error("failed to store subscription", slog.String("error", err.Error()))
		apierrors.Internal(c, "failed to store subscription", nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":         rec.Key,
		"preferences": rec.Preferences,
	})
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" {
		apierrors.BadRequest(c, "endpoint is required", map[string]any{"field": "endpoint"})
		return
	}

	if err := h.service.Unsubscribe(c.Request.Context(), req.Endpoint); err != nil {
		log.Error("failed to remove subscription", slog.String("error", err.Error()))
		apierrors.Internal(c, "failed to remove subscription", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) TestSend(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	var req TestSendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.BadRequest(c, "invalid request body", map[string]any{"reason": err.Error()})
			return
		}
	}

	res, err := h.service.TestSend(c.Request.Context(), req.Endpoint)
	switch {
	case errors.Is(err, webpush.ErrNotConfigured):
		apierrors.ServiceUnavailable(c, notConfiguredMessage, nil)
		return
	case errors.Is(err, subscriptions.ErrNotFound):
		apierrors.NotFound(c, "no subscription found", nil)
		return
	case err != nil:
		log.Error("test send failed", slog.String("error", err.Error()))
		apierrors.Internal(c, "test send failed", nil)
		return
	}

	resp := TestSendResponse{
		Success: res.Delivered(),
		Outcome: res.Outcome,
		Status:  res.StatusCode,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	log.Info("test send finished",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("status", res.StatusCode))
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Dispatch(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	report, err := h.service.RunScheduled(c.Request.Context())
	if errors.Is(err, webpush.ErrNotConfigured) {
		apierrors.ServiceUnavailable(c, notConfiguredMessage, nil)
		return
	}
	if err != nil {
		log.Error("dispatch failed", slog.String("error", err.Error()))
		apierrors.Internal(c, "dispatch failed", nil)
		return
	}
	c.JSON(http.StatusOK, report)
}
