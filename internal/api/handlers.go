package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"personabot/internal/models"
	"personabot/internal/worker"
)

// EventDispatcher queues events for per-user serial processing.
type EventDispatcher interface {
	Submit(worker.Job) error
	CancelUser(userID int64)
}

// FlowCanceller tears down a user's session out of band.
type FlowCanceller interface {
	Cancel(externalID int64) models.Response
}

// Handler wires the transport webhook to the dispatcher.
type Handler struct {
	dispatcher EventDispatcher
	canceller  FlowCanceller
	secret     string
	timeout    time.Duration
}

// NewHandler constructs the webhook handler. secret guards the webhook
// endpoint; timeout bounds how long a request waits for its response.
func NewHandler(dispatcher EventDispatcher, canceller FlowCanceller, secret string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Handler{
		dispatcher: dispatcher,
		canceller:  canceller,
		secret:     secret,
		timeout:    timeout,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ping", h.ping)
	hook := router.Group("/webhook")
	hook.Use(h.requireSecret())
	hook.POST("/events", h.handleEvent)
}

func (h *Handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

func (h *Handler) handleEvent(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event body"})
		return
	}
	if ev.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if ev.Kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind is required"})
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	// Cancel skips the queue entirely: it must work even while the user's
	// previous event is suspended on a collaborator call.
	if ev.Kind == models.EventCancel {
		h.dispatcher.CancelUser(ev.UserID)
		c.JSON(http.StatusOK, h.canceller.Cancel(ev.UserID))
		return
	}

	job := worker.Job{
		Ctx:    c.Request.Context(),
		Event:  ev,
		Result: make(chan models.Response, 1),
	}
	if err := h.dispatcher.Submit(job); err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
		return
	}

	select {
	case resp := <-job.Result:
		c.JSON(http.StatusOK, resp)
	case <-time.After(h.timeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "event processing timed out"})
	case <-c.Request.Context().Done():
		c.Status(http.StatusRequestTimeout)
	}
}
