// Package handler wires the Risk Scorer's HTTP routes to its service layer.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"adaptivemfa/internal/apierr"
	"adaptivemfa/internal/riskscorer/service"
)

// Handler exposes the Risk Scorer's HTTP routes.
type Handler struct {
	svc *service.Service
}

// New returns a Handler backed by svc.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the Risk Scorer's routes onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/predict", h.predict)
	r.GET("/history/:email", h.history)
}

type predictRequest struct {
	EventID       string  `json:"event_id" binding:"required"`
	UserID        *string `json:"user_id"`
	Email         string  `json:"email" binding:"required"`
	IPAddress     string  `json:"ip_address"`
	UserAgent     string  `json:"user_agent"`
	Country       string  `json:"country"`
	Region        string  `json:"region"`
	City          string  `json:"city"`
	Timestamp     string  `json:"timestamp" binding:"required"`
	WasSuccessful bool    `json:"was_successful"`
}

func (h *Handler) predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}
	if _, err := uuid.Parse(req.EventID); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: "event_id must be a uuid"})
		return
	}
	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: "timestamp must be RFC3339"})
		return
	}

	result, err := h.svc.Predict(c.Request.Context(), service.PredictRequest{
		EventID:       req.EventID,
		UserID:        req.UserID,
		Email:         req.Email,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Country:       req.Country,
		Region:        req.Region,
		City:          req.City,
		Timestamp:     ts,
		WasSuccessful: req.WasSuccessful,
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "scored", "data": result})
}

func (h *Handler) history(c *gin.Context) {
	email := c.Param("email")
	limit := 20
	attempts, err := h.svc.History(c.Request.Context(), email, limit)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "attempts": attempts})
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
