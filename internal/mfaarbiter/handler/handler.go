// Package handler wires the MFA Arbiter's HTTP routes to its service layer.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"adaptivemfa/internal/apierr"
	"adaptivemfa/internal/mfaarbiter/service"
)

// Handler exposes the MFA Arbiter's HTTP routes.
type Handler struct {
	svc *service.Service
}

// New returns a Handler backed by svc.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the MFA Arbiter's routes onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/check", h.check)
	r.POST("/verify", h.verify)
	r.POST("/resend-otp", h.resendOTP)
	r.GET("/otp-logs/:event_id", h.otpLogs)
	r.DELETE("/trusted/:user_id", h.deleteAllTrusted)
	r.DELETE("/trusted/:user_id/:device_id", h.deleteTrustedDevice)
	r.DELETE("/otp-logs/:email", h.deleteOTPLogs)
}

type checkRequest struct {
	EventID   string `json:"event_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	Email     string `json:"email" binding:"required"`
	DeviceID  string `json:"device_id" binding:"required"`
	RiskScore int    `json:"risk_score"`
}

func (h *Handler) check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}

	result, err := h.svc.Check(c.Request.Context(), service.CheckRequest{
		EventID: req.EventID, UserID: req.UserID, Email: req.Email, DeviceID: req.DeviceID, RiskScore: req.RiskScore,
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	status := http.StatusOK
	message := "no mfa challenge required"
	if result.MFARequired {
		status = http.StatusAccepted
		message = "mfa challenge issued"
	}
	c.JSON(status, gin.H{"message": message, "data": gin.H{"event_id": req.EventID, "mfa_required": result.MFARequired}})
}

type verifyRequest struct {
	EventID   string `json:"event_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	Email     string `json:"email" binding:"required"`
	DeviceID  string `json:"device_id" binding:"required"`
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
	OTP       string `json:"otp" binding:"required"`
}

func (h *Handler) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.RespondDetail(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}

	result, err := h.svc.Verify(c.Request.Context(), service.VerifyRequest{
		EventID: req.EventID, UserID: req.UserID, Email: req.Email, DeviceID: req.DeviceID,
		UserAgent: req.UserAgent, IPAddress: req.IPAddress, OTP: req.OTP,
	})
	if err != nil {
		apierr.RespondDetail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verified", "device_saved": result.DeviceSaved})
}

type resendOTPRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) resendOTP(c *gin.Context) {
	var req resendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}
	if err := h.svc.ResendOTP(c.Request.Context(), req.Email); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "otp resent"})
}

func (h *Handler) otpLogs(c *gin.Context) {
	summary, err := h.svc.OTPLogs(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if summary == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) deleteAllTrusted(c *gin.Context) {
	if err := h.svc.DeleteAllTrustedDevices(c.Request.Context(), c.Param("user_id")); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteTrustedDevice(c *gin.Context) {
	if err := h.svc.DeleteTrustedDevice(c.Request.Context(), c.Param("user_id"), c.Param("device_id")); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteOTPLogs(c *gin.Context) {
	if err := h.svc.DeleteOTPLogsByEmail(c.Request.Context(), c.Param("email")); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
