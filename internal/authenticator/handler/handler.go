// Package handler wires the Authenticator's HTTP routes to its service layer.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"adaptivemfa/internal/apierr"
	"adaptivemfa/internal/authenticator/service"
)

// Handler exposes the Authenticator's HTTP routes.
type Handler struct {
	svc *service.Service
}

// New returns a Handler backed by svc.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the Authenticator's routes onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.POST("/verify-otp", h.verifyOTP)
	r.POST("/logout", h.logout)
	r.GET("/current-user", h.currentUser)
	r.POST("/change-password", h.changePassword)
	r.DELETE("/users/:email", h.deleteUser)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}
	if err := h.svc.Register(c.Request.Context(), service.RegisterRequest{Email: req.Email, Password: req.Password}); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

type loginRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	DeviceID  string `json:"device_id" binding:"required"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = c.ClientIP()
	}

	result, err := h.svc.Login(c.Request.Context(), service.LoginRequest{
		Email: req.Email, Password: req.Password, DeviceID: req.DeviceID, ClientIP: clientIP, UserAgent: req.UserAgent,
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	if result.MFARequired {
		c.JSON(http.StatusAccepted, gin.H{"message": "mfa challenge required", "data": gin.H{"mfa_required": true}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "data": gin.H{
		"mfa_required": false, "token": result.Token, "expires_at": result.ExpiresAt,
	}})
}

type verifyOTPRequest struct {
	Email    string `json:"email" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
	OTP      string `json:"otp" binding:"required"`
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}

	result, err := h.svc.VerifyOTP(c.Request.Context(), service.VerifyOTPRequest{
		Email: req.Email, DeviceID: req.DeviceID, OTP: req.OTP, UserAgent: c.Request.UserAgent(), ClientIP: c.ClientIP(),
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "data": gin.H{
		"mfa_required": false, "token": result.Token, "expires_at": result.ExpiresAt,
	}})
}

func (h *Handler) logout(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		apierr.Respond(c, &apierr.ValidationError{Detail: "missing bearer token"})
		return
	}
	if err := h.svc.Logout(c.Request.Context(), token); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) currentUser(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		apierr.Respond(c, apierr.ErrTokenInvalid)
		return
	}
	u, err := h.svc.CurrentUser(c.Request.Context(), token)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": u.ID, "email": u.Email, "role": u.Role}})
}

type changePasswordRequest struct {
	Email           string `json:"email" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, &apierr.ValidationError{Detail: err.Error()})
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), service.ChangePasswordRequest{
		Email: req.Email, NewPassword: req.NewPassword, ConfirmPassword: req.ConfirmPassword,
	}); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (h *Handler) deleteUser(c *gin.Context) {
	result, err := h.svc.DeleteUser(c.Request.Context(), c.Param("email"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted", "data": gin.H{"user_rows_deleted": result.UserRowsDeleted}})
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}
