package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "warnet/backend/internal/errors"
	"warnet/backend/internal/middleware"
	"warnet/backend/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	result, apiErr := h.authService.SignIn(c.Request.Context(), req.Email, req.Password)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		writeError(c, apperrors.Unauthorized(""))
		return
	}

	if apiErr := h.authService.SignOut(c.Request.Context(), principal); apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		writeError(c, apperrors.Unauthorized(""))
		return
	}

	admin, apiErr := h.authService.CurrentAdmin(c.Request.Context(), principal)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"admin": admin})
}
