package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

type CreateOperatorRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=operator admin"`
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeAuthBadRequest, "Invalid request body", err.Error()))
		return
	}

	token, err := s.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeAuthUnauthorized, "Invalid credentials", nil))
		return
	}

	ttl := s.lm.Config().Auth.AccessTokenTTL
	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

func (s *Server) getCurrentOperator(c *gin.Context) {
	username, _ := c.Get("username")
	role, _ := c.Get("role")
	permissions, _ := c.Get("permissions")

	c.JSON(http.StatusOK, gin.H{
		"username":    username,
		"role":        role,
		"permissions": permissions,
	})
}

func (s *Server) createOperator(c *gin.Context) {
	var req CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeOperatorBadRequest, "Invalid request body", err.Error()))
		return
	}

	operator, err := s.authService.CreateOperator(c.Request.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		s.logger.Error("Failed to create operator", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeOperatorInternal, "Failed to create operator", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, operator)
}
