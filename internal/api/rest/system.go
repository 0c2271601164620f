package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}
