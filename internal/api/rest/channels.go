package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) listTags(c *gin.Context) {
	tags, err := s.lm.Storage().ListTags(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeChannelInternal, "Failed to list tags", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tags":  tags,
		"count": len(tags),
	})
}

// getRecordsByTag returns the full stored test history of one channel
// tag, newest first.
func (s *Server) getRecordsByTag(c *gin.Context) {
	tag := c.Param("tag")

	records, err := s.lm.Storage().LoadRecordsByTag(c.Request.Context(), tag)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeChannelInternal, "Failed to load records", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tag":     tag,
		"records": records,
	})
}

func (s *Server) deleteRecordsByTag(c *gin.Context) {
	tag := c.Param("tag")

	deleted, err := s.lm.Storage().DeleteByTag(c.Request.Context(), tag)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeChannelInternal, "Failed to delete records", err.Error()))
		return
	}

	s.logger.Info("Channel records deleted",
		zap.String("tag", tag),
		zap.Int64("rows", deleted))

	c.JSON(http.StatusOK, gin.H{
		"tag":     tag,
		"deleted": deleted,
	})
}
