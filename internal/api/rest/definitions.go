package rest

import (
	"io"
	"net/http"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Import payloads stay well under this; anything bigger is garbage.
const maxImportSize = 8 << 20

type AllocateRequest struct {
	ProductModel string `json:"product_model"`
	SerialNumber string `json:"serial_number"`
}

// importDefinitions takes a raw channel definition JSON document,
// validates it against the schema and makes it the active set.
func (s *Server) importDefinitions(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeImportBadRequest, "Failed to read request body", err.Error()))
		return
	}

	file, err := s.lm.ImportDefinitions(data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse(types.CodeImportRejected, "Import rejected", err.Error()))
		return
	}

	s.logger.Info("Channel definitions imported",
		zap.String("product_model", file.ProductModel),
		zap.Int("channels", len(file.Channels)))

	c.JSON(http.StatusOK, gin.H{
		"product_model": file.ProductModel,
		"serial_number": file.SerialNumber,
		"channels":      len(file.Channels),
	})
}

func (s *Server) listDefinitions(c *gin.Context) {
	defs := s.lm.Definitions()
	c.JSON(http.StatusOK, gin.H{
		"definitions": defs,
		"count":       len(defs),
	})
}

// allocate bin-packs the imported definitions into batches. The
// response includes which channels could not be placed and why.
func (s *Server) allocate(c *gin.Context) {
	var req AllocateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeAllocationBadRequest, "Invalid request body", err.Error()))
			return
		}
	}

	result, err := s.lm.Allocate(req.ProductModel, req.SerialNumber)
	if err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeAllocationConflict, "Allocation failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, result)
}
