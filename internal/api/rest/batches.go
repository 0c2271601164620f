package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) listBatches(c *gin.Context) {
	batches := s.lm.Tracker().Batches()
	c.JSON(http.StatusOK, gin.H{
		"batches": batches,
		"count":   len(batches),
	})
}

func (s *Server) getBatch(c *gin.Context) {
	batchID := c.Param("id")

	batch, err := s.lm.Tracker().Aggregate(batchID)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeBatchNotFound, "Batch not found", err.Error()))
		return
	}

	c.JSON(http.StatusOK, batch)
}

// getBatchChannels returns the live state snapshots of every channel in
// the batch.
func (s *Server) getBatchChannels(c *gin.Context) {
	batchID := c.Param("id")

	states := s.lm.Tracker().StatesForBatch(batchID)
	if len(states) == 0 {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeBatchNotFound, "Batch not found", nil))
		return
	}

	snapshots := make([]any, 0, len(states))
	for _, state := range states {
		snapshots = append(snapshots, state.Snapshot())
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": batchID,
		"channels": snapshots,
	})
}

// getBatchRecords returns the persisted results of the batch.
func (s *Server) getBatchRecords(c *gin.Context) {
	batchID := c.Param("id")

	records, err := s.lm.Storage().LoadRecordsByBatch(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeBatchInternal, "Failed to load records", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": batchID,
		"records":  records,
	})
}

// confirmWiring acknowledges that the bench is cabled per the
// allocation and releases the batch for testing.
func (s *Server) confirmWiring(c *gin.Context) {
	batchID := c.Param("id")

	if err := s.lm.Tracker().ConfirmWiring(batchID); err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeBatchNotFound, "Batch not found", err.Error()))
		return
	}

	s.logger.Info("Wiring confirmed", zap.String("batch_id", batchID))
	c.JSON(http.StatusOK, gin.H{"message": "wiring confirmed"})
}

func (s *Server) startBatch(c *gin.Context) {
	batchID := c.Param("id")

	if err := s.lm.Sequencer().StartBatch(batchID); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeBatchConflict, "Cannot start batch", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "batch started",
		"batch_id": batchID,
	})
}

func (s *Server) stopBatch(c *gin.Context) {
	batchID := c.Param("id")

	if err := s.lm.Sequencer().StopBatch(batchID); err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeBatchNotFound, "Batch not running", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "batch stopping"})
}

func (s *Server) pauseBatch(c *gin.Context) {
	batchID := c.Param("id")

	if err := s.lm.Sequencer().PauseBatch(batchID); err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeBatchNotFound, "Batch not running", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "batch paused"})
}

func (s *Server) resumeBatch(c *gin.Context) {
	batchID := c.Param("id")

	if err := s.lm.Sequencer().ResumeBatch(batchID); err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeBatchNotFound, "Batch not running", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "batch resumed"})
}

func (s *Server) deleteBatch(c *gin.Context) {
	batchID := c.Param("id")

	if err := s.lm.ClearBatch(c.Request.Context(), batchID); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeBatchConflict, "Cannot delete batch", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "batch deleted"})
}

func (s *Server) getInstance(c *gin.Context) {
	instanceID := c.Param("id")

	state, ok := s.lm.Tracker().State(instanceID)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeInstanceNotFound, "Instance not found", nil))
		return
	}

	c.JSON(http.StatusOK, state.Snapshot())
}

// retestChannel reruns a single channel without touching its batch
// siblings. The previous result stays in the history; a new record is
// written when the retest completes.
func (s *Server) retestChannel(c *gin.Context) {
	instanceID := c.Param("id")

	if err := s.lm.Sequencer().RetestChannel(instanceID); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeInstanceConflict, "Cannot retest channel", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":     "retest started",
		"instance_id": instanceID,
	})
}

func (s *Server) stopRetest(c *gin.Context) {
	instanceID := c.Param("id")

	if err := s.lm.Sequencer().StopRetest(instanceID); err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeInstanceNotFound, "Retest not running", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "retest stopping"})
}
