package system

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/storage"
	"github.com/KevinKickass/OpenTestBench/internal/testrun"
	"go.uber.org/zap"
)

const persistTimeout = 10 * time.Second

// progressRecorder fans sequencer events out to the websocket hub and
// persists completed channels and batches. The sequencer itself never
// touches storage.
type progressRecorder struct {
	lm *LifecycleManager
}

func (r *progressRecorder) StepChanged(batchID string, step int, phase testrun.BatchPhase) {
	r.lm.wsHub.StepChanged(batchID, step, phase)
}

func (r *progressRecorder) ChannelCompleted(snapshot testrun.StateSnapshot) {
	r.lm.wsHub.ChannelCompleted(snapshot)

	record := r.buildRecord(snapshot)
	if record == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.lm.storage.SaveRecords(ctx, []*storage.ChannelRecord{record}); err != nil {
		r.lm.logger.Error("Failed to persist channel record",
			zap.String("tag", snapshot.Tag),
			zap.String("instance_id", snapshot.InstanceID),
			zap.Error(err))
	}
}

func (r *progressRecorder) BatchCompleted(batchID string, phase testrun.BatchPhase) {
	r.lm.wsHub.BatchCompleted(batchID, phase)

	batch, ok := r.lm.tracker.Batch(batchID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.lm.storage.SaveBatch(ctx, batch); err != nil {
		r.lm.logger.Error("Failed to persist batch result",
			zap.String("batch_id", batchID),
			zap.Error(err))
	}
}

func (r *progressRecorder) buildRecord(snapshot testrun.StateSnapshot) *storage.ChannelRecord {
	state, ok := r.lm.tracker.State(snapshot.InstanceID)
	if !ok {
		return nil
	}
	def := state.Definition()

	batch, _ := r.lm.tracker.Batch(snapshot.BatchID)

	return &storage.ChannelRecord{
		InstanceID:   snapshot.InstanceID,
		Tag:          snapshot.Tag,
		BatchID:      snapshot.BatchID,
		BatchName:    def.BatchName,
		ModuleClass:  snapshot.ModuleClass,
		ProductModel: batch.ProductModel,
		SerialNumber: batch.SerialNumber,
		Status:       string(snapshot.Status),
		Outcome:      string(snapshot.Outcome),
		RangeLow:     def.RangeLow,
		RangeHigh:    def.RangeHigh,
		SetpointLL:   def.SetpointLL,
		SetpointL:    def.SetpointL,
		SetpointH:    def.SetpointH,
		SetpointHH:   def.SetpointHH,
		Reading0:     snapshot.Readings[testrun.Point0],
		Reading25:    snapshot.Readings[testrun.Point25],
		Reading50:    snapshot.Readings[testrun.Point50],
		Reading75:    snapshot.Readings[testrun.Point75],
		Reading100:   snapshot.Readings[testrun.Point100],
		ObservedHigh: snapshot.ObservedHigh,
		ObservedLow:  snapshot.ObservedLow,
		ErrorDetail:  snapshot.ErrorDetail,
		StartedAt:    snapshot.StartedAt,
		FinishedAt:   snapshot.FinishedAt,
	}
}

var _ testrun.Notifier = (*progressRecorder)(nil)
