package testrun

import (
	"testing"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func trackerWithBatch(t *testing.T, n int) (*Tracker, []*ChannelState) {
	t.Helper()

	defs := make([]*types.ChannelDefinition, 0, n)
	for i := 0; i < n; i++ {
		defs = append(defs, &types.ChannelDefinition{
			ID:          "def",
			Tag:         "1_1_AI_0",
			ModuleClass: types.ModuleAI,
			BatchID:     "batch-1",
		})
	}

	tracker := NewTracker(zap.NewNop())
	states := tracker.CreateStates(types.TestBatch{BatchID: "batch-1", TotalCount: n}, defs)
	require.Len(t, states, n)
	return tracker, states
}

func TestCreateStatesStartInWiringConfirmation(t *testing.T) {
	tracker, states := trackerWithBatch(t, 3)

	for _, state := range states {
		assert.Equal(t, StatusWiringPending, state.Status())
	}

	require.NoError(t, tracker.ConfirmWiring("batch-1"))
	for _, state := range states {
		assert.Equal(t, StatusPending, state.Status())
	}
}

func TestConfirmWiringUnknownBatch(t *testing.T) {
	tracker := NewTracker(zap.NewNop())
	assert.Error(t, tracker.ConfirmWiring("no-such-batch"))
}

func TestRecreateStateResetsReadings(t *testing.T) {
	tracker, states := trackerWithBatch(t, 1)
	require.NoError(t, tracker.ConfirmWiring("batch-1"))

	old := states[0]
	old.recordReading(Point50, 42.0)
	old.recordError("read: timeout")
	old.markCompleted(OutcomeFailed)

	fresh, err := tracker.RecreateState(old.InstanceID())
	require.NoError(t, err)

	assert.Equal(t, old.InstanceID(), fresh.InstanceID())
	assert.Same(t, old.Definition(), fresh.Definition())
	assert.Equal(t, StatusPending, fresh.Status())
	assert.Empty(t, fresh.errorText())
	assert.Zero(t, fresh.Snapshot().Readings[Point50])

	// Registry now serves the fresh state.
	got, ok := tracker.State(old.InstanceID())
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestRecreateStateRejectsRunningChannel(t *testing.T) {
	tracker, states := trackerWithBatch(t, 1)
	states[0].markStarted()

	_, err := tracker.RecreateState(states[0].InstanceID())
	assert.Error(t, err)
}

func TestAggregateCountsAndStatus(t *testing.T) {
	tracker, states := trackerWithBatch(t, 4)
	require.NoError(t, tracker.ConfirmWiring("batch-1"))

	states[0].markCompleted(OutcomePassed)
	states[1].markCompleted(OutcomePassed)
	states[2].markCompleted(OutcomeFailed)

	batch, err := tracker.Aggregate("batch-1")
	require.NoError(t, err)
	assert.Equal(t, 3, batch.TestedCount)
	assert.Equal(t, 2, batch.PassedCount)
	assert.Equal(t, 1, batch.FailedCount)
	assert.Equal(t, types.BatchInProgress, batch.Status)

	states[3].markCompleted(OutcomePassed)
	batch, err = tracker.Aggregate("batch-1")
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompletedWithFailures, batch.Status)
}

func TestAggregatePausedBatchStaysInProgress(t *testing.T) {
	tracker, states := trackerWithBatch(t, 2)
	require.NoError(t, tracker.ConfirmWiring("batch-1"))

	states[0].markStarted()
	states[0].markPaused()
	states[1].markStarted()
	states[1].markPaused()

	batch, err := tracker.Aggregate("batch-1")
	require.NoError(t, err)
	assert.Equal(t, types.BatchInProgress, batch.Status)
	assert.Zero(t, batch.TestedCount)
}

func TestAggregateCancelledBatch(t *testing.T) {
	tracker, states := trackerWithBatch(t, 2)
	require.NoError(t, tracker.ConfirmWiring("batch-1"))

	states[0].markCompleted(OutcomePassed)
	states[1].markCancelled()

	batch, err := tracker.Aggregate("batch-1")
	require.NoError(t, err)
	assert.Equal(t, types.BatchCanceled, batch.Status)
}

func TestRemoveBatchDropsStates(t *testing.T) {
	tracker, states := trackerWithBatch(t, 2)

	tracker.RemoveBatch("batch-1")

	_, ok := tracker.State(states[0].InstanceID())
	assert.False(t, ok)
	assert.Empty(t, tracker.Batches())
	assert.Empty(t, tracker.StatesForBatch("batch-1"))
}
