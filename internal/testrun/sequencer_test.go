package testrun

import (
	"context"
	"testing"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/plc"
	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testBench wires two Sim facades onto one bus, with rig and target
// addresses linked like real bench cabling.
type testBench struct {
	bus    *plc.SimBus
	tester *plc.Sim
	target *plc.Sim
}

func newTestBench(t *testing.T, defs []*types.ChannelDefinition) *testBench {
	t.Helper()

	bus := plc.NewSimBus()
	for _, def := range defs {
		bus.Link(def.RigCommAddress, def.CommAddress)
	}

	bench := &testBench{
		bus:    bus,
		tester: plc.NewSim("tester", bus),
		target: plc.NewSim("target", bus),
	}
	require.NoError(t, bench.tester.Connect(context.Background()))
	require.NoError(t, bench.target.Connect(context.Background()))
	return bench
}

func fastSettings() Settings {
	return Settings{
		SettleAfterWrite: time.Millisecond,
		SettleBetween:    time.Millisecond,
		WorkerMultiplier: 1,
		PausePoll:        time.Millisecond,
	}
}

func benchDefinitions(batchID string) []*types.ChannelDefinition {
	return []*types.ChannelDefinition{
		{
			ID: "def-ai", Tag: "1_1_AI_0", ModuleClass: types.ModuleAI,
			RangeLow: 4, RangeHigh: 20,
			CommAddress: "40001", RigCommAddress: "40101",
			BatchID: batchID,
		},
		{
			ID: "def-di", Tag: "1_2_DI_0", ModuleClass: types.ModuleDI,
			CommAddress: "00001", RigCommAddress: "00101",
			BatchID: batchID,
		},
	}
}

func newBatch(batchID string, defs []*types.ChannelDefinition) types.TestBatch {
	return types.TestBatch{
		BatchID:    batchID,
		Name:       "Batch 1",
		Status:     types.BatchNotStarted,
		TotalCount: len(defs),
		CreatedAt:  time.Now(),
	}
}

func TestSequencerRunsBatchToCompletion(t *testing.T) {
	const batchID = "b1_batch_1"
	defs := benchDefinitions(batchID)
	bench := newTestBench(t, defs)

	tracker := NewTracker(zap.NewNop())
	tracker.CreateStates(newBatch(batchID, defs), defs)
	require.NoError(t, tracker.ConfirmWiring(batchID))

	seq := NewSequencer(bench.tester, bench.target, tracker,
		NewEvaluator(zap.NewNop()), nil, fastSettings(), zap.NewNop())

	require.NoError(t, seq.StartBatch(batchID))
	seq.Wait(batchID)

	for _, state := range tracker.StatesForBatch(batchID) {
		snap := state.Snapshot()
		assert.Equal(t, StatusCompleted, snap.Status, "tag %s", snap.Tag)
		assert.Equal(t, OutcomePassed, snap.Outcome, "tag %s: %s", snap.Tag, snap.ErrorDetail)
	}

	batch, ok := tracker.Batch(batchID)
	require.True(t, ok)
	assert.Equal(t, types.BatchCompleted, batch.Status)
	assert.Equal(t, 2, batch.TestedCount)
	assert.Equal(t, 2, batch.PassedCount)
	assert.Zero(t, batch.FailedCount)
	assert.NotNil(t, batch.FirstTestAt)
	assert.NotNil(t, batch.LastTestAt)
}

func TestSequencerRejectsUnconfirmedWiring(t *testing.T) {
	const batchID = "b2_batch_1"
	defs := benchDefinitions(batchID)
	bench := newTestBench(t, defs)

	tracker := NewTracker(zap.NewNop())
	tracker.CreateStates(newBatch(batchID, defs), defs)

	seq := NewSequencer(bench.tester, bench.target, tracker,
		NewEvaluator(zap.NewNop()), nil, fastSettings(), zap.NewNop())

	err := seq.StartBatch(batchID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wiring")
}

func TestSequencerCancellationMarksUntestedChannels(t *testing.T) {
	const batchID = "b3_batch_1"
	defs := benchDefinitions(batchID)
	bench := newTestBench(t, defs)

	tracker := NewTracker(zap.NewNop())
	tracker.CreateStates(newBatch(batchID, defs), defs)
	require.NoError(t, tracker.ConfirmWiring(batchID))

	settings := fastSettings()
	settings.SettleAfterWrite = 200 * time.Millisecond

	seq := NewSequencer(bench.tester, bench.target, tracker,
		NewEvaluator(zap.NewNop()), nil, settings, zap.NewNop())

	require.NoError(t, seq.StartBatch(batchID))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, seq.StopBatch(batchID))
	seq.Wait(batchID)

	for _, state := range tracker.StatesForBatch(batchID) {
		snap := state.Snapshot()
		assert.Equal(t, StatusCancelled, snap.Status, "tag %s", snap.Tag)
		assert.Empty(t, snap.Outcome)
	}

	batch, ok := tracker.Batch(batchID)
	require.True(t, ok)
	assert.Equal(t, types.BatchCanceled, batch.Status)
}

func TestSequencerPauseHoldsProgress(t *testing.T) {
	const batchID = "b4_batch_1"
	defs := benchDefinitions(batchID)[:1]
	bench := newTestBench(t, defs)

	tracker := NewTracker(zap.NewNop())
	tracker.CreateStates(newBatch(batchID, defs), defs)
	require.NoError(t, tracker.ConfirmWiring(batchID))

	settings := fastSettings()
	settings.SettleAfterWrite = 100 * time.Millisecond

	seq := NewSequencer(bench.tester, bench.target, tracker,
		NewEvaluator(zap.NewNop()), nil, settings, zap.NewNop())

	require.NoError(t, seq.StartBatch(batchID))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, seq.PauseBatch(batchID))

	state := tracker.StatesForBatch(batchID)[0]
	assert.Equal(t, StatusPaused, state.Status())
	time.Sleep(50 * time.Millisecond)
	assert.NotEqual(t, StatusCompleted, state.Status())

	require.NoError(t, seq.ResumeBatch(batchID))
	seq.Wait(batchID)
	assert.Equal(t, StatusCompleted, state.Status())
}

func TestSequencerFailedStimulusFailsChannel(t *testing.T) {
	const batchID = "b7_batch_1"
	defs := benchDefinitions(batchID)[:1]
	bench := newTestBench(t, defs)

	tracker := NewTracker(zap.NewNop())
	tracker.CreateStates(newBatch(batchID, defs), defs)
	require.NoError(t, tracker.ConfirmWiring(batchID))

	seq := NewSequencer(bench.tester, bench.target, tracker,
		NewEvaluator(zap.NewNop()), nil, fastSettings(), zap.NewNop())

	// The write error is not a connection drop, so there is no retry:
	// the channel must end up failed with the error on record.
	bench.tester.FailNext(plc.CodeWrite)

	require.NoError(t, seq.StartBatch(batchID))
	seq.Wait(batchID)

	snap := tracker.StatesForBatch(batchID)[0].Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, OutcomeFailed, snap.Outcome)
	assert.Contains(t, snap.ErrorDetail, "stimulus")

	batch, ok := tracker.Batch(batchID)
	require.True(t, ok)
	assert.Equal(t, types.BatchCompletedWithFailures, batch.Status)
	assert.Equal(t, 1, batch.FailedCount)
}

func TestRetestLeavesSiblingsUntouched(t *testing.T) {
	const batchID = "b5_batch_1"
	defs := benchDefinitions(batchID)
	bench := newTestBench(t, defs)

	tracker := NewTracker(zap.NewNop())
	states := tracker.CreateStates(newBatch(batchID, defs), defs)
	require.NoError(t, tracker.ConfirmWiring(batchID))

	seq := NewSequencer(bench.tester, bench.target, tracker,
		NewEvaluator(zap.NewNop()), nil, fastSettings(), zap.NewNop())

	require.NoError(t, seq.StartBatch(batchID))
	seq.Wait(batchID)

	retestID := states[0].InstanceID()
	siblingID := states[1].InstanceID()
	sibling, ok := tracker.State(siblingID)
	require.True(t, ok)
	siblingBefore := sibling.Snapshot()

	require.NoError(t, seq.RetestChannel(retestID))
	seq.WaitRetest(retestID)

	fresh, ok := tracker.State(retestID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, fresh.Status())
	assert.Equal(t, OutcomePassed, fresh.Outcome())

	siblingAfter := sibling.Snapshot()
	assert.Equal(t, siblingBefore, siblingAfter)

	batch, ok := tracker.Batch(batchID)
	require.True(t, ok)
	assert.Equal(t, types.BatchCompleted, batch.Status)
	assert.Equal(t, 2, batch.TestedCount)
}

func TestCancelledRetestKeepsSiblingOutcomes(t *testing.T) {
	const batchID = "b8_batch_1"
	defs := benchDefinitions(batchID)
	bench := newTestBench(t, defs)

	tracker := NewTracker(zap.NewNop())
	states := tracker.CreateStates(newBatch(batchID, defs), defs)
	require.NoError(t, tracker.ConfirmWiring(batchID))

	seq := NewSequencer(bench.tester, bench.target, tracker,
		NewEvaluator(zap.NewNop()), nil, fastSettings(), zap.NewNop())

	require.NoError(t, seq.StartBatch(batchID))
	seq.Wait(batchID)

	retestID := states[0].InstanceID()
	siblingID := states[1].InstanceID()
	sibling, ok := tracker.State(siblingID)
	require.True(t, ok)
	siblingBefore := sibling.Snapshot()
	require.Equal(t, OutcomePassed, siblingBefore.Outcome)

	// Slow the retest down enough to cancel it mid-run.
	seq.settings.SettleAfterWrite = 200 * time.Millisecond
	require.NoError(t, seq.RetestChannel(retestID))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, seq.StopRetest(retestID))
	seq.WaitRetest(retestID)

	fresh, ok := tracker.State(retestID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, fresh.Status())
	assert.Empty(t, fresh.Outcome())

	// The completed sibling survives the cancellation untouched.
	assert.Equal(t, siblingBefore, sibling.Snapshot())

	batch, ok := tracker.Batch(batchID)
	require.True(t, ok)
	assert.Equal(t, types.BatchCanceled, batch.Status)
	assert.Equal(t, 1, batch.PassedCount)
}

func TestMachineRetriesOnceAfterConnectionLoss(t *testing.T) {
	defs := benchDefinitions("b6_batch_1")[:1]
	bench := newTestBench(t, defs)

	state := NewChannelState("inst-retry", defs[0])
	machine, err := NewMachine(state, bench.tester, bench.target, zap.NewNop())
	require.NoError(t, err)

	bench.tester.FailNext(plc.CodeNotConnected)
	require.NoError(t, machine.WriteStimulus(context.Background(), Point50))
	assert.True(t, bench.tester.IsConnected())

	// The stimulus landed on the target side despite the dropout.
	value, err := bench.target.ReadAnalog(context.Background(), defs[0].CommAddress)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, value, 1e-9)
}
