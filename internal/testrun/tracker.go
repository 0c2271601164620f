package testrun

import (
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker owns the registry of active channel states and the batch
// records they roll up into. It is the single writer of aggregate
// counts; everything else reads snapshots.
type Tracker struct {
	mu      sync.RWMutex
	states  map[string]*ChannelState   // instance id -> state
	byBatch map[string][]*ChannelState // batch id -> states
	batches map[string]*types.TestBatch
	logger  *zap.Logger
}

func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		states:  make(map[string]*ChannelState),
		byBatch: make(map[string][]*ChannelState),
		batches: make(map[string]*types.TestBatch),
		logger:  logger,
	}
}

// CreateStates registers a batch and creates one state per allocated
// channel. Channels start in wiring confirmation; the batch cannot run
// until ConfirmWiring is called.
func (t *Tracker) CreateStates(batch types.TestBatch, definitions []*types.ChannelDefinition) []*ChannelState {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := batch
	t.batches[b.BatchID] = &b

	created := make([]*ChannelState, 0, len(definitions))
	for _, def := range definitions {
		state := NewChannelState(uuid.New().String(), def)
		t.states[state.InstanceID()] = state
		t.byBatch[b.BatchID] = append(t.byBatch[b.BatchID], state)
		created = append(created, state)
	}

	t.logger.Info("Test states created",
		zap.String("batch_id", b.BatchID),
		zap.Int("channels", len(created)))

	return created
}

// ConfirmWiring moves every channel of the batch from wiring
// confirmation to ready.
func (t *Tracker) ConfirmWiring(batchID string) error {
	t.mu.RLock()
	states, ok := t.byBatch[batchID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("batch %s not found", batchID)
	}

	for _, state := range states {
		state.markWiringConfirmed()
	}
	return nil
}

func (t *Tracker) State(instanceID string) (*ChannelState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[instanceID]
	return state, ok
}

func (t *Tracker) StatesForBatch(batchID string) []*ChannelState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	states := make([]*ChannelState, len(t.byBatch[batchID]))
	copy(states, t.byBatch[batchID])
	return states
}

func (t *Tracker) Batch(batchID string) (types.TestBatch, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	batch, ok := t.batches[batchID]
	if !ok {
		return types.TestBatch{}, false
	}
	return *batch, true
}

func (t *Tracker) Batches() []types.TestBatch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.TestBatch, 0, len(t.batches))
	for _, b := range t.batches {
		out = append(out, *b)
	}
	return out
}

// RecreateState replaces an instance's state with a fresh one for a
// retest. The instance id and definition survive; readings, outcome
// and error detail start over. Wiring stays confirmed.
func (t *Tracker) RecreateState(instanceID string) (*ChannelState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.states[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	if old.Status() == StatusRunning {
		return nil, fmt.Errorf("instance %s is currently running", instanceID)
	}

	fresh := NewChannelState(instanceID, old.Definition())
	fresh.markWiringConfirmed()
	t.states[instanceID] = fresh

	batchID := old.Definition().BatchID
	for i, s := range t.byBatch[batchID] {
		if s.InstanceID() == instanceID {
			t.byBatch[batchID][i] = fresh
			break
		}
	}

	return fresh, nil
}

// RemoveBatch drops a batch and its states from the registry.
func (t *Tracker) RemoveBatch(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, state := range t.byBatch[batchID] {
		delete(t.states, state.InstanceID())
	}
	delete(t.byBatch, batchID)
	delete(t.batches, batchID)
}

// Aggregate recomputes a batch's counters, timestamps and status from
// its channel states and returns the updated record.
func (t *Tracker) Aggregate(batchID string) (types.TestBatch, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch, ok := t.batches[batchID]
	if !ok {
		return types.TestBatch{}, fmt.Errorf("batch %s not found", batchID)
	}
	states := t.byBatch[batchID]

	var tested, passed, failed, cancelled, running int
	var first, last *time.Time

	for _, state := range states {
		snap := state.Snapshot()

		switch snap.Status {
		case StatusRunning, StatusPaused:
			running++
		case StatusCancelled:
			cancelled++
		case StatusCompleted:
			tested++
			switch snap.Outcome {
			case OutcomePassed:
				passed++
			case OutcomeFailed:
				failed++
			}
		}

		if snap.StartedAt != nil && (first == nil || snap.StartedAt.Before(*first)) {
			first = snap.StartedAt
		}
		if snap.FinishedAt != nil && (last == nil || snap.FinishedAt.After(*last)) {
			last = snap.FinishedAt
		}
	}

	batch.TestedCount = tested
	batch.PassedCount = passed
	batch.FailedCount = failed
	batch.FirstTestAt = first
	batch.LastTestAt = last

	switch {
	case running > 0:
		batch.Status = types.BatchInProgress
	case cancelled > 0:
		batch.Status = types.BatchCanceled
	case tested == len(states) && len(states) > 0:
		if failed > 0 {
			batch.Status = types.BatchCompletedWithFailures
		} else {
			batch.Status = types.BatchCompleted
		}
	case tested > 0:
		batch.Status = types.BatchInProgress
	default:
		batch.Status = types.BatchNotStarted
	}

	return *batch, nil
}
