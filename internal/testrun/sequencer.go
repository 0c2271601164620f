package testrun

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/plc"
	"go.uber.org/zap"
)

// BatchPhase is the coarse phase of a batch run.
type BatchPhase string

const (
	PhaseIdle       BatchPhase = "idle"
	PhasePreparing  BatchPhase = "preparing"
	PhaseRunning    BatchPhase = "running"
	PhaseEvaluating BatchPhase = "evaluating"
	PhaseCompleted  BatchPhase = "completed"
	PhaseCancelled  BatchPhase = "cancelled"
)

// Notifier receives progress events from the sequencer. The websocket
// hub implements it; implementations must not block for long, they run
// on the sequencer goroutine.
type Notifier interface {
	StepChanged(batchID string, step int, phase BatchPhase)
	ChannelCompleted(snapshot StateSnapshot)
	BatchCompleted(batchID string, phase BatchPhase)
}

// Settings are the timing and sizing knobs of the sequencer. Zero
// values fall back to the bench defaults.
type Settings struct {
	SettleAfterWrite time.Duration // wait between stimulus and read
	SettleBetween    time.Duration // wait between two points
	WorkerMultiplier int           // workers = multiplier * GOMAXPROCS
	PausePoll        time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.SettleAfterWrite <= 0 {
		s.SettleAfterWrite = 3 * time.Second
	}
	if s.SettleBetween <= 0 {
		s.SettleBetween = time.Second
	}
	if s.WorkerMultiplier <= 0 {
		s.WorkerMultiplier = 2
	}
	if s.PausePoll <= 0 {
		s.PausePoll = 100 * time.Millisecond
	}
	return s
}

// Sequencer drives batches through the percentage ramp. One batch runs
// on one goroutine; channel operations within a step fan out over a
// bounded worker pool and rejoin at a barrier before the next step.
type Sequencer struct {
	tester    plc.Facade
	target    plc.Facade
	tracker   *Tracker
	evaluator *Evaluator
	notifier  Notifier
	settings  Settings
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]*batchRun
}

type batchRun struct {
	batchID string
	cancel  context.CancelFunc
	paused  atomic.Bool
	done    chan struct{}
}

func NewSequencer(tester, target plc.Facade, tracker *Tracker, evaluator *Evaluator, notifier Notifier, settings Settings, logger *zap.Logger) *Sequencer {
	return &Sequencer{
		tester:    tester,
		target:    target,
		tracker:   tracker,
		evaluator: evaluator,
		notifier:  notifier,
		settings:  settings.withDefaults(),
		logger:    logger,
		active:    make(map[string]*batchRun),
	}
}

// StartBatch launches the test run for a batch. It returns immediately;
// progress flows through the notifier. The run owns its own context so
// a dying HTTP request cannot take the batch down with it.
func (s *Sequencer) StartBatch(batchID string) error {
	states := s.tracker.StatesForBatch(batchID)
	if len(states) == 0 {
		return fmt.Errorf("batch %s has no channels", batchID)
	}
	for _, state := range states {
		if state.Status() == StatusWiringPending {
			return fmt.Errorf("batch %s: wiring not confirmed", batchID)
		}
	}

	s.mu.Lock()
	if _, running := s.active[batchID]; running {
		s.mu.Unlock()
		return fmt.Errorf("batch %s is already running", batchID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &batchRun{batchID: batchID, cancel: cancel, done: make(chan struct{})}
	s.active[batchID] = run
	s.mu.Unlock()

	s.logger.Info("Batch run starting",
		zap.String("batch_id", batchID),
		zap.Int("channels", len(states)))

	go s.run(ctx, run, states)
	return nil
}

// Running reports whether a batch is currently being sequenced.
func (s *Sequencer) Running(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[batchID]
	return ok
}

// StopBatch cancels a running batch. In-flight operations finish;
// partial readings stay; untested channels end up cancelled.
func (s *Sequencer) StopBatch(batchID string) error {
	run, err := s.lookup(batchID)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// PauseBatch holds the batch before its next operation or delay.
func (s *Sequencer) PauseBatch(batchID string) error {
	run, err := s.lookup(batchID)
	if err != nil {
		return err
	}
	run.paused.Store(true)
	for _, state := range s.tracker.StatesForBatch(batchID) {
		state.markPaused()
	}
	s.logger.Info("Batch paused", zap.String("batch_id", batchID))
	return nil
}

func (s *Sequencer) ResumeBatch(batchID string) error {
	run, err := s.lookup(batchID)
	if err != nil {
		return err
	}
	run.paused.Store(false)
	for _, state := range s.tracker.StatesForBatch(batchID) {
		state.markResumed()
	}
	s.logger.Info("Batch resumed", zap.String("batch_id", batchID))
	return nil
}

// RetestChannel reruns the full sequence for a single channel. The
// channel's state is recreated; sibling channels of the batch are not
// touched, only the batch aggregates are refreshed at the end.
func (s *Sequencer) RetestChannel(instanceID string) error {
	fresh, err := s.tracker.RecreateState(instanceID)
	if err != nil {
		return err
	}

	batchID := fresh.Definition().BatchID
	key := "retest:" + instanceID

	s.mu.Lock()
	if _, running := s.active[key]; running {
		s.mu.Unlock()
		return fmt.Errorf("instance %s retest already running", instanceID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &batchRun{batchID: batchID, cancel: cancel, done: make(chan struct{})}
	s.active[key] = run
	s.mu.Unlock()

	s.logger.Info("Channel retest starting",
		zap.String("instance_id", instanceID),
		zap.String("batch_id", batchID))

	go func() {
		defer s.release(key, run)
		s.runChannels(ctx, run, []*ChannelState{fresh})
	}()
	return nil
}

// StopRetest cancels a running single-channel retest. The channel ends
// up cancelled; its batch siblings keep their outcomes.
func (s *Sequencer) StopRetest(instanceID string) error {
	run, err := s.lookup("retest:" + instanceID)
	if err != nil {
		return fmt.Errorf("instance %s retest is not running", instanceID)
	}
	run.cancel()
	return nil
}

// Wait blocks until the batch's current run finishes. Mainly for tests
// and shutdown.
func (s *Sequencer) Wait(batchID string) {
	s.mu.Lock()
	run, ok := s.active[batchID]
	s.mu.Unlock()
	if ok {
		<-run.done
	}
}

// WaitRetest blocks until the instance's retest finishes.
func (s *Sequencer) WaitRetest(instanceID string) {
	s.mu.Lock()
	run, ok := s.active["retest:"+instanceID]
	s.mu.Unlock()
	if ok {
		<-run.done
	}
}

func (s *Sequencer) lookup(batchID string) (*batchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.active[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s is not running", batchID)
	}
	return run, nil
}

func (s *Sequencer) release(key string, run *batchRun) {
	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
	close(run.done)
}

func (s *Sequencer) run(ctx context.Context, run *batchRun, states []*ChannelState) {
	defer s.release(run.batchID, run)
	s.runChannels(ctx, run, states)
}

// runChannels executes the ramp for a set of channels. Steps are
// barriered: no channel moves to the next point before every channel
// finished the current one.
func (s *Sequencer) runChannels(ctx context.Context, run *batchRun, states []*ChannelState) {
	s.notify(func(n Notifier) { n.StepChanged(run.batchID, -1, PhasePreparing) })

	type runner struct {
		state   *ChannelState
		machine ChannelMachine
	}

	runners := make([]runner, 0, len(states))
	for _, state := range states {
		machine, err := NewMachine(state, s.tester, s.target, s.logger)
		if err != nil {
			state.recordError(err.Error())
			state.markCompleted(OutcomeFailed)
			continue
		}
		runners = append(runners, runner{state: state, machine: machine})
	}

	sem := make(chan struct{}, s.settings.WorkerMultiplier*runtime.GOMAXPROCS(0))

	for _, r := range runners {
		r.state.markStarted()
	}

	for step := Point0; step < NumPoints; step++ {
		if err := s.gate(ctx, run); err != nil {
			s.finishCancelled(run, states)
			return
		}

		s.notify(func(n Notifier) { n.StepChanged(run.batchID, int(step), PhaseRunning) })

		var wg sync.WaitGroup
		for _, r := range runners {
			if !r.machine.ActsAt(step) || r.state.errorText() != "" {
				continue
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				s.finishCancelled(run, states)
				return
			}

			wg.Add(1)
			go func(r runner, p Point) {
				defer wg.Done()
				defer func() { <-sem }()
				s.testPoint(ctx, run, r.state, r.machine, p)
			}(r, step)
		}
		wg.Wait()

		if step < NumPoints-1 {
			if err := s.sleep(ctx, s.settings.SettleBetween); err != nil {
				s.finishCancelled(run, states)
				return
			}
		}
	}

	// Reset phase: every channel gets its quiescent value back,
	// regardless of class and regardless of earlier errors.
	if err := s.gate(ctx, run); err != nil {
		s.finishCancelled(run, states)
		return
	}
	var wg sync.WaitGroup
	for _, r := range runners {
		sem <- struct{}{}
		wg.Add(1)
		go func(r runner) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := r.machine.WriteReset(ctx); err != nil {
				s.logger.Warn("Reset write failed",
					zap.String("tag", r.state.Definition().Tag),
					zap.Error(err))
			}
		}(r)
	}
	wg.Wait()

	s.notify(func(n Notifier) { n.StepChanged(run.batchID, NumPoints, PhaseEvaluating) })

	for _, r := range runners {
		if r.state.Status() == StatusCancelled {
			continue
		}
		outcome := s.evaluator.Evaluate(r.state)
		r.state.markCompleted(outcome)
		snap := r.state.Snapshot()
		s.notify(func(n Notifier) { n.ChannelCompleted(snap) })
	}

	if _, err := s.tracker.Aggregate(run.batchID); err != nil {
		s.logger.Error("Batch aggregation failed",
			zap.String("batch_id", run.batchID), zap.Error(err))
	}

	s.notify(func(n Notifier) { n.BatchCompleted(run.batchID, PhaseCompleted) })

	s.logger.Info("Batch run finished", zap.String("batch_id", run.batchID))
}

// testPoint runs stimulus, settle and read for one channel at one
// point. Communication errors are recorded, never fatal to the batch.
func (s *Sequencer) testPoint(ctx context.Context, run *batchRun, state *ChannelState, machine ChannelMachine, p Point) {
	if err := s.gate(ctx, run); err != nil {
		return
	}

	if err := machine.WriteStimulus(ctx, p); err != nil {
		state.recordError(fmt.Sprintf("point %.0f%%: stimulus: %v", p.Percent(), err))
		return
	}

	if err := s.sleep(ctx, s.settings.SettleAfterWrite); err != nil {
		return
	}

	if err := machine.ReadResponse(ctx, p); err != nil {
		state.recordError(fmt.Sprintf("point %.0f%%: read: %v", p.Percent(), err))
	}
}

// finishCancelled closes out a cancelled run: completed channels keep
// their outcome, everything else is marked cancelled with whatever
// partial readings it gathered.
func (s *Sequencer) finishCancelled(run *batchRun, states []*ChannelState) {
	for _, state := range states {
		state.markCancelled()
	}

	if _, err := s.tracker.Aggregate(run.batchID); err != nil {
		s.logger.Error("Batch aggregation failed",
			zap.String("batch_id", run.batchID), zap.Error(err))
	}

	s.notify(func(n Notifier) { n.BatchCompleted(run.batchID, PhaseCancelled) })

	s.logger.Info("Batch run cancelled", zap.String("batch_id", run.batchID))
}

// gate blocks while the run is paused and reports cancellation.
func (s *Sequencer) gate(ctx context.Context, run *batchRun) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !run.paused.Load() {
			return nil
		}
		if err := s.sleep(ctx, s.settings.PausePoll); err != nil {
			return err
		}
	}
}

func (s *Sequencer) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Sequencer) notify(fn func(Notifier)) {
	if s.notifier != nil {
		fn(s.notifier)
	}
}
