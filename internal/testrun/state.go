package testrun

import (
	"sync"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/types"
)

// Point is one stimulus step of the percentage ramp.
type Point int

const (
	Point0 Point = iota
	Point25
	Point50
	Point75
	Point100

	NumPoints = 5
)

// Percent returns the stimulus level of the point in percent.
func (p Point) Percent() float64 {
	return float64(p) * 25
}

// Fraction returns the stimulus level as a 0..1 fraction of the range.
func (p Point) Fraction() float64 {
	return float64(p) / 4
}

// ChannelStatus is the lifecycle state of one channel under test.
type ChannelStatus string

const (
	// StatusWiringPending: allocated but the bench wiring has not been
	// confirmed yet. Batches cannot start while any channel is here.
	StatusWiringPending ChannelStatus = "wiring_pending"
	StatusPending       ChannelStatus = "pending"
	StatusRunning       ChannelStatus = "running"
	StatusPaused        ChannelStatus = "paused"
	StatusCompleted     ChannelStatus = "completed"
	StatusCancelled     ChannelStatus = "cancelled"
)

// Outcome is the verdict of the evaluator for one channel.
type Outcome string

const (
	OutcomePassed    Outcome = "passed"
	OutcomeFailed    Outcome = "failed"
	OutcomeNotTested Outcome = "not_tested"
)

// ChannelState carries the runtime test data of one channel instance.
// All mutation goes through the methods below; the struct owns its own
// mutex so worker goroutines never race on readings.
type ChannelState struct {
	mu sync.Mutex

	instanceID string
	definition *types.ChannelDefinition

	status  ChannelStatus
	outcome Outcome

	readings [NumPoints]float64

	// Digital observations. digitalReads counts how many read phases
	// actually completed; zero means the channel was never sensed.
	observedHigh bool
	observedLow  bool
	digitalReads int

	errorDetail string

	startedAt  *time.Time
	finishedAt *time.Time
}

func NewChannelState(instanceID string, def *types.ChannelDefinition) *ChannelState {
	return &ChannelState{
		instanceID: instanceID,
		definition: def,
		status:     StatusWiringPending,
	}
}

func (s *ChannelState) InstanceID() string { return s.instanceID }

func (s *ChannelState) Definition() *types.ChannelDefinition { return s.definition }

func (s *ChannelState) Status() ChannelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *ChannelState) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *ChannelState) setStatus(status ChannelStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *ChannelState) markWiringConfirmed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusWiringPending {
		s.status = StatusPending
	}
}

func (s *ChannelState) markStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	now := time.Now()
	s.startedAt = &now
}

// markPaused and markResumed only toggle between the two in-flight
// statuses; completed or cancelled channels are left alone.
func (s *ChannelState) markPaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		s.status = StatusPaused
	}
}

func (s *ChannelState) markResumed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPaused {
		s.status = StatusRunning
	}
}

func (s *ChannelState) markCompleted(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusCompleted
	s.outcome = outcome
	now := time.Now()
	s.finishedAt = &now
}

// markCancelled stops the channel mid-run. Partial readings stay in
// place; already completed channels keep their outcome.
func (s *ChannelState) markCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusCompleted {
		return
	}
	s.status = StatusCancelled
	now := time.Now()
	s.finishedAt = &now
}

func (s *ChannelState) recordReading(p Point, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[p] = value
}

func (s *ChannelState) recordDigital(p Point, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digitalReads++
	switch p {
	case Point0:
		s.observedHigh = value
	case Point25:
		s.observedLow = !value
	}
}

// recordError notes a communication failure without aborting the batch.
// Only the first error is kept; later ones usually cascade from it.
func (s *ChannelState) recordError(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errorDetail == "" {
		s.errorDetail = detail
	}
}

func (s *ChannelState) digitalReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digitalReads
}

func (s *ChannelState) errorText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorDetail
}

// StateSnapshot is an immutable copy of a channel state for reporting
// and persistence.
type StateSnapshot struct {
	InstanceID   string             `json:"instance_id"`
	Tag          string             `json:"tag"`
	BatchID      string             `json:"batch_id"`
	ModuleClass  types.ModuleClass  `json:"module_class"`
	Status       ChannelStatus      `json:"status"`
	Outcome      Outcome            `json:"outcome,omitempty"`
	Readings     [NumPoints]float64 `json:"readings"`
	ObservedHigh bool               `json:"observed_high"`
	ObservedLow  bool               `json:"observed_low"`
	ErrorDetail  string             `json:"error_detail,omitempty"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

func (s *ChannelState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		InstanceID:   s.instanceID,
		Tag:          s.definition.Tag,
		BatchID:      s.definition.BatchID,
		ModuleClass:  s.definition.ModuleClass,
		Status:       s.status,
		Outcome:      s.outcome,
		Readings:     s.readings,
		ObservedHigh: s.observedHigh,
		ObservedLow:  s.observedLow,
		ErrorDetail:  s.errorDetail,
		StartedAt:    s.startedAt,
		FinishedAt:   s.finishedAt,
	}
}
