package testrun

import (
	"fmt"
	"math"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"go.uber.org/zap"
)

// TolerancePercent is the fixed acceptance band for analog readings.
const TolerancePercent = 1.0

// ExpectedValue interpolates the engineering value for a stimulus
// point. The endpoints are returned exactly so 0% and 100% never
// suffer float drift.
func ExpectedValue(low, high float64, p Point) float64 {
	switch p {
	case Point0:
		return low
	case Point100:
		return high
	}
	return low + (high-low)*p.Fraction()
}

// DeviationPercent measures how far an observation strays from its
// expectation, in percent. A zero expectation falls back to the range
// span as the base so the division stays meaningful.
func DeviationPercent(observed, expected, span float64) float64 {
	base := math.Abs(expected)
	if base == 0 {
		base = math.Abs(span)
	}
	if base == 0 {
		return 0
	}
	return math.Abs(observed-expected) / base * 100
}

// Evaluator turns recorded readings into per-channel verdicts. It
// never touches hardware; the sequencer runs it after the reset step.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate decides the outcome for one channel. The switch over the
// module class is exhaustive.
func (e *Evaluator) Evaluate(state *ChannelState) Outcome {
	def := state.Definition()

	var outcome Outcome
	switch def.ModuleClass {
	case types.ModuleAI, types.ModuleAINone:
		outcome = e.evaluateAnalog(state)
	case types.ModuleDI, types.ModuleDINone:
		outcome = e.evaluateDigital(state)
	case types.ModuleAO, types.ModuleAONone, types.ModuleDO, types.ModuleDONone:
		outcome = e.passWithoutSensing(state)
	default:
		state.recordError(fmt.Sprintf("unknown module class %q", def.ModuleClass))
		outcome = OutcomeFailed
	}

	e.logger.Debug("Channel evaluated",
		zap.String("tag", def.Tag),
		zap.String("class", string(def.ModuleClass)),
		zap.String("outcome", string(outcome)))

	return outcome
}

func (e *Evaluator) evaluateAnalog(state *ChannelState) Outcome {
	// A recorded communication error outranks the readings: a channel
	// that could not be driven or sensed has failed, not "not tested".
	if state.errorText() != "" {
		return OutcomeFailed
	}

	def := state.Definition()
	snap := state.Snapshot()

	// Five exact zeros is the never-sampled sentinel: the loop was not
	// exercised, which is not the same as failing it.
	allZero := true
	for _, r := range snap.Readings {
		if r != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return OutcomeNotTested
	}

	span := def.RangeHigh - def.RangeLow
	for p := Point0; p < NumPoints; p++ {
		expected := ExpectedValue(def.RangeLow, def.RangeHigh, p)
		deviation := DeviationPercent(snap.Readings[p], expected, span)
		if deviation > TolerancePercent {
			state.recordError(fmt.Sprintf("point %.0f%%: read %.4f, expected %.4f (deviation %.2f%%)",
				p.Percent(), snap.Readings[p], expected, deviation))
			return OutcomeFailed
		}
	}
	return OutcomePassed
}

func (e *Evaluator) evaluateDigital(state *ChannelState) Outcome {
	if state.errorText() != "" {
		return OutcomeFailed
	}

	snap := state.Snapshot()
	if snap.Status == StatusCancelled {
		return OutcomeNotTested
	}

	if state.digitalReadCount() == 0 {
		return OutcomeNotTested
	}

	if snap.ObservedHigh && snap.ObservedLow {
		return OutcomePassed
	}
	if !snap.ObservedHigh {
		state.recordError("no high level observed after driving high")
	} else {
		state.recordError("no low level observed after driving low")
	}
	return OutcomeFailed
}

// passWithoutSensing covers the output-driving classes the rig cannot
// independently verify yet. Their steps completing without a
// communication error counts as a pass. Deliberately visible as its
// own rule rather than buried in the analog path.
func (e *Evaluator) passWithoutSensing(state *ChannelState) Outcome {
	if detail := state.errorText(); detail != "" {
		e.logger.Warn("Output channel failed during drive phase",
			zap.String("tag", state.Definition().Tag),
			zap.String("detail", detail))
		return OutcomeFailed
	}
	return OutcomePassed
}
