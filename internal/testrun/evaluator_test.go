package testrun

import (
	"testing"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func analogState(low, high float64) *ChannelState {
	return NewChannelState("inst-1", &types.ChannelDefinition{
		ID:          "def-1",
		Tag:         "1_1_AI_0",
		ModuleClass: types.ModuleAI,
		RangeLow:    low,
		RangeHigh:   high,
	})
}

func TestExpectedValueEndpointsExact(t *testing.T) {
	low, high := 4.0, 20.0

	assert.Equal(t, low, ExpectedValue(low, high, Point0))
	assert.Equal(t, high, ExpectedValue(low, high, Point100))
	assert.InDelta(t, 12.0, ExpectedValue(low, high, Point50), 1e-12)
	assert.InDelta(t, 8.0, ExpectedValue(low, high, Point25), 1e-12)
	assert.InDelta(t, 16.0, ExpectedValue(low, high, Point75), 1e-12)
}

func TestEvaluateAnalogWithinTolerancePasses(t *testing.T) {
	state := analogState(0, 100)
	// 0.8% off at every point stays inside the 1% band.
	for p := Point0; p < NumPoints; p++ {
		expected := ExpectedValue(0, 100, p)
		state.recordReading(p, expected+expected*0.008)
	}
	// Point0 expects 0; nudge it against the span base instead.
	state.recordReading(Point0, 0.8)

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomePassed, ev.Evaluate(state))
}

func TestEvaluateAnalogOutOfToleranceFails(t *testing.T) {
	state := analogState(0, 100)
	for p := Point0; p < NumPoints; p++ {
		state.recordReading(p, ExpectedValue(0, 100, p))
	}
	// 2% deviation at one point is enough to fail the channel.
	state.recordReading(Point50, 51.0)

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeFailed, ev.Evaluate(state))
	assert.Contains(t, state.errorText(), "50%")
}

func TestEvaluateAnalogAllZeroIsNotTested(t *testing.T) {
	state := analogState(4, 20)

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeNotTested, ev.Evaluate(state))
	assert.Empty(t, state.errorText())
}

func TestEvaluateAnalogCommErrorOutranksReadings(t *testing.T) {
	// A stimulus failure at point 0 leaves all-zero readings; the
	// channel must fail on the recorded error, not slide into the
	// never-sampled branch.
	state := analogState(4, 20)
	state.recordError("point 0%: stimulus: write failed")

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeFailed, ev.Evaluate(state))
	assert.Contains(t, state.errorText(), "stimulus")
}

func TestDeviationPercentZeroExpectedUsesSpan(t *testing.T) {
	// expected 0, span 100: a reading of 0.5 is 0.5%, not a division
	// blow-up.
	assert.InDelta(t, 0.5, DeviationPercent(0.5, 0, 100), 1e-12)
	assert.InDelta(t, 2.0, DeviationPercent(51, 50, 100), 1e-12)
}

func digitalState(class types.ModuleClass) *ChannelState {
	return NewChannelState("inst-2", &types.ChannelDefinition{
		ID:          "def-2",
		Tag:         "1_3_DI_0",
		ModuleClass: class,
	})
}

func TestEvaluateDigitalBothTransitionsPass(t *testing.T) {
	state := digitalState(types.ModuleDI)
	state.recordDigital(Point0, true)   // high observed after high
	state.recordDigital(Point25, false) // low observed after low

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomePassed, ev.Evaluate(state))
}

func TestEvaluateDigitalStuckHighFails(t *testing.T) {
	state := digitalState(types.ModuleDI)
	state.recordDigital(Point0, true)
	state.recordDigital(Point25, true) // never came back down

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeFailed, ev.Evaluate(state))
	assert.Contains(t, state.errorText(), "low")
}

func TestEvaluateDigitalNeverHighFails(t *testing.T) {
	state := digitalState(types.ModuleDINone)
	state.recordDigital(Point0, false)
	state.recordDigital(Point25, false)

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeFailed, ev.Evaluate(state))
	assert.Contains(t, state.errorText(), "high")
}

func TestEvaluateDigitalNeverSensedIsNotTested(t *testing.T) {
	state := digitalState(types.ModuleDI)

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeNotTested, ev.Evaluate(state))
}

func TestEvaluateDigitalCommErrorFails(t *testing.T) {
	// Even with a clean high observation, a read failure on the low
	// phase is a channel failure, not "not tested".
	state := digitalState(types.ModuleDI)
	state.recordDigital(Point0, true)
	state.recordError("point 25%: read: connection lost")

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeFailed, ev.Evaluate(state))
	assert.Contains(t, state.errorText(), "read")
}

func TestEvaluateOutputClassesPassWithoutSensing(t *testing.T) {
	ev := NewEvaluator(zap.NewNop())

	for _, class := range []types.ModuleClass{
		types.ModuleAO, types.ModuleAONone, types.ModuleDO, types.ModuleDONone,
	} {
		state := NewChannelState("inst-3", &types.ChannelDefinition{
			Tag:         "1_4_AO_0",
			ModuleClass: class,
			RangeLow:    0,
			RangeHigh:   100,
		})
		require.Equal(t, OutcomePassed, ev.Evaluate(state), "class %s", class)
	}
}

func TestEvaluateOutputClassWithCommErrorFails(t *testing.T) {
	state := NewChannelState("inst-4", &types.ChannelDefinition{
		Tag:         "1_4_AO_1",
		ModuleClass: types.ModuleAO,
	})
	state.recordError("point 50%: stimulus: write failed")

	ev := NewEvaluator(zap.NewNop())
	assert.Equal(t, OutcomeFailed, ev.Evaluate(state))
}
