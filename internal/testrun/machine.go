package testrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenTestBench/internal/plc"
	"github.com/KevinKickass/OpenTestBench/internal/types"
	"go.uber.org/zap"
)

// ChannelMachine runs the wire-level side of one channel's test. The
// direction of every operation is crossed on purpose: the rig
// stimulates channels the target senses, and senses channels the
// target drives.
type ChannelMachine interface {
	// ActsAt reports whether the machine has work at the given point.
	// Digital channels only use the first two points.
	ActsAt(p Point) bool
	WriteStimulus(ctx context.Context, p Point) error
	ReadResponse(ctx context.Context, p Point) error
	WriteReset(ctx context.Context) error
}

// NewMachine picks the machine variant for the channel's module class.
// The switch is exhaustive; an unknown class is a programming error
// upstream (import already rejects it).
func NewMachine(state *ChannelState, tester, target plc.Facade, logger *zap.Logger) (ChannelMachine, error) {
	base := machineBase{state: state, tester: tester, target: target, logger: logger}
	switch state.Definition().ModuleClass {
	case types.ModuleAI, types.ModuleAINone:
		return &analogInputMachine{base}, nil
	case types.ModuleAO, types.ModuleAONone:
		return &analogOutputMachine{base}, nil
	case types.ModuleDI, types.ModuleDINone:
		return &digitalInputMachine{base}, nil
	case types.ModuleDO, types.ModuleDONone:
		return &digitalOutputMachine{base}, nil
	}
	return nil, fmt.Errorf("channel %s: unknown module class %q", state.Definition().Tag, state.Definition().ModuleClass)
}

type machineBase struct {
	state  *ChannelState
	tester plc.Facade
	target plc.Facade
	logger *zap.Logger
}

func (m *machineBase) def() *types.ChannelDefinition { return m.state.Definition() }

// stimulusValue maps a point onto the engineering range of the channel.
func (m *machineBase) stimulusValue(p Point) float64 {
	d := m.def()
	return ExpectedValue(d.RangeLow, d.RangeHigh, p)
}

// withRetry runs op once and, if the facade lost its connection, tries
// a single reconnect followed by one more attempt. Anything beyond
// that is the connection monitor's job.
func (m *machineBase) withRetry(ctx context.Context, facade plc.Facade, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}

	var plcErr *plc.Error
	if !errors.As(err, &plcErr) || plcErr.Code != plc.CodeNotConnected {
		return err
	}

	m.logger.Warn("Connection lost during channel operation, retrying once",
		zap.String("tag", m.def().Tag),
		zap.Error(err))

	if rerr := facade.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("reconnect failed: %w", rerr)
	}
	return op()
}

// analogInputMachine tests AI and AINone channels: the rig drives an
// engineering value into the loop, the target controller should read
// it back on its comm address.
type analogInputMachine struct{ machineBase }

func (m *analogInputMachine) ActsAt(Point) bool { return true }

func (m *analogInputMachine) WriteStimulus(ctx context.Context, p Point) error {
	value := m.stimulusValue(p)
	return m.withRetry(ctx, m.tester, func() error {
		return m.tester.WriteAnalog(ctx, m.def().RigCommAddress, value)
	})
}

func (m *analogInputMachine) ReadResponse(ctx context.Context, p Point) error {
	var value float64
	err := m.withRetry(ctx, m.target, func() error {
		var err error
		value, err = m.target.ReadAnalog(ctx, m.def().CommAddress)
		return err
	})
	if err != nil {
		return err
	}
	m.state.recordReading(p, value)
	return nil
}

func (m *analogInputMachine) WriteReset(ctx context.Context) error {
	return m.withRetry(ctx, m.tester, func() error {
		return m.tester.WriteAnalog(ctx, m.def().RigCommAddress, m.def().RangeLow)
	})
}

// analogOutputMachine tests AO and AONone channels: the target drives
// the command value, the rig senses what actually arrives on the wire.
type analogOutputMachine struct{ machineBase }

func (m *analogOutputMachine) ActsAt(Point) bool { return true }

func (m *analogOutputMachine) WriteStimulus(ctx context.Context, p Point) error {
	value := m.stimulusValue(p)
	return m.withRetry(ctx, m.target, func() error {
		return m.target.WriteAnalog(ctx, m.def().CommAddress, value)
	})
}

func (m *analogOutputMachine) ReadResponse(ctx context.Context, p Point) error {
	var value float64
	err := m.withRetry(ctx, m.tester, func() error {
		var err error
		value, err = m.tester.ReadAnalog(ctx, m.def().RigCommAddress)
		return err
	})
	if err != nil {
		return err
	}
	m.state.recordReading(p, value)
	return nil
}

func (m *analogOutputMachine) WriteReset(ctx context.Context) error {
	return m.withRetry(ctx, m.target, func() error {
		return m.target.WriteAnalog(ctx, m.def().CommAddress, m.def().RangeLow)
	})
}

// digitalLevel maps the two digital points onto wire levels: high
// first, then low. Later points are skipped entirely.
func digitalLevel(p Point) bool { return p == Point0 }

// digitalInputMachine tests DI and DINone channels: the rig drives the
// logic level, the target should see it.
type digitalInputMachine struct{ machineBase }

func (m *digitalInputMachine) ActsAt(p Point) bool { return p <= Point25 }

func (m *digitalInputMachine) WriteStimulus(ctx context.Context, p Point) error {
	return m.withRetry(ctx, m.tester, func() error {
		return m.tester.WriteDigital(ctx, m.def().RigCommAddress, digitalLevel(p))
	})
}

func (m *digitalInputMachine) ReadResponse(ctx context.Context, p Point) error {
	var value bool
	err := m.withRetry(ctx, m.target, func() error {
		var err error
		value, err = m.target.ReadDigital(ctx, m.def().CommAddress)
		return err
	})
	if err != nil {
		return err
	}
	m.state.recordDigital(p, value)
	return nil
}

func (m *digitalInputMachine) WriteReset(ctx context.Context) error {
	return m.withRetry(ctx, m.tester, func() error {
		return m.tester.WriteDigital(ctx, m.def().RigCommAddress, false)
	})
}

// digitalOutputMachine tests DO and DONone channels: the target
// commands the level, the rig observes the contact.
type digitalOutputMachine struct{ machineBase }

func (m *digitalOutputMachine) ActsAt(p Point) bool { return p <= Point25 }

func (m *digitalOutputMachine) WriteStimulus(ctx context.Context, p Point) error {
	return m.withRetry(ctx, m.target, func() error {
		return m.target.WriteDigital(ctx, m.def().CommAddress, digitalLevel(p))
	})
}

func (m *digitalOutputMachine) ReadResponse(ctx context.Context, p Point) error {
	var value bool
	err := m.withRetry(ctx, m.tester, func() error {
		var err error
		value, err = m.tester.ReadDigital(ctx, m.def().RigCommAddress)
		return err
	})
	if err != nil {
		return err
	}
	m.state.recordDigital(p, value)
	return nil
}

func (m *digitalOutputMachine) WriteReset(ctx context.Context) error {
	return m.withRetry(ctx, m.target, func() error {
		return m.target.WriteDigital(ctx, m.def().CommAddress, false)
	})
}
