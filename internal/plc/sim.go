package plc

import (
	"context"
	"fmt"
	"sync"
)

// SimBus is the shared signal plane behind one or more Sim facades. A
// wiring link mirrors every write on one address to another, so a
// stimulus written through the tester facade shows up on the linked
// target address just as it would through real bench wiring.
type SimBus struct {
	mu      sync.RWMutex
	analog  map[string]float64
	digital map[string]bool
	links   map[string]string
}

func NewSimBus() *SimBus {
	return &SimBus{
		analog:  make(map[string]float64),
		digital: make(map[string]bool),
		links:   make(map[string]string),
	}
}

// Link wires address a to address b in both directions.
func (b *SimBus) Link(a, bAddr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.links[a] = bAddr
	b.links[bAddr] = a
}

// SetAnalog primes an analog value without going through a facade.
func (b *SimBus) SetAnalog(address string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analog[address] = value
}

// SetDigital primes a digital value without going through a facade.
func (b *SimBus) SetDigital(address string, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.digital[address] = value
}

func (b *SimBus) writeAnalog(address string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analog[address] = value
	if dst, ok := b.links[address]; ok {
		b.analog[dst] = value
	}
}

func (b *SimBus) writeDigital(address string, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.digital[address] = value
	if dst, ok := b.links[address]; ok {
		b.digital[dst] = value
	}
}

func (b *SimBus) readAnalog(address string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.analog[address]
}

func (b *SimBus) readDigital(address string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.digital[address]
}

// Sim is an in-memory Facade for bench-less operation and tests.
type Sim struct {
	name string
	bus  *SimBus

	mu        sync.Mutex
	connected bool

	// FailNext, when set, makes the next operation fail with the given
	// code and clears itself. Used to exercise error paths.
	failMu   sync.Mutex
	failNext string
}

func NewSim(name string, bus *SimBus) *Sim {
	if bus == nil {
		bus = NewSimBus()
	}
	return &Sim{name: name, bus: bus}
}

// FailNext arms a one-shot failure for the next operation.
func (s *Sim) FailNext(code string) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failNext = code
}

func (s *Sim) takeFailure(op, address string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failNext == "" {
		return nil
	}
	code := s.failNext
	s.failNext = ""
	if code == CodeNotConnected {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}
	return opError(code, op, address, fmt.Errorf("simulated %s", code))
}

func (s *Sim) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Sim) Reconnect(ctx context.Context) error { return s.Connect(ctx) }

func (s *Sim) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Sim) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Sim) check(op, address string) error {
	if err := s.takeFailure(op, address); err != nil {
		return err
	}
	if !s.IsConnected() {
		return opError(CodeNotConnected, op, address, fmt.Errorf("not connected"))
	}
	return nil
}

func (s *Sim) ReadAnalog(ctx context.Context, address string) (float64, error) {
	if err := s.check("read_analog", address); err != nil {
		return 0, err
	}
	return s.bus.readAnalog(address), nil
}

func (s *Sim) WriteAnalog(ctx context.Context, address string, value float64) error {
	if err := s.check("write_analog", address); err != nil {
		return err
	}
	s.bus.writeAnalog(address, value)
	return nil
}

func (s *Sim) ReadDigital(ctx context.Context, address string) (bool, error) {
	if err := s.check("read_digital", address); err != nil {
		return false, err
	}
	return s.bus.readDigital(address), nil
}

func (s *Sim) WriteDigital(ctx context.Context, address string, value bool) error {
	if err := s.check("write_digital", address); err != nil {
		return err
	}
	s.bus.writeDigital(address, value)
	return nil
}

var _ Facade = (*Sim)(nil)
