package plc

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ModbusFacade drives one controller over Modbus TCP. One facade is one
// logical connection; a mutex serializes frames so concurrent callers
// never interleave requests.
//
// Analog values travel as IEEE 754 float32 across two consecutive
// registers, high word first.
type ModbusFacade struct {
	name    string
	address string
	unitID  uint8
	timeout time.Duration
	logger  *zap.Logger

	mu            sync.Mutex
	conn          net.Conn
	transactionID uint16
	connected     bool
}

func NewModbusFacade(name, address string, unitID uint8, timeout time.Duration, logger *zap.Logger) *ModbusFacade {
	return &ModbusFacade{
		name:    name,
		address: address,
		unitID:  unitID,
		timeout: timeout,
		logger:  logger,
	}
}

func (m *ModbusFacade) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.address)
	if err != nil {
		return opError(CodeConnect, "connect", m.address, err)
	}

	m.conn = conn
	m.connected = true

	m.logger.Info("PLC connected",
		zap.String("facade", m.name),
		zap.String("address", m.address))

	return nil
}

func (m *ModbusFacade) Reconnect(ctx context.Context) error {
	if err := m.Disconnect(); err != nil {
		m.logger.Warn("Disconnect before reconnect failed",
			zap.String("facade", m.name), zap.Error(err))
	}
	return m.Connect(ctx)
}

func (m *ModbusFacade) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	err := m.conn.Close()
	m.conn = nil
	m.connected = false

	return err
}

func (m *ModbusFacade) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *ModbusFacade) ReadAnalog(ctx context.Context, address string) (float64, error) {
	ref, err := parseReference(address)
	if err != nil {
		return 0, opError(CodeBadAddress, "read_analog", address, err)
	}
	if !ref.analog() {
		return 0, opError(CodeBadAddress, "read_analog", address, fmt.Errorf("not a register address"))
	}

	function := uint8(funcReadHoldingRegisters)
	if ref.area == areaInputRegister {
		function = funcReadInputRegisters
	}

	resp, err := m.exchange(ctx, readRequest(function, m.unitID, ref.offset, 2))
	if err != nil {
		return 0, opError(CodeRead, "read_analog", address, err)
	}

	regs, err := resp.parseRegisters()
	if err != nil || len(regs) < 2 {
		return 0, opError(CodeProtocol, "read_analog", address, err)
	}

	bits := uint32(regs[0])<<16 | uint32(regs[1])
	return float64(math.Float32frombits(bits)), nil
}

func (m *ModbusFacade) WriteAnalog(ctx context.Context, address string, value float64) error {
	ref, err := parseReference(address)
	if err != nil {
		return opError(CodeBadAddress, "write_analog", address, err)
	}
	if ref.area != areaHoldingRegister {
		return opError(CodeBadAddress, "write_analog", address, fmt.Errorf("not a holding register address"))
	}

	bits := math.Float32bits(float32(value))
	regs := []uint16{uint16(bits >> 16), uint16(bits)}

	if _, err := m.exchange(ctx, writeRegistersRequest(m.unitID, ref.offset, regs)); err != nil {
		return opError(CodeWrite, "write_analog", address, err)
	}
	return nil
}

func (m *ModbusFacade) ReadDigital(ctx context.Context, address string) (bool, error) {
	ref, err := parseReference(address)
	if err != nil {
		return false, opError(CodeBadAddress, "read_digital", address, err)
	}
	if ref.analog() {
		return false, opError(CodeBadAddress, "read_digital", address, fmt.Errorf("not a coil address"))
	}

	function := uint8(funcReadCoils)
	if ref.area == areaDiscreteInput {
		function = funcReadDiscreteInputs
	}

	resp, err := m.exchange(ctx, readRequest(function, m.unitID, ref.offset, 1))
	if err != nil {
		return false, opError(CodeRead, "read_digital", address, err)
	}

	bits, err := resp.parseBits(1)
	if err != nil {
		return false, opError(CodeProtocol, "read_digital", address, err)
	}
	return bits[0], nil
}

func (m *ModbusFacade) WriteDigital(ctx context.Context, address string, value bool) error {
	ref, err := parseReference(address)
	if err != nil {
		return opError(CodeBadAddress, "write_digital", address, err)
	}
	if ref.area != areaCoil {
		return opError(CodeBadAddress, "write_digital", address, fmt.Errorf("not a coil address"))
	}

	if _, err := m.exchange(ctx, writeSingleCoilRequest(m.unitID, ref.offset, value)); err != nil {
		return opError(CodeWrite, "write_digital", address, err)
	}
	return nil
}

// exchange sends one frame and waits for the matching response. The
// mutex holds the connection for the whole round trip.
func (m *ModbusFacade) exchange(ctx context.Context, request *frame) (*frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, opError(CodeNotConnected, "exchange", m.address, fmt.Errorf("not connected"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.transactionID++
	request.TransactionID = m.transactionID

	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	m.conn.SetWriteDeadline(deadline)
	if _, err := m.conn.Write(request.encode()); err != nil {
		m.dropConnLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	m.conn.SetReadDeadline(deadline)
	buf := make([]byte, 260) // max Modbus TCP frame
	n, err := m.conn.Read(buf)
	if err != nil {
		m.dropConnLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := decodeFrame(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

// dropConnLocked marks the connection dead after an I/O failure so
// IsConnected reflects reality and a reconnect can be attempted.
func (m *ModbusFacade) dropConnLocked() {
	if m.conn != nil {
		m.conn.Close()
	}
	m.conn = nil
	m.connected = false
}

var _ Facade = (*ModbusFacade)(nil)
