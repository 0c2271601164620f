package plc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	cases := []struct {
		in     string
		area   registerArea
		offset uint16
	}{
		{"00017", areaCoil, 16},
		{"10001", areaDiscreteInput, 0},
		{"30011", areaInputRegister, 10},
		{"40101", areaHoldingRegister, 100},
		{"400001", areaHoldingRegister, 0},
	}
	for _, tc := range cases {
		ref, err := parseReference(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.area, ref.area, tc.in)
		assert.Equal(t, tc.offset, ref.offset, tc.in)
	}

	for _, bad := range []string{"", "401", "20001", "40000", "4000001", "4xx01"} {
		_, err := parseReference(bad)
		assert.Error(t, err, bad)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	req := readRequest(funcReadHoldingRegisters, 1, 100, 2)
	req.TransactionID = 42

	decoded, err := decodeFrame(req.encode())
	require.NoError(t, err)
	assert.Equal(t, uint16(42), decoded.TransactionID)
	assert.Equal(t, uint8(funcReadHoldingRegisters), decoded.FunctionCode)
	assert.Equal(t, req.Data, decoded.Data)
}

func TestDecodeFrameRejectsException(t *testing.T) {
	f := &frame{UnitID: 1, FunctionCode: funcReadCoils | exceptionBit, Data: []byte{0x02}}
	_, err := decodeFrame(f.encode())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exception")
}

func TestParseRegistersAndBits(t *testing.T) {
	resp := &frame{Data: []byte{4, 0x41, 0x40, 0x00, 0x00}}
	regs, err := resp.parseRegisters()
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, uint16(0x4140), regs[0])

	bitResp := &frame{Data: []byte{1, 0b0000_0101}}
	bits, err := bitResp.parseBits(3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, bits)
}

func TestSimMirrorsLinkedAddresses(t *testing.T) {
	bus := NewSimBus()
	bus.Link("40101", "40001")
	bus.Link("00101", "00001")

	tester := NewSim("tester", bus)
	target := NewSim("target", bus)
	require.NoError(t, tester.Connect(context.Background()))
	require.NoError(t, target.Connect(context.Background()))

	require.NoError(t, tester.WriteAnalog(context.Background(), "40101", 12.5))
	value, err := target.ReadAnalog(context.Background(), "40001")
	require.NoError(t, err)
	assert.Equal(t, 12.5, value)

	require.NoError(t, target.WriteDigital(context.Background(), "00001", true))
	on, err := tester.ReadDigital(context.Background(), "00101")
	require.NoError(t, err)
	assert.True(t, on)
}

func TestSimRejectsOperationsWhenDisconnected(t *testing.T) {
	sim := NewSim("tester", nil)

	_, err := sim.ReadAnalog(context.Background(), "40001")
	require.Error(t, err)
	assert.Equal(t, CodeNotConnected, ResultOf(err).Code)

	require.NoError(t, sim.Connect(context.Background()))
	require.NoError(t, sim.WriteAnalog(context.Background(), "40001", 1))
}

func TestSimFailNextIsOneShot(t *testing.T) {
	sim := NewSim("tester", nil)
	require.NoError(t, sim.Connect(context.Background()))

	sim.FailNext(CodeTimeout)
	_, err := sim.ReadDigital(context.Background(), "00001")
	require.Error(t, err)
	assert.Equal(t, CodeTimeout, ResultOf(err).Code)

	_, err = sim.ReadDigital(context.Background(), "00001")
	assert.NoError(t, err)
}

func TestResultOf(t *testing.T) {
	assert.True(t, ResultOf(nil).Success)

	r := ResultOf(opError(CodeWrite, "write_analog", "40001", nil))
	assert.False(t, r.Success)
	assert.Equal(t, CodeWrite, r.Code)
}
