package plc

import (
	"encoding/binary"
	"fmt"
)

// Modbus TCP frame: MBAP header (7 bytes) + function code + data.
type frame struct {
	TransactionID uint16
	ProtocolID    uint16 // always 0x0000
	Length        uint16
	UnitID        uint8
	FunctionCode  uint8
	Data          []byte
}

const (
	funcReadCoils              = 0x01
	funcReadDiscreteInputs     = 0x02
	funcReadHoldingRegisters   = 0x03
	funcReadInputRegisters     = 0x04
	funcWriteSingleCoil        = 0x05
	funcWriteMultipleRegisters = 0x10
)

const exceptionBit = 0x80

func (f *frame) encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // UnitID + FunctionCode

	buf := make([]byte, 7+1+len(f.Data))
	binary.BigEndian.PutUint16(buf[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(buf[4:6], f.Length)
	buf[6] = f.UnitID
	buf[7] = f.FunctionCode
	copy(buf[8:], f.Data)

	return buf
}

func decodeFrame(data []byte) (*frame, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	f := &frame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if f.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", f.ProtocolID)
	}

	if f.FunctionCode&exceptionBit != 0 {
		code := byte(0)
		if len(data) > 8 {
			code = data[8]
		}
		return nil, fmt.Errorf("modbus exception 0x%02X for function 0x%02X", code, f.FunctionCode&^exceptionBit)
	}

	if len(data) > 8 {
		f.Data = data[8:]
	}

	return f, nil
}

func readRequest(function uint8, unitID uint8, startAddr, quantity uint16) *frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &frame{UnitID: unitID, FunctionCode: function, Data: data}
}

func writeSingleCoilRequest(unitID uint8, addr uint16, on bool) *frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	if on {
		binary.BigEndian.PutUint16(data[2:4], 0xFF00)
	}

	return &frame{UnitID: unitID, FunctionCode: funcWriteSingleCoil, Data: data}
}

func writeRegistersRequest(unitID uint8, startAddr uint16, values []uint16) *frame {
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:7+2*i], v)
	}

	return &frame{UnitID: unitID, FunctionCode: funcWriteMultipleRegisters, Data: data}
}

// parseRegisters extracts register values from a read response.
func (f *frame) parseRegisters() ([]uint16, error) {
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("incomplete response data")
	}

	registers := make([]uint16, byteCount/2)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(f.Data[1+2*i : 3+2*i])
	}

	return registers, nil
}

// parseBits extracts packed coil/discrete-input bits from a read response.
func (f *frame) parseBits(quantity int) ([]bool, error) {
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("incomplete response data")
	}

	bits := make([]bool, quantity)
	for i := range bits {
		b := f.Data[1+i/8]
		bits[i] = b&(1<<(i%8)) != 0
	}

	return bits, nil
}
