package plc

import (
	"fmt"
	"strconv"
	"strings"
)

// registerArea is the Modbus data table an address points into.
type registerArea int

const (
	areaCoil registerArea = iota
	areaDiscreteInput
	areaInputRegister
	areaHoldingRegister
)

// reference is a parsed Modbus data-table reference.
type reference struct {
	area   registerArea
	offset uint16
}

// parseReference parses classic Modbus references ("00017", "10001",
// "30011", "40101", also the 6-digit forms). The leading digit selects
// the data table, the remainder is the 1-based point number.
func parseReference(address string) (reference, error) {
	s := strings.TrimSpace(address)
	if len(s) != 5 && len(s) != 6 {
		return reference{}, fmt.Errorf("address %q: want 5 or 6 digit modbus reference", address)
	}

	var area registerArea
	switch s[0] {
	case '0':
		area = areaCoil
	case '1':
		area = areaDiscreteInput
	case '3':
		area = areaInputRegister
	case '4':
		area = areaHoldingRegister
	default:
		return reference{}, fmt.Errorf("address %q: unknown data table %q", address, s[0])
	}

	point, err := strconv.ParseUint(s[1:], 10, 17)
	if err != nil || point == 0 || point > 65536 {
		return reference{}, fmt.Errorf("address %q: bad point number", address)
	}

	return reference{area: area, offset: uint16(point - 1)}, nil
}

func (r reference) analog() bool {
	return r.area == areaInputRegister || r.area == areaHoldingRegister
}
