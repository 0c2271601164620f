package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ModuleClass identifies the I/O module class of a channel. The *None
// variants are the unpowered (loop-unpowered) counterparts of the four
// base classes.
type ModuleClass string

const (
	ModuleAI     ModuleClass = "AI"
	ModuleAO     ModuleClass = "AO"
	ModuleDI     ModuleClass = "DI"
	ModuleDO     ModuleClass = "DO"
	ModuleAINone ModuleClass = "AINone"
	ModuleAONone ModuleClass = "AONone"
	ModuleDINone ModuleClass = "DINone"
	ModuleDONone ModuleClass = "DONone"
)

// ModuleClasses lists all valid classes in allocation priority order.
var ModuleClasses = []ModuleClass{
	ModuleAI, ModuleAINone, ModuleAO, ModuleAONone,
	ModuleDI, ModuleDINone, ModuleDO, ModuleDONone,
}

// ParseModuleClass converts a string into a ModuleClass. Unknown strings
// are an error, never a silent default.
func ParseModuleClass(s string) (ModuleClass, error) {
	switch ModuleClass(strings.TrimSpace(s)) {
	case ModuleAI:
		return ModuleAI, nil
	case ModuleAO:
		return ModuleAO, nil
	case ModuleDI:
		return ModuleDI, nil
	case ModuleDO:
		return ModuleDO, nil
	case ModuleAINone:
		return ModuleAINone, nil
	case ModuleAONone:
		return ModuleAONone, nil
	case ModuleDINone:
		return ModuleDINone, nil
	case ModuleDONone:
		return ModuleDONone, nil
	default:
		return "", fmt.Errorf("unknown module class: %q", s)
	}
}

// IsAnalog reports whether the class carries engineering-range values.
func (m ModuleClass) IsAnalog() bool {
	switch m {
	case ModuleAI, ModuleAO, ModuleAINone, ModuleAONone:
		return true
	}
	return false
}

// IsOutput reports whether the class drives a signal from the target
// controller (AO/DO families).
func (m ModuleClass) IsOutput() bool {
	switch m {
	case ModuleAO, ModuleAONone, ModuleDO, ModuleDONone:
		return true
	}
	return false
}

// Unpowered reports whether the class is one of the *None variants.
func (m ModuleClass) Unpowered() bool {
	switch m {
	case ModuleAINone, ModuleAONone, ModuleDINone, ModuleDONone:
		return true
	}
	return false
}

// PowerSupply describes whether the field loop sources its own power.
type PowerSupply string

const (
	PowerSourced   PowerSupply = "sourced"
	PowerUnsourced PowerSupply = "unsourced"
)

// ChannelDefinition is the static description of one I/O point to be
// tested. Identity fields are immutable; the allocation engine fills the
// batch and rig fields, the sequencer fills nothing here (runtime results
// live on the per-run test state).
type ChannelDefinition struct {
	ID           string      `json:"id"`
	Tag          string      `json:"tag"`           // e.g. "1_2_AI_0" (rack_slot_class_pos)
	VariableName string      `json:"variable_name"` // HMI variable
	Description  string      `json:"description,omitempty"`
	Station      string      `json:"station,omitempty"`
	ModuleName   string      `json:"module_name,omitempty"`
	ModuleClass  ModuleClass `json:"module_class"`
	PowerSupply  PowerSupply `json:"power_supply"`

	// Engineering range and alarm setpoints (analog only).
	RangeLow  float64 `json:"range_low"`
	RangeHigh float64 `json:"range_high"`

	SetpointLL        float64 `json:"setpoint_ll,omitempty"`
	SetpointLLAddress string  `json:"setpoint_ll_address,omitempty"`
	SetpointL         float64 `json:"setpoint_l,omitempty"`
	SetpointLAddress  string  `json:"setpoint_l_address,omitempty"`
	SetpointH         float64 `json:"setpoint_h,omitempty"`
	SetpointHAddress  string  `json:"setpoint_h_address,omitempty"`
	SetpointHH        float64 `json:"setpoint_hh,omitempty"`
	SetpointHHAddress string  `json:"setpoint_hh_address,omitempty"`

	// Address of the point on the target controller.
	CommAddress string `json:"comm_address"`

	// Assigned by the allocation engine.
	BatchID        string `json:"batch_id,omitempty"`
	BatchName      string `json:"batch_name,omitempty"`
	RigAddress     string `json:"rig_address,omitempty"`
	RigCommAddress string `json:"rig_comm_address,omitempty"`
}

// RackNumber parses the rack number from the channel tag: the token
// before the first underscore. ok is false for unparsable tags; those
// sort behind every real rack during allocation.
func (d *ChannelDefinition) RackNumber() (uint32, bool) {
	head, _, found := strings.Cut(d.Tag, "_")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseUint(head, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// SlotPosition parses slot and position from a rack_slot_class_pos tag.
func (d *ChannelDefinition) SlotPosition() (slot, pos int, err error) {
	parts := strings.Split(d.Tag, "_")
	if len(parts) < 4 {
		return 0, 0, fmt.Errorf("tag %q: want rack_slot_class_pos", d.Tag)
	}
	if slot, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("tag %q: bad slot: %w", d.Tag, err)
	}
	if pos, err = strconv.Atoi(parts[3]); err != nil {
		return 0, 0, fmt.Errorf("tag %q: bad position: %w", d.Tag, err)
	}
	return slot, pos, nil
}

// RigChannel is one physical test-rig channel from the rig catalogue.
// Read-only to the core; supplied by the catalog loader.
type RigChannel struct {
	RigAddress  string      `json:"rig_address" yaml:"rig_address"`   // e.g. "AO1_1"
	CommAddress string      `json:"comm_address" yaml:"comm_address"` // e.g. "AO1.1"
	Class       ModuleClass `json:"class" yaml:"class"`
}

// BatchStatus is the aggregate status of a test batch.
type BatchStatus string

const (
	BatchNotStarted            BatchStatus = "not_started"
	BatchInProgress            BatchStatus = "in_progress"
	BatchCompleted             BatchStatus = "completed"
	BatchCompletedWithFailures BatchStatus = "completed_with_failures"
	BatchCanceled              BatchStatus = "canceled"
)

// TestBatch groups channel definitions tested together under one wiring
// round.
type TestBatch struct {
	BatchID      string      `json:"batch_id"`
	Name         string      `json:"name"`
	Status       BatchStatus `json:"status"`
	TotalCount   int         `json:"total_count"`
	TestedCount  int         `json:"tested_count"`
	PassedCount  int         `json:"passed_count"`
	FailedCount  int         `json:"failed_count"`
	FirstTestAt  *time.Time  `json:"first_test_at,omitempty"`
	LastTestAt   *time.Time  `json:"last_test_at,omitempty"`
	ProductModel string      `json:"product_model,omitempty"`
	SerialNumber string      `json:"serial_number,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
