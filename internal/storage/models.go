package storage

import (
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/types"
)

// ChannelRecord is the persisted result of one channel test run. One
// row per instance per run; retests insert a new row so history is
// kept.
type ChannelRecord struct {
	ID           string            `json:"id"`
	InstanceID   string            `json:"instance_id"`
	Tag          string            `json:"tag"`
	BatchID      string            `json:"batch_id"`
	BatchName    string            `json:"batch_name"`
	ModuleClass  types.ModuleClass `json:"module_class"`
	ProductModel string            `json:"product_model,omitempty"`
	SerialNumber string            `json:"serial_number,omitempty"`

	Status  string `json:"status"`
	Outcome string `json:"outcome"`

	// Engineering fields. NaN marks "not configured" in memory; the
	// sentinel mapping in sentinel.go keeps the database finite.
	RangeLow   float64 `json:"range_low"`
	RangeHigh  float64 `json:"range_high"`
	SetpointLL float64 `json:"setpoint_ll"`
	SetpointL  float64 `json:"setpoint_l"`
	SetpointH  float64 `json:"setpoint_h"`
	SetpointHH float64 `json:"setpoint_hh"`

	Reading0   float64 `json:"reading_0"`
	Reading25  float64 `json:"reading_25"`
	Reading50  float64 `json:"reading_50"`
	Reading75  float64 `json:"reading_75"`
	Reading100 float64 `json:"reading_100"`

	ObservedHigh bool   `json:"observed_high"`
	ObservedLow  bool   `json:"observed_low"`
	ErrorDetail  string `json:"error_detail,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
