package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenTestBench/internal/allocation"
	"github.com/KevinKickass/OpenTestBench/internal/catalog"
	"github.com/KevinKickass/OpenTestBench/internal/config"
	"github.com/KevinKickass/OpenTestBench/internal/storage"
	"github.com/KevinKickass/OpenTestBench/internal/testrun"
	"github.com/KevinKickass/OpenTestBench/internal/types"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State           string `json:"state"`
	TesterConnected bool   `json:"tester_connected"`
	TargetConnected bool   `json:"target_connected"`
	Definitions     int    `json:"definitions"`
	ActiveBatches   int    `json:"active_batches"`
}

// LifecycleManager is what the REST layer sees of the running system.
type LifecycleManager interface {
	Config() *config.Config
	Storage() *storage.PostgresClient
	Tracker() *testrun.Tracker
	Sequencer() *testrun.Sequencer

	// ImportDefinitions validates and registers a channel definition
	// payload, replacing the previous set.
	ImportDefinitions(data []byte) (*catalog.ImportFile, error)
	Definitions() []*types.ChannelDefinition

	// Allocate bin-packs the current definitions into batches and
	// creates their test states.
	Allocate(productModel, serialNumber string) (*allocation.Result, error)
	ClearBatch(ctx context.Context, batchID string) error

	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
