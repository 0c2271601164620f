package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/allocation"
	"github.com/KevinKickass/OpenTestBench/internal/api/rest"
	"github.com/KevinKickass/OpenTestBench/internal/api/websocket"
	"github.com/KevinKickass/OpenTestBench/internal/auth"
	"github.com/KevinKickass/OpenTestBench/internal/catalog"
	"github.com/KevinKickass/OpenTestBench/internal/config"
	"github.com/KevinKickass/OpenTestBench/internal/interfaces"
	"github.com/KevinKickass/OpenTestBench/internal/plc"
	"github.com/KevinKickass/OpenTestBench/internal/storage"
	"github.com/KevinKickass/OpenTestBench/internal/testrun"
	"github.com/KevinKickass/OpenTestBench/internal/types"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config  *config.Config
	storage *storage.PostgresClient
	logger  *zap.Logger

	tester plc.Facade
	target plc.Facade
	simBus *plc.SimBus // non-nil in sim mode

	testerMonitor *plc.Monitor
	targetMonitor *plc.Monitor

	tracker      *testrun.Tracker
	sequencer    *testrun.Sequencer
	allocator    *allocation.Engine
	importer     *catalog.Importer
	rigCatalogue *catalog.RigCatalogue

	authService *auth.AuthService
	wsHub       *websocket.Hub
	restServer  *rest.Server

	defsMu       sync.RWMutex
	definitions  []*types.ChannelDefinition
	productModel string
	serialNumber string

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownOnce sync.Once
}

func NewLifecycleManager(store *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	importer, err := catalog.NewImporter(logger)
	if err != nil {
		logger.Fatal("Failed to create channel importer", zap.Error(err))
	}

	rigCatalogue, err := catalog.LoadRigCatalogue(cfg.Catalog.RigCataloguePath)
	if err != nil {
		logger.Fatal("Failed to load rig catalogue",
			zap.String("path", cfg.Catalog.RigCataloguePath),
			zap.Error(err))
	}

	lm := &LifecycleManager{
		config:       cfg,
		storage:      store,
		logger:       logger,
		tracker:      testrun.NewTracker(logger),
		allocator:    allocation.NewEngine(logger),
		importer:     importer,
		rigCatalogue: rigCatalogue,
		authService:  auth.NewAuthService(store, cfg.Auth),
		currentState: StateInitializing,
	}

	lm.buildFacades()

	lm.wsHub = websocket.NewHub(logger, lm.authService)

	recorder := &progressRecorder{lm: lm}
	lm.sequencer = testrun.NewSequencer(
		lm.tester, lm.target,
		lm.tracker,
		testrun.NewEvaluator(logger),
		recorder,
		testrun.Settings{
			SettleAfterWrite: cfg.Testing.SettleAfterWrite,
			SettleBetween:    cfg.Testing.SettleBetween,
			WorkerMultiplier: cfg.Testing.WorkerMultiplier,
		},
		logger,
	)

	return lm
}

// buildFacades picks real Modbus connections or the shared simulator
// depending on plc.mode.
func (lm *LifecycleManager) buildFacades() {
	cfg := lm.config.Plc

	if cfg.Mode == "sim" {
		lm.simBus = plc.NewSimBus()
		lm.tester = plc.NewSim("tester", lm.simBus)
		lm.target = plc.NewSim("target", lm.simBus)
		lm.logger.Info("PLC facades running in simulation mode")
		return
	}

	lm.tester = plc.NewModbusFacade("tester", cfg.Tester.Address, uint8(cfg.Tester.UnitID), cfg.Timeout, lm.logger)
	lm.target = plc.NewModbusFacade("target", cfg.Target.Address, uint8(cfg.Target.UnitID), cfg.Timeout, lm.logger)
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenTestBench")

	lm.setState(StateInitializing)

	// Connect both controllers; failure is not fatal, the monitors
	// keep retrying in the background.
	ctx, cancel := context.WithTimeout(context.Background(), lm.config.Plc.Timeout)
	defer cancel()
	if err := lm.tester.Connect(ctx); err != nil {
		lm.logger.Warn("Tester PLC not reachable at startup", zap.Error(err))
	}
	if err := lm.target.Connect(ctx); err != nil {
		lm.logger.Warn("Target PLC not reachable at startup", zap.Error(err))
	}

	if lm.config.Plc.MonitorEnabled {
		lm.testerMonitor = plc.NewMonitor("tester", lm.tester, lm.config.Plc.MonitorPeriod, lm.logger, lm.wsHub.ConnectionChanged)
		lm.targetMonitor = plc.NewMonitor("target", lm.target, lm.config.Plc.MonitorPeriod, lm.logger, lm.wsHub.ConnectionChanged)
		lm.testerMonitor.Start()
		lm.targetMonitor.Start()
	}

	go lm.wsHub.Run()

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	if err := lm.restServer.Start(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("plc_mode", lm.config.Plc.Mode),
		zap.Int("rig_channels", len(lm.rigCatalogue.Channels)))

	return nil
}

// ImportDefinitions validates a channel definition payload and makes
// it the active definition set. Existing batches stay untouched.
func (lm *LifecycleManager) ImportDefinitions(data []byte) (*catalog.ImportFile, error) {
	file, err := lm.importer.Import(data)
	if err != nil {
		return nil, err
	}

	lm.defsMu.Lock()
	lm.definitions = file.Channels
	lm.productModel = file.ProductModel
	lm.serialNumber = file.SerialNumber
	lm.defsMu.Unlock()

	return file, nil
}

func (lm *LifecycleManager) Definitions() []*types.ChannelDefinition {
	lm.defsMu.RLock()
	defer lm.defsMu.RUnlock()
	defs := make([]*types.ChannelDefinition, len(lm.definitions))
	copy(defs, lm.definitions)
	return defs
}

// Allocate runs the allocation engine over the imported definitions
// and creates test states for every batch. A running batch blocks
// re-allocation.
func (lm *LifecycleManager) Allocate(productModel, serialNumber string) (*allocation.Result, error) {
	lm.defsMu.Lock()
	defer lm.defsMu.Unlock()

	if len(lm.definitions) == 0 {
		return nil, fmt.Errorf("no channel definitions imported")
	}

	for _, batch := range lm.tracker.Batches() {
		if lm.sequencer.Running(batch.BatchID) {
			return nil, fmt.Errorf("batch %s is running, stop it before re-allocating", batch.BatchID)
		}
	}

	if productModel == "" {
		productModel = lm.productModel
	}
	if serialNumber == "" {
		serialNumber = lm.serialNumber
	}

	// Drop previous allocation state before assigning anew.
	for _, batch := range lm.tracker.Batches() {
		lm.tracker.RemoveBatch(batch.BatchID)
	}
	lm.allocator.ClearAllocations(lm.definitions)

	result, err := lm.allocator.Allocate(lm.definitions, lm.rigCatalogue.Channels, productModel, serialNumber)
	if err != nil {
		return nil, err
	}

	byBatch := make(map[string][]*types.ChannelDefinition)
	for _, def := range result.Allocated {
		byBatch[def.BatchID] = append(byBatch[def.BatchID], def)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, batch := range result.Batches {
		lm.tracker.CreateStates(batch, byBatch[batch.BatchID])
		if err := lm.storage.SaveBatch(ctx, batch); err != nil {
			lm.logger.Error("Failed to persist batch",
				zap.String("batch_id", batch.BatchID), zap.Error(err))
		}
	}

	// In sim mode, wire the bench: every assigned rig channel mirrors
	// its target channel, as the real cabling would.
	if lm.simBus != nil {
		for _, def := range result.Allocated {
			lm.simBus.Link(def.RigCommAddress, def.CommAddress)
		}
	}

	return result, nil
}

// ClearBatch removes a batch from the registry and the store.
func (lm *LifecycleManager) ClearBatch(ctx context.Context, batchID string) error {
	if lm.sequencer.Running(batchID) {
		return fmt.Errorf("batch %s is running", batchID)
	}
	if _, ok := lm.tracker.Batch(batchID); !ok {
		return fmt.Errorf("batch %s not found", batchID)
	}

	lm.tracker.RemoveBatch(batchID)
	if err := lm.storage.DeleteBatch(ctx, batchID); err != nil {
		return err
	}

	lm.logger.Info("Batch cleared", zap.String("batch_id", batchID))
	return nil
}

func (lm *LifecycleManager) Config() *config.Config           { return lm.config }
func (lm *LifecycleManager) Storage() *storage.PostgresClient { return lm.storage }
func (lm *LifecycleManager) Tracker() *testrun.Tracker        { return lm.tracker }
func (lm *LifecycleManager) Sequencer() *testrun.Sequencer    { return lm.sequencer }

func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	lm.defsMu.RLock()
	defs := len(lm.definitions)
	lm.defsMu.RUnlock()

	return interfaces.SystemStatus{
		State:           state.String(),
		TesterConnected: lm.tester.IsConnected(),
		TargetConnected: lm.target.IsConnected(),
		Definitions:     defs,
		ActiveBatches:   len(lm.tracker.Batches()),
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil && lm.currentState != state {
		lm.logger.Warn("Forcing state transition", zap.Error(err))
	}
	lm.currentState = state
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		if lm.testerMonitor != nil {
			lm.testerMonitor.Stop()
		}
		if lm.targetMonitor != nil {
			lm.targetMonitor.Stop()
		}

		if lm.restServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				shutdownErr = fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}

		if err := lm.tester.Disconnect(); err != nil {
			lm.logger.Warn("Tester disconnect failed", zap.Error(err))
		}
		if err := lm.target.Disconnect(); err != nil {
			lm.logger.Warn("Target disconnect failed", zap.Error(err))
		}

		lm.setState(StateStopped)
		lm.logger.Info("Shutdown completed")
	})

	return shutdownErr
}
