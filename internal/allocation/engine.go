package allocation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RigClassFor maps a channel class to the complementary rig class that
// can stimulate or sense it. Sourced channels must be driven by
// unpowered rig points and vice versa, so the pairing is deliberately
// crossed both in direction and in power.
func RigClassFor(class types.ModuleClass) types.ModuleClass {
	switch class {
	case types.ModuleAI:
		return types.ModuleAONone
	case types.ModuleAINone:
		return types.ModuleAO
	case types.ModuleAO:
		return types.ModuleAINone
	case types.ModuleAONone:
		return types.ModuleAI
	case types.ModuleDI:
		return types.ModuleDONone
	case types.ModuleDINone:
		return types.ModuleDO
	case types.ModuleDO:
		return types.ModuleDINone
	case types.ModuleDONone:
		return types.ModuleDI
	}
	return ""
}

// Unallocated describes a channel the engine could not place.
type Unallocated struct {
	ID     string            `json:"id"`
	Tag    string            `json:"tag"`
	Class  types.ModuleClass `json:"class"`
	Reason string            `json:"reason"`
}

// ClassStats summarizes allocation per module class.
type ClassStats struct {
	Definitions int `json:"definitions"`
	Allocated   int `json:"allocated"`
	Batches     int `json:"batches"`
}

// Summary aggregates one allocation run.
type Summary struct {
	TotalDefinitions int                             `json:"total_definitions"`
	AllocatedCount   int                             `json:"allocated_count"`
	UnallocatedCount int                             `json:"unallocated_count"`
	BatchCount       int                             `json:"batch_count"`
	ByClass          map[types.ModuleClass]ClassStats `json:"by_class"`
}

// Result is the outcome of Allocate. Definitions are mutated in place
// (batch and rig fields); Unallocated channels are reported, never
// silently dropped.
type Result struct {
	Batches     []types.TestBatch `json:"batches"`
	Allocated   []*types.ChannelDefinition
	Unallocated []Unallocated `json:"unallocated"`
	Summary     Summary       `json:"summary"`
}

// Engine bin-packs channel definitions into test batches and rig
// addresses, rack by rack.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Allocate assigns every definition a batch id and a rig address,
// consuming rig capacity page by page. Channels are grouped by the rack
// number parsed from their tag; unparsable tags sort last. Batch
// numbers continue monotonically across racks. Deterministic for a
// given input ordering.
func (e *Engine) Allocate(definitions []*types.ChannelDefinition, catalogue []types.RigChannel, productModel, serialNumber string) (*Result, error) {
	if len(catalogue) == 0 {
		return nil, fmt.Errorf("rig catalogue is empty")
	}

	const unparsableRack = uint32(math.MaxUint32)

	rackMap := make(map[uint32][]*types.ChannelDefinition)
	for _, def := range definitions {
		rack, ok := def.RackNumber()
		if !ok {
			rack = unparsableRack
		}
		rackMap[rack] = append(rackMap[rack], def)
	}

	racks := make([]uint32, 0, len(rackMap))
	for rack := range rackMap {
		racks = append(racks, rack)
	}
	sort.Slice(racks, func(i, j int) bool { return racks[i] < racks[j] })

	result := &Result{}
	batchNumber := 1

	for _, rack := range racks {
		remaining := rackMap[rack]

		for len(remaining) > 0 {
			// Every batch re-uses the full rig pool: channels are
			// re-wired between wiring rounds.
			pools := groupCatalogue(catalogue)

			batch, allocated, leftover := e.allocateBatch(remaining, pools, batchNumber, productModel, serialNumber)

			if len(allocated) == 0 {
				// No rig capacity for anything left in this rack.
				for _, def := range remaining {
					result.Unallocated = append(result.Unallocated, Unallocated{
						ID:     def.ID,
						Tag:    def.Tag,
						Class:  def.ModuleClass,
						Reason: fmt.Sprintf("no rig channel of class %s available", RigClassFor(def.ModuleClass)),
					})
				}
				break
			}

			result.Batches = append(result.Batches, batch)
			result.Allocated = append(result.Allocated, allocated...)
			remaining = leftover
			batchNumber++
		}
	}

	result.Summary = summarize(definitions, result)

	e.logger.Info("Channel allocation completed",
		zap.Int("definitions", len(definitions)),
		zap.Int("batches", len(result.Batches)),
		zap.Int("allocated", len(result.Allocated)),
		zap.Int("unallocated", len(result.Unallocated)))

	return result, nil
}

// allocateBatch fills one batch from the given pools. Channels are
// consumed class by class in fixed priority order; leftover channels
// carry over to the next batch.
func (e *Engine) allocateBatch(remaining []*types.ChannelDefinition, pools map[types.ModuleClass][]types.RigChannel, batchNumber int, productModel, serialNumber string) (types.TestBatch, []*types.ChannelDefinition, []*types.ChannelDefinition) {
	batchID := fmt.Sprintf("%s_batch_%d", uuid.New(), batchNumber)
	batchName := fmt.Sprintf("Batch %d", batchNumber)

	allocated := make([]*types.ChannelDefinition, 0, len(remaining))
	used := make(map[string]bool, len(remaining))

	for _, class := range types.ModuleClasses {
		rigClass := RigClassFor(class)
		pool := pools[rigClass]
		if len(pool) == 0 {
			continue
		}

		consumed := 0
		for _, def := range remaining {
			if def.ModuleClass != class || used[def.ID] {
				continue
			}
			if consumed >= len(pool) {
				break // page exhausted for this class
			}

			rig := pool[consumed]
			def.BatchID = batchID
			def.BatchName = batchName
			def.RigAddress = rig.RigAddress
			def.RigCommAddress = rig.CommAddress

			allocated = append(allocated, def)
			used[def.ID] = true
			consumed++
		}
		pools[rigClass] = pool[consumed:]
	}

	leftover := make([]*types.ChannelDefinition, 0, len(remaining)-len(allocated))
	for _, def := range remaining {
		if !used[def.ID] {
			leftover = append(leftover, def)
		}
	}

	batch := types.TestBatch{
		BatchID:      batchID,
		Name:         batchName,
		Status:       types.BatchNotStarted,
		TotalCount:   len(allocated),
		ProductModel: productModel,
		SerialNumber: serialNumber,
		CreatedAt:    time.Now(),
	}

	return batch, allocated, leftover
}

// ClearAllocations resets batch and rig fields prior to re-allocation.
func (e *Engine) ClearAllocations(definitions []*types.ChannelDefinition) {
	for _, def := range definitions {
		def.BatchID = ""
		def.BatchName = ""
		def.RigAddress = ""
		def.RigCommAddress = ""
	}
}

// Validate checks the allocation invariants: every allocated channel
// has a batch and a rig address, and no rig address is claimed twice
// within one batch.
func (e *Engine) Validate(definitions []*types.ChannelDefinition) []error {
	var errs []error
	seen := make(map[string]string) // batchID+rigAddress -> tag

	for _, def := range definitions {
		if def.BatchID == "" {
			continue
		}
		if def.RigAddress == "" {
			errs = append(errs, fmt.Errorf("channel %s: batch assigned but no rig address", def.Tag))
			continue
		}
		key := def.BatchID + "/" + def.RigAddress
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("rig address %s claimed by both %s and %s in batch %s",
				def.RigAddress, prev, def.Tag, def.BatchID))
			continue
		}
		seen[key] = def.Tag
	}

	return errs
}

func groupCatalogue(catalogue []types.RigChannel) map[types.ModuleClass][]types.RigChannel {
	pools := make(map[types.ModuleClass][]types.RigChannel)
	for _, rig := range catalogue {
		pools[rig.Class] = append(pools[rig.Class], rig)
	}
	return pools
}

func summarize(definitions []*types.ChannelDefinition, result *Result) Summary {
	summary := Summary{
		TotalDefinitions: len(definitions),
		AllocatedCount:   len(result.Allocated),
		UnallocatedCount: len(result.Unallocated),
		BatchCount:       len(result.Batches),
		ByClass:          make(map[types.ModuleClass]ClassStats),
	}

	for _, def := range definitions {
		stats := summary.ByClass[def.ModuleClass]
		stats.Definitions++
		summary.ByClass[def.ModuleClass] = stats
	}

	batchesByClass := make(map[types.ModuleClass]map[string]bool)
	for _, def := range result.Allocated {
		stats := summary.ByClass[def.ModuleClass]
		stats.Allocated++
		summary.ByClass[def.ModuleClass] = stats

		if batchesByClass[def.ModuleClass] == nil {
			batchesByClass[def.ModuleClass] = make(map[string]bool)
		}
		batchesByClass[def.ModuleClass][def.BatchID] = true
	}

	for class, batches := range batchesByClass {
		stats := summary.ByClass[class]
		stats.Batches = len(batches)
		summary.ByClass[class] = stats
	}

	return summary
}
