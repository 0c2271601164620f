package allocation

import (
	"fmt"
	"testing"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defsOf(class types.ModuleClass, rack, count int) []*types.ChannelDefinition {
	defs := make([]*types.ChannelDefinition, 0, count)
	for i := 0; i < count; i++ {
		defs = append(defs, &types.ChannelDefinition{
			ID:          fmt.Sprintf("%s-%d-%d", class, rack, i),
			Tag:         fmt.Sprintf("%d_2_%s_%d", rack, class, i),
			ModuleClass: class,
		})
	}
	return defs
}

func rigsOf(class types.ModuleClass, count int) []types.RigChannel {
	rigs := make([]types.RigChannel, 0, count)
	for i := 0; i < count; i++ {
		rigs = append(rigs, types.RigChannel{
			RigAddress:  fmt.Sprintf("%s%d_1", class, i),
			CommAddress: fmt.Sprintf("4%04d", 100+i*2),
			Class:       class,
		})
	}
	return rigs
}

func TestRigClassForIsCrossedBothWays(t *testing.T) {
	pairs := map[types.ModuleClass]types.ModuleClass{
		types.ModuleAI:     types.ModuleAONone,
		types.ModuleAINone: types.ModuleAO,
		types.ModuleAO:     types.ModuleAINone,
		types.ModuleAONone: types.ModuleAI,
		types.ModuleDI:     types.ModuleDONone,
		types.ModuleDINone: types.ModuleDO,
		types.ModuleDO:     types.ModuleDINone,
		types.ModuleDONone: types.ModuleDI,
	}
	for class, want := range pairs {
		assert.Equal(t, want, RigClassFor(class))
		// The pairing inverts cleanly.
		assert.Equal(t, class, RigClassFor(want))
	}
}

func TestAllocateAssignsUniqueRigAddressesPerBatch(t *testing.T) {
	defs := defsOf(types.ModuleAI, 1, 5)
	catalogue := rigsOf(types.ModuleAONone, 2)

	engine := NewEngine(zap.NewNop())
	result, err := engine.Allocate(defs, catalogue, "M1", "SN-1")
	require.NoError(t, err)

	// 5 channels over pages of 2: three batches, none unallocated.
	assert.Len(t, result.Batches, 3)
	assert.Len(t, result.Allocated, 5)
	assert.Empty(t, result.Unallocated)

	assert.Empty(t, engine.Validate(defs))

	seen := map[string]bool{}
	for _, def := range result.Allocated {
		key := def.BatchID + "/" + def.RigAddress
		assert.False(t, seen[key], "duplicate rig address %s", key)
		seen[key] = true
		assert.NotEmpty(t, def.RigCommAddress)
	}
}

func TestAllocateGroupsByRackAscending(t *testing.T) {
	defs := append(defsOf(types.ModuleDI, 3, 1), defsOf(types.ModuleDI, 1, 1)...)
	catalogue := rigsOf(types.ModuleDONone, 4)

	engine := NewEngine(zap.NewNop())
	result, err := engine.Allocate(defs, catalogue, "", "")
	require.NoError(t, err)

	// Rack 1 fills batch 1, rack 3 batch 2: racks never mix and batch
	// numbers stay monotonic across racks.
	require.Len(t, result.Batches, 2)
	assert.Equal(t, "Batch 1", defs[1].BatchName)
	assert.Equal(t, "Batch 2", defs[0].BatchName)
	assert.NotEqual(t, defs[0].BatchID, defs[1].BatchID)
}

func TestAllocateUnparsableTagSortsLast(t *testing.T) {
	odd := &types.ChannelDefinition{ID: "odd", Tag: "weird-tag", ModuleClass: types.ModuleAI}
	defs := append(defsOf(types.ModuleAI, 2, 1), odd)
	catalogue := rigsOf(types.ModuleAONone, 1)

	engine := NewEngine(zap.NewNop())
	result, err := engine.Allocate(defs, catalogue, "", "")
	require.NoError(t, err)

	require.Len(t, result.Batches, 2)
	assert.Equal(t, "Batch 1", defs[0].BatchName)
	assert.Equal(t, "Batch 2", odd.BatchName)
}

func TestAllocateReportsUnallocatedInsteadOfDropping(t *testing.T) {
	defs := append(defsOf(types.ModuleAI, 1, 2), defsOf(types.ModuleDO, 1, 1)...)
	// Catalogue has AI capacity but nothing a DO could pair with.
	catalogue := rigsOf(types.ModuleAONone, 2)

	engine := NewEngine(zap.NewNop())
	result, err := engine.Allocate(defs, catalogue, "", "")
	require.NoError(t, err)

	assert.Len(t, result.Allocated, 2)
	require.Len(t, result.Unallocated, 1)
	assert.Equal(t, types.ModuleDO, result.Unallocated[0].Class)
	assert.Contains(t, result.Unallocated[0].Reason, string(types.ModuleDINone))

	assert.Equal(t, 3, result.Summary.TotalDefinitions)
	assert.Equal(t, 2, result.Summary.AllocatedCount)
	assert.Equal(t, 1, result.Summary.UnallocatedCount)
}

func TestAllocateEmptyCatalogueIsAnError(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	_, err := engine.Allocate(defsOf(types.ModuleAI, 1, 1), nil, "", "")
	require.Error(t, err)
}

func TestAllocateIsDeterministicForFixedInput(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	build := func() ([]*types.ChannelDefinition, []types.RigChannel) {
		defs := append(defsOf(types.ModuleAI, 1, 3), defsOf(types.ModuleDI, 1, 2)...)
		catalogue := append(rigsOf(types.ModuleAONone, 2), rigsOf(types.ModuleDONone, 2)...)
		return defs, catalogue
	}

	defsA, catA := build()
	defsB, catB := build()

	_, err := engine.Allocate(defsA, catA, "", "")
	require.NoError(t, err)
	_, err = engine.Allocate(defsB, catB, "", "")
	require.NoError(t, err)

	for i := range defsA {
		assert.Equal(t, defsA[i].BatchName, defsB[i].BatchName, "tag %s", defsA[i].Tag)
		assert.Equal(t, defsA[i].RigAddress, defsB[i].RigAddress, "tag %s", defsA[i].Tag)
	}
}

func TestClearAllocationsResetsAssignment(t *testing.T) {
	defs := defsOf(types.ModuleAI, 1, 2)
	engine := NewEngine(zap.NewNop())

	_, err := engine.Allocate(defs, rigsOf(types.ModuleAONone, 2), "", "")
	require.NoError(t, err)
	require.NotEmpty(t, defs[0].BatchID)

	engine.ClearAllocations(defs)
	for _, def := range defs {
		assert.Empty(t, def.BatchID)
		assert.Empty(t, def.BatchName)
		assert.Empty(t, def.RigAddress)
		assert.Empty(t, def.RigCommAddress)
	}
}
