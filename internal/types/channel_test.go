package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModuleClass(t *testing.T) {
	for _, class := range ModuleClasses {
		parsed, err := ParseModuleClass(string(class))
		require.NoError(t, err)
		assert.Equal(t, class, parsed)
	}

	parsed, err := ParseModuleClass("  AI ")
	require.NoError(t, err)
	assert.Equal(t, ModuleAI, parsed)

	_, err = ParseModuleClass("ai")
	assert.Error(t, err)
	_, err = ParseModuleClass("RTD")
	assert.Error(t, err)
}

func TestModuleClassPredicates(t *testing.T) {
	assert.True(t, ModuleAI.IsAnalog())
	assert.True(t, ModuleAONone.IsAnalog())
	assert.False(t, ModuleDI.IsAnalog())

	assert.True(t, ModuleAO.IsOutput())
	assert.True(t, ModuleDONone.IsOutput())
	assert.False(t, ModuleAI.IsOutput())

	assert.True(t, ModuleDINone.Unpowered())
	assert.False(t, ModuleDI.Unpowered())
}

func TestRackNumber(t *testing.T) {
	def := &ChannelDefinition{Tag: "3_2_AI_0"}
	rack, ok := def.RackNumber()
	require.True(t, ok)
	assert.Equal(t, uint32(3), rack)

	for _, tag := range []string{"nounderscore", "x_2_AI_0", "-1_2_AI_0", ""} {
		def := &ChannelDefinition{Tag: tag}
		_, ok := def.RackNumber()
		assert.False(t, ok, "tag %q", tag)
	}
}

func TestSlotPosition(t *testing.T) {
	def := &ChannelDefinition{Tag: "1_4_AI_7"}
	slot, pos, err := def.SlotPosition()
	require.NoError(t, err)
	assert.Equal(t, 4, slot)
	assert.Equal(t, 7, pos)

	def = &ChannelDefinition{Tag: "1_4"}
	_, _, err = def.SlotPosition()
	assert.Error(t, err)
}
