package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validImport = `{
  "product_model": "PCS-2000",
  "serial_number": "SN-0042",
  "channels": [
    {
      "tag": "1_2_AI_0",
      "variable_name": "PT_1201",
      "module_class": "AI",
      "power_supply": "sourced",
      "range_low": 0,
      "range_high": 100,
      "comm_address": "40001"
    },
    {
      "tag": "1_2_DO_3",
      "module_class": "DO",
      "comm_address": "00017"
    }
  ]
}`

func TestImportValidPayload(t *testing.T) {
	importer, err := NewImporter(zap.NewNop())
	require.NoError(t, err)

	file, err := importer.Import([]byte(validImport))
	require.NoError(t, err)

	assert.Equal(t, "PCS-2000", file.ProductModel)
	require.Len(t, file.Channels, 2)
	assert.Equal(t, types.ModuleAI, file.Channels[0].ModuleClass)
	assert.NotEmpty(t, file.Channels[0].ID)
	assert.Equal(t, types.PowerSourced, file.Channels[1].PowerSupply)
}

func TestImportRejectsUnknownModuleClass(t *testing.T) {
	importer, err := NewImporter(zap.NewNop())
	require.NoError(t, err)

	payload := `{"channels":[{"tag":"1_2_XX_0","module_class":"XX","comm_address":"40001"}]}`
	_, err = importer.Import([]byte(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestImportRejectsDuplicateTags(t *testing.T) {
	importer, err := NewImporter(zap.NewNop())
	require.NoError(t, err)

	payload := `{"channels":[
	  {"tag":"1_2_AI_0","module_class":"AI","comm_address":"40001"},
	  {"tag":"1_2_AI_0","module_class":"AI","comm_address":"40003"}
	]}`
	_, err = importer.Import([]byte(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tag")
}

func TestImportRejectsEmptyChannelList(t *testing.T) {
	importer, err := NewImporter(zap.NewNop())
	require.NoError(t, err)

	_, err = importer.Import([]byte(`{"channels":[]}`))
	require.Error(t, err)
}

func writeRigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRigCatalogue(t *testing.T) {
	path := writeRigFile(t, `
name: bench-1
rig_channels:
  - rig_address: AO1_1
    comm_address: "40101"
    class: AONone
  - rig_address: DO1_1
    comm_address: "00101"
    class: DONone
`)

	catalogue, err := LoadRigCatalogue(path)
	require.NoError(t, err)
	assert.Equal(t, "bench-1", catalogue.Name)
	require.Len(t, catalogue.Channels, 2)
	assert.Equal(t, types.ModuleAONone, catalogue.Channels[0].Class)
}

func TestLoadRigCatalogueRejectsDuplicates(t *testing.T) {
	path := writeRigFile(t, `
rig_channels:
  - rig_address: AO1_1
    comm_address: "40101"
    class: AONone
  - rig_address: AO1_1
    comm_address: "40103"
    class: AONone
`)

	_, err := LoadRigCatalogue(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadRigCatalogueRejectsUnknownClass(t *testing.T) {
	path := writeRigFile(t, `
rig_channels:
  - rig_address: XX1_1
    comm_address: "40101"
    class: XX
`)

	_, err := LoadRigCatalogue(path)
	require.Error(t, err)
}
