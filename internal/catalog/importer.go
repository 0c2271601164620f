package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImportFile is the on-disk shape of a channel definition import.
type ImportFile struct {
	ProductModel string                     `json:"product_model"`
	SerialNumber string                     `json:"serial_number"`
	Channels     []*types.ChannelDefinition `json:"channels"`
}

// Importer turns channel definition JSON into validated definitions.
// Validation runs twice: structurally against the schema, then
// semantically (module class enum, duplicate tags).
type Importer struct {
	validator *Validator
	logger    *zap.Logger
}

func NewImporter(logger *zap.Logger) (*Importer, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	return &Importer{validator: validator, logger: logger}, nil
}

func (i *Importer) ImportFile(path string) (*ImportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return i.Import(data)
}

func (i *Importer) Import(data []byte) (*ImportFile, error) {
	if err := i.validator.ValidateImport(data); err != nil {
		return nil, err
	}

	var file ImportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal import: %w", err)
	}

	seen := make(map[string]bool, len(file.Channels))
	for idx, def := range file.Channels {
		class, err := types.ParseModuleClass(string(def.ModuleClass))
		if err != nil {
			return nil, fmt.Errorf("channel %d (%s): %w", idx, def.Tag, err)
		}
		def.ModuleClass = class

		if seen[def.Tag] {
			return nil, fmt.Errorf("channel %d: duplicate tag %q", idx, def.Tag)
		}
		seen[def.Tag] = true

		if def.ID == "" {
			def.ID = uuid.New().String()
		}
		if def.PowerSupply == "" {
			def.PowerSupply = types.PowerSourced
		}
	}

	i.logger.Info("Channel definitions imported",
		zap.Int("channels", len(file.Channels)),
		zap.String("product_model", file.ProductModel))

	return &file, nil
}
