package catalog

import (
	"fmt"
	"os"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"gopkg.in/yaml.v3"
)

// RigCatalogue is the YAML description of the bench's physical test
// channels. The file is operator-maintained and changes when the bench
// is rewired or extended.
type RigCatalogue struct {
	Name     string             `yaml:"name"`
	Channels []types.RigChannel `yaml:"rig_channels"`
}

// LoadRigCatalogue reads and checks the catalogue file. Duplicate rig
// addresses and unknown classes are load errors; a bad catalogue would
// otherwise surface much later as unexplained allocation gaps.
func LoadRigCatalogue(path string) (*RigCatalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rig catalogue: %w", err)
	}

	var catalogue RigCatalogue
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		return nil, fmt.Errorf("failed to parse rig catalogue: %w", err)
	}

	if len(catalogue.Channels) == 0 {
		return nil, fmt.Errorf("rig catalogue %s contains no channels", path)
	}

	seen := make(map[string]bool, len(catalogue.Channels))
	for idx, rig := range catalogue.Channels {
		if rig.RigAddress == "" || rig.CommAddress == "" {
			return nil, fmt.Errorf("rig channel %d: address fields must not be empty", idx)
		}
		if _, err := types.ParseModuleClass(string(rig.Class)); err != nil {
			return nil, fmt.Errorf("rig channel %s: %w", rig.RigAddress, err)
		}
		if seen[rig.RigAddress] {
			return nil, fmt.Errorf("rig channel %s: duplicate rig address", rig.RigAddress)
		}
		seen[rig.RigAddress] = true
	}

	return &catalogue, nil
}
