// Package playbook loads outreach playbook definitions.
package playbook

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/chainreach/prospect-cli/internal/model"
)

// Registry holds the loaded playbook definitions.
type Registry struct {
	Playbooks []model.Playbook `yaml:"playbooks"`
}

// LoadFile reads playbook definitions from a YAML file. A missing file
// yields the built-in defaults rather than an error.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, eris.Wrapf(err, "playbook: read %s", path)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrapf(err, "playbook: parse %s", path)
	}

	for i, pb := range reg.Playbooks {
		if pb.Key == "" {
			return nil, eris.Errorf("playbook: entry %d has no key", i)
		}
	}

	if len(reg.Playbooks) == 0 {
		return Default(), nil
	}
	return &reg, nil
}

// Default returns the built-in playbooks used when no file is configured.
func Default() *Registry {
	return &Registry{
		Playbooks: []model.Playbook{
			{
				Key:           "defi-integration",
				Title:         "DeFi integration pitch",
				TriggerTags:   []string{"defi"},
				TriggerStages: []string{"mainnet", "growth"},
				Angle:         "offer a liquidity or integration partnership",
			},
			{
				Key:         "infra-partnership",
				Title:       "Infrastructure partnership",
				TriggerTags: []string{"infrastructure", "wallet"},
				Angle:       "position as a reliability upgrade for their stack",
			},
			{
				Key:           "early-stage-outreach",
				Title:         "Early-stage builder outreach",
				TriggerStages: []string{"idea", "testnet"},
				Angle:         "lead with founder-to-founder advice, not a sale",
			},
		},
	}
}
