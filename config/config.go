// Package config loads pipeline configuration files from disk.
package config

import (
	"fmt"
	"os"

	"github.com/initializ/stepforge/types"
)

// DefaultFile is the config file name looked up when none is given.
const DefaultFile = "stepforge.yaml"

// LoadPipelineConfig reads and parses a stepforge.yaml file from the given path.
func LoadPipelineConfig(path string) (*types.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline config %s: %w", path, err)
	}
	return types.ParsePipelineConfig(data)
}
