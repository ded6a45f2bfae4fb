package matrix

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"relaymatrix/internal/config"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultSpec []byte

// Default returns the built-in matrix with the versioned-chain,
// counterparty-implementation, ordered-channel, ica and model-based families.
func Default() (Spec, error) {
	spec, err := Parse(defaultSpec)
	if err != nil {
		return Spec{}, fmt.Errorf("built-in matrix: %w", err)
	}
	return spec, nil
}

// Load reads and validates a matrix spec from path.
func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, config.NewConfigurationError(path, "io", err)
	}
	spec, err := Parse(data)
	if err != nil {
		return Spec{}, config.NewConfigurationError(path, "parse", err)
	}
	return spec, nil
}

// Parse decodes a YAML matrix spec. Unknown fields are rejected so typos in
// axis or family keys do not silently change the expansion.
func Parse(data []byte) (Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return Spec{}, err
	}
	if err := Validate(spec); err != nil {
		return Spec{}, err
	}
	return spec, nil
}
