package dsl

import (
	"errors"
	"fmt"
	"io"

	"go.yaml.in/yaml/v4"
)

// Load parses YAML bytes into Config and validates it. Unknown fields are
// rejected.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Load(data, &cfg, yaml.WithKnownFields()); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
