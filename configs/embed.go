// Package configs embeds the bundled policy files.
package configs

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// DefaultName is the policy used when none is configured.
const DefaultName = "default.yaml"

//go:embed *.yaml
var policies embed.FS

// Names returns the embedded policy filenames in order.
func Names() []string {
	names, err := fs.Glob(policies, "*.yaml")
	if err != nil {
		return nil
	}
	slices.Sort(names)
	return names
}

// Load returns an embedded policy. The ".yaml" suffix may be omitted and an
// empty name selects DefaultName.
func Load(name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if path.Ext(name) == "" {
		name += ".yaml"
	}
	data, err := fs.ReadFile(policies, name)
	if err != nil {
		return nil, fmt.Errorf("embedded policy %q (have %s): %w", name, strings.Join(Names(), ", "), err)
	}
	return data, nil
}
