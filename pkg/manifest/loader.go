// Package manifest provides a YAML-file loader and fluent builder for
// domain.Manifest, the operator-facing input to a spritegen run. Manifests
// are normally authored as manifest.yaml and resolved against defaults by
// internal/application/manifest before a run starts.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seanwinslow28/spritegen/internal/domain"
)

// Load reads and parses a manifest.yaml file at path into a domain.Manifest.
// It does not validate or resolve defaults; callers should run the result
// through internal/application/manifest.Validate and Resolve.
func Load(path string) (domain.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m domain.Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return domain.Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Save writes m to path as YAML, using yaml.v3's default four-space indent.
func Save(path string, m domain.Manifest) error {
	buf, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, buf, 0o644)
}
