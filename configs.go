package spritegen

import (
	"time"

	"github.com/seanwinslow28/spritegen/internal/application/manifest"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// DefaultManifest is the baseline Manifest every operator-supplied one is
// merged over (spec §3's manifest > defaults precedence).
var DefaultManifest = manifest.Defaults

// ValidateManifest re-exports the manifest validator.
func ValidateManifest(m *Manifest) []*errors.PipelineError {
	return manifest.Validate(m)
}

// ResolveManifest re-exports manifest defaulting/precedence resolution.
func ResolveManifest(m Manifest, now time.Time) ResolvedManifest {
	return manifest.Resolve(m, now)
}

// HashManifest re-exports the canonical-JSON manifest hash used for the
// resume integrity check.
func HashManifest(m Manifest) (string, error) {
	return manifest.Hash(m)
}
