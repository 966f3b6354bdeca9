// Package manifest implements Manifest & Lock (spec §4.2): schema
// validation with field-level fix hints, manifest-over-defaults
// resolution, canonical-JSON hashing for resume compatibility, and
// manifest.lock.json emission.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
	"github.com/seanwinslow28/spritegen/internal/utils"
)

// Defaults mirrors the documented defaults in spec §3.
var Defaults = domain.Manifest{
	Canvas: domain.ManifestCanvas{
		GenerationSize:   512,
		TargetSize:       128,
		DownsampleMethod: "nearest",
		Alignment: domain.ManifestAlignment{
			VerticalLock:  true,
			RootZoneRatio: 0.25,
			MaxShiftX:     16,
		},
	},
	Auditor: domain.ManifestAuditor{
		Thresholds: domain.ManifestThresholds{
			IdentityMin:      0.85,
			PaletteMin:       0.90,
			AlphaArtifactMax: 0.20,
			BaselineDriftMax: 4,
			CompositeMin:     0.70,
		},
		Weights: map[string]float64{
			"identity": 0.40,
			"palette":  0.25,
			"baseline": 0.15,
			"alpha":    0.10,
			"noise":    0.10,
		},
		PaletteTolerance:      5,
		PaletteClusterTrigger: 256,
	},
	Generator: domain.ManifestGenerator{
		Mode:                "edit",
		SeedPolicy:          domain.SeedPolicyFixedThenRandom,
		MaxAttemptsPerFrame: 6,
	},
}

// Validate checks the shape of the raw input and returns field-level
// errors a caller can surface verbatim. Each failure names a dotted field
// path, the expected shape, and a one-sentence fix hint.
func Validate(m *domain.Manifest) []*errors.PipelineError {
	var errs []*errors.PipelineError

	if m.Identity.Character == "" {
		errs = append(errs, errors.NewValidation(errors.CodeValidationField("identity.character"), "identity.character", "character name is required", "set identity.character to a non-empty string"))
	}
	if m.Identity.Move == "" {
		errs = append(errs, errors.NewValidation(errors.CodeValidationField("identity.move"), "identity.move", "move name is required", "set identity.move to a non-empty string"))
	}
	if m.Identity.FrameCount < 1 || m.Identity.FrameCount > 32 {
		errs = append(errs, errors.NewValidation(errors.CodeValidationField("identity.frame_count"), "identity.frame_count",
			fmt.Sprintf("frame_count must be in 1..32, got %d", m.Identity.FrameCount),
			"set identity.frame_count to an integer between 1 and 32"))
	}
	if m.Inputs.Anchor == "" {
		errs = append(errs, errors.NewValidation(errors.CodeValidationField("inputs.anchor"), "inputs.anchor", "anchor path is required", "set inputs.anchor to an existing PNG path"))
	}
	if m.Generator.Prompts.Master == "" {
		errs = append(errs, errors.NewValidation(errors.CodeValidationField("generator.prompts.master"), "generator.prompts.master", "master prompt is required", "set generator.prompts.master to a non-empty string"))
	}
	if m.Generator.SeedPolicy != "" && m.Generator.SeedPolicy != domain.SeedPolicyFixedThenRandom && m.Generator.SeedPolicy != domain.SeedPolicyAlwaysRandom {
		errs = append(errs, errors.NewValidation(errors.CodeValidationField("generator.seed_policy"), "generator.seed_policy",
			fmt.Sprintf("unknown seed_policy %q", m.Generator.SeedPolicy),
			"use \"fixed_then_random\" or \"always_random\""))
	}
	if m.Canvas.TargetSize != 0 && m.Canvas.TargetSize != 128 && m.Canvas.TargetSize != 256 {
		errs = append(errs, errors.NewValidation(errors.CodeValidationField("canvas.target_size"), "canvas.target_size",
			fmt.Sprintf("target_size must be 128 or 256, got %d", m.Canvas.TargetSize),
			"set canvas.target_size to 128 or 256"))
	}
	return errs
}

// Resolve fills every zero-valued field of m from Defaults (explicit
// manifest values win) and stamps the resolution timestamp. It reads no
// environment variables.
func Resolve(m domain.Manifest, now time.Time) domain.ResolvedManifest {
	r := m

	r.Canvas.GenerationSize = utils.DefaultValue(r.Canvas.GenerationSize, Defaults.Canvas.GenerationSize)
	r.Canvas.TargetSize = utils.DefaultValue(r.Canvas.TargetSize, Defaults.Canvas.TargetSize)
	r.Canvas.DownsampleMethod = utils.DefaultValue(r.Canvas.DownsampleMethod, Defaults.Canvas.DownsampleMethod)
	r.Canvas.Alignment.RootZoneRatio = utils.DefaultValue(r.Canvas.Alignment.RootZoneRatio, Defaults.Canvas.Alignment.RootZoneRatio)
	r.Canvas.Alignment.MaxShiftX = utils.DefaultValue(r.Canvas.Alignment.MaxShiftX, Defaults.Canvas.Alignment.MaxShiftX)

	r.Auditor.Thresholds.IdentityMin = utils.DefaultValue(r.Auditor.Thresholds.IdentityMin, Defaults.Auditor.Thresholds.IdentityMin)
	r.Auditor.Thresholds.PaletteMin = utils.DefaultValue(r.Auditor.Thresholds.PaletteMin, Defaults.Auditor.Thresholds.PaletteMin)
	r.Auditor.Thresholds.AlphaArtifactMax = utils.DefaultValue(r.Auditor.Thresholds.AlphaArtifactMax, Defaults.Auditor.Thresholds.AlphaArtifactMax)
	r.Auditor.Thresholds.BaselineDriftMax = utils.DefaultValue(r.Auditor.Thresholds.BaselineDriftMax, Defaults.Auditor.Thresholds.BaselineDriftMax)
	r.Auditor.Thresholds.CompositeMin = utils.DefaultValue(r.Auditor.Thresholds.CompositeMin, Defaults.Auditor.Thresholds.CompositeMin)
	if r.Auditor.Weights == nil {
		r.Auditor.Weights = Defaults.Auditor.Weights
	}
	r.Auditor.PaletteTolerance = utils.DefaultValue(r.Auditor.PaletteTolerance, Defaults.Auditor.PaletteTolerance)
	r.Auditor.PaletteClusterTrigger = utils.DefaultValue(r.Auditor.PaletteClusterTrigger, Defaults.Auditor.PaletteClusterTrigger)

	r.Generator.Mode = utils.DefaultValue(r.Generator.Mode, Defaults.Generator.Mode)
	r.Generator.SeedPolicy = utils.DefaultValue(r.Generator.SeedPolicy, Defaults.Generator.SeedPolicy)
	r.Generator.MaxAttemptsPerFrame = utils.DefaultValue(r.Generator.MaxAttemptsPerFrame, Defaults.Generator.MaxAttemptsPerFrame)

	return domain.ResolvedManifest{Manifest: r, ResolvedAt: now.UTC().Format(time.RFC3339)}
}

// Hash computes the SHA-256 of m's canonical JSON representation: keys
// sorted, whitespace normalized, trailing newline stripped. Used to decide
// resume compatibility.
func Hash(m domain.Manifest) (string, error) {
	canon, err := canonicalJSON(m)
	if err != nil {
		return "", errors.NewSystem(errors.CodeSysIO, "canonicalize manifest", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf strings.Builder
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(buf.String(), "\n")), nil
}

func writeCanonical(buf *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// EmitLock writes manifest.lock.json via the Atomic Store. Only
// manifest_path is rewritten, to absolute, forward-slash form; the paths
// inside the manifest (inputs.anchor, style_refs, pose_refs, guides) are
// written as given. The manifest type has no API-key field, so nothing is
// redacted.
func EmitLock(s *store.Store, lock domain.LockFile) error {
	lock.ManifestPath = toForwardSlash(lock.ManifestPath)
	return s.WriteJSON(s.Path("manifest.lock.json"), lock)
}

func toForwardSlash(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	return filepath.ToSlash(abs)
}
