// Package generator implements the Generator Adapter (spec §4.10): the
// ImageGenerator contract, Semantic Interleaving prompt construction,
// drift-gated reference selection, and the deterministic CRC32 seed.
package generator

import (
	"context"
	"fmt"
	"hash/crc32"
)

// ErrorKind enumerates the ImageGenerator contract's error kinds (spec §6).
type ErrorKind string

const (
	ErrUnavailable    ErrorKind = "UNAVAILABLE"
	ErrRateLimited    ErrorKind = "RATE_LIMITED"
	ErrTimeout        ErrorKind = "TIMEOUT"
	ErrInvalidResponse ErrorKind = "INVALID_RESPONSE"
)

// GeneratorError is returned by ImageGenerator.Generate on failure.
type GeneratorError struct {
	Kind         ErrorKind
	Message      string
	RetryAfterMS int
	Cause        error
}

func (e *GeneratorError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }
func (e *GeneratorError) Unwrap() error { return e.Cause }

// SamplingParams locks temperature/topP/topK per spec §4.10. A manifest
// attempt to lower temperature is accepted structurally but logged as
// overridden by the caller.
type SamplingParams struct {
	Temperature float64
	TopP        float64
	TopK        int
}

// LockedSampling is the fixed sampling configuration the adapter always uses.
var LockedSampling = SamplingParams{Temperature: 1.0, TopP: 0.95, TopK: 40}

// Request is the ImageGenerator contract's request shape.
type Request struct {
	AnchorBytes   []byte
	PrevFrameBytes []byte // nil when omitted (drift-gated or frame 0)
	PromptText    string
	Seed          *uint32 // nil means "let the backend randomize"
	Sampling      SamplingParams
}

// Result is the ImageGenerator contract's success shape.
type Result struct {
	PNGBytes        []byte
	ThoughtSignature string
	ThoughtContent   string
	SamplingUsed     SamplingParams
}

// ImageGenerator is the external collaborator boundary the orchestrator
// drives. Implementations must redact secrets before the request and in
// any logged form.
type ImageGenerator interface {
	Generate(ctx context.Context, req Request) (*Result, *GeneratorError)
	Describe() string
	Close() error
}

// crc32Table is the precomputed 256-entry table spec §4.10 calls for.
var crc32Table = crc32.MakeTable(crc32.IEEE)

// DeterministicSeed computes CRC32(run_id + "::" + frame_index + "::" +
// attempt_index). Stable across platforms for a fixed (run_id,
// frame_index, attempt_index=1) triple.
func DeterministicSeed(runID string, frameIndex, attemptIndex int) uint32 {
	key := fmt.Sprintf("%s::%d::%d", runID, frameIndex, attemptIndex)
	return crc32.Checksum([]byte(key), crc32Table)
}

// SeedForAttempt returns the seed to use for a given attempt, honoring the
// seed policy: attempt 1 is deterministic under fixed_then_random;
// attempt >=2 always omits the seed so the backend randomizes.
func SeedForAttempt(runID string, frameIndex, attemptIndex int, alwaysRandom bool) *uint32 {
	if alwaysRandom || attemptIndex >= 2 {
		return nil
	}
	seed := DeterministicSeed(runID, frameIndex, attemptIndex)
	return &seed
}

// DriftGateThreshold is the identity score at or above which the previous
// frame is included as a pose reference (spec §4.10).
const DriftGateThreshold = 0.9

// ShouldIncludePrevFrame reports whether prevFrameIdentityScore clears the
// drift gate. It is always false when there is no previous frame (frame 0).
func ShouldIncludePrevFrame(prevFrameIdentityScore float64, hasPrevFrame bool) bool {
	return hasPrevFrame && prevFrameIdentityScore >= DriftGateThreshold
}

// BuildPrompt assembles the Semantic Interleaving prompt: the anchor is
// always IMAGE 1 and wins any conflict with IMAGE 2, the previous frame.
func BuildPrompt(includePrevFrame bool, template string) string {
	var b []byte
	b = append(b, "[IMAGE 1]: MASTER ANCHOR (IDENTITY TRUTH)\n"...)
	if includePrevFrame {
		b = append(b, "[IMAGE 2]: PREVIOUS FRAME (POSE REFERENCE)\n"...)
		b = append(b, "HIERARCHY: If [IMAGE 2] conflicts with [IMAGE 1], [IMAGE 1] wins.\n"...)
	}
	b = append(b, template...)
	return string(b)
}
