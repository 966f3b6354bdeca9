// Package domain holds the pipeline's value types: the Manifest an operator
// declares, the derived AnchorAnalysis, and the per-frame/per-run state the
// orchestrator persists after every transition.
package domain

import "fmt"

// RunStateKind is one of the orchestrator's 8 states.
type RunStateKind string

const (
	StateInit           RunStateKind = "INIT"
	StateGenerating      RunStateKind = "GENERATING"
	StateAuditing        RunStateKind = "AUDITING"
	StateRetryDeciding    RunStateKind = "RETRY_DECIDING"
	StateApproving        RunStateKind = "APPROVING"
	StateNextFrame        RunStateKind = "NEXT_FRAME"
	StateCompleted        RunStateKind = "COMPLETED"
	StateStopped          RunStateKind = "STOPPED"
	StateFailed           RunStateKind = "FAILED"
)

func (s RunStateKind) IsValid() bool {
	switch s {
	case StateInit, StateGenerating, StateAuditing, StateRetryDeciding,
		StateApproving, StateNextFrame, StateCompleted, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

func (s RunStateKind) IsTerminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}

func (s RunStateKind) String() string { return string(s) }

// FrameStatus is the lifecycle status of one frame.
type FrameStatus string

const (
	FrameStatusPending    FrameStatus = "pending"
	FrameStatusGenerating FrameStatus = "generating"
	FrameStatusAuditing   FrameStatus = "auditing"
	FrameStatusApproved   FrameStatus = "approved"
	FrameStatusRejected   FrameStatus = "rejected"
	FrameStatusFailed     FrameStatus = "failed"
)

func (s FrameStatus) IsTerminal() bool {
	return s == FrameStatusApproved || s == FrameStatusRejected || s == FrameStatusFailed
}

func (s FrameStatus) String() string { return string(s) }

// RunStatus is the top-level outcome recorded in state.json and summary.json.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in-progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusStopped    RunStatus = "stopped"
	RunStatusFailed     RunStatus = "failed"
)

// SeedPolicy controls whether attempt 1 uses a deterministic seed.
type SeedPolicy string

const (
	SeedPolicyFixedThenRandom SeedPolicy = "fixed_then_random"
	SeedPolicyAlwaysRandom    SeedPolicy = "always_random"
)

// RetryAction is one rung of a reason code's recovery ladder.
type RetryAction string

const (
	ActionRerollSeed        RetryAction = "REROLL_SEED"
	ActionIdentityRescue    RetryAction = "IDENTITY_RESCUE"
	ActionReAnchor          RetryAction = "RE_ANCHOR"
	ActionTightenNegative   RetryAction = "TIGHTEN_NEGATIVE"
	ActionPoseRescue        RetryAction = "POSE_RESCUE"
	ActionPostProcess       RetryAction = "POST_PROCESS"
	ActionTwoStageInpaint   RetryAction = "TWO_STAGE_INPAINT"
	ActionRegenerateHighres RetryAction = "REGENERATE_HIGHRES"
	ActionDefaultRegenerate RetryAction = "DEFAULT_REGENERATE"
)

// BaselineDirection classifies signed baseline drift.
type BaselineDirection string

const (
	DirectionAligned  BaselineDirection = "aligned"
	DirectionFloating BaselineDirection = "floating"
	DirectionSinking  BaselineDirection = "sinking"
)

// Bounds is an inclusive pixel rectangle.
type Bounds struct {
	Left, Top, Right, Bottom int
}

func (b Bounds) Width() int  { return b.Right - b.Left + 1 }
func (b Bounds) Height() int { return b.Bottom - b.Top + 1 }
func (b Bounds) Empty() bool { return b.Right < b.Left || b.Bottom < b.Top }

// RGB is an opaque palette color.
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// Centroid is a weighted average pixel position.
type Centroid struct {
	X, Y float64
}

// Manifest is the operator-declared, immutable-per-run input.
type Manifest struct {
	Identity  ManifestIdentity  `json:"identity" yaml:"identity"`
	Inputs    ManifestInputs    `json:"inputs" yaml:"inputs"`
	Generator ManifestGenerator `json:"generator" yaml:"generator"`
	Canvas    ManifestCanvas    `json:"canvas" yaml:"canvas"`
	Auditor   ManifestAuditor   `json:"auditor" yaml:"auditor"`
	Retry     ManifestRetry     `json:"retry" yaml:"retry"`
	Export    ManifestExport    `json:"export" yaml:"export"`
}

type ManifestIdentity struct {
	Character  string `json:"character" yaml:"character"`
	Move       string `json:"move" yaml:"move"`
	Version    string `json:"version" yaml:"version"`
	FrameCount int    `json:"frame_count" yaml:"frame_count"`
	IsLoop     bool   `json:"is_loop" yaml:"is_loop"`
}

type ManifestInputs struct {
	Anchor    string   `json:"anchor" yaml:"anchor"`
	StyleRefs []string `json:"style_refs,omitempty" yaml:"style_refs,omitempty"`
	PoseRefs  []string `json:"pose_refs,omitempty" yaml:"pose_refs,omitempty"`
	Guides    []string `json:"guides,omitempty" yaml:"guides,omitempty"`
}

type ManifestPrompts struct {
	Master    string `json:"master" yaml:"master"`
	Variation string `json:"variation" yaml:"variation"`
	Lock      string `json:"lock" yaml:"lock"`
	Negative  string `json:"negative" yaml:"negative"`
}

type ManifestGenerator struct {
	Backend             string          `json:"backend" yaml:"backend"`
	Model               string          `json:"model" yaml:"model"`
	Mode                string          `json:"mode" yaml:"mode"` // always "edit"
	SeedPolicy          SeedPolicy      `json:"seed_policy" yaml:"seed_policy"`
	MaxAttemptsPerFrame int             `json:"max_attempts_per_frame" yaml:"max_attempts_per_frame"`
	Prompts             ManifestPrompts `json:"prompts" yaml:"prompts"`
}

type ManifestAlignment struct {
	VerticalLock bool    `json:"vertical_lock" yaml:"vertical_lock"`
	RootZoneRatio float64 `json:"root_zone_ratio" yaml:"root_zone_ratio"`
	MaxShiftX    uint     `json:"max_shift_x" yaml:"max_shift_x"`
}

type ManifestCanvas struct {
	GenerationSize   int               `json:"generation_size" yaml:"generation_size"`
	TargetSize       int               `json:"target_size" yaml:"target_size"`
	DownsampleMethod string            `json:"downsample_method" yaml:"downsample_method"` // "nearest"
	Alignment        ManifestAlignment `json:"alignment" yaml:"alignment"`
}

type ManifestThresholds struct {
	IdentityMin      float64 `json:"identity_min" yaml:"identity_min"`
	PaletteMin       float64 `json:"palette_min" yaml:"palette_min"`
	AlphaArtifactMax float64 `json:"alpha_artifact_max" yaml:"alpha_artifact_max"`
	BaselineDriftMax int     `json:"baseline_drift_max" yaml:"baseline_drift_max"`
	CompositeMin     float64 `json:"composite_min" yaml:"composite_min"`
}

type ManifestAuditor struct {
	Thresholds            ManifestThresholds `json:"thresholds" yaml:"thresholds"`
	Weights               map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	PaletteTolerance      int                `json:"palette_tolerance,omitempty" yaml:"palette_tolerance,omitempty"`
	PaletteClusterTrigger int                `json:"palette_cluster_trigger,omitempty" yaml:"palette_cluster_trigger,omitempty"`
	CompositeExpr         string             `json:"composite_expr,omitempty" yaml:"composite_expr,omitempty"`
}

type ManifestRetry struct {
	Ladder             map[string][]RetryAction `json:"ladder,omitempty" yaml:"ladder,omitempty"`
	RejectRateStopExpr string                   `json:"reject_rate_stop_expr,omitempty" yaml:"reject_rate_stop_expr,omitempty"`
}

type ManifestExport struct {
	PackerFlags []string `json:"packer_flags,omitempty" yaml:"packer_flags,omitempty"`
}

// ResolvedManifest is a Manifest after defaults are applied.
type ResolvedManifest struct {
	Manifest
	ResolvedAt string `json:"resolved_at"`
}

// LockFile is written once at INIT.
type LockFile struct {
	RunID          string            `json:"run_id"`
	RunStart       string            `json:"run_start"`
	ManifestPath   string            `json:"manifest_path"`
	ManifestHash   string            `json:"manifest_hash"`
	Environment    LockEnvironment   `json:"environment"`
	Manifest       ResolvedManifest  `json:"manifest"`
}

type LockEnvironment struct {
	AdapterVersion string `json:"adapter_version"`
	ModelID        string `json:"model_id"`
}

// AnchorAnalysis is derived once at INIT from the anchor image.
type AnchorAnalysis struct {
	BaselineY        int     `json:"baseline_y"`
	RootZoneCentroid Centroid `json:"root_zone_centroid"`
	Palette          []RGB   `json:"palette"`
	VisibleBounds    Bounds  `json:"visible_bounds"`
}

// Attempt records one generator call and its audit outcome for a frame.
type Attempt struct {
	AttemptIndex     int                `json:"attempt_index"`
	CandidatePath    string             `json:"candidate_path"`
	SeedUsed         *uint32            `json:"seed_used"`
	ReasonCodes      []string           `json:"reason_codes"`
	CompositeScore   float64            `json:"composite_score"`
	PerMetricScores  map[string]float64 `json:"per_metric_scores"`
	ActionTaken      RetryAction        `json:"action_taken"`
}

// OscillationEntry records one pass/fail outcome for the last-four window.
type OscillationEntry struct {
	Outcome    string `json:"outcome"` // "pass" | "fail"
	ReAnchored bool   `json:"re_anchored"`
}

// FrameState is the orchestrator's per-frame bookkeeping.
type FrameState struct {
	Status                    FrameStatus        `json:"status"`
	Attempts                  []Attempt          `json:"attempts"`
	ConsecutiveReanchorCount  int                `json:"consecutive_reanchor_count"`
	LastSF01Scores            []float64          `json:"last_sf01_scores"`
	OscillationHistory        []OscillationEntry `json:"oscillation_history"`
}

// RunState is persisted after every orchestrator transition.
type RunState struct {
	RunID              string               `json:"run_id"`
	CurrentState       RunStateKind         `json:"current_state"`
	CurrentFrameIndex  int                  `json:"current_frame_index"`
	CurrentAttempt     int                  `json:"current_attempt"`
	ApprovedFrames     []int                `json:"approved_frames"`
	FrameStates        map[int]*FrameState  `json:"frame_states"`
	ManifestHash       string               `json:"manifest_hash"`
	RunStatus          RunStatus            `json:"run_status"`
	StopReason         string               `json:"stop_reason,omitempty"`
	UpdatedAt          string               `json:"updated_at"`
}

// MetricResult is the uniform shape every metric engine returns.
type MetricResult struct {
	Score     float64                `json:"score"`
	Details   map[string]interface{} `json:"details"`
	Threshold float64                `json:"threshold"`
	Passed    bool                   `json:"passed"`
}

// AuditResult is the Auditor's single output per candidate.
type AuditResult struct {
	Passed         bool                    `json:"passed"`
	CompositeScore float64                 `json:"composite_score"`
	PerMetric      map[string]MetricResult `json:"per_metric"`
	ReasonCodes    []string                `json:"reason_codes"`
	Flags          []string                `json:"flags"`
}

// DirectorSessionStatus is the lifecycle status of a human-review session.
type DirectorSessionStatus string

const (
	SessionActive    DirectorSessionStatus = "active"
	SessionCommitted  DirectorSessionStatus = "committed"
	SessionDiscarded  DirectorSessionStatus = "discarded"
)

// DirectorFrameStatus mirrors the review UI's per-frame state labels.
type DirectorFrameStatus string

const (
	DirectorFramePending   DirectorFrameStatus = "PENDING"
	DirectorFrameGenerated DirectorFrameStatus = "GENERATED"
	DirectorFrameAuditFail DirectorFrameStatus = "AUDIT_FAIL"
	DirectorFrameAuditWarn DirectorFrameStatus = "AUDIT_WARN"
	DirectorFrameApproved  DirectorFrameStatus = "APPROVED"
)

// AlignmentOverride is a manual pixel-shift applied by a reviewer.
type AlignmentOverride struct {
	UserOverrideX int    `json:"user_override_x"`
	UserOverrideY int    `json:"user_override_y"`
	Timestamp     string `json:"timestamp"`
}

// PatchHistoryEntry records one inpaint/patch operation applied in review.
type PatchHistoryEntry struct {
	OriginalPath string `json:"original_path"`
	PatchedPath  string `json:"patched_path"`
	MaskPath     string `json:"mask_path"`
	Prompt       string `json:"prompt"`
	Timestamp    string `json:"timestamp"`
}

// DirectorOverrides is the additive override layer a reviewer writes.
type DirectorOverrides struct {
	Alignment    *AlignmentOverride  `json:"alignment,omitempty"`
	IsPatched    bool                `json:"is_patched"`
	PatchHistory []PatchHistoryEntry `json:"patch_history"`
}

// DirectorFrame is one frame as seen by the review UI.
type DirectorFrame struct {
	ID              string              `json:"id"`
	FrameIndex      int                 `json:"frame_index"`
	Status          DirectorFrameStatus `json:"status"`
	ImagePath       string              `json:"image_path"`
	AuditReport     *AuditResult        `json:"audit_report,omitempty"`
	DirectorOverrides DirectorOverrides `json:"director_overrides"`
	AttemptHistory  []Attempt           `json:"attempt_history"`
}

// DirectorSession is the human-review overlay persisted to director_session.json.
type DirectorSession struct {
	SessionID     string                   `json:"session_id"`
	RunID         string                   `json:"run_id"`
	MoveID        string                   `json:"move_id"`
	AnchorFrameID string                   `json:"anchor_frame_id"`
	Status        DirectorSessionStatus    `json:"status"`
	CreatedAt     string                   `json:"created_at"`
	LastModified  string                   `json:"last_modified"`
	Frames        map[int]*DirectorFrame   `json:"frames"`
}

// Summary is the final per-run report written to summary.json.
type Summary struct {
	RunID        string            `json:"run_id"`
	RunStatus    RunStatus         `json:"run_status"`
	StopReason   string            `json:"stop_reason,omitempty"`
	Frames       SummaryFrames     `json:"frames"`
	Rates        SummaryRates      `json:"rates"`
	TopFailures  []SummaryFailure  `json:"top_failures"`
	ReleaseReady string            `json:"release_status,omitempty"`
}

type SummaryFrames struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

type SummaryRates struct {
	RetryRate  float64 `json:"retry_rate"`
	RejectRate float64 `json:"reject_rate"`
}

type SummaryFailure struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}
