// Package session implements the Session Bridge (spec §4, §6): the
// human-review overlay layered over approved frames, additive overrides,
// patch history, and commit-time pixel application back into approved/.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seanwinslow28/spritegen/internal/application/imageops"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// Bridge owns director_session.json for one run.
type Bridge struct {
	store *store.Store
}

func New(s *store.Store) *Bridge { return &Bridge{store: s} }

// Open creates a fresh DirectorSession for runID/moveID seeded from the
// current run state's frames.
func (b *Bridge) Open(runID, moveID, anchorFrameID string, run *domain.RunState) (*domain.DirectorSession, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	session := &domain.DirectorSession{
		SessionID:     uuid.NewString(),
		RunID:         runID,
		MoveID:        moveID,
		AnchorFrameID: anchorFrameID,
		Status:        domain.SessionActive,
		CreatedAt:     now,
		LastModified:  now,
		Frames:        map[int]*domain.DirectorFrame{},
	}
	for idx, fs := range run.FrameStates {
		status := domain.DirectorFramePending
		switch fs.Status {
		case domain.FrameStatusApproved:
			status = domain.DirectorFrameApproved
		case domain.FrameStatusRejected, domain.FrameStatusFailed:
			status = domain.DirectorFrameAuditFail
		case domain.FrameStatusGenerating, domain.FrameStatusAuditing:
			status = domain.DirectorFrameGenerated
		}
		var audit *domain.AuditResult
		if len(fs.Attempts) > 0 {
			// latest attempt's reason codes surface as the audit_report stub;
			// the full AuditResult lives in audit_log.jsonl.
			last := fs.Attempts[len(fs.Attempts)-1]
			audit = &domain.AuditResult{CompositeScore: last.CompositeScore, ReasonCodes: last.ReasonCodes}
		}
		session.Frames[idx] = &domain.DirectorFrame{
			ID:              uuid.NewString(),
			FrameIndex:      idx,
			Status:          status,
			AuditReport:     audit,
			AttemptHistory:  fs.Attempts,
		}
	}

	if err := b.persist(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Load reads the current director_session.json.
func (b *Bridge) Load() (*domain.DirectorSession, error) {
	var s domain.DirectorSession
	if err := b.store.ReadJSONValidated(b.store.Path("director_session.json"), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (b *Bridge) persist(s *domain.DirectorSession) error {
	s.LastModified = time.Now().UTC().Format(time.RFC3339)
	return b.store.WriteJSON(b.store.Path("director_session.json"), s)
}

// ApplyAlignmentOverride records a manual pixel-shift override for a frame.
func (b *Bridge) ApplyAlignmentOverride(s *domain.DirectorSession, frameIndex, x, y int) error {
	frame, ok := s.Frames[frameIndex]
	if !ok {
		return errors.NewValidation(errors.CodeValidationField("frame_index"), "frame_index", "unknown frame index", "use an index present in the session")
	}
	frame.DirectorOverrides.Alignment = &domain.AlignmentOverride{
		UserOverrideX: x,
		UserOverrideY: y,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	return b.persist(s)
}

// AppendPatch records one inpaint/patch operation in a frame's history.
func (b *Bridge) AppendPatch(s *domain.DirectorSession, frameIndex int, entry domain.PatchHistoryEntry) error {
	frame, ok := s.Frames[frameIndex]
	if !ok {
		return errors.NewValidation(errors.CodeValidationField("frame_index"), "frame_index", "unknown frame index", "use an index present in the session")
	}
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	frame.DirectorOverrides.IsPatched = true
	frame.DirectorOverrides.PatchHistory = append(frame.DirectorOverrides.PatchHistory, entry)
	return b.persist(s)
}

// Commit applies every alignment delta via pixel translation on a
// transparent background, copies patched frames over approved/, and marks
// the session committed. Once committed a session is terminal.
func (b *Bridge) Commit(s *domain.DirectorSession) error {
	if s.Status != domain.SessionActive {
		return errors.NewValidation(errors.CodeValidationField("status"), "status", "session is not active", "commit is only valid on an active session")
	}

	for idx, frame := range s.Frames {
		approvedPath := b.store.Path("approved", frameFileName(idx))

		if frame.DirectorOverrides.IsPatched && len(frame.DirectorOverrides.PatchHistory) > 0 {
			latest := frame.DirectorOverrides.PatchHistory[len(frame.DirectorOverrides.PatchHistory)-1]
			data, err := b.store.Read(latest.PatchedPath)
			if err != nil {
				return err
			}
			if err := b.store.Write(approvedPath, data); err != nil {
				return err
			}
		}

		if frame.DirectorOverrides.Alignment != nil {
			data, err := b.store.Read(approvedPath)
			if err != nil {
				return err
			}
			shifted, err := shiftPNG(data, frame.DirectorOverrides.Alignment.UserOverrideX, frame.DirectorOverrides.Alignment.UserOverrideY)
			if err != nil {
				return err
			}
			if err := b.store.Write(approvedPath, shifted); err != nil {
				return err
			}
		}
	}

	s.Status = domain.SessionCommitted
	return b.persist(s)
}

// Discard marks the session terminal without writing anything to approved/.
func (b *Bridge) Discard(s *domain.DirectorSession) error {
	s.Status = domain.SessionDiscarded
	return b.persist(s)
}

func shiftPNG(data []byte, dx, dy int) ([]byte, error) {
	return imageops.ShiftPNGBytes(data, dx, dy)
}

func frameFileName(idx int) string {
	return fmt.Sprintf("frame_%04d.png", idx)
}
