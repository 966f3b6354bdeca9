package rest

import (
	"encoding/json"
	"net/http"

	"github.com/seanwinslow28/spritegen/internal/domain"
)

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	bridge, err := s.bridgeFor(r.PathValue("runID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	session, err := bridge.Load()
	if err != nil {
		writeError(w, http.StatusNotFound, "no director session for this run")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type overrideRequest struct {
	FrameIndex int `json:"frame_index"`
	Alignment  *struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"alignment,omitempty"`
	Patch *struct {
		OriginalPath string `json:"original_path"`
		PatchedPath  string `json:"patched_path"`
		MaskPath     string `json:"mask_path"`
		Prompt       string `json:"prompt"`
	} `json:"patch,omitempty"`
}

func (s *Server) handlePostOverride(w http.ResponseWriter, r *http.Request) {
	bridge, err := s.bridgeFor(r.PathValue("runID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := bridge.Load()
	if err != nil {
		writeError(w, http.StatusNotFound, "no director session for this run")
		return
	}

	if req.Alignment != nil {
		if err := bridge.ApplyAlignmentOverride(session, req.FrameIndex, req.Alignment.X, req.Alignment.Y); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Patch != nil {
		entry := domain.PatchHistoryEntry{
			OriginalPath: req.Patch.OriginalPath,
			PatchedPath:  req.Patch.PatchedPath,
			MaskPath:     req.Patch.MaskPath,
			Prompt:       req.Patch.Prompt,
		}
		if err := bridge.AppendPatch(session, req.FrameIndex, entry); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handlePostCommit(w http.ResponseWriter, r *http.Request) {
	bridge, err := s.bridgeFor(r.PathValue("runID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	session, err := bridge.Load()
	if err != nil {
		writeError(w, http.StatusNotFound, "no director session for this run")
		return
	}
	if err := bridge.Commit(session); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetRunState(w http.ResponseWriter, r *http.Request) {
	st, err := s.resolve(r.PathValue("runID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	var run domain.RunState
	if err := st.ReadJSONValidated(st.Path("state.json"), &run); err != nil {
		writeError(w, http.StatusNotFound, "no state.json for this run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRunSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.resolve(r.PathValue("runID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	var summary domain.Summary
	if err := st.ReadJSONValidated(st.Path("summary.json"), &summary); err != nil {
		writeError(w, http.StatusNotFound, "no summary.json for this run (run still in progress?)")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
