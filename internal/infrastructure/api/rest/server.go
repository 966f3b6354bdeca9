// Package rest implements the Session Bridge's HTTP surface (spec §4.12):
// reading a director session, posting overrides, and committing it, guarded
// by the same JWT bearer scheme as the websocket push surface.
package rest

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/seanwinslow28/spritegen/internal/application/session"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/api/ws"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// RunResolver locates the Store for a given run ID so one server can serve
// every run under RUN_DIR_ROOT without the caller threading a path.
type RunResolver func(runID string) (*store.Store, error)

type Server struct {
	resolve RunResolver
	auth    ws.Authenticator
	mux     *http.ServeMux
	log     zerolog.Logger
}

func NewServer(resolve RunResolver, auth ws.Authenticator, log zerolog.Logger) *Server {
	s := &Server{resolve: resolve, auth: auth, mux: http.NewServeMux(), log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/sessions/{runID}", s.withAuth(s.handleGetSession))
	s.mux.HandleFunc("POST /api/v1/sessions/{runID}/overrides", s.withAuth(s.handlePostOverride))
	s.mux.HandleFunc("POST /api/v1/sessions/{runID}/commit", s.withAuth(s.handlePostCommit))
	s.mux.HandleFunc("GET /api/v1/runs/{runID}/state", s.withAuth(s.handleGetRunState))
	s.mux.HandleFunc("GET /api/v1/runs/{runID}/summary", s.withAuth(s.handleGetRunSummary))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := newResponseWriter(w)
	s.mux.ServeHTTP(start, r)
	s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", start.statusCode).Msg("http request")
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.Authenticate(r); err != nil {
			s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("rest auth failed")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) bridgeFor(runID string) (*session.Bridge, error) {
	st, err := s.resolve(runID)
	if err != nil {
		return nil, err
	}
	return session.New(st), nil
}
