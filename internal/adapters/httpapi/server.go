// Package httpapi serves the read-only operator surface: liveness, the
// prometheus registry and a JSON view of groups and their parties.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bnema/partybot/internal/application"
	"github.com/bnema/partybot/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Queries is the read side of the party service.
type Queries interface {
	ListGroups(ctx context.Context) ([]application.GroupView, error)
	ListParties(ctx context.Context, group domain.GroupID) ([]application.PartyView, error)
}

type Server struct {
	queries Queries
	metrics http.Handler
	logger  zerolog.Logger
}

func NewServer(queries Queries, metrics http.Handler, logger zerolog.Logger) *Server {
	return &Server{queries: queries, metrics: metrics, logger: logger}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http request")
	}))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/v1/groups", func(r chi.Router) {
		r.Get("/", s.handleListGroups)
		r.Get("/{groupID}/parties", s.handleListParties)
	})
	return r
}

// NewHTTPServer wraps the routes in an http.Server with conservative
// timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

type partyJSON struct {
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	Game      string    `json:"game"`
	Members   []string  `json:"members"`
	Occupancy int       `json:"occupancy"`
	Capacity  int       `json:"capacity"`
	Countdown int       `json:"countdown"`
	Frozen    bool      `json:"frozen"`
	CreatedAt time.Time `json:"created_at"`
}

type groupJSON struct {
	ID        string    `json:"id"`
	Admin     string    `json:"admin,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Parties   int       `json:"parties"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.queries.ListGroups(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]groupJSON, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupJSON{
			ID:        string(g.ID),
			Admin:     string(g.Admin),
			Version:   g.Version,
			UpdatedAt: g.UpdatedAt,
			Parties:   len(g.Parties),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListParties(w http.ResponseWriter, r *http.Request) {
	group := domain.GroupID(chi.URLParam(r, "groupID"))
	parties, err := s.queries.ListParties(r.Context(), group)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]partyJSON, 0, len(parties))
	for _, p := range parties {
		members := p.Members
		if members == nil {
			members = []string{}
		}
		out = append(out, partyJSON{
			Owner:     string(p.Owner),
			Title:     p.Title,
			Game:      p.Game,
			Members:   members,
			Occupancy: p.Occupancy,
			Capacity:  p.Capacity,
			Countdown: p.Countdown,
			Frozen:    p.Frozen,
			CreatedAt: p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrGroupNotFound):
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
	case errors.Is(err, domain.ErrStoreUnavailable):
		hlog.FromRequest(r).Warn().Err(err).Msg("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorJSON{Error: "store unavailable"})
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("query failed")
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
