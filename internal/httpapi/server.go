package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/antoniostano/codeforge/internal/chathistory"
	"github.com/antoniostano/codeforge/internal/config"
	"github.com/antoniostano/codeforge/internal/generation"
	"github.com/antoniostano/codeforge/internal/logging"
	"github.com/antoniostano/codeforge/internal/observability"
)

// UserIDHeader carries the authenticated caller. Authentication happens in
// front of this service.
const UserIDHeader = "X-User-ID"

type Deps struct {
	Coordinator  *generation.Coordinator
	History      chathistory.Store
	Metrics      *observability.Metrics
	Logger       logrus.FieldLogger
	ProviderMode string
	HistoryMode  string
}

type Server struct {
	cfg          config.Config
	coord        *generation.Coordinator
	history      chathistory.Store
	metrics      *observability.Metrics
	log          logrus.FieldLogger
	limiter      *userLimiter
	upgrader     websocket.Upgrader
	providerMode string
	historyMode  string
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		cfg:          cfg,
		coord:        deps.Coordinator,
		history:      deps.History,
		metrics:      deps.Metrics,
		log:          log,
		limiter:      newUserLimiter(cfg.GenerateRateLimit, cfg.GenerateRateWindow),
		providerMode: deps.ProviderMode,
		historyMode:  deps.HistoryMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the page's own origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1/apps/{appID}/chat", func(r chi.Router) {
		r.Use(s.requireCaller)
		r.Get("/code", s.handleGenerateSSE)
		r.Get("/ws", s.handleGenerateWS)
		r.Post("/cancel", s.handleCancel)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"provider_mode": s.providerMode,
		"history_mode":  s.historyMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.coord == nil || s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "generation backend not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"provider_mode":      s.providerMode,
		"history_mode":       s.historyMode,
		"active_generations": s.coord.ActiveCount(),
	})
}

type callerKey struct{}

type caller struct {
	AppID  int64
	UserID int64
}

// requireCaller resolves the application from the path and the user from
// UserIDHeader. Both must be positive integers.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawUser := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if rawUser == "" {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing "+UserIDHeader+" header")
			return
		}
		userID, err := strconv.ParseInt(rawUser, 10, 64)
		if err != nil || userID <= 0 {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid "+UserIDHeader+" header")
			return
		}
		appID, err := strconv.ParseInt(chi.URLParam(r, "appID"), 10, 64)
		if err != nil || appID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_app_id", "app id must be a positive integer")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, caller{AppID: appID, UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
