package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"cache-traffic-lab/backend"
	"cache-traffic-lab/cacheaside"
	"cache-traffic-lab/logger"
	"cache-traffic-lab/selector"
	"cache-traffic-lab/workload"
)

const defaultWarmupCount = 50

// Selector is the part of the backend selector the API exposes.
type Selector interface {
	backend.Backend
	Describe() selector.Description
	Renegotiate(ctx context.Context) error
}

// Server wires HTTP routes to the cache, the selector and the traffic generator.
type Server struct {
	cache   *cacheaside.Service
	sel     Selector
	traffic *workload.Generator
	hub     *Hub
	limiter *rate.Limiter
	log     *slog.Logger
}

// New builds the server. limit is requests per second for the
// command and warmup routes; zero disables limiting.
func New(cache *cacheaside.Service, sel Selector, traffic *workload.Generator, hub *Hub, limit float64, burst int) *Server {
	s := &Server{
		cache:   cache,
		sel:     sel,
		traffic: traffic,
		hub:     hub,
		log:     logger.WithComponent("api"),
	}
	if limit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, cors)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/hitratio", s.hitRatio).Methods(http.MethodGet)
	r.HandleFunc("/items/{id:[0-9]+}", s.getItem).Methods(http.MethodGet)

	limited := r.NewRoute().Subrouter()
	limited.Use(s.rateLimit)
	limited.HandleFunc("/warmup", s.warmup).Methods(http.MethodPost)
	limited.HandleFunc("/execute", s.execute).Methods(http.MethodPost)

	r.HandleFunc("/backend", s.describeBackend).Methods(http.MethodGet)
	r.HandleFunc("/backend/renegotiate", s.renegotiate).Methods(http.MethodPost)

	r.HandleFunc("/traffic", s.trafficStatus).Methods(http.MethodGet)
	r.HandleFunc("/traffic/start", s.trafficStart).Methods(http.MethodPost)
	r.HandleFunc("/traffic/stop", s.trafficStop).Methods(http.MethodPost)
	r.HandleFunc("/traffic/config", s.trafficConfigure).Methods(http.MethodPost, http.MethodPatch)

	r.HandleFunc("/events", s.hub.ServeWS).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) hitRatio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Get(r.Context(), id))
}

func (s *Server) warmup(w http.ResponseWriter, r *http.Request) {
	count := defaultWarmupCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
			return
		}
		count = n
	}
	res, err := s.cache.Warmup(r.Context(), count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type executeRequest struct {
	Command string `json:"command"`
}

type executeResponse struct {
	Command string `json:"command"`
	Result  any    `json:"result"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "no command provided")
		return
	}

	result, err := Execute(r.Context(), s.sel, req.Command)
	resp := executeResponse{Command: req.Command, Result: result}
	if err != nil {
		resp.Error = err.Error()
		if !errors.Is(err, ErrUsage) {
			s.log.Warn("command failed", "command", req.Command, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) describeBackend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sel.Describe())
}

func (s *Server) renegotiate(w http.ResponseWriter, r *http.Request) {
	if err := s.sel.Renegotiate(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sel.Describe())
}

type trafficStatus struct {
	Running bool                   `json:"running"`
	Config  workload.TrafficConfig `json:"config"`
}

func (s *Server) status() trafficStatus {
	return trafficStatus{Running: s.traffic.Running(), Config: s.traffic.Config()}
}

func (s *Server) trafficStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) trafficStart(w http.ResponseWriter, r *http.Request) {
	s.traffic.Start()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) trafficStop(w http.ResponseWriter, r *http.Request) {
	s.traffic.Stop()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) trafficConfigure(w http.ResponseWriter, r *http.Request) {
	var u workload.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := s.traffic.Configure(u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}
