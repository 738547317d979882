// Package target is a stand-in for the dungeon game API. It keeps everything
// in memory and can inject latency and errors, which makes it useful for
// local runs and for tests of the workload.
package target

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Port int
	// Latency is added to every request, plus up to Jitter more.
	Latency time.Duration
	Jitter  time.Duration
	// ErrorRate is the share of requests answered with a 500, 0..1.
	ErrorRate float64
	Seed      uint64
	Logger    *zap.Logger
}

type Server struct {
	cfg    ServerConfig
	store  *store
	log    *zap.Logger
	router *mux.Router

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func New(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:   cfg,
		store: newStore(),
		log:   log,
		rnd:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.chaos)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/players", s.listPlayers).Methods(http.MethodGet)
	api.HandleFunc("/players", s.createPlayer).Methods(http.MethodPost)
	api.HandleFunc("/players/{id:[0-9]+}", s.getPlayer).Methods(http.MethodGet)
	api.HandleFunc("/players/{id:[0-9]+}", s.updatePlayer).Methods(http.MethodPut)
	api.HandleFunc("/players/{id:[0-9]+}", s.deletePlayer).Methods(http.MethodDelete)

	api.HandleFunc("/boards", s.listBoards).Methods(http.MethodGet)
	api.HandleFunc("/boards", s.createBoard).Methods(http.MethodPost)
	api.HandleFunc("/boards/{id:[0-9]+}", s.getBoard).Methods(http.MethodGet)
	api.HandleFunc("/boards/{id:[0-9]+}", s.updateBoard).Methods(http.MethodPut)
	api.HandleFunc("/boards/{id:[0-9]+}", s.deleteBoard).Methods(http.MethodDelete)

	api.HandleFunc("/games", s.listGames).Methods(http.MethodGet)
	api.HandleFunc("/games/play", s.playGame).Methods(http.MethodPost)
	api.HandleFunc("/games/{id:[0-9]+}", s.getGame).Methods(http.MethodGet)
	api.HandleFunc("/games/player/{id:[0-9]+}", s.gamesByPlayer).Methods(http.MethodGet)
	api.HandleFunc("/games/board/{id:[0-9]+}", s.gamesByBoard).Methods(http.MethodGet)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("dungeon target listening",
		zap.String("addr", "http://localhost"+addr),
		zap.Duration("latency", s.cfg.Latency),
		zap.Duration("jitter", s.cfg.Jitter),
		zap.Float64("error_rate", s.cfg.ErrorRate),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("target server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// chaos delays requests and fails a share of them.
func (s *Server) chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delay, fail := s.draw()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) draw() (time.Duration, bool) {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	delay := s.cfg.Latency
	if s.cfg.Jitter > 0 {
		delay += time.Duration(s.rnd.Int64N(int64(s.cfg.Jitter)))
	}
	return delay, s.cfg.ErrorRate > 0 && s.rnd.Float64() < s.cfg.ErrorRate
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}
