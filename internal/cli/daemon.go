package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/config"
	"github.com/lherron/tasksync/internal/db"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/notify"
	"github.com/lherron/tasksync/internal/planner"
	"github.com/lherron/tasksync/internal/store"
	"github.com/lherron/tasksync/internal/syncer"
)

// DaemonOptions configures the tasksyncd daemon.
type DaemonOptions struct {
	Addr        string // status endpoint; empty disables it
	Token       string
	DBPath      string
	BacklogPath string
	PlannerPath string
	Tag         string
	Strategy    string
	Interval    time.Duration
}

// ServeDaemon syncs every interval until SIGINT or SIGTERM.
func ServeDaemon(opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyDaemonOptions(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	database, err := db.Open(cfg.StateDBPath)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer database.Close()
	if err := database.RequiresMigrationError(); err != nil {
		return err
	}

	bl, err := backlog.Open(cfg.BacklogDBPath)
	if err != nil {
		return fmt.Errorf("failed to open backlog: %w", err)
	}
	defer bl.Close()

	lock, err := acquireLock(cfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	st := store.New(database)
	engine, err := syncer.New(bl, planner.Open(cfg.PlannerPath, cfg.PlannerTag), st, syncer.Options{
		Strategy:       domain.Strategy(cfg.Strategy),
		ConflictWindow: cfg.ConflictWindow(),
		Jobs:           cfg.Jobs,
		TombstoneTTL:   cfg.TombstoneTTL(),
		DefaultProject: cfg.DefaultProject,
		Logger:         log.Default(),
		Debug:          cfg.Debug(),
		Notifier:       notify.New(cfg.WebhookURLs),
	})
	if err != nil {
		return err
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = cfg.SyncInterval()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := newDaemonServer(st, opts.Token)
	if opts.Addr != "" {
		httpServer := &http.Server{
			Handler:      server.handler(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		listener, err := net.Listen("tcp", opts.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", opts.Addr, err)
		}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("tasksyncd: status server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		log.Printf("tasksyncd: status endpoint on %s", listener.Addr())
	}

	log.Printf("tasksyncd: syncing %s <-> %s (tag %s) every %s, strategy %s",
		cfg.BacklogDBPath, cfg.PlannerPath, cfg.PlannerTag, interval, engine.Strategy())
	err = engine.Run(ctx, interval, server.record)
	log.Printf("tasksyncd: stopped")
	return err
}

func applyDaemonOptions(cfg *config.Config, opts DaemonOptions) {
	overrides := []struct {
		value string
		dst   *string
	}{
		{opts.DBPath, &cfg.StateDBPath},
		{opts.BacklogPath, &cfg.BacklogDBPath},
		{opts.PlannerPath, &cfg.PlannerPath},
		{opts.Tag, &cfg.PlannerTag},
		{opts.Strategy, &cfg.Strategy},
	}
	for _, o := range overrides {
		if o.value != "" {
			*o.dst = o.value
		}
	}
}

type daemonServer struct {
	store *store.Store
	token string

	mu      sync.Mutex
	last    *domain.SyncResult
	cycles  int
	started time.Time
}

func newDaemonServer(st *store.Store, token string) *daemonServer {
	return &daemonServer{store: st, token: token, started: time.Now().UTC()}
}

// record is the Run callback; it keeps the latest result for /v1/health.
func (s *daemonServer) record(r *domain.SyncResult) {
	s.mu.Lock()
	s.last = r
	s.cycles++
	s.mu.Unlock()
}

func (s *daemonServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.withAuth(s.handleHealth))
	mux.HandleFunc("/v1/runs", s.withAuth(s.handleRuns))
	mux.HandleFunc("/v1/mappings", s.withAuth(s.handleMappings))
	mux.HandleFunc("/v1/conflicts", s.withAuth(s.handleConflicts))
	return mux
}

func (s *daemonServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				token = r.Header.Get("X-Tasksyncd-Token")
			}
			if token != s.token {
				s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
				return
			}
		}
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		next(w, r)
	}
}

func (s *daemonServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	payload := map[string]interface{}{
		"ok":         s.last == nil || s.last.Success,
		"cycles":     s.cycles,
		"started_at": s.started,
		"last_run":   s.last,
	}
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *daemonServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.store.Runs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": nonNil(runs)})
}

func (s *daemonServer) handleMappings(w http.ResponseWriter, r *http.Request) {
	filter := store.MappingFilter{IncludeTombstones: r.URL.Query().Get("tombstones") == "true"}
	mappings, err := s.store.Mappings.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"mappings": nonNil(mappings)})
}

func (s *daemonServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.store.Conflicts.List(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"conflicts": nonNil(conflicts)})
}

func (s *daemonServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *daemonServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
