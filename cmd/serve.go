package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/monitoring"
	"github.com/sells-group/philgeps-cli/internal/schedule"
	"github.com/sells-group/philgeps-cli/internal/scraper"
	"github.com/sells-group/philgeps-cli/internal/store"
)

const (
	shutdownTimeout    = 15 * time.Second
	defaultHealthHours = 72
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status API and the daily scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status := scraper.NewStatus()
		run := func(ctx context.Context, kind model.RecordKind) model.RunSummary {
			o, err := newOrchestrator(kind, st, status, false)
			if err != nil {
				return model.RunSummary{Kind: kind, Error: err.Error()}
			}
			return o.Run(ctx)
		}
		api := newAPIServer(ctx, st, status, run)
		if cfg.Monitoring.LookbackWindowHours > 0 {
			api.healthHours = cfg.Monitoring.LookbackWindowHours
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(api.health, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		if cfg.Schedule.Enabled {
			sched, err := schedule.New(cfg.Schedule, run, status.StopRequested)
			if err != nil {
				return err
			}
			go sched.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		api.wait()
		return nil
	},
}

// RunFunc runs one scrape session of kind.
type RunFunc func(ctx context.Context, kind model.RecordKind) model.RunSummary

// apiServer exposes session status and triggers over HTTP. Sessions it
// starts run on baseCtx so they outlive the triggering request.
type apiServer struct {
	baseCtx context.Context
	store   store.Store
	status  *scraper.Status
	run     RunFunc
	health  *monitoring.Collector
	wg      sync.WaitGroup

	healthHours int
}

func newAPIServer(baseCtx context.Context, st store.Store, status *scraper.Status, run RunFunc) *apiServer {
	return &apiServer{
		baseCtx: baseCtx,
		store:   st,
		status:  status,
		run:     run,
		health:  monitoring.NewCollector(st),

		healthHours: defaultHealthHours,
	}
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/sessions", s.handleSessionHealth)
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.status.Snapshot())
	})
	r.Post("/scrape/{kind}", s.handleScrape)
	r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
		s.status.RequestStop()
		zap.L().Info("stop requested via api")
		writeJSON(w, http.StatusOK, s.status.Snapshot())
	})
	r.Post("/resume", func(w http.ResponseWriter, _ *http.Request) {
		s.status.Resume()
		zap.L().Info("resume requested via api")
		writeJSON(w, http.StatusOK, s.status.Snapshot())
	})
	r.Get("/sessions", s.handleSessions)
	r.Get("/bids/{ref}", s.handleGetBid)
	r.Get("/awards/{number}", s.handleGetAward)
	return r
}

func (s *apiServer) handleScrape(w http.ResponseWriter, r *http.Request) {
	kind, ok := model.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be bids or awards")
		return
	}
	if err := s.status.CanStart(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sum := s.run(s.baseCtx, kind)
		zap.L().Info("api scrape finished",
			zap.String("kind", string(kind)),
			zap.Bool("success", sum.Success),
			zap.Int("new_records", sum.NewRecords),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "kind": string(kind)})
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		kind, ok := model.ParseKind(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "kind must be bids or awards")
			return
		}
		filter.Kind = kind
	}

	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		zap.L().Error("list sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	if sessions == nil {
		sessions = []model.ScrapeSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *apiServer) handleSessionHealth(w http.ResponseWriter, r *http.Request) {
	hours := s.healthHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	snap, err := s.health.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect session health", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not collect session health")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handleGetBid(w http.ResponseWriter, r *http.Request) {
	bid, err := s.store.GetBid(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (s *apiServer) handleGetAward(w http.ResponseWriter, r *http.Request) {
	award, err := s.store.GetAward(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

// wait blocks until sessions started through the API have returned.
func (s *apiServer) wait() {
	s.wg.Wait()
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("store lookup", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "lookup failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
