package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/model"
	"github.com/sells-group/time-capsule/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rendered site and the run ledger API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ledger, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(ledger, itemstore.New(cfg.DataDir), cfg.OutputDir),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("output_dir", cfg.OutputDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter serves the static site from outDir plus a read-only JSON API
// over the run ledger and the item store.
func newRouter(ledger store.Store, items *itemstore.Store, outDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			runs, err := ledger.ListRuns(req.Context(), store.RunFilter{
				Date:   q.Get("date"),
				Status: model.RunStatus(q.Get("status")),
				Limit:  queryInt(q.Get("limit"), 50),
				Offset: queryInt(q.Get("offset"), 0),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			if runs == nil {
				runs = []model.Run{}
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := ledger.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			phases, err := ledger.ListPhases(req.Context(), run.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, runDetail{Run: run, Phases: phases})
		})

		r.Get("/failures", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			fs, err := ledger.ListFailures(req.Context(), store.FailureFilter{
				Date:  q.Get("date"),
				RunID: q.Get("run_id"),
				Stage: model.Stage(q.Get("stage")),
				Limit: queryInt(q.Get("limit"), 100),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			if fs == nil {
				fs = []model.FailureRecord{}
			}
			writeJSON(w, http.StatusOK, fs)
		})

		r.Get("/status/{date}", func(w http.ResponseWriter, req *http.Request) {
			date := chi.URLParam(req, "date")
			if err := validateDate(date); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			rows, err := items.Status(date)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rows)
		})
	})

	r.Handle("/*", http.FileServer(http.Dir(outDir)))
	return r
}

func queryInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		status = http.StatusNotFound
	} else {
		zap.L().Error("api error", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
