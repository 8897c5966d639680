// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/engine"
	"github.com/parlorhq/parlor/internal/gamemod"
	"github.com/parlorhq/parlor/internal/middleware"
	"github.com/parlorhq/parlor/internal/storage/factory"
	"github.com/parlorhq/parlor/internal/transport/ws"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := factory.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("storage (%s): %v", cfg.StorageDriver, err)
	}
	defer store.Close()
	logger.Infof("storage driver: %s", cfg.StorageDriver)

	modules := gamemod.NewRegistry()
	// Game modules register their factories here, keyed by room type tag.

	hub := ws.NewHub(logger)
	eng, err := engine.New(cfg, logger, store, hub, modules)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	eng.Start()
	defer eng.Stop()

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))
	r.HandleFunc("/ws", ws.NewServer(hub, eng, logger).Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"storage": cfg.StorageDriver,
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/token", issueTokenHandler(eng, logger)).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("parlor listening on %s (offline grace %s)", cfg.Addr, cfg.OfflineGrace)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exited: %v", err)
	}
}

// issueTokenHandler mints a signed identity token for a player id, for
// clients that want token login instead of raw-id login. Responds 503 when
// no signing secret is configured.
func issueTokenHandler(eng *engine.Engine, logger *logrus.Logger) http.HandlerFunc {
	type request struct {
		PlayerID string `json:"playerId"`
	}
	type response struct {
		Token string `json:"token"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !eng.Tokens().Enabled() {
			http.Error(w, "token login disabled", http.StatusServiceUnavailable)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
			http.Error(w, "playerId required", http.StatusBadRequest)
			return
		}
		token, err := eng.Tokens().Issue(req.PlayerID)
		if err != nil {
			logger.Warnf("token issue for %s: %v", req.PlayerID, err)
			http.Error(w, "token issue failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response{Token: token})
	}
}
