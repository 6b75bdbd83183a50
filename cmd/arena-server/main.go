package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/advisor"
	"github.com/kapu/chess-arena/internal/config"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/recorder"
	"github.com/kapu/chess-arena/internal/registry"
	"github.com/kapu/chess-arena/internal/rules"
	"github.com/kapu/chess-arena/internal/session"
	"github.com/kapu/chess-arena/internal/transport"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	obslog.Init(cfg.LogLevel, cfg.LogFormat)
	defer obslog.Sync()

	// Snapshot store is optional; without Redis the node still serves
	// games, it just cannot answer inspection queries after a restart.
	var snapStore *session.Store
	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := session.ParseRedisURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url error: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping error: %v", err)
		}
		snapStore = session.NewStore(rdb, cfg.SessionTTL)
	}

	var store recorder.Store
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		store, err = recorder.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database init error: %v", err)
		}
	} else {
		obslog.L().Warn("no DATABASE_URL, results kept in memory only")
		store = recorder.NewMemoryStore()
	}
	defer store.Close()

	rec := recorder.New(store, cfg.RecordRetries, 0)
	reg := registry.New()
	mgr := session.NewManager(session.Options{
		Engine:   rules.NewEngine(),
		Registry: reg,
		Store:    snapStore,
		Recorder: rec,
		Profiles: store,
		Grace:    cfg.GraceWindow,
		MaxQueue: cfg.MaxQueueLength,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", transport.NewServer(mgr))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/statz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{
			"waiting": mgr.Waiting(),
			"live":    mgr.Live(),
		})
	})
	if snapStore != nil {
		adv := advisor.NewClient(cfg.AdvisorURL)
		mux.HandleFunc("/api/sessions/", sessionHandler(snapStore, adv))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	obslog.L().Info("server_shutting_down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	mgr.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
}

// sessionHandler serves GET /api/sessions/{id} (stored snapshot) and
// GET /api/sessions/{id}/hint (engine suggestion for the current
// position, when an advisor is configured).
func sessionHandler(store *session.Store, adv *advisor.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		id, sub, _ := strings.Cut(rest, "/")
		if id == "" {
			http.Error(w, "session id required", http.StatusBadRequest)
			return
		}

		snap, err := store.Load(r.Context(), id)
		if err != nil {
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		if snap == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch sub {
		case "":
			_ = json.NewEncoder(w).Encode(snap)
		case "hint":
			if !adv.Enabled() {
				http.Error(w, "advisor not configured", http.StatusNotImplemented)
				return
			}
			depth := 0
			if v := r.URL.Query().Get("depth"); v != "" {
				depth, _ = strconv.Atoi(v)
			}
			advice, err := adv.Analyse(r.Context(), snap.FEN, depth)
			if err != nil {
				http.Error(w, "advisor unavailable", http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(advice)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}
