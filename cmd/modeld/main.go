package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/internal/config"
	"github.com/modeld/fleet/internal/fsadapter"
	"github.com/modeld/fleet/internal/httpapi"
	"github.com/modeld/fleet/internal/modelfleet"
	"github.com/modeld/fleet/internal/pipeline"
)

func main() {
	defaultAddr := ":8080"
	if v := os.Getenv("MODELD_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", "", "Path to the fleet configuration document (yaml/json/toml)")
	backendMode := flag.String("backend", "stub", "Inference backend: stub, http, subprocess")
	backendURL := flag.String("backend-url", "", "Base URL of a running backend server (backend=http)")
	backendBin := flag.String("backend-bin", "", "Path to the backend server executable (backend=subprocess)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated list of allowed CORS origins (empty disables CORS)")
	flag.Parse()

	zerolog.SetGlobalLevel(parseZerologLevel(*logLevel))
	logger := log.Logger

	if *configPath == "" {
		logger.Fatal().Msg("-config is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}

	engine, err := buildEngine(*backendMode, *backendURL, *backendBin)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct inference backend")
	}

	mgr := modelfleet.NewWithConfig(modelfleet.ManagerConfig{
		Engine:      engine,
		FS:          fsadapter.NewLocal(),
		Logger:      logger,
		BudgetUnits: cfg.BudgetUnits,
		MarginUnits: cfg.MarginUnits,
		LRUPath:     cfg.LRUPath,
	})

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger)

	if origins := splitCSV(*corsOrigins); len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins, []string{"GET", "POST"}, []string{"Content-Type", "Authorization"})
	}

	specs := make([]modelfleet.ModelSpec, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		specs = append(specs, modelfleet.ModelSpec{Name: m.Name, Config: m.ToModelConfig()})
	}
	if err := mgr.LoadConfig(baseCtx, specs); err != nil {
		logger.Fatal().Err(err).Msg("initial reconciliation failed")
	}

	factory := pipeline.NewFactory(mgr)
	for _, p := range cfg.Pipelines {
		nodes, edges, err := p.ToNodesAndEdges()
		if err != nil {
			logger.Fatal().Err(err).Str("pipeline", p.Name).Msg("invalid pipeline definition")
		}
		if err := factory.CreateDefinition(p.Name, nodes, edges); err != nil {
			logger.Fatal().Err(err).Str("pipeline", p.Name).Msg("failed to register pipeline")
		}
	}

	pollInterval := cfg.PollIntervalS
	if pollInterval <= 0 {
		pollInterval = 30
	}
	mgr.StartWatcher(pollInterval)

	svc := &httpapi.FleetService{Manager: mgr, Pipelines: factory, MaxWait: 30 * time.Second}
	srv := &http.Server{Addr: *addr, Handler: httpapi.NewMux(svc)}

	go func() {
		logger.Info().Str("addr", *addr).Str("config", *configPath).Msg("modeld listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	baseCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful HTTP shutdown error")
	}
	mgr.Stop(shutdownCtx)
}

func buildEngine(mode, url, bin string) (backend.Engine, error) {
	switch mode {
	case "", "stub":
		return backend.NewStubEngine(), nil
	case "http":
		if url == "" {
			return nil, errRequiredFlag("backend-url")
		}
		return backend.NewHTTPEngine(backend.HTTPEngineConfig{BaseURL: url}), nil
	case "subprocess":
		if bin == "" {
			return nil, errRequiredFlag("backend-bin")
		}
		return backend.NewSubprocessEngine(backend.SubprocessConfig{Bin: bin, Host: "127.0.0.1"}), nil
	default:
		return nil, errUnknownBackend(mode)
	}
}

type errRequiredFlag string

func (e errRequiredFlag) Error() string { return "-" + string(e) + " is required for this backend" }

type errUnknownBackend string

func (e errUnknownBackend) Error() string { return "unknown backend: " + string(e) }

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseZerologLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
