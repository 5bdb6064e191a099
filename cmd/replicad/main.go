// replicad runs an authoritative replicated world. The simulation is
// driven by Lua scenario scripts; connected WebSocket peers receive the
// per-tick diff stream and can exchange events on manifest channels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tidesync/replica/config"
	"github.com/tidesync/replica/engine"
	"github.com/tidesync/replica/event"
	"github.com/tidesync/replica/journal"
	"github.com/tidesync/replica/scenario"
	"github.com/tidesync/replica/transport/ws"
	"github.com/tidesync/replica/wire"
	"github.com/tidesync/replica/world"
)

// flushEvery is the journal flush cadence in passes.
const flushEvery = 150

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath      = flag.String("config", "config/replica.toml", "runtime config (TOML)")
		manifestPath = flag.String("manifest", "config/manifest.yaml", "component/channel manifest (YAML)")
		scenarioDir  = flag.String("scenarios", "scenarios", "directory of Lua scenario scripts")
	)
	flag.Parse()

	// 1. Config and logger
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 2. Manifest: component ids, channel table
	manifest, err := config.LoadManifest(*manifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	registry := wire.NewRegistry()
	for _, comp := range manifest.Components {
		if err := registry.Register(world.ComponentType(comp.ID), comp.Name, wire.Float64Codec); err != nil {
			return fmt.Errorf("register component: %w", err)
		}
	}
	log.Info("manifest loaded",
		zap.Int("components", len(manifest.Components)),
		zap.Int("channels", len(manifest.Channels)))

	opts := engine.Options{TickPolicy: cfg.Replication.Policy()}
	if opts.Strictness, err = cfg.Replication.ParseStrictness(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Optional diff journal
	var recorder *journal.Recorder
	if cfg.Journal.Enabled {
		db, err := journal.NewDB(ctx, cfg.Journal, log)
		if err != nil {
			return fmt.Errorf("journal db: %w", err)
		}
		defer db.Close()
		if err := journal.RunMigrations(ctx, db.Pool); err != nil {
			return fmt.Errorf("journal migrations: %w", err)
		}
		recorder = journal.NewRecorder(db, log)
		opts.Recorder = recorder
		log.Info("journaling diffs", zap.String("run", recorder.RunID().String()))
	}

	// 4. World, transport, server
	store := world.NewStore()
	wsServer := ws.NewServer(cfg.Network, log)
	defer wsServer.Shutdown()

	srv := engine.NewServer(log, wsServer, store, registry, event.NewRegistry(), opts)

	// 5. Scenario driver at the simulate phase
	driver := scenario.New(store, log)
	defer driver.Close()
	for _, comp := range manifest.Components {
		driver.Bind(comp.Name, world.ComponentType(comp.ID), scenario.Number)
	}
	if err := driver.LoadDir(*scenarioDir); err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	if driver.HasTick() {
		pass := 0
		srv.Runner().Register(engine.SystemFunc{P: engine.PhaseSimulate, F: func(time.Duration) {
			pass++
			if err := driver.RunTick(pass); err != nil {
				log.Error("scenario tick", zap.Int("pass", pass), zap.Error(err))
			}
		}})
	} else {
		log.Warn("no scenario scripts loaded, world starts empty")
	}

	// 6. HTTP listener for WebSocket upgrades
	mux := http.NewServeMux()
	mux.Handle("/replica", wsServer)
	httpSrv := &http.Server{Addr: cfg.Network.BindAddress, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http listener", zap.Error(err))
		}
	}()

	// 7. Scheduling loop
	interval := cfg.Replication.TickInterval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("replicad ready",
		zap.String("bind", cfg.Network.BindAddress),
		zap.Duration("pass", interval))

	passes := 0
	for {
		select {
		case <-ticker.C:
			srv.Tick(interval)
			passes++
			if recorder != nil && passes%flushEvery == 0 {
				if err := recorder.Flush(ctx); err != nil {
					log.Error("journal flush", zap.Error(err))
				}
			}
		case <-ctx.Done():
			log.Info("shutting down")
			if recorder != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := recorder.Flush(flushCtx); err != nil {
					log.Error("final journal flush", zap.Error(err))
				}
				cancel()
			}
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		}
	}
}
