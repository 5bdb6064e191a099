// replica-probe dials a replicad endpoint and mirrors its world,
// periodically reporting the applied tick, replica count, and diagnostics
// counters. Useful for smoke-testing a deployment and for watching a live
// diff stream without a full game client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tidesync/replica/config"
	"github.com/tidesync/replica/engine"
	"github.com/tidesync/replica/event"
	"github.com/tidesync/replica/transport/ws"
	"github.com/tidesync/replica/wire"
	"github.com/tidesync/replica/world"
)

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
		url          = flag.String("url", "ws://127.0.0.1:7777/replica", "replicad WebSocket URL")
		report       = flag.Duration("report", 2*time.Second, "status report interval")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

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

	conn, err := ws.Dial(*url, cfg.Network, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected", zap.String("url", *url))

	opts := engine.Options{}
	if opts.Strictness, err = cfg.Replication.ParseStrictness(); err != nil {
		return err
	}
	store := world.NewStore()
	cli := engine.NewClient(log, conn, store, registry, event.NewRegistry(), opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := cfg.Replication.TickInterval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	status := time.NewTicker(*report)
	defer status.Stop()

	for {
		select {
		case <-ticker.C:
			cli.Tick(interval)
		case <-status.C:
			stats := cli.Stats()
			log.Info("replica status",
				zap.Uint32("tick", uint32(cli.AppliedTick())),
				zap.Int("entities", store.Len()),
				zap.Int("mapped", cli.Mapper().Len()),
				zap.Uint64("decode_errors", stats.DecodeErrors),
				zap.Uint64("dropped_records", stats.DroppedRecords),
				zap.Uint64("mapping_errors", stats.MappingErrors),
				zap.Uint64("stale_diffs", stats.StaleDiffs))
		case <-ctx.Done():
			log.Info("probe stopped", zap.Uint32("final_tick", uint32(cli.AppliedTick())))
			return nil
		}
	}
}
