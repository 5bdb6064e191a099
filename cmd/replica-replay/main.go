// replica-replay inspects a journaled diff stream: it loads one run's
// entries from the diff log, decodes each tick, and prints what changed.
// With -apply it also rebuilds the final world state from the stream, the
// same way a connecting replica would.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tidesync/replica/config"
	"github.com/tidesync/replica/journal"
	"github.com/tidesync/replica/mapping"
	"github.com/tidesync/replica/tick"
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
		runID        = flag.String("run", "", "run id to load (UUID, required)")
		from         = flag.Uint("from", 0, "first tick")
		to           = flag.Uint("to", 1<<32-1, "last tick")
		apply        = flag.Bool("apply", false, "rebuild the final world state from the stream")
	)
	flag.Parse()

	if *runID == "" {
		return fmt.Errorf("-run is required")
	}
	id, err := uuid.Parse(*runID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := journal.NewDB(ctx, cfg.Journal, zap.NewNop())
	if err != nil {
		return fmt.Errorf("journal db: %w", err)
	}
	defer db.Close()

	entries, err := journal.Load(ctx, db, id, tick.Tick(*from), tick.Tick(*to))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no entries in range")
		return nil
	}

	dec := wire.NewDecoder(registry, wire.RejectMessage)
	store := world.NewStore()
	mapper := mapping.NewMapper()

	var totals struct{ spawns, despawns, updates, removals int }
	for _, e := range entries {
		diff, _, err := dec.Decode(e.Payload)
		if err != nil {
			return fmt.Errorf("tick %d: %w", e.Tick, err)
		}
		if !diff.Empty() {
			fmt.Printf("tick %-8d %3d spawns  %3d despawns  %3d updates  %3d removals  (%d bytes)\n",
				diff.Tick, len(diff.Spawns), len(diff.Despawns), len(diff.Updates), len(diff.Removals), len(e.Payload))
		}
		totals.spawns += len(diff.Spawns)
		totals.despawns += len(diff.Despawns)
		totals.updates += len(diff.Updates)
		totals.removals += len(diff.Removals)

		if *apply {
			if err := replay(store, mapper, diff); err != nil {
				return fmt.Errorf("apply tick %d: %w", e.Tick, err)
			}
		}
	}

	fmt.Printf("\n%d ticks: %d spawns, %d despawns, %d updates, %d removals\n",
		len(entries), totals.spawns, totals.despawns, totals.updates, totals.removals)
	if *apply {
		fmt.Printf("final state: %d live entities\n", store.Len())
	}
	return nil
}

// replay applies one diff the way a replica would: spawns, updates,
// removals, despawns, identities resolved through the mapper.
func replay(store *world.Store, mapper *mapping.Mapper, diff *wire.Diff) error {
	for _, sp := range diff.Spawns {
		if mapper.Has(sp.Entity) {
			continue
		}
		replica, err := store.ApplySpawn(sp.Components)
		if err != nil {
			return err
		}
		mapper.Insert(sp.Entity, replica)
	}
	for _, up := range diff.Updates {
		replica, err := mapper.Get(up.Entity)
		if err != nil {
			return err
		}
		if err := store.ApplyUpdate(replica, world.ComponentValue{Type: up.Type, Value: up.Value}); err != nil {
			return err
		}
	}
	for _, rm := range diff.Removals {
		replica, err := mapper.Get(rm.Entity)
		if err != nil {
			return err
		}
		if err := store.ApplyRemoval(replica, rm.Type); err != nil {
			return err
		}
	}
	for _, en := range diff.Despawns {
		if !mapper.Has(en) {
			continue
		}
		replica, err := mapper.Remove(en)
		if err != nil {
			return err
		}
		if err := store.ApplyDespawn(replica); err != nil {
			return err
		}
	}
	return nil
}
