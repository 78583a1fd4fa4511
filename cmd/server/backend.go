package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"seedhive.ai/internal/game"
	"seedhive.ai/internal/persistence/indexdb"
	"seedhive.ai/internal/persistence/snapshot"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
	"seedhive.ai/internal/telemetry"
)

// backend bundles the run store with the cycle observers that share it.
type backend struct {
	gateway   game.Gateway
	observers []game.CycleObserver
	run       *runTracker
	dropped   func() int64
	close     func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openBackend(ctx context.Context, kind, dataDir string, tune tuning.Tuning, logger *log.Logger) (*backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "memory", "none":
		tr := &runTracker{run: 1}
		return &backend{gateway: game.NewMemoryGateway(), run: tr, observers: []game.CycleObserver{tr}}, nil

	case "file":
		fs := snapshot.NewFileStore(filepath.Join(dataDir, "store"))
		fs.ArchiveEvery = envInt("SEEDHIVE_ARCHIVE_EVERY", 25)
		tr := &runTracker{run: 1}
		return &backend{gateway: fs, run: tr, observers: []game.CycleObserver{tr}}, nil

	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "seedhive.sqlite")
		store, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		if _, err := store.UpsertTuning(ctx, tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		run, err := store.Run(ctx)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		tr := &runTracker{
			run: run,
			refresh: func() (int64, error) {
				ctx2, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return store.Run(ctx2)
			},
		}
		return &backend{
			gateway:   store,
			run:       tr,
			observers: []game.CycleObserver{tr, indexObserver{store: store, tune: tune, run: tr}},
			dropped:   store.Dropped,
			close:     store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported -store: %s", kind)
	}
}

// runTracker numbers runs for the cycle index and telemetry. A cycle that
// does not move forward means a new run has started.
type runTracker struct {
	run     int64
	last    int
	refresh func() (int64, error)
}

func (r *runTracker) ObserveCycle(s model.State) {
	if r.last > 0 && s.Cycle <= r.last {
		r.run++
		if r.refresh != nil {
			if n, err := r.refresh(); err == nil {
				r.run = n
			}
		}
	}
	r.last = s.Cycle
}

func (r *runTracker) Current() int64 { return r.run }

type indexObserver struct {
	store *indexdb.SQLiteStore
	tune  tuning.Tuning
	run   *runTracker
}

func (o indexObserver) ObserveCycle(s model.State) {
	o.store.RecordCycle(indexdb.RowFor(o.run.Current(), s, rates.TotalHeat(s, o.tune)))
}

type telemetryObserver struct {
	sink   *telemetry.FileSink
	tune   tuning.Tuning
	run    *runTracker
	logger *log.Logger
}

func openTelemetry(path string, tune tuning.Tuning, run *runTracker, logger *log.Logger) (*telemetryObserver, error) {
	sink, err := telemetry.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &telemetryObserver{sink: sink, tune: tune, run: run, logger: logger}, nil
}

func (o *telemetryObserver) ObserveCycle(s model.State) {
	if err := o.sink.Write(telemetry.Record(int(o.run.Current()), s, o.tune)); err != nil {
		o.logger.Printf("telemetry: %v", err)
	}
}

func (o *telemetryObserver) Close() error { return o.sink.Close() }

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
