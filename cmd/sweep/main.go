package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"seedhive.ai/internal/game"
	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
	"seedhive.ai/internal/telemetry"
)

func main() {
	var (
		runs        = flag.Int("runs", 20, "number of playthroughs")
		seed        = flag.Int64("seed", 1, "base seed; run i uses seed+i")
		maxCycles   = flag.Int("max_cycles", 300, "cycle limit per playthrough")
		configDir   = flag.String("configs", "./configs", "config directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		outPath     = flag.String("out", "", "per-cycle CSV output (optional)")
		progressive = flag.Bool("progressive", false, "carry completions forward so later runs get harder")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sweep] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}

	var csv *telemetry.CSVWriter
	if *outPath != "" {
		if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
			logger.Fatalf("mkdir: %v", err)
		}
		f, err := os.Create(*outPath)
		if err != nil {
			logger.Fatalf("create: %v", err)
		}
		defer f.Close()
		csv = telemetry.NewCSVWriter(f)
	}

	m := meta.New()
	var completedAt, finalCycles, extinctions []float64
	start := time.Now()
	for i := 0; i < *runs; i++ {
		run := i + 1
		d := model.DefaultDifficulty()
		if *progressive {
			d = meta.Difficulty(m)
		}
		var werr error
		res := game.Autoplay(*seed+int64(i), d, tune, *maxCycles, func(s model.State) {
			if werr == nil {
				werr = csv.Write(telemetry.Record(run, s, tune))
			}
		})
		if werr != nil {
			logger.Fatalf("telemetry: %v", werr)
		}

		finalCycles = append(finalCycles, float64(res.Final.Cycle))
		extinctions = append(extinctions, float64(res.Final.ExtinctionEvents))
		if res.Completed {
			completedAt = append(completedAt, float64(res.CompletedAt))
			m = meta.RecordCompletion(m, res.Final, time.Now())
		}
		logger.Printf("run %d seed=%d cycle=%d phase=%s completed=%v decisions=%d units=%d",
			run, *seed+int64(i), res.Final.Cycle, res.Final.Phase, res.Completed, res.Decisions, len(res.Final.Units))
	}

	fmt.Printf("runs=%d completed=%d (%.0f%%) elapsed=%s\n",
		*runs, len(completedAt), 100*float64(len(completedAt))/float64(max(*runs, 1)), time.Since(start).Round(time.Millisecond))
	printStats("final_cycle", finalCycles)
	printStats("completion_cycle", completedAt)
	printStats("extinctions", extinctions)
	if *progressive {
		fmt.Printf("meta: difficulty_level=%d pattern=%s\n", m.DifficultyLevel, meta.DecisionPattern(m))
	}
}

func printStats(name string, xs []float64) {
	if len(xs) == 0 {
		fmt.Printf("%s: n=0\n", name)
		return
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	fmt.Printf("%s: n=%d mean=%.2f stddev=%.2f min=%.0f p50=%.0f max=%.0f\n",
		name, len(xs), mean, std, sorted[0], stat.Quantile(0.5, stat.Empirical, sorted, nil), sorted[len(sorted)-1])
}
