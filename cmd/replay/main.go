package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"seedhive.ai/internal/game"
	eventlog "seedhive.ai/internal/persistence/log"
	"seedhive.ai/internal/persistence/snapshot"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/migrate"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; default replays from the last new run)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		toCycle    = flag.Int("to_cycle", 0, "stop after the last entry at or before this cycle (optional)")
	)
	flag.Parse()

	if *snapPath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -events")
		os.Exit(2)
	}

	var start *model.State
	if *snapPath != "" {
		h, body, err := snapshot.ReadRaw(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		st, ok := migrate.FromJSON(body)
		if !ok {
			fmt.Fprintln(os.Stderr, "snapshot body is not a readable run")
			os.Exit(1)
		}
		got := digest.State(st)
		fmt.Printf("snapshot v%d cycle=%d phase=%s units=%d saved_at=%s digest=%s\n",
			h.Version, h.Cycle, h.Phase, len(st.Units), h.SavedAt.Format("2006-01-02T15:04:05Z"), short(got))
		if h.Digest != "" && h.Digest != got {
			fmt.Printf("warning: header digest %s differs from migrated state\n", short(h.Digest))
		}
		start = &st
	}

	if *eventsDir == "" {
		return
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	entries, err := eventlog.ReadDir(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no events found in", *eventsDir)
		os.Exit(1)
	}
	if *toCycle > 0 {
		entries = untilCycle(entries, *toCycle)
	}

	res, err := game.Replay(start, entries, tune)
	if err != nil {
		var mm *game.MismatchError
		if errors.As(err, &mm) {
			fmt.Fprintf(os.Stderr, "replay diverged at entry %d (cycle %d): got=%s want=%s\n", mm.Seq, mm.Cycle, short(mm.Got), short(mm.Want))
		} else {
			fmt.Fprintln(os.Stderr, "replay:", err)
		}
		os.Exit(1)
	}
	fmt.Printf("replay ok: applied=%d skipped=%d cycle=%d phase=%s digest=%s\n",
		res.Applied, res.Skipped, res.State.Cycle, res.State.Phase, short(digest.State(res.State)))
}

// untilCycle keeps entries up to the last one recorded at or before cycle.
func untilCycle(entries []eventlog.Entry, cycle int) []eventlog.Entry {
	n := 0
	for i, e := range entries {
		if e.Cycle <= cycle {
			n = i + 1
		}
	}
	return entries[:n]
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
