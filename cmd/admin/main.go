package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"seedhive.ai/internal/persistence/indexdb"
	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/persistence/snapshot"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/migrate"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "reset":
			resetCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "new-run":
			newRunCmd(os.Args[2:])
			return
		}
	}
	infoCmd(os.Args[1:])
}

func storeFlags(fs *flag.FlagSet) (dataDir, dbPath *string) {
	dataDir = fs.String("data", "./data", "runtime data directory")
	dbPath = fs.String("db", "", "sqlite db path (default: <data>/index/seedhive.sqlite)")
	return
}

func openStore(dataDir, dbPath string) *indexdb.SQLiteStore {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "index", "seedhive.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	st, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return st
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir, dbPath := storeFlags(fs)
	_ = fs.Parse(args)

	st := openStore(*dataDir, *dbPath)
	defer st.Close()
	ctx := context.Background()

	run, err := st.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		os.Exit(1)
	}
	info, ok, err := st.SaveInfo(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "save info:", err)
		os.Exit(1)
	}
	m, err := st.LoadMeta(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "meta:", err)
	}

	fmt.Printf("run=%d\n", run)
	if ok {
		fmt.Printf("save: cycle=%d phase=%s digest=%s saved_at=%s\n", info.Cycle, info.Phase, info.Digest, info.SavedAt.Format(time.RFC3339))
	} else {
		fmt.Println("save: none")
	}
	sum := meta.Summarize(m)
	fmt.Printf("meta: completions=%d extinctions=%d difficulty_level=%d pattern=%s mean_cycles=%.1f stddev=%.1f\n",
		sum.Completions, sum.TotalExtinctions, sum.DifficultyLevel, sum.DecisionPattern, sum.MeanRunCycles, sum.StdDevRunCycles)
	if len(sum.WorldsSeeded) > 0 {
		fmt.Printf("seeded: %s\n", strings.Join(sum.WorldsSeeded, ", "))
	}
}

// exportCmd writes the stored run to a snapshot file.
func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir, dbPath := storeFlags(fs)
	outPath := fs.String("out", "", "output snapshot path (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*outPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -out")
		os.Exit(2)
	}
	st := openStore(*dataDir, *dbPath)
	defer st.Close()

	raw, err := st.LoadRun(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "load run:", err)
		os.Exit(1)
	}
	if raw == nil {
		fmt.Fprintln(os.Stderr, "no stored run")
		os.Exit(2)
	}
	state, ok := migrate.FromJSON(raw)
	if !ok {
		fmt.Fprintln(os.Stderr, "stored run is unreadable")
		os.Exit(1)
	}
	var env struct {
		SavedAt time.Time `json:"savedAt"`
	}
	_ = json.Unmarshal(raw, &env)
	if env.SavedAt.IsZero() {
		env.SavedAt = time.Now().UTC()
	}
	if err := snapshot.WriteSnapshot(*outPath, snapshot.Envelope{State: state, SavedAt: env.SavedAt}); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s cycle=%d digest=%s\n", *outPath, state.Cycle, digest.State(state))
}

// importCmd replaces the stored run with a snapshot file.
func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir, dbPath := storeFlags(fs)
	inPath := fs.String("snapshot", "", "snapshot path (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*inPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	_, body, err := snapshot.ReadRaw(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	state, ok := migrate.FromJSON(body)
	if !ok {
		fmt.Fprintln(os.Stderr, "snapshot body is not a readable run")
		os.Exit(1)
	}

	st := openStore(*dataDir, *dbPath)
	defer st.Close()
	if err := st.SaveRun(context.Background(), state, time.Now()); err != nil {
		fmt.Fprintln(os.Stderr, "save run:", err)
		os.Exit(1)
	}
	fmt.Printf("imported cycle=%d phase=%s\n", state.Cycle, state.Phase)
}

func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	dataDir, dbPath := storeFlags(fs)
	keepMeta := fs.Bool("keep_meta", true, "keep the cross-run meta record")
	_ = fs.Parse(args)

	st := openStore(*dataDir, *dbPath)
	defer st.Close()
	ctx := context.Background()
	if err := st.ClearRun(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "clear run:", err)
		os.Exit(1)
	}
	if !*keepMeta {
		if err := st.SaveMeta(ctx, meta.New()); err != nil {
			fmt.Fprintln(os.Stderr, "reset meta:", err)
			os.Exit(1)
		}
	}
	run, _ := st.Run(ctx)
	fmt.Printf("reset ok: next run=%d meta_kept=%v\n", run, *keepMeta)
}
