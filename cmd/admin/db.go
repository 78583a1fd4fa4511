package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	run := fs.Int64("run", 0, "run filter (cycles, phases; default: current run)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "seedhive.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *run == 0 && (q == "cycles" || q == "phases") {
		var v string
		if err := db.QueryRow(`SELECT value FROM meta WHERE key='run'`).Scan(&v); err != nil {
			fmt.Fprintln(os.Stderr, "current run:", err)
			os.Exit(1)
		}
		fmt.Sscan(v, run)
	}
	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "saves":
		rows, err := db.Query(`SELECT slot,run,cycle,phase,digest,saved_at FROM saves ORDER BY slot`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Slot    string `json:"slot"`
				Run     int64  `json:"run"`
				Cycle   int    `json:"cycle"`
				Phase   string `json:"phase"`
				Digest  string `json:"digest"`
				SavedAt string `json:"saved_at"`
			}
			if err := rows.Scan(&r.Slot, &r.Run, &r.Cycle, &r.Phase, &r.Digest, &r.SavedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "cycles":
		rows, err := db.Query(`SELECT cycle,phase,digest,total_heat,biomass,minerals,data,energy,units,active,events_json,completed
			FROM cycles WHERE run=? ORDER BY cycle DESC LIMIT ?`, *run, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Run       int64           `json:"run"`
				Cycle     int             `json:"cycle"`
				Phase     string          `json:"phase"`
				Digest    string          `json:"digest"`
				TotalHeat float64         `json:"total_heat"`
				Biomass   float64         `json:"biomass"`
				Minerals  float64         `json:"minerals"`
				Data      float64         `json:"data"`
				Energy    float64         `json:"energy"`
				Units     int             `json:"units"`
				Active    int             `json:"active"`
				Events    json.RawMessage `json:"events"`
				Completed bool            `json:"completed"`
			}
			var events string
			if err := rows.Scan(&r.Cycle, &r.Phase, &r.Digest, &r.TotalHeat, &r.Biomass, &r.Minerals, &r.Data, &r.Energy, &r.Units, &r.Active, &events, &r.Completed); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Run = *run
			r.Events = json.RawMessage(events)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "phases":
		rows, err := db.Query(`SELECT phase,COUNT(*),MIN(cycle),MAX(cycle),AVG(total_heat) FROM cycles WHERE run=? GROUP BY phase ORDER BY MIN(cycle)`, *run)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Run      int64   `json:"run"`
				Phase    string  `json:"phase"`
				Cycles   int     `json:"cycles"`
				First    int     `json:"first_cycle"`
				Last     int     `json:"last_cycle"`
				MeanHeat float64 `json:"mean_total_heat"`
			}
			if err := rows.Scan(&r.Phase, &r.Cycles, &r.First, &r.Last, &r.MeanHeat); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Run = *run
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "config":
		var r struct {
			Name      string          `json:"name"`
			Digest    string          `json:"digest"`
			JSON      json.RawMessage `json:"json"`
			UpdatedAt string          `json:"updated_at"`
		}
		var raw string
		row := db.QueryRow(`SELECT name,digest,json,updated_at FROM config WHERE name='tuning'`)
		if err := row.Scan(&r.Name, &r.Digest, &raw, &r.UpdatedAt); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		r.JSON = json.RawMessage(raw)
		printJSON(r)

	case "meta":
		var raw string
		if err := db.QueryRow(`SELECT json FROM meta_state WHERE id=1`).Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				fmt.Println("{}")
				return
			}
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		fmt.Println(raw)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want saves|cycles|phases|config|meta)")
		os.Exit(2)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
