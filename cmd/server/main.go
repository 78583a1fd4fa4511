package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"seedhive.ai/internal/game"
	"seedhive.ai/internal/narrator"
	eventlog "seedhive.ai/internal/persistence/log"
	"seedhive.ai/internal/sim/command"
	"seedhive.ai/internal/sim/tuning"
	"seedhive.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		seed       = flag.Int64("seed", 1337, "dilemma roll seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		store      = flag.String("store", "sqlite", "run store: sqlite|file|memory")
		withTelem  = flag.Bool("telemetry", true, "append per-cycle CSV records under <data>/telemetry")

		narratorURL     = flag.String("narrator", "", "narrator endpoint (empty: offline narrator)")
		narratorTimeout = flag.Duration("narrator_timeout", 10*time.Second, "narrator request timeout")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	_ = os.MkdirAll(*dataDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	tuneDigest, _, err := tuning.Digest(tune)
	if err != nil {
		logger.Fatalf("tuning digest: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	stores, err := openBackend(ctx, *store, *dataDir, tune, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer stores.Close()

	var nar narrator.Narrator = narrator.Offline{}
	if u := strings.TrimSpace(*narratorURL); u != "" {
		hc, err := narrator.NewHTTPClient(narrator.HTTPConfig{Endpoint: u, Timeout: *narratorTimeout})
		if err != nil {
			logger.Fatalf("narrator: %v", err)
		}
		hctx, hcancel := context.WithTimeout(ctx, 3*time.Second)
		if !hc.Health(hctx) {
			logger.Printf("narrator %s not healthy yet; directives will fall back when it fails", u)
		}
		hcancel()
		nar = hc
	}

	events := eventlog.NewCycleLogger(*dataDir)
	defer events.Close()

	observers := stores.observers
	if *withTelem {
		tel, err := openTelemetry(filepath.Join(*dataDir, "telemetry", "cycles.csv"), tune, stores.run, logger)
		if err != nil {
			logger.Fatalf("telemetry: %v", err)
		}
		defer tel.Close()
		observers = append(observers, tel)
	}

	sess, err := game.Open(ctx, game.Config{
		Tuning:          tune,
		Seed:            *seed,
		Gateway:         stores.gateway,
		Narrator:        nar,
		Events:          events,
		Observers:       observers,
		NarratorTimeout: *narratorTimeout,
		Logger:          log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}
	go func() {
		if err := sess.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("session stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		v, err := sess.View(r.Context())
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := v.State

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP seedhive_cycle Current colony cycle.\n")
		fmt.Fprintf(rw, "# TYPE seedhive_cycle gauge\n")
		fmt.Fprintf(rw, "seedhive_cycle{phase=%q} %d\n", st.Phase, st.Cycle)

		fmt.Fprintf(rw, "# HELP seedhive_thermal_load Total heat as a percentage of capacity.\n")
		fmt.Fprintf(rw, "# TYPE seedhive_thermal_load gauge\n")
		fmt.Fprintf(rw, "seedhive_thermal_load %d\n", command.ThermalLoad(st, tune))

		fmt.Fprintf(rw, "# HELP seedhive_units Unit count by activity.\n")
		fmt.Fprintf(rw, "# TYPE seedhive_units gauge\n")
		counts := map[string]int{}
		for _, u := range st.Units {
			counts[string(u.Activity)]++
		}
		for _, a := range []string{"ACTIVE", "STANDBY", "HIBERNATING"} {
			fmt.Fprintf(rw, "seedhive_units{activity=%q} %d\n", a, counts[a])
		}

		fmt.Fprintf(rw, "# HELP seedhive_resource Stockpiled resources.\n")
		fmt.Fprintf(rw, "# TYPE seedhive_resource gauge\n")
		fmt.Fprintf(rw, "seedhive_resource{kind=%q} %.2f\n", "biomass", st.Biomass)
		fmt.Fprintf(rw, "seedhive_resource{kind=%q} %.2f\n", "minerals", st.Minerals)
		fmt.Fprintf(rw, "seedhive_resource{kind=%q} %.2f\n", "data", st.Data)
		fmt.Fprintf(rw, "seedhive_resource{kind=%q} %.2f\n", "energy", st.Energy)

		fmt.Fprintf(rw, "# HELP seedhive_dilemma_pending Whether a dilemma awaits a choice.\n")
		fmt.Fprintf(rw, "# TYPE seedhive_dilemma_pending gauge\n")
		pending := 0
		if v.Pending != nil {
			pending = 1
		}
		fmt.Fprintf(rw, "seedhive_dilemma_pending %d\n", pending)

		fmt.Fprintf(rw, "# HELP seedhive_completions_total Completed runs across all sessions.\n")
		fmt.Fprintf(rw, "# TYPE seedhive_completions_total counter\n")
		fmt.Fprintf(rw, "seedhive_completions_total %d\n", v.Returning.Completions)

		if stores.dropped != nil {
			fmt.Fprintf(rw, "# HELP seedhive_index_dropped_total Cycle index rows dropped because the writer queue was full.\n")
			fmt.Fprintf(rw, "# TYPE seedhive_index_dropped_total counter\n")
			fmt.Fprintf(rw, "seedhive_index_dropped_total %d\n", stores.dropped())
		}
	})

	enableAdminHTTP := envBool("SEEDHIVE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("SEEDHIVE_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			v, err := sess.View(r.Context())
			if err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(v)
		})
		mux.HandleFunc("/admin/v1/new_run", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			rep, err := sess.NewRun(ctx2, "admin")
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "cycle": rep.State.Cycle, "difficulty": rep.State.Difficulty})
		})
	} else {
		logger.Printf("admin endpoints disabled (SEEDHIVE_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(sess, tuneDigest, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s store=%s tuning=%s", *addr, *store, tuneDigest[:12])
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	sess.Stop()
	sess.Wait()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
