package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/cycle"
	"seedhive.ai/internal/sim/migrate"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
)

func openTemp(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seedhive.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStore_RunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	raw, err := s.LoadRun(ctx)
	if err != nil || raw != nil {
		t.Fatalf("empty store: raw=%s err=%v", raw, err)
	}

	tu := tuning.Defaults()
	st := cycle.Run(colony.New(model.DefaultDifficulty(), tu), 9, tu)
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := s.SaveRun(ctx, st, at); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	raw, err = s.LoadRun(ctx)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	got, ok := migrate.FromJSON(raw)
	if !ok {
		t.Fatalf("stored envelope did not migrate: %s", raw)
	}
	st.LastCycle = nil
	got.LastCycle = nil
	if !reflect.DeepEqual(got, st) {
		t.Fatalf("round trip changed state")
	}

	info, found, err := s.SaveInfo(ctx)
	if err != nil || !found {
		t.Fatalf("SaveInfo: found=%v err=%v", found, err)
	}
	if info.Cycle != st.Cycle || info.Run != 1 || !info.SavedAt.Equal(at) {
		t.Fatalf("info=%+v", info)
	}
}

func TestSQLiteStore_ClearRunAdvancesSequence(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	st := colony.New(model.DefaultDifficulty(), tuning.Defaults())
	if err := s.SaveRun(ctx, st, time.Now()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.ClearRun(ctx); err != nil {
		t.Fatalf("ClearRun: %v", err)
	}
	if raw, _ := s.LoadRun(ctx); raw != nil {
		t.Fatalf("save survived ClearRun")
	}
	run, err := s.Run(ctx)
	if err != nil || run != 2 {
		t.Fatalf("run=%d err=%v", run, err)
	}
}

func TestSQLiteStore_Meta(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	m, err := s.LoadMeta(ctx)
	if err != nil || m.TotalCompletions != 0 {
		t.Fatalf("fresh meta=%+v err=%v", m, err)
	}
	st := colony.New(model.DefaultDifficulty(), tuning.Defaults())
	m = meta.RecordCompletion(m, st, time.Now())
	if err := s.SaveMeta(ctx, m); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	got, err := s.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if got.TotalCompletions != 1 || len(got.RunHistory) != 1 {
		t.Fatalf("meta=%+v", got)
	}
}

func TestSQLiteStore_RecordCycle(t *testing.T) {
	s, path := openTemp(t)

	tu := tuning.Defaults()
	st := colony.New(model.DefaultDifficulty(), tu)
	for i := 0; i < 6; i++ {
		st = cycle.Process(st, tu)
		s.RecordCycle(RowFor(1, st, rates.TotalHeat(st, tu)))
	}
	if _, err := s.UpsertTuning(context.Background(), tu); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n, maxCycle int
	if err := db.QueryRow(`SELECT COUNT(*), MAX(cycle) FROM cycles WHERE run=1`).Scan(&n, &maxCycle); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 6 || maxCycle != 7 {
		t.Fatalf("rows=%d max=%d", n, maxCycle)
	}
	var d string
	if err := db.QueryRow(`SELECT digest FROM config WHERE name='tuning'`).Scan(&d); err != nil || len(d) != 64 {
		t.Fatalf("tuning digest=%q err=%v", d, err)
	}
}

func TestSQLiteStore_CyclesQuery(t *testing.T) {
	s, path := openTemp(t)
	tu := tuning.Defaults()
	st := colony.New(model.DefaultDifficulty(), tu)
	for i := 0; i < 3; i++ {
		st = cycle.Process(st, tu)
		s.RecordCycle(RowFor(1, st, rates.TotalHeat(st, tu)))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	rows, err := s2.Cycles(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(rows) != 2 || rows[0].Cycle != 2 || rows[1].Cycle != 3 {
		t.Fatalf("rows=%+v", rows)
	}
	if rows[0].Events == nil || rows[0].Units != 3 {
		t.Fatalf("row decode: %+v", rows[0])
	}
}

func TestSQLiteStore_FailedBatchReleasesConnection(t *testing.T) {
	s, _ := openTemp(t)
	tu := tuning.Defaults()
	st := colony.New(model.DefaultDifficulty(), tu)

	// Without the cycles table the batch statement cannot be prepared.
	if _, err := s.db.Exec(`DROP TABLE cycles`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	s.RecordCycle(RowFor(1, st, 12))
	deadline := time.Now().Add(2 * time.Second)
	for len(s.ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.SaveRun(ctx, st, time.Now()); err != nil {
		t.Fatalf("SaveRun after failed batch: %v", err)
	}
	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run after failed batch: %v", err)
	}
}
