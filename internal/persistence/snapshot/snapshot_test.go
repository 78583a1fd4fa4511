package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/cycle"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/migrate"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

func runState(t *testing.T, cycles int) model.State {
	t.Helper()
	tu := tuning.Defaults()
	s := colony.New(model.DefaultDifficulty(), tu)
	return cycle.Run(s, cycles, tu)
}

func TestSnapshot_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x", "run.snap.zst")
	s := runState(t, 5)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := WriteSnapshot(path, Envelope{State: s, SavedAt: at}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	h, env, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if h.Version != Version || h.Cycle != s.Cycle || h.Digest != digest.State(s) || !h.SavedAt.Equal(at) {
		t.Fatalf("header mismatch: %+v", h)
	}
	if digest.State(env.State) != h.Digest {
		t.Fatalf("body digest mismatch")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileStore_RunRoundTripThroughMigration(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	raw, err := fs.LoadRun(ctx)
	if err != nil || raw != nil {
		t.Fatalf("empty store: raw=%v err=%v", raw, err)
	}

	s := runState(t, 12)
	if err := fs.SaveRun(ctx, s, time.Now()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	raw, err = fs.LoadRun(ctx)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	got, ok := migrate.FromJSON(raw)
	if !ok {
		t.Fatalf("saved run did not migrate")
	}
	s.LastCycle = nil
	got.LastCycle = nil
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("round trip changed state")
	}

	if err := fs.ClearRun(ctx); err != nil {
		t.Fatalf("ClearRun: %v", err)
	}
	if raw, _ := fs.LoadRun(ctx); raw != nil {
		t.Fatalf("run still present after clear")
	}
}

func TestFileStore_Archives(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())
	fs.ArchiveEvery = 5

	tu := tuning.Defaults()
	s := colony.New(model.DefaultDifficulty(), tu)
	for i := 0; i < 12; i++ {
		s = cycle.Process(s, tu)
		if err := fs.SaveRun(ctx, s, time.Now()); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	got, err := fs.Archives()
	if err != nil {
		t.Fatalf("Archives: %v", err)
	}
	if !reflect.DeepEqual(got, []int{5, 10}) {
		t.Fatalf("archives=%v", got)
	}
	h, _, err := ReadSnapshot(fs.ArchivePath(10))
	if err != nil || h.Cycle != 10 {
		t.Fatalf("archive 10: h=%+v err=%v", h, err)
	}
}

func TestFileStore_Meta(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	m, err := fs.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if m.TotalCompletions != 0 || m.DecisionBreakdown == nil {
		t.Fatalf("fresh meta=%+v", m)
	}
	m.TotalCompletions = 3
	m.SeededWorlds = append(m.SeededWorlds, "Kepler")
	if err := fs.SaveMeta(ctx, m); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	got, err := fs.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if got.TotalCompletions != 3 || len(got.SeededWorlds) != 1 {
		t.Fatalf("meta=%+v", got)
	}
	if meta.Difficulty(got).HeatMultiplier <= 1 {
		t.Fatalf("difficulty did not scale")
	}
}

func TestFileStore_CorruptMeta(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := NewFileStore(dir).LoadMeta(context.Background())
	if err == nil {
		t.Fatalf("expected error for corrupt meta")
	}
	if m.DecisionBreakdown == nil {
		t.Fatalf("corrupt meta should still yield a usable default")
	}
}
