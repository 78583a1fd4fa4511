package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/sim/model"
)

// Gateway persists the current run and the cross-run meta record.
// LoadRun returns nil bytes when no run is stored; the bytes are migrated
// by the caller.
type Gateway interface {
	LoadRun(ctx context.Context) ([]byte, error)
	SaveRun(ctx context.Context, s model.State, savedAt time.Time) error
	ClearRun(ctx context.Context) error
	LoadMeta(ctx context.Context) (meta.State, error)
	SaveMeta(ctx context.Context, m meta.State) error
}

// MemoryGateway keeps everything in process. Used by tests and by the
// server when persistence is disabled.
type MemoryGateway struct {
	mu    sync.Mutex
	run   []byte
	meta  *meta.State
	saves int
}

func NewMemoryGateway() *MemoryGateway { return &MemoryGateway{} }

func (g *MemoryGateway) LoadRun(context.Context) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.run == nil {
		return nil, nil
	}
	return append([]byte(nil), g.run...), nil
}

func (g *MemoryGateway) SaveRun(_ context.Context, s model.State, savedAt time.Time) error {
	b, err := json.Marshal(struct {
		State   model.State `json:"state"`
		SavedAt time.Time   `json:"savedAt"`
	}{s, savedAt.UTC()})
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.run = b
	g.saves++
	g.mu.Unlock()
	return nil
}

// PutRaw stores an arbitrary payload as the current run.
func (g *MemoryGateway) PutRaw(b []byte) {
	g.mu.Lock()
	g.run = append([]byte(nil), b...)
	g.mu.Unlock()
}

func (g *MemoryGateway) ClearRun(context.Context) error {
	g.mu.Lock()
	g.run = nil
	g.mu.Unlock()
	return nil
}

func (g *MemoryGateway) Saves() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves
}

func (g *MemoryGateway) LoadMeta(context.Context) (meta.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.meta == nil {
		return meta.New(), nil
	}
	return *g.meta, nil
}

func (g *MemoryGateway) SaveMeta(_ context.Context, m meta.State) error {
	g.mu.Lock()
	g.meta = &m
	g.mu.Unlock()
	return nil
}
