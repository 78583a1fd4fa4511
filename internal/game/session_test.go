package game

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"seedhive.ai/internal/narrator"
	eventlog "seedhive.ai/internal/persistence/log"
	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/protocol"
	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/dilemma"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

type memLog struct {
	mu      sync.Mutex
	entries []eventlog.Entry
}

func (l *memLog) WriteEntry(e eventlog.Entry) error {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return nil
}

func (l *memLog) all() []eventlog.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]eventlog.Entry(nil), l.entries...)
}

type countObserver struct{ n int }

func (o *countObserver) ObserveCycle(model.State) { o.n++ }

type fakeNarrator struct {
	resp narrator.Response
	err  error
}

func (f fakeNarrator) Narrate(context.Context, string, narrator.Context) (narrator.Response, error) {
	return f.resp, f.err
}

func testConfig(gw Gateway, events EntryWriter) Config {
	return Config{
		Tuning:  tuning.Defaults(),
		Seed:    7,
		Gateway: gw,
		Events:  events,
		Logger:  log.New(io.Discard, "", 0),
		Now:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func startSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		s.Wait()
	})
	return s
}

func scarce() model.State {
	tu := tuning.Defaults()
	s := colony.New(model.DefaultDifficulty(), tu)
	s.Cycle = 8
	s.Biomass = 20
	s.Energy = 5
	return s
}

func TestOpen_StartsFreshRun(t *testing.T) {
	gw := NewMemoryGateway()
	events := &memLog{}
	s := startSession(t, testConfig(gw, events))

	v, err := s.View(context.Background())
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.State.Cycle != 1 || v.State.Phase != model.PhaseMechanical || v.Pending != nil {
		t.Fatalf("unexpected fresh state: cycle=%d phase=%s", v.State.Cycle, v.State.Phase)
	}
	if gw.Saves() != 1 {
		t.Fatalf("saves=%d want 1", gw.Saves())
	}
	es := events.all()
	if len(es) != 1 || es[0].Kind != eventlog.KindNewRun || es[0].Seed != 7 {
		t.Fatalf("entries=%+v", es)
	}
}

func TestOpen_RestoresStoredRun(t *testing.T) {
	gw := NewMemoryGateway()
	st := scarce()
	if err := gw.SaveRun(context.Background(), st, time.Now()); err != nil {
		t.Fatalf("seed save: %v", err)
	}
	s := startSession(t, testConfig(gw, nil))
	v, err := s.View(context.Background())
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.State.Cycle != 8 || v.State.Biomass != 20 {
		t.Fatalf("restored cycle=%d biomass=%v", v.State.Cycle, v.State.Biomass)
	}
}

func TestOpen_UnreadableRunStartsFresh(t *testing.T) {
	gw := NewMemoryGateway()
	gw.PutRaw([]byte("not json"))
	s := startSession(t, testConfig(gw, nil))
	v, _ := s.View(context.Background())
	if v.State.Cycle != 1 {
		t.Fatalf("cycle=%d want 1", v.State.Cycle)
	}
}

func TestDirective_AdvanceSavesAndObserves(t *testing.T) {
	gw := NewMemoryGateway()
	events := &memLog{}
	obs := &countObserver{}
	cfg := testConfig(gw, events)
	cfg.Observers = []CycleObserver{obs}
	s := startSession(t, cfg)

	rep, err := s.Directive(context.Background(), "r1", "advance 3 cycles", nil)
	if err != nil {
		t.Fatalf("directive: %v", err)
	}
	if !rep.Handled || rep.Deferred || rep.ReqID != "r1" {
		t.Fatalf("reply=%+v", rep)
	}
	if rep.State.Cycle <= 1 || rep.State.Cycle > 4 {
		t.Fatalf("cycle=%d", rep.State.Cycle)
	}
	if obs.n != rep.State.Cycle-1 {
		t.Fatalf("observer saw %d cycles, advanced %d", obs.n, rep.State.Cycle-1)
	}
	if gw.Saves() != 2 {
		t.Fatalf("saves=%d want 2", gw.Saves())
	}
	es := events.all()
	last := es[len(es)-1]
	if last.Kind != eventlog.KindDirective || last.Text != "advance 3 cycles" || last.Digest != digest.State(rep.State) {
		t.Fatalf("entry=%+v", last)
	}
	if last.Before != es[0].Digest {
		t.Fatalf("entry chain broken")
	}
}

func TestDirective_NoChangeIsNotLogged(t *testing.T) {
	events := &memLog{}
	s := startSession(t, testConfig(NewMemoryGateway(), events))
	rep, err := s.Directive(context.Background(), "r1", "help", nil)
	if err != nil || !rep.Handled {
		t.Fatalf("help: rep=%+v err=%v", rep, err)
	}
	if n := len(events.all()); n != 1 {
		t.Fatalf("entries=%d want 1", n)
	}
}

func TestDilemma_OfferStopsAdvanceAndChoiceResolves(t *testing.T) {
	gw := NewMemoryGateway()
	_ = gw.SaveRun(context.Background(), scarce(), time.Now())
	s := startSession(t, testConfig(gw, nil))
	ctx := context.Background()

	rep, err := s.Directive(ctx, "r1", "advance 5 cycles", nil)
	if err != nil {
		t.Fatalf("directive: %v", err)
	}
	if rep.Pending == nil || rep.Pending.Kind != dilemma.KindResourceScarcity {
		t.Fatalf("expected scarcity dilemma, got %+v", rep.Pending)
	}
	if rep.State.Cycle != 9 {
		t.Fatalf("advance did not stop at the offer: cycle=%d", rep.State.Cycle)
	}
	first := rep.Pending.ID

	// Advancing while pending never offers a second dilemma.
	rep, _ = s.Directive(ctx, "r2", "advance 3 cycles", nil)
	if rep.Pending == nil || rep.Pending.ID != first {
		t.Fatalf("pending changed while unresolved: %+v", rep.Pending)
	}

	rep, _ = s.Choose(ctx, "r3", "bogus-1", "hibernate")
	if rep.Code != protocol.ErrStale {
		t.Fatalf("code=%q want %q", rep.Code, protocol.ErrStale)
	}
	rep, _ = s.Choose(ctx, "r4", first, "nope")
	if rep.Code != protocol.ErrBadChoice {
		t.Fatalf("code=%q want %q", rep.Code, protocol.ErrBadChoice)
	}
	rep, _ = s.Choose(ctx, "r5", first, "cannibalize")
	if rep.Code != "" || !rep.Handled || rep.Pending != nil {
		t.Fatalf("choice: %+v", rep)
	}
	q := rep.State.EthicalQuestions[len(rep.State.EthicalQuestions)-1]
	if q.Choice != "cannibalize" {
		t.Fatalf("ethical record=%+v", q)
	}

	rep, _ = s.Choose(ctx, "r6", first, "cannibalize")
	if rep.Code != protocol.ErrNoPending {
		t.Fatalf("code=%q want %q", rep.Code, protocol.ErrNoPending)
	}
}

func TestDirective_DeferredToNarrator(t *testing.T) {
	bio := 50.0
	cfg := testConfig(NewMemoryGateway(), &memLog{})
	cfg.Narrator = fakeNarrator{resp: narrator.Response{
		Response: "The hive hums.",
		Actions:  &narrator.Actions{BiomassChange: &bio, Action: "feed"},
	}}
	s := startSession(t, cfg)
	notify := make(chan Narration, 1)

	rep, err := s.Directive(context.Background(), "r1", "sing to the stars", notify)
	if err != nil {
		t.Fatalf("directive: %v", err)
	}
	if !rep.Deferred || rep.Handled {
		t.Fatalf("reply=%+v", rep)
	}
	select {
	case n := <-notify:
		if n.ReqID != "r1" || !n.Applied || n.State == nil || n.Text != "The hive hums." {
			t.Fatalf("narration=%+v", n)
		}
		if n.State.Biomass != rep.State.Biomass+50 {
			t.Fatalf("biomass=%v want %v", n.State.Biomass, rep.State.Biomass+50)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no narration")
	}
}

func TestDirective_NarratorFailureIsReported(t *testing.T) {
	cfg := testConfig(NewMemoryGateway(), nil)
	cfg.Narrator = fakeNarrator{err: errors.New("down")}
	s := startSession(t, cfg)
	notify := make(chan Narration, 1)

	if _, err := s.Directive(context.Background(), "r1", "sing", notify); err != nil {
		t.Fatalf("directive: %v", err)
	}
	select {
	case n := <-notify:
		if n.Applied || n.State != nil || n.Text == "" {
			t.Fatalf("narration=%+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no narration")
	}
}

func TestSubmit_BusyWhenInboxFull(t *testing.T) {
	cfg := testConfig(NewMemoryGateway(), nil)
	cfg.InboxSize = 1
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.enqueue(request{in: Input{Kind: kindView}, view: make(chan View, 1)}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := s.Directive(context.Background(), "r1", "wait", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v want ErrBusy", err)
	}
	s.Stop()
	if _, err := s.Directive(context.Background(), "r2", "wait", nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v want ErrStopped", err)
	}
}

func TestNewRun_UsesMetaDifficulty(t *testing.T) {
	gw := NewMemoryGateway()
	m := meta.New()
	m.TotalCompletions = 2
	m.DifficultyLevel = 3
	_ = gw.SaveMeta(context.Background(), m)
	s := startSession(t, testConfig(gw, nil))

	rep, err := s.NewRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if rep.State.Cycle != 1 || rep.State.Difficulty != meta.Difficulty(m) {
		t.Fatalf("difficulty=%+v want %+v", rep.State.Difficulty, meta.Difficulty(m))
	}
}

func TestTrackMeta_CompletionAndSeedLaunch(t *testing.T) {
	gw := NewMemoryGateway()
	s := &Session{
		cfg:    Config{Gateway: gw, SaveTimeout: time.Second},
		logger: log.New(io.Discard, "", 0),
		meta:   meta.New(),
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	prev := scarce()
	next := prev.Clone()
	next.Phase = model.PhaseAscension
	s.state = next
	s.trackMeta(context.Background(), prev, now)

	m, _ := gw.LoadMeta(context.Background())
	if m.TotalCompletions != 1 || len(m.RunHistory) != 1 {
		t.Fatalf("completion not recorded: %+v", m)
	}

	launched := next.Clone()
	launched.Ascension.SeedsLaunched = 1
	launched.Ascension.WorldsSeeded = append(launched.Ascension.WorldsSeeded, model.SeededWorld{Name: "Kepler", Cycle: 60})
	s.state = launched
	s.trackMeta(context.Background(), next, now)

	m, _ = gw.LoadMeta(context.Background())
	if m.TotalCompletions != 1 {
		t.Fatalf("completion recorded twice")
	}
	if len(m.SeededWorlds) != 1 || m.SeededWorlds[0] != "Kepler" {
		t.Fatalf("seeded worlds=%v", m.SeededWorlds)
	}
}
