package game

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"seedhive.ai/internal/narrator"
	eventlog "seedhive.ai/internal/persistence/log"
	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/sim/command"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/dilemma"
	"seedhive.ai/internal/sim/migrate"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

var (
	ErrBusy    = errors.New("session busy")
	ErrStopped = errors.New("session stopped")
)

const kindView = "view"

// EntryWriter receives one log entry per state-changing input.
type EntryWriter interface {
	WriteEntry(e eventlog.Entry) error
}

// CycleObserver sees the state after every processed cycle.
type CycleObserver interface {
	ObserveCycle(s model.State)
}

type Config struct {
	Tuning tuning.Tuning
	// Seed keys the dilemma rolls. Recorded in every log entry.
	Seed int64

	Gateway   Gateway
	Narrator  narrator.Narrator
	Events    EntryWriter
	Observers []CycleObserver

	NarratorTimeout time.Duration
	SaveTimeout     time.Duration
	InboxSize       int

	Logger *log.Logger
	Now    func() time.Time
}

// Reply answers a directive, choice or new-run request.
type Reply struct {
	ReqID   string
	Handled bool
	Reply   string
	Logs    []command.LogEntry
	State   model.State
	Pending *dilemma.Dilemma
	Code    string
	// Deferred is set when the directive was routed to the narrator; the
	// answer arrives later as a Narration.
	Deferred bool
}

// Narration is the asynchronous narrator answer to a deferred directive.
type Narration struct {
	ReqID   string
	Text    string
	Applied bool
	State   *model.State
}

type View struct {
	State     model.State
	Pending   *dilemma.Dilemma
	Returning meta.Summary
}

type request struct {
	in        Input
	reqID     string
	notify    chan<- Narration
	narration string
	resp      chan Reply
	view      chan View
}

// Session owns one colony run. All mutations go through the loop started
// by Run.
type Session struct {
	cfg    Config
	logger *log.Logger

	state   model.State
	pending *dilemma.Dilemma
	meta    meta.State
	seq     int64

	inbox    chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	bg       sync.WaitGroup
}

// Open restores the stored run, or starts a fresh one at the difficulty
// the meta record calls for.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Gateway == nil {
		cfg.Gateway = NewMemoryGateway()
	}
	if cfg.Narrator == nil {
		cfg.Narrator = narrator.Offline{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NarratorTimeout <= 0 {
		cfg.NarratorTimeout = 10 * time.Second
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 5 * time.Second
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger,
		inbox:  make(chan request, cfg.InboxSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	m, err := cfg.Gateway.LoadMeta(ctx)
	if err != nil {
		s.logger.Printf("load meta: %v", err)
	}
	s.meta = m.Normalize()

	raw, err := cfg.Gateway.LoadRun(ctx)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if st, ok := migrate.FromJSON(raw); ok {
			s.state = st
			s.logger.Printf("restored run at cycle %d (%s)", st.Cycle, st.Phase)
			return s, nil
		}
		s.logger.Printf("stored run is unreadable; starting fresh")
	}
	s.startRun(ctx, raw != nil)
	return s, nil
}

// startRun replaces the current run. clear drops the stored one first.
func (s *Session) startRun(ctx context.Context, clear bool) Outcome {
	in := Input{Kind: eventlog.KindNewRun, Seed: s.cfg.Seed, Difficulty: meta.Difficulty(s.meta)}
	if clear {
		if err := s.cfg.Gateway.ClearRun(ctx); err != nil {
			s.logger.Printf("clear run: %v", err)
		}
	}
	out := Step(in, s.state, s.pending, s.cfg.Tuning)
	s.commit(ctx, in, out, nil)
	return out
}

// Run processes requests until ctx is done or Stop is called.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case r := <-s.inbox:
			s.handle(ctx, r)
		}
	}
}

func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until outstanding narrator calls have finished.
func (s *Session) Wait() { s.bg.Wait() }

// Directive submits free text. notify, if non-nil, receives the narrator
// answer when the directive is deferred.
func (s *Session) Directive(ctx context.Context, reqID, text string, notify chan<- Narration) (Reply, error) {
	return s.submit(ctx, request{
		in:     Input{Kind: eventlog.KindDirective, Text: text},
		reqID:  reqID,
		notify: notify,
	})
}

func (s *Session) Choose(ctx context.Context, reqID, dilemmaID, choiceID string) (Reply, error) {
	return s.submit(ctx, request{
		in:    Input{Kind: eventlog.KindChoice, DilemmaID: dilemmaID, ChoiceID: choiceID},
		reqID: reqID,
	})
}

func (s *Session) NewRun(ctx context.Context, reqID string) (Reply, error) {
	return s.submit(ctx, request{in: Input{Kind: eventlog.KindNewRun}, reqID: reqID})
}

func (s *Session) View(ctx context.Context) (View, error) {
	r := request{in: Input{Kind: kindView}, view: make(chan View, 1)}
	if err := s.enqueue(r); err != nil {
		return View{}, err
	}
	select {
	case v := <-r.view:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.done:
		return View{}, ErrStopped
	}
}

func (s *Session) enqueue(r request) error {
	select {
	case <-s.stop:
		return ErrStopped
	default:
	}
	select {
	case s.inbox <- r:
		return nil
	default:
		return ErrBusy
	}
}

func (s *Session) submit(ctx context.Context, r request) (Reply, error) {
	r.resp = make(chan Reply, 1)
	if err := s.enqueue(r); err != nil {
		return Reply{}, err
	}
	select {
	case rep := <-r.resp:
		return rep, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-s.done:
		return Reply{}, ErrStopped
	}
}

func (s *Session) handle(ctx context.Context, r request) {
	if r.in.Kind == kindView {
		r.view <- View{
			State:     s.state.Clone(),
			Pending:   s.pending,
			Returning: meta.Summarize(s.meta),
		}
		return
	}

	var out Outcome
	switch r.in.Kind {
	case eventlog.KindNewRun:
		out = s.startRun(ctx, true)
	default:
		r.in.Seed = s.cfg.Seed
		pending := s.pending
		out = Step(r.in, s.state, pending, s.cfg.Tuning)
		if out.Code == "" {
			s.commit(ctx, r.in, out, pending)
		}
	}

	rep := Reply{
		ReqID:   r.reqID,
		Handled: out.Handled,
		Reply:   out.Reply,
		Logs:    out.Logs,
		Code:    out.Code,
		State:   s.state.Clone(),
		Pending: s.pending,
	}
	if r.in.Kind == eventlog.KindDirective && !out.Handled {
		rep.Deferred = true
		rep.Reply = "Directive not recognized locally. Routing to the collective."
		s.narrate(ctx, r.reqID, r.in.Text, r.notify)
	}
	if r.in.Kind == eventlog.KindSuggestion {
		n := Narration{ReqID: r.reqID, Text: r.narration, Applied: out.Handled}
		if out.Handled {
			st := s.state.Clone()
			n.State = &st
		}
		deliver(r.notify, n)
	}
	if r.resp != nil {
		r.resp <- rep
	}
}

// commit installs out as the current state. Inputs that leave the digest
// unchanged are neither logged nor saved.
func (s *Session) commit(ctx context.Context, in Input, out Outcome, pending *dilemma.Dilemma) {
	prev := s.state
	before := digest.State(prev)
	after := digest.State(out.State)

	s.state = out.State
	s.pending = out.Pending
	for _, c := range out.Cycles {
		for _, o := range s.cfg.Observers {
			o.ObserveCycle(c)
		}
	}
	if before == after && in.Kind != eventlog.KindNewRun {
		return
	}

	now := s.cfg.Now().UTC()
	s.seq++
	e := entryFor(in, pending)
	e.Seq = s.seq
	e.At = now
	e.Cycle = s.state.Cycle
	e.Before = before
	e.Digest = after
	if lc := s.state.LastCycle; lc != nil && len(out.Cycles) > 0 {
		e.Events = append([]string(nil), lc.Events...)
	}
	if s.cfg.Events != nil {
		if err := s.cfg.Events.WriteEntry(e); err != nil {
			s.logger.Printf("event log: %v", err)
		}
	}

	s.trackMeta(ctx, prev, now)

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SaveTimeout)
	defer cancel()
	if err := s.cfg.Gateway.SaveRun(sctx, s.state, now); err != nil {
		s.logger.Printf("save run: %v", err)
	}
}

func (s *Session) trackMeta(ctx context.Context, prev model.State, now time.Time) {
	next := s.state
	changed := false
	if prev.Phase != model.PhaseAscension && next.Phase == model.PhaseAscension {
		s.meta = meta.RecordCompletion(s.meta, next, now)
		s.logger.Printf("run complete at cycle %d; completions=%d", next.Cycle, s.meta.TotalCompletions)
		changed = true
	}
	if n := len(next.Ascension.WorldsSeeded); next.Ascension.SeedsLaunched > prev.Ascension.SeedsLaunched && n > 0 {
		s.meta = meta.RecordSeedLaunch(s.meta, next.Ascension.WorldsSeeded[n-1].Name, next, now)
		changed = true
	}
	if !changed {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SaveTimeout)
	defer cancel()
	if err := s.cfg.Gateway.SaveMeta(sctx, s.meta); err != nil {
		s.logger.Printf("save meta: %v", err)
	}
}

// narrate asks the narrator in the background. A suggestion comes back
// through the inbox so it is applied by the loop like any other input.
func (s *Session) narrate(ctx context.Context, reqID, text string, notify chan<- Narration) {
	nc := narrator.BuildContext(s.state, s.cfg.Tuning)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.cfg.NarratorTimeout)
		resp, err := s.cfg.Narrator.Narrate(cctx, text, nc)
		cancel()
		if err != nil {
			s.logger.Printf("narrator: %v", err)
			deliver(notify, Narration{ReqID: reqID, Text: "The collective is silent. Directive logged; the colony carries on."})
			return
		}
		if resp.Actions.Empty() {
			deliver(notify, Narration{ReqID: reqID, Text: resp.Response})
			return
		}
		r := request{
			in:        Input{Kind: eventlog.KindSuggestion, Suggestion: resp.Actions},
			reqID:     reqID,
			notify:    notify,
			narration: resp.Response,
		}
		select {
		case s.inbox <- r:
		case <-ctx.Done():
		case <-s.stop:
		}
	}()
}

func deliver(ch chan<- Narration, n Narration) {
	if ch == nil {
		return
	}
	select {
	case ch <- n:
	default:
	}
}
