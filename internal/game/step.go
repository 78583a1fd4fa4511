package game

import (
	"encoding/json"
	"fmt"

	"seedhive.ai/internal/narrator"
	eventlog "seedhive.ai/internal/persistence/log"
	"seedhive.ai/internal/protocol"
	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/command"
	"seedhive.ai/internal/sim/dilemma"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

// Input is one mutation request. The same inputs drive the live session
// and replay.
type Input struct {
	Kind       string
	Text       string
	Seed       int64
	DilemmaID  string
	ChoiceID   string
	Dilemma    *dilemma.Dilemma
	Suggestion *narrator.Actions
	Difficulty model.Difficulty
}

type Outcome struct {
	State   model.State
	Pending *dilemma.Dilemma
	Handled bool
	Reply   string
	Logs    []command.LogEntry
	// Cycles holds the state after every cycle processed by the input.
	Cycles []model.State
	// Code is a protocol error code when the input was rejected.
	Code string
}

// Poll offers the first dilemma triggered by s, drawing from a roller keyed
// on seed and cycle so replays see the same draws.
func Poll(s model.State, seed int64, t tuning.Tuning) *dilemma.Dilemma {
	if s.Phase == model.PhaseAscension {
		return nil
	}
	d, ok := dilemma.First(dilemma.Check(s, dilemma.NewHashRoller(seed, s.Cycle), t))
	if !ok {
		return nil
	}
	return &d
}

// Step applies in to s. pending is the outstanding dilemma, if any. The
// dilemma engine is polled after every processed cycle while nothing is
// pending, and a multi-cycle advance stops at the first offer.
func Step(in Input, s model.State, pending *dilemma.Dilemma, t tuning.Tuning) Outcome {
	out := Outcome{State: s, Pending: pending, Logs: []command.LogEntry{}}

	switch in.Kind {
	case eventlog.KindNewRun:
		out.State = colony.New(in.Difficulty, t)
		out.Pending = nil
		out.Handled = true
		out.Reply = "Seed intelligence awakened. Cycle 1."

	case eventlog.KindDirective:
		res := command.InterpretWith(in.Text, s, t, func(next model.State) bool {
			out.Cycles = append(out.Cycles, next)
			if out.Pending != nil {
				return false
			}
			out.Pending = Poll(next, in.Seed, t)
			return out.Pending != nil
		})
		out.State = res.State
		out.Handled = res.Handled
		out.Reply = res.Reply
		out.Logs = append(out.Logs, res.Logs...)
		if out.Pending != nil && out.Pending != pending {
			out.Logs = append(out.Logs, command.LogEntry{Type: "dilemma", Text: out.Pending.Title})
		}

	case eventlog.KindChoice:
		d := pending
		if d == nil || d.ID != in.DilemmaID {
			if in.Dilemma == nil || in.Dilemma.ID != in.DilemmaID {
				out.Code = protocol.ErrNoPending
				if d != nil {
					out.Code = protocol.ErrStale
				}
				out.Reply = "No such dilemma is pending."
				return out
			}
			d = in.Dilemma
		}
		next, ok := dilemma.ApplyChoice(s, *d, in.ChoiceID, t)
		if !ok {
			out.Code = protocol.ErrBadChoice
			out.Reply = fmt.Sprintf("Unknown option %q.", in.ChoiceID)
			return out
		}
		opt, _ := d.Option(in.ChoiceID)
		out.State = next
		out.Pending = nil
		out.Handled = true
		out.Reply = fmt.Sprintf("Decision recorded: %s.", opt.Label)
		if opt.Reflection != "" {
			out.Logs = append(out.Logs, command.LogEntry{Type: "reflection", Text: opt.Reflection})
		}

	case eventlog.KindSuggestion:
		next, ok := narrator.ApplySuggestion(s, in.Suggestion)
		out.State = next
		out.Handled = ok

	default:
		out.Code = protocol.ErrBadRequest
		out.Reply = fmt.Sprintf("unknown input kind %q", in.Kind)
	}
	return out
}

// InputFromEntry rebuilds the input recorded in a log entry.
func InputFromEntry(e eventlog.Entry) (Input, error) {
	in := Input{
		Kind:     e.Kind,
		Text:     e.Text,
		Seed:     e.Seed,
		ChoiceID: e.ChoiceID,
	}
	if len(e.Dilemma) > 0 {
		var d dilemma.Dilemma
		if err := json.Unmarshal(e.Dilemma, &d); err != nil {
			return in, fmt.Errorf("entry %d: dilemma: %w", e.Seq, err)
		}
		in.Dilemma = &d
		in.DilemmaID = d.ID
	}
	if len(e.Suggestion) > 0 {
		var a narrator.Actions
		if err := json.Unmarshal(e.Suggestion, &a); err != nil {
			return in, fmt.Errorf("entry %d: suggestion: %w", e.Seq, err)
		}
		in.Suggestion = &a
	}
	if len(e.Difficulty) > 0 {
		if err := json.Unmarshal(e.Difficulty, &in.Difficulty); err != nil {
			return in, fmt.Errorf("entry %d: difficulty: %w", e.Seq, err)
		}
	} else {
		in.Difficulty = model.DefaultDifficulty()
	}
	return in, nil
}

// entryFor records in so that InputFromEntry can rebuild it. d is the
// dilemma pending before the input was applied.
func entryFor(in Input, d *dilemma.Dilemma) eventlog.Entry {
	e := eventlog.Entry{
		Kind:     in.Kind,
		Text:     in.Text,
		Seed:     in.Seed,
		ChoiceID: in.ChoiceID,
	}
	if d != nil {
		e.Dilemma, _ = json.Marshal(d)
	}
	if in.Suggestion != nil {
		e.Suggestion, _ = json.Marshal(in.Suggestion)
	}
	if in.Kind == eventlog.KindNewRun {
		e.Difficulty, _ = json.Marshal(in.Difficulty)
	}
	return e
}
