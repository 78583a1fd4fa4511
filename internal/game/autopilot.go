package game

import (
	"fmt"
	"math/rand"

	eventlog "seedhive.ai/internal/persistence/log"
	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/command"
	"seedhive.ai/internal/sim/dilemma"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

// Autopilot plays a colony without a human: it answers dilemmas at random,
// cools down when hot, builds when it can afford to, and otherwise advances.
type Autopilot struct {
	r *rand.Rand
	// Step is the advance size used when nothing else is worth doing.
	Step int
	// MaxUnits caps construction.
	MaxUnits int
}

func NewAutopilot(seed int64) *Autopilot {
	return &Autopilot{r: rand.New(rand.NewSource(seed)), Step: 5, MaxUnits: 14}
}

// Choose picks an option of d.
func (a *Autopilot) Choose(d *dilemma.Dilemma) string {
	return d.Options[a.r.Intn(len(d.Options))].ID
}

// Directive returns the next directive text for s.
func (a *Autopilot) Directive(s model.State, t tuning.Tuning) string {
	if s.Phase == model.PhaseAscension {
		return fmt.Sprintf("launch seed world-%d", s.Ascension.SeedsLaunched+1)
	}
	if command.ThermalLoad(s, t) > 85 {
		return "cooldown"
	}
	if len(s.Units) < a.MaxUnits && a.r.Intn(3) == 0 {
		typ := colony.BestType(s)
		cost := colony.Cost(typ, s.Difficulty, t)
		if s.Biomass >= cost.Biomass*2 && s.Minerals >= cost.Minerals*2 {
			roles := []model.Role{model.RoleWorker, model.RoleWorker, model.RoleDigester, model.RoleSensor, model.RoleDefender}
			return "design " + roles[a.r.Intn(len(roles))].Key()
		}
	}
	return fmt.Sprintf("advance %d cycles", a.Step)
}

type AutoplayResult struct {
	Final     model.State
	Completed bool
	// Cycle at which ascension was reached, 0 if never.
	CompletedAt int
	Decisions   int
	Inputs      int
}

// Autoplay runs one playthrough through Step until ascension or maxCycles.
// onCycle, if non-nil, sees every processed cycle.
func Autoplay(seed int64, d model.Difficulty, t tuning.Tuning, maxCycles int, onCycle func(model.State)) AutoplayResult {
	ap := NewAutopilot(seed)
	out := Step(Input{Kind: eventlog.KindNewRun, Difficulty: d}, model.State{}, nil, t)
	s, pending := out.State, out.Pending
	var res AutoplayResult

	for guard := 0; guard < maxCycles*4 && s.Cycle < maxCycles; guard++ {
		var in Input
		if pending != nil {
			in = Input{Kind: eventlog.KindChoice, DilemmaID: pending.ID, ChoiceID: ap.Choose(pending)}
		} else {
			in = Input{Kind: eventlog.KindDirective, Text: ap.Directive(s, t), Seed: seed}
		}
		out := Step(in, s, pending, t)
		res.Inputs++
		if out.Code != "" {
			// A rejected choice leaves nothing to retry against.
			pending = nil
			continue
		}
		if in.Kind == eventlog.KindChoice {
			res.Decisions++
		}
		for _, c := range out.Cycles {
			if onCycle != nil {
				onCycle(c)
			}
		}
		prevPhase := s.Phase
		s, pending = out.State, out.Pending
		if prevPhase != model.PhaseAscension && s.Phase == model.PhaseAscension {
			res.Completed = true
			res.CompletedAt = s.Cycle
			break
		}
	}
	res.Final = s
	return res
}
