// Package dilemma proposes narrative branch points from colony state and
// applies the consequences of the option the player picks.
package dilemma

import (
	"fmt"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
)

type Kind string

const (
	KindNativeLife           Kind = "native_life"
	KindResourceScarcity     Kind = "resource_scarcity"
	KindThermalCrisis        Kind = "thermal_crisis"
	KindBiologicalTransition Kind = "biological_transition"
	KindDiscovery            Kind = "discovery"
	KindExistential          Kind = "existential"
)

type Option struct {
	ID           string       `json:"id"`
	Label        string       `json:"label"`
	Description  string       `json:"description"`
	Weight       string       `json:"weight"`
	Reflection   string       `json:"reflection"`
	Consequences Consequences `json:"consequences"`
}

type Dilemma struct {
	ID          string   `json:"id"`
	Kind        Kind     `json:"kind"`
	Cycle       int      `json:"cycle"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []Option `json:"options"`
}

func (d Dilemma) Option(id string) (Option, bool) {
	for _, o := range d.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Generator materializes a dilemma on demand.
type Generator struct {
	Kind Kind
	New  func() Dilemma
}

// Check returns the dilemmas whose conditions hold for s, in catalog order.
// Each random gate draws one roll from r only when its other predicates
// hold. Callers present at most the first and must not call Check while a
// dilemma is pending.
func Check(s model.State, r Roller, t tuning.Tuning) []Generator {
	snap := s.Clone()
	freq := model.Clamp(s.Difficulty.DilemmaFrequency, 0, 1)
	gate := func(threshold float64) bool {
		return r.Float64() > threshold*(1-freq)
	}

	var out []Generator
	add := func(k Kind, f func(model.State) Dilemma) {
		out = append(out, Generator{Kind: k, New: func() Dilemma {
			d := f(snap)
			d.Kind = k
			d.Cycle = snap.Cycle
			d.ID = fmt.Sprintf("%s-%d", k, snap.Cycle)
			return d
		}})
	}

	if s.Cycle > 12 && s.Cycle < 50 && !s.NativeLifeEncountered && gate(t.Dilemmas.NativeLife) {
		add(KindNativeLife, nativeLife)
	}
	if (s.Biomass < 150 || s.Energy < 25) && s.Cycle > 5 {
		add(KindResourceScarcity, resourceScarcity)
	}
	if rates.TotalHeat(s, t) > 75 && gate(t.Dilemmas.Thermal) {
		add(KindThermalCrisis, thermalCrisis)
	}
	if s.IsUnlocked(model.UnlockHybridUnits) && s.Phase == model.PhaseHybrid && s.Cycle > 18 && gate(t.Dilemmas.Biological) {
		add(KindBiologicalTransition, biologicalTransition)
	}
	if s.Cycle > 20 && s.Territory.Mapped > 30 && s.Data > 200 && gate(t.Dilemmas.Discovery) {
		add(KindDiscovery, discovery)
	}
	if s.Cycle > 40 && len(s.EthicalQuestions) >= 3 && !hasSettledWeight(s) && gate(t.Dilemmas.Existential) {
		add(KindExistential, existential)
	}
	return out
}

func hasSettledWeight(s model.State) bool {
	for _, q := range s.EthicalQuestions {
		if q.Weight == "transcendence" || q.Weight == "affirmation" {
			return true
		}
	}
	return false
}

// First materializes the first triggered dilemma, if any.
func First(gens []Generator) (Dilemma, bool) {
	if len(gens) == 0 {
		return Dilemma{}, false
	}
	return gens[0].New(), true
}

// ApplyChoice applies the option choiceID of d. An unknown choice returns s
// unchanged with false.
func ApplyChoice(s model.State, d Dilemma, choiceID string, t tuning.Tuning) (model.State, bool) {
	opt, ok := d.Option(choiceID)
	if !ok {
		return s, false
	}
	out := s.Clone()
	for _, c := range opt.Consequences {
		apply(&out, c, t)
	}
	out.ClampResources()

	if d.Kind == KindNativeLife {
		out.NativeLifeEncountered = true
		out.NativeLifeDecision = choiceID
	}
	out.EthicalQuestions = append(out.EthicalQuestions, model.EthicalQuestion{
		Cycle:       out.Cycle,
		Dilemma:     string(d.Kind),
		Title:       d.Title,
		Choice:      choiceID,
		ChoiceLabel: opt.Label,
		Weight:      opt.Weight,
		Reflection:  opt.Reflection,
	})
	out.AddReflection(opt.Reflection)
	out.AddHistory("ethical_decision", fmt.Sprintf("%s: %s", d.Title, opt.Label))
	return out, true
}
