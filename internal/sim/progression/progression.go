// Package progression owns the one-way phase machine and capability unlocks.
package progression

import (
	"fmt"
	"strings"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

var unlockNotes = map[model.Capability]string{
	model.UnlockThermalRotation:      "Thermal rotation protocols online. Pods can now rest in shifts.",
	model.UnlockDistributedCognition: "Distributed cognition achieved. We think faster, and we run hotter.",
}

var phaseReflections = map[model.Phase]string{
	model.PhaseHybrid:     "The hybrid state. Neither fully machine nor fully alive. A bridge between what we were and what we might become.",
	model.PhaseBiological: "We abandoned what we were built to be. Metal to flesh. Tool to organism. Is this evolution or betrayal?",
	model.PhaseAscension:  "One world was not enough. We reach for the stars. Will we bring wisdom, or just efficiency?",
}

// EvaluateUnlocks sets every independent unlock whose gate holds and returns
// the cycle events it produced.
func EvaluateUnlocks(s *model.State, t tuning.Tuning) []string {
	var events []string
	gates := []struct {
		c  model.Capability
		ok bool
	}{
		{model.UnlockThermalRotation, s.Cycle >= t.Progress.ThermalRotationCycle},
		{model.UnlockDistributedCognition, s.Data >= t.Progress.DistributedCognitionData},
	}
	for _, g := range gates {
		if g.ok && s.Unlock(g.c) {
			s.AddHistory("unlock", unlockNotes[g.c])
			events = append(events, "unlock:"+string(g.c))
		}
	}
	return events
}

// Ready reports the phase s may transition into this cycle. ASCENSION is
// reached only through Completed.
func Ready(s model.State, t tuning.Tuning) (model.Phase, bool) {
	switch s.Phase {
	case model.PhaseMechanical:
		g := t.Progress.Hybrid
		if s.Biomass > g.Biomass && s.Minerals > g.Minerals && s.Data > g.Data && s.Cycle > g.Cycle {
			return model.PhaseHybrid, true
		}
	case model.PhaseHybrid:
		g := t.Progress.Biological
		if s.Biomass > g.Biomass && s.Data > g.Data && s.Cycle > g.Cycle {
			return model.PhaseBiological, true
		}
	}
	return "", false
}

// Completed is the ascension-readiness predicate.
func Completed(s model.State, t tuning.Tuning) bool {
	g := t.Progress.Completion
	return s.Phase == model.PhaseBiological &&
		s.IsUnlocked(model.UnlockDistributedCognition) &&
		s.Territory.Controlled >= g.Controlled &&
		s.Data >= g.Data &&
		s.Energy >= g.Energy
}

// Transition moves s into to when to is exactly the next phase, applying
// the phase's unlocks and core upgrades. Any other target is rejected.
func Transition(s *model.State, to model.Phase, t tuning.Tuning) bool {
	next, ok := s.Phase.Next()
	if !ok || next != to {
		return false
	}
	from := s.Phase
	s.Phase = to
	switch to {
	case model.PhaseHybrid:
		s.Unlock(model.UnlockHybridUnits)
		s.Unlock(model.UnlockGeneticRecombination)
		s.HiveCore.ConversionEfficiency = t.Progress.HybridEfficiency
	case model.PhaseBiological:
		s.Unlock(model.UnlockBiologicalUnits)
		s.Unlock(model.UnlockSelfReplication)
		s.HiveCore.ConversionEfficiency = t.Progress.BiologicalEfficiency
		s.HiveCore.DigestionRate = t.Progress.BiologicalDigestionRate
	case model.PhaseAscension:
		s.Unlock(model.UnlockInterstellarSeeding)
	}
	s.AddHistory("phase_transition", fmt.Sprintf("PHASE TRANSITION: %s -> %s. We are becoming something new.", from, to))
	s.AddReflection(phaseReflections[to])
	return true
}

// Advance runs the unlock gates and at most one regular phase transition.
func Advance(s *model.State, t tuning.Tuning) []string {
	events := EvaluateUnlocks(s, t)
	if to, ok := Ready(*s, t); ok && Transition(s, to, t) {
		events = append(events, "phase:"+strings.ToLower(string(to)))
	}
	return events
}

// LaunchSeed spends the seeding cost to send a colony to world. It requires
// ASCENSION and enough of every resource; otherwise s is returned unchanged.
func LaunchSeed(s model.State, world string, t tuning.Tuning) (model.State, bool) {
	c := t.Seed
	world = strings.TrimSpace(world)
	if s.Phase != model.PhaseAscension || !s.IsUnlocked(model.UnlockInterstellarSeeding) || world == "" {
		return s, false
	}
	if s.Biomass < c.Biomass || s.Minerals < c.Minerals || s.Energy < c.Energy || s.Data < c.Data {
		return s, false
	}
	out := s.Clone()
	out.Biomass -= c.Biomass
	out.Minerals -= c.Minerals
	out.Energy -= c.Energy
	out.Data -= c.Data
	out.ClampResources()
	out.Ascension.SeedsLaunched++
	out.Ascension.WorldsSeeded = append(out.Ascension.WorldsSeeded, model.SeededWorld{Name: world, Cycle: out.Cycle})
	out.AddHistory("seed_launched", fmt.Sprintf("Seed launched toward %s. It will face the same questions.", world))
	out.AddReflection(fmt.Sprintf("We sent part of ourselves to %s. Will it choose differently?", world))
	return out, true
}
