package progression

import (
	"testing"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

func base() model.State {
	return model.State{
		Cycle:    1,
		Phase:    model.PhaseMechanical,
		HiveCore: model.HiveCore{DigestionRate: 10, ConversionEfficiency: 0.8},
		Unlocked: map[model.Capability]bool{},
	}
}

func TestEvaluateUnlocks_Gates(t *testing.T) {
	tu := tuning.Defaults()
	s := base()
	s.Cycle = 7
	if ev := EvaluateUnlocks(&s, tu); len(ev) != 0 {
		t.Fatalf("unexpected unlocks at cycle 7: %v", ev)
	}
	s.Cycle = 8
	s.Data = 900
	ev := EvaluateUnlocks(&s, tu)
	if len(ev) != 2 || !s.Unlocked[model.UnlockThermalRotation] || !s.Unlocked[model.UnlockDistributedCognition] {
		t.Fatalf("both unlocks should fire in one cycle: %v", ev)
	}
	// Unlocks stay set when the gate stops holding.
	s.Data = 0
	if ev := EvaluateUnlocks(&s, tu); len(ev) != 0 || !s.Unlocked[model.UnlockDistributedCognition] {
		t.Fatalf("unlock regressed or re-fired: %v", ev)
	}
}

func TestAdvance_AtMostOnePhasePerCycle(t *testing.T) {
	tu := tuning.Defaults()
	s := base()
	s.Cycle = 40
	s.Biomass, s.Minerals, s.Data = 5000, 5000, 5000
	Advance(&s, tu)
	if s.Phase != model.PhaseHybrid {
		t.Fatalf("phase=%s want HYBRID", s.Phase)
	}
	if !s.Unlocked[model.UnlockHybridUnits] || s.HiveCore.ConversionEfficiency != 0.9 {
		t.Fatalf("hybrid effects missing")
	}
	Advance(&s, tu)
	if s.Phase != model.PhaseBiological || s.HiveCore.DigestionRate != 20 || !s.Unlocked[model.UnlockBiologicalUnits] {
		t.Fatalf("biological effects missing: %+v", s.HiveCore)
	}
	Advance(&s, tu)
	if s.Phase != model.PhaseBiological {
		t.Fatalf("ascension must only come from completion")
	}
	if len(s.Reflections) != 2 {
		t.Fatalf("reflections=%d want 2", len(s.Reflections))
	}
}

func TestReady_RequiresCycleMinimum(t *testing.T) {
	tu := tuning.Defaults()
	s := base()
	s.Biomass, s.Minerals, s.Data = 5000, 5000, 5000
	s.Cycle = 10
	if _, ok := Ready(s, tu); ok {
		t.Fatalf("cycle gate is strict (> 10)")
	}
	s.Cycle = 11
	if to, ok := Ready(s, tu); !ok || to != model.PhaseHybrid {
		t.Fatalf("Ready = %s,%v", to, ok)
	}
}

func TestTransition_NoSkipNoRegress(t *testing.T) {
	tu := tuning.Defaults()
	s := base()
	if Transition(&s, model.PhaseBiological, tu) {
		t.Fatalf("skipped a phase")
	}
	s.Phase = model.PhaseBiological
	if Transition(&s, model.PhaseHybrid, tu) || Transition(&s, model.PhaseMechanical, tu) {
		t.Fatalf("regressed")
	}
	if !Transition(&s, model.PhaseAscension, tu) || !s.Unlocked[model.UnlockInterstellarSeeding] {
		t.Fatalf("ascension transition failed")
	}
	if Transition(&s, model.PhaseAscension, tu) {
		t.Fatalf("no phase after ascension")
	}
}

func TestCompleted(t *testing.T) {
	tu := tuning.Defaults()
	s := base()
	s.Phase = model.PhaseBiological
	s.Unlocked[model.UnlockDistributedCognition] = true
	s.Territory = model.Territory{Mapped: 300, Controlled: 220}
	s.Data, s.Energy = 1600, 280
	if !Completed(s, tu) {
		t.Fatalf("expected completion")
	}
	s.Energy = 279.9
	if Completed(s, tu) {
		t.Fatalf("energy gate ignored")
	}
}

func TestLaunchSeed(t *testing.T) {
	tu := tuning.Defaults()
	s := base()
	s.Biomass, s.Minerals, s.Energy, s.Data = 1200, 600, 250, 400
	if _, ok := LaunchSeed(s, "Kepler-442b", tu); ok {
		t.Fatalf("launch before ascension")
	}
	s.Phase = model.PhaseAscension
	s.Unlocked[model.UnlockInterstellarSeeding] = true
	out, ok := LaunchSeed(s, "Kepler-442b", tu)
	if !ok || out.Biomass != 200 || out.Ascension.SeedsLaunched != 1 || out.Ascension.WorldsSeeded[0].Name != "Kepler-442b" {
		t.Fatalf("launch: ok=%v %+v", ok, out.Ascension)
	}
	if _, ok := LaunchSeed(out, "Again", tu); ok {
		t.Fatalf("second launch should be unaffordable")
	}
}
