package scheduler

import (
	"fmt"
	"testing"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

func colony(n int, role model.Role) model.State {
	s := model.State{
		Heat:     12,
		HiveCore: model.HiveCore{Heat: 5},
		Policies: model.Policies{
			ThermalPriority:  model.ThermalStability,
			SensoryAcuity:    model.AcuityStandard,
			ReproductionMode: model.ReproductionConservative,
		},
		Unlocked: map[model.Capability]bool{},
	}
	for i := 0; i < n; i++ {
		s.Units = append(s.Units, model.Unit{
			ID:       fmt.Sprintf("u%02d", i),
			Role:     role,
			Type:     model.TypeMechanical,
			Activity: model.ActivityActive,
		})
	}
	return s
}

func count(s model.State, a model.Activity) int {
	n := 0
	for _, u := range s.Units {
		if u.Activity == a {
			n++
		}
	}
	return n
}

func TestTargetActiveFraction_Bands(t *testing.T) {
	tu := tuning.Defaults()
	cases := []struct {
		heat float64
		want float64
	}{
		{0, 0.7}, {69.9, 0.7}, {70, 0.5}, {84.9, 0.5}, {85, 0.3}, {200, 0.3},
	}
	for _, tc := range cases {
		if got := TargetActiveFraction(tc.heat, tu); got != tc.want {
			t.Fatalf("heat %v: got %v want %v", tc.heat, got, tc.want)
		}
	}
}

func TestApply_StabilityKeepsSeventyPercentAtLowHeat(t *testing.T) {
	tu := tuning.Defaults()
	out := Apply(colony(3, model.RoleSensor), tu)
	if got := count(out, model.ActivityActive); got != 2 {
		t.Fatalf("active=%d want 2", got)
	}
	if out.Units[2].Activity != model.ActivityStandby {
		t.Fatalf("ties should resolve by order; unit 2 = %s", out.Units[2].Activity)
	}
}

func TestApply_AtLeastOneActive(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(1, model.RoleWorker)
	s.Heat = 200
	out := Apply(s, tu)
	if count(out, model.ActivityActive) != 1 {
		t.Fatalf("expected the single unit to remain active")
	}
}

func TestApply_HighHeatHibernatesRest(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(10, model.RoleWorker)
	s.Heat = 90
	out := Apply(s, tu)
	if got := count(out, model.ActivityActive); got != 3 {
		t.Fatalf("active=%d want 3", got)
	}
	if got := count(out, model.ActivityHibernating); got != 7 {
		t.Fatalf("hibernating=%d want 7", got)
	}
}

func TestApply_PerformanceWithoutRotationKeepsActivity(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(4, model.RoleSensor)
	s.Policies.ThermalPriority = model.ThermalPerformance
	s.Units[1].Activity = model.ActivityStandby
	s.Units[3].Activity = model.ActivityHibernating
	out := Apply(s, tu)
	for i := range s.Units {
		if out.Units[i].Activity != s.Units[i].Activity {
			t.Fatalf("unit %d changed %s -> %s", i, s.Units[i].Activity, out.Units[i].Activity)
		}
	}
}

func TestApply_DigestersAlwaysActive(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(4, model.RoleSensor)
	s.Heat = 120
	s.Units = append(s.Units, model.Unit{ID: "dig", Role: model.RoleDigester, Type: model.TypeMechanical, Activity: model.ActivityHibernating})
	for _, tp := range []model.ThermalPriority{model.ThermalStability, model.ThermalPerformance} {
		s.Policies.ThermalPriority = tp
		out := Apply(s, tu)
		if out.Units[4].Activity != model.ActivityActive {
			t.Fatalf("%s: digester is %s", tp, out.Units[4].Activity)
		}
	}
}

func TestApply_DefenderBonusUnderThreat(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(2, model.RoleSensor)
	s.Units = append(s.Units, model.Unit{ID: "def", Role: model.RoleDefender, Type: model.TypeMechanical, Activity: model.ActivityActive})
	s.Heat = 90 // fraction 0.3 -> one active
	s.Threats.Level = 100
	out := Apply(s, tu)
	if out.Units[2].Activity != model.ActivityActive {
		t.Fatalf("defender should win the single slot under full threat")
	}
}

func TestApply_FatigueRanksAndClamps(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(3, model.RoleSensor)
	s.Units[0].Fatigue = 98
	out := Apply(s, tu)
	if out.Units[0].Activity == model.ActivityActive {
		t.Fatalf("most fatigued sensor should be rotated out")
	}
	if out.Units[1].Fatigue != 6 || out.Units[2].Fatigue != 6 {
		t.Fatalf("active fatigue: %v %v", out.Units[1].Fatigue, out.Units[2].Fatigue)
	}
	if out.Units[0].Fatigue != 99 {
		t.Fatalf("standby fatigue: got %v want 99", out.Units[0].Fatigue)
	}

	s.Policies.ThermalPriority = model.ThermalPerformance
	s.Units[0].Activity = model.ActivityActive
	s.Units[1].Activity = model.ActivityHibernating
	s.Units[1].Fatigue = 2
	out = Apply(s, tu)
	if out.Units[0].Fatigue != 100 || out.Units[1].Fatigue != 0 {
		t.Fatalf("fatigue clamp: %v %v", out.Units[0].Fatigue, out.Units[1].Fatigue)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(5, model.RoleWorker)
	s.Heat = 95
	_ = Apply(s, tu)
	for _, u := range s.Units {
		if u.Activity != model.ActivityActive || u.Fatigue != 0 {
			t.Fatalf("input mutated: %+v", u)
		}
	}
}

func TestRefreshPods_StatusFromMembers(t *testing.T) {
	tu := tuning.Defaults()
	s := colony(3, model.RoleSensor)
	s.Units[0].Activity = model.ActivityHibernating
	s.Units[1].Activity = model.ActivityStandby
	s.Units[2].Activity = model.ActivityHibernating
	s.Pods = []model.Pod{
		{ID: "pod_alpha", Status: model.PodActive, Units: []string{"u00", "u01"}},
		{ID: "pod_beta", Status: model.PodActive, Units: []string{"u02"}},
		{ID: "pod_gamma", Status: model.PodDamaged},
	}
	RefreshPods(&s, tu)
	if s.Pods[0].Status != model.PodStandby || s.Pods[1].Status != model.PodHibernating || s.Pods[2].Status != model.PodDamaged {
		t.Fatalf("pod statuses: %s %s %s", s.Pods[0].Status, s.Pods[1].Status, s.Pods[2].Status)
	}
	if s.Pods[0].HeatContribution <= s.Pods[1].HeatContribution {
		t.Fatalf("heat contribution should follow member activity: %v vs %v", s.Pods[0].HeatContribution, s.Pods[1].HeatContribution)
	}
}
