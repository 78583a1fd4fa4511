package command

import (
	"reflect"
	"strings"
	"testing"

	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

func start() (model.State, tuning.Tuning) {
	tu := tuning.Defaults()
	return colony.New(model.DefaultDifficulty(), tu), tu
}

func TestInterpret_AdvanceCycles(t *testing.T) {
	s, tu := start()
	cases := []struct {
		in   string
		want int
	}{
		{"advance 3 cycles", 3},
		{"  Advance   3 Cycles ", 3},
		{"next cycle", 1},
		{"wait", 1},
		{"advance 0 cycles", 1},
		{"advance 400 cycles", 25},
		{"advnce 2 cycles", 2},
	}
	for _, tc := range cases {
		r := Interpret(tc.in, s, tu)
		if !r.Handled {
			t.Fatalf("%q not handled", tc.in)
		}
		if r.State.Cycle != s.Cycle+tc.want {
			t.Fatalf("%q: cycle=%d want %d", tc.in, r.State.Cycle, s.Cycle+tc.want)
		}
		if !strings.Contains(r.Reply, "Thermal load now") || !strings.Contains(r.Reply, "%") {
			t.Fatalf("%q: reply %q", tc.in, r.Reply)
		}
	}
	if s.Cycle != 1 {
		t.Fatalf("input mutated")
	}
}

func TestInterpret_AdvanceReplyReportsLoad(t *testing.T) {
	s, tu := start()
	r := Interpret("advance 3 cycles", s, tu)
	want := "Cycle advanced x3. Thermal load now "
	if !strings.HasPrefix(r.Reply, want) {
		t.Fatalf("reply=%q", r.Reply)
	}
	if !strings.HasSuffix(r.Reply, "%.") {
		t.Fatalf("reply=%q", r.Reply)
	}
}

func TestInterpret_UnrecognizedIsUnhandled(t *testing.T) {
	s, tu := start()
	for _, in := range []string{"tell me about the stars", "", "   ", "please sing"} {
		r := Interpret(in, s, tu)
		if r.Handled {
			t.Fatalf("%q should be unhandled", in)
		}
		if !reflect.DeepEqual(r.State, s) {
			t.Fatalf("%q changed state", in)
		}
	}
}

func TestInterpret_Policies(t *testing.T) {
	s, tu := start()
	cases := []struct {
		in    string
		check func(model.Policies) bool
	}{
		{"prioritize performance", func(p model.Policies) bool { return p.ThermalPriority == model.ThermalPerformance }},
		{"sensory acuity high", func(p model.Policies) bool { return p.SensoryAcuity == model.AcuityHigh }},
		{"reduce acuity", func(p model.Policies) bool { return p.SensoryAcuity == model.AcuityLow }},
		{"reproduction aggressive", func(p model.Policies) bool { return p.ReproductionMode == model.ReproductionAggressive }},
		{"prioritze stability", func(p model.Policies) bool { return p.ThermalPriority == model.ThermalStability }},
	}
	for _, tc := range cases {
		r := Interpret(tc.in, s, tu)
		if !r.Handled || !tc.check(r.State.Policies) {
			t.Fatalf("%q: handled=%v policies=%+v", tc.in, r.Handled, r.State.Policies)
		}
	}
	// A bare "reproduction" without a mode falls through.
	if r := Interpret("reproduction", s, tu); r.Handled {
		t.Fatalf("modeless reproduction directive should be unhandled")
	}
}

func TestInterpret_DesignUnits(t *testing.T) {
	s, tu := start()
	r := Interpret("design worker", s, tu)
	if !r.Handled || len(r.State.Units) != 4 || r.State.Units[3].Role != model.RoleWorker {
		t.Fatalf("design worker: %+v", r)
	}
	if r.Reply != "Role instantiated: MECHANICAL WORKER pod." {
		t.Fatalf("reply=%q", r.Reply)
	}

	s.Biomass = 0
	r = Interpret("build digester", s, tu)
	if !r.Handled || len(r.State.Units) != 3 || !strings.HasPrefix(r.Reply, "Insufficient resources") {
		t.Fatalf("unaffordable build: %+v", r)
	}
}

func TestInterpret_CooldownAndHibernate(t *testing.T) {
	s, tu := start()
	s.Units = append(s.Units, model.Unit{ID: "dig", Role: model.RoleDigester, Type: model.TypeMechanical, Activity: model.ActivityActive})

	r := Interpret("hibernate", s, tu)
	if r.State.Heat != 0 {
		t.Fatalf("heat=%v want 0 (12-12)", r.State.Heat)
	}
	for _, u := range r.State.Units {
		want := model.ActivityHibernating
		if u.Role == model.RoleDigester {
			want = model.ActivityActive
		}
		if u.Activity != want {
			t.Fatalf("%s is %s", u.ID, u.Activity)
		}
	}

	r = Interpret("cooldown", s, tu)
	if r.State.Heat != 6 || r.State.Units[0].Activity != model.ActivityStandby {
		t.Fatalf("cooldown: heat=%v activity=%s", r.State.Heat, r.State.Units[0].Activity)
	}
}

func TestInterpret_ReportsAndHelp(t *testing.T) {
	s, tu := start()
	r := Interpret("status", s, tu)
	if !r.Handled || len(r.Logs) != 1 || !strings.Contains(r.Logs[0].Text, "SYSTEM REPORT") {
		t.Fatalf("status: %+v", r)
	}
	if !reflect.DeepEqual(r.State, s) {
		t.Fatalf("status changed state")
	}
	r = Interpret("timeline", s, tu)
	if !r.Handled || !strings.Contains(r.Logs[0].Text, "seed_awakened") {
		t.Fatalf("timeline: %+v", r.Logs)
	}
	if r := Interpret("HELP", s, tu); !r.Handled || !strings.Contains(r.Reply, "Recognized directives") {
		t.Fatalf("help: %+v", r)
	}
}

func TestInterpret_LaunchSeedRequiresAscension(t *testing.T) {
	s, tu := start()
	r := Interpret("launch seed to Tau Ceti", s, tu)
	if !r.Handled || !reflect.DeepEqual(r.State, s) {
		t.Fatalf("launch before ascension should be a handled no-op")
	}
	s.Phase = model.PhaseAscension
	s.Unlocked[model.UnlockInterstellarSeeding] = true
	s.Biomass, s.Minerals, s.Energy, s.Data = 2000, 1000, 500, 500
	r = Interpret("launch seed to Tau Ceti", s, tu)
	if r.State.Ascension.SeedsLaunched != 1 || r.State.Ascension.WorldsSeeded[0].Name != "tau ceti" {
		t.Fatalf("launch: %+v", r.State.Ascension)
	}
}

func TestCorrectVerb(t *testing.T) {
	cases := map[string]string{
		"advnce 2":      "advance 2",
		"hibernat":      "hibernate",
		"status":        "status",
		"text me":       "text me",
		"please listen": "please listen",
	}
	for in, want := range cases {
		if got := correctVerb(in); got != want {
			t.Fatalf("correctVerb(%q)=%q want %q", in, got, want)
		}
	}
}

func TestInterpretWith_HookStopsAdvance(t *testing.T) {
	tu := tuning.Defaults()
	s := colony.New(model.DefaultDifficulty(), tu)
	var seen []int
	res := InterpretWith("advance 10 cycles", s, tu, func(next model.State) bool {
		seen = append(seen, next.Cycle)
		return next.Cycle == 4
	})
	if !res.Handled || res.State.Cycle != 4 {
		t.Fatalf("handled=%v cycle=%d", res.Handled, res.State.Cycle)
	}
	if len(seen) != 3 || seen[0] != 2 {
		t.Fatalf("hook saw %v", seen)
	}
	if !strings.Contains(res.Reply, "x3") {
		t.Fatalf("reply=%q", res.Reply)
	}
}
