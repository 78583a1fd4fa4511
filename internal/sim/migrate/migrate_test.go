package migrate

import (
	"encoding/json"
	"reflect"
	"testing"

	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/cycle"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

const legacySave = `{
	"cycle": 14,
	"phase": "hybrid",
	"heat": 33.5,
	"biomass": -20,
	"minerals": 310,
	"data": "lots",
	"units": [
		{"id": "mechanical_sensor_1700000000", "role": "sensor", "type": "mechanical", "active": true, "heat": 2},
		{"id": "mechanical_worker_1700000001", "role": "worker", "active": false},
		{"id": "hybrid_digester_1700000002", "role": "digester", "type": "hybrid", "active": false},
		"corrupt"
	],
	"hiveCore": {"health": 80},
	"territory": {"mapped": 20, "controlled": 45},
	"policies": {"thermalPriority": "performance", "sensoryAcuity": "ultra"},
	"unlocked": {"hybridUnits": true, "teleportation": true},
	"history": "not-a-list",
	"ethicalQuestions": [{"cycle": 13, "dilemma": "native_life", "choice": "observe", "weight": "curiosity"}],
	"ascension": {"seedsLaunched": 1, "worldsSeeded": ["Proxima b"]}
}`

func mustMigrate(t *testing.T, raw string) model.State {
	t.Helper()
	s, ok := FromJSON([]byte(raw))
	if !ok {
		t.Fatalf("FromJSON(%s) reported no save", raw)
	}
	return s
}

func TestFromJSON_NotAnObjectIsNoSave(t *testing.T) {
	for _, raw := range []string{"", "null", "[]", "42", `"state"`, "{broken"} {
		if _, ok := FromJSON([]byte(raw)); ok {
			t.Fatalf("%q should be treated as no save", raw)
		}
	}
}

func TestFromJSON_EmptyObjectGetsDefaults(t *testing.T) {
	s := mustMigrate(t, `{}`)
	def := colony.New(model.DefaultDifficulty(), tuning.Defaults())
	if s.Cycle != 1 || s.Phase != model.PhaseMechanical || s.Biomass != def.Biomass || s.Energy != def.Energy {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if !reflect.DeepEqual(s.Units, def.Units) || !reflect.DeepEqual(s.Pods, def.Pods) {
		t.Fatalf("default units/pods not applied")
	}
	if s.HiveCore != def.HiveCore || s.Territory != def.Territory || s.Policies != def.Policies {
		t.Fatalf("nested defaults not applied")
	}
	if s.History == nil || s.EthicalQuestions == nil || s.Reflections == nil {
		t.Fatalf("logs must be non-nil slices")
	}
}

func TestFromJSON_LegacySave(t *testing.T) {
	s := mustMigrate(t, legacySave)

	if s.Phase != model.PhaseHybrid || s.Cycle != 14 {
		t.Fatalf("phase=%s cycle=%d", s.Phase, s.Cycle)
	}
	if s.Biomass != 0 || s.Data != 50 || s.Minerals != 310 {
		t.Fatalf("resources: biomass=%v data=%v minerals=%v", s.Biomass, s.Data, s.Minerals)
	}
	if len(s.Units) != 3 {
		t.Fatalf("units=%d want 3 (corrupt entry dropped)", len(s.Units))
	}
	want := []struct {
		role     model.Role
		typ      model.UnitType
		activity model.Activity
	}{
		{model.RoleSensor, model.TypeMechanical, model.ActivityActive},
		{model.RoleWorker, model.TypeMechanical, model.ActivityStandby},
		{model.RoleDigester, model.TypeHybrid, model.ActivityActive},
	}
	for i, w := range want {
		u := s.Units[i]
		if u.Role != w.role || u.Type != w.typ || u.Activity != w.activity || u.Fatigue != 0 {
			t.Fatalf("unit %d: %+v", i, u)
		}
		if u.PodID == "" {
			t.Fatalf("unit %d not assigned a pod", i)
		}
	}
	if len(s.Pods) != 1 || s.Pods[0].ID != "pod_alpha" || len(s.Pods[0].Units) != 3 {
		t.Fatalf("pods rebuilt wrong: %+v", s.Pods)
	}
	if s.HiveCore.Health != 80 || s.HiveCore.DigestionRate != 10 {
		t.Fatalf("hiveCore: %+v", s.HiveCore)
	}
	if s.Territory.Controlled != 20 {
		t.Fatalf("controlled must be clamped to mapped: %+v", s.Territory)
	}
	if s.Policies.ThermalPriority != model.ThermalPerformance || s.Policies.SensoryAcuity != model.AcuityStandard {
		t.Fatalf("policies: %+v", s.Policies)
	}
	if !s.Unlocked[model.UnlockHybridUnits] || len(s.Unlocked) != len(model.Capabilities) {
		t.Fatalf("unlocked: %v", s.Unlocked)
	}
	if len(s.History) != 0 || len(s.EthicalQuestions) != 1 {
		t.Fatalf("logs: history=%d ethical=%d", len(s.History), len(s.EthicalQuestions))
	}
	if s.Ascension.WorldsSeeded[0].Name != "Proxima b" {
		t.Fatalf("ascension: %+v", s.Ascension)
	}
	if s.Counters.NextUnit != 4 {
		t.Fatalf("counters: %+v", s.Counters)
	}
}

func TestFromJSON_UnwrapsSaveEnvelope(t *testing.T) {
	s := mustMigrate(t, `{"state": {"cycle": 9, "biomass": 12}, "savedAt": "2026-01-01T00:00:00Z"}`)
	if s.Cycle != 9 || s.Biomass != 12 {
		t.Fatalf("envelope not unwrapped: cycle=%d biomass=%v", s.Cycle, s.Biomass)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	tu := tuning.Defaults()
	played := cycle.Run(colony.New(model.DefaultDifficulty(), tu), 30, tu)
	playedRaw, err := json.Marshal(played)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	inputs := []string{
		`{}`,
		legacySave,
		`{"units": [{"id": "x"}, {"id": "x"}, {}], "pods": [{"id": "p", "units": ["x", "ghost", "x"]}]}`,
		`{"pods": "nope", "units": [], "counters": {"nextUnit": -3}}`,
		`{"units": [{"role": "DEFENDER", "fatigue": 250, "podId": "pod_zeta"}], "difficulty": {"heatMultiplier": 0.2, "dilemmaFrequency": 7}}`,
		string(playedRaw),
	}
	for i, in := range inputs {
		once := mustMigrate(t, in)
		raw, err := json.Marshal(once)
		if err != nil {
			t.Fatalf("input %d: marshal: %v", i, err)
		}
		twice := mustMigrate(t, string(raw))
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("input %d: migration not idempotent\n once=%+v\ntwice=%+v", i, once, twice)
		}
	}
}

func TestMigrate_CurrentSchemaRoundTrips(t *testing.T) {
	tu := tuning.Defaults()
	s := cycle.Run(colony.New(model.DefaultDifficulty(), tu), 20, tu)
	s, _ = colony.AddUnit(s, model.RoleWorker, model.TypeMechanical, tu)
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := mustMigrate(t, string(raw))
	s.LastCycle = nil
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("current-schema save changed on load\n got=%+v\nwant=%+v", got, s)
	}
}
