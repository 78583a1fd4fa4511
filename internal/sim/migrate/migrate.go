// Package migrate rebuilds a fully-typed colony state from a persisted
// snapshot of any schema revision. Every field is listed with an explicit
// default; nothing from the input is trusted to be present or well-typed.
package migrate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

type object = map[string]any

// FromJSON decodes and migrates a snapshot. A document that is not a JSON
// object is reported as no save (false). A {"state":{...},"savedAt":...}
// envelope is unwrapped.
func FromJSON(raw []byte) (model.State, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.State{}, false
	}
	return FromValue(v)
}

// FromValue migrates an already-decoded document.
func FromValue(v any) (model.State, bool) {
	m, ok := v.(object)
	if !ok {
		return model.State{}, false
	}
	if inner, ok := m["state"].(object); ok {
		if _, hasCycle := m["cycle"]; !hasCycle {
			m = inner
		}
	}
	return migrate(m), true
}

func migrate(m object) model.State {
	t := tuning.Defaults()
	def := colony.New(model.DefaultDifficulty(), t)

	s := model.State{
		Cycle:    intField(m, "cycle", def.Cycle),
		Phase:    phaseField(m, "phase", def.Phase),
		Heat:     num(m, "heat", def.Heat),
		Biomass:  num(m, "biomass", def.Biomass),
		Minerals: num(m, "minerals", def.Minerals),
		Data:     num(m, "data", def.Data),
		Energy:   num(m, "energy", def.Energy),

		ExtinctionEvents:      intField(m, "extinctionEvents", 0),
		NativeLifeEncountered: boolean(m, "nativeLifeEncountered", false),
		NativeLifeDecision:    str(m, "nativeLifeDecision", ""),
	}
	if s.Cycle < 1 {
		s.Cycle = 1
	}
	if s.ExtinctionEvents < 0 {
		s.ExtinctionEvents = 0
	}

	hc := obj(m, "hiveCore")
	s.HiveCore = model.HiveCore{
		Health:               num(hc, "health", def.HiveCore.Health),
		Capacity:             num(hc, "capacity", def.HiveCore.Capacity),
		DigestionRate:        num(hc, "digestionRate", def.HiveCore.DigestionRate),
		ConversionEfficiency: num(hc, "conversionEfficiency", def.HiveCore.ConversionEfficiency),
		Heat:                 num(hc, "heat", def.HiveCore.Heat),
	}

	tr := obj(m, "territory")
	s.Territory = model.Territory{
		Mapped:     num(tr, "mapped", def.Territory.Mapped),
		Controlled: num(tr, "controlled", def.Territory.Controlled),
	}

	d := obj(m, "difficulty")
	s.Difficulty = model.Difficulty{
		HeatMultiplier:         math.Max(1, num(d, "heatMultiplier", 1)),
		ResourceCostMultiplier: math.Max(1, num(d, "resourceCostMultiplier", 1)),
		DilemmaFrequency:       model.Clamp(num(d, "dilemmaFrequency", 0), 0, 1),
		NativeLifeHostility:    boolean(d, "nativeLifeHostility", false),
	}

	th := obj(m, "threats")
	defHostility := t.Threat.BaseHostility
	if s.Difficulty.NativeLifeHostility {
		defHostility = t.Threat.HostileNatives
	}
	s.Threats = model.Threats{
		Level:      num(th, "level", 0),
		Discovered: boolean(th, "discovered", false),
		Hostility:  num(th, "hostility", defHostility),
	}

	p := obj(m, "policies")
	s.Policies = model.Policies{
		ThermalPriority:  model.ThermalPriority(enum(p, "thermalPriority", string(def.Policies.ThermalPriority), "stability", "performance")),
		SensoryAcuity:    model.SensoryAcuity(enum(p, "sensoryAcuity", string(def.Policies.SensoryAcuity), "low", "standard", "high")),
		ReproductionMode: model.ReproductionMode(enum(p, "reproductionMode", string(def.Policies.ReproductionMode), "conservative", "aggressive")),
	}

	ul := obj(m, "unlocked")
	s.Unlocked = make(map[model.Capability]bool, len(model.Capabilities))
	for _, c := range model.Capabilities {
		s.Unlocked[c] = boolean(ul, string(c), false)
	}

	unitsRaw, unitsOK := m["units"].([]any)
	if unitsOK {
		s.Units = units(unitsRaw)
	} else {
		s.Units = append([]model.Unit{}, def.Units...)
	}
	if podsRaw, ok := m["pods"].([]any); ok {
		s.Pods = pods(podsRaw)
	} else if !unitsOK {
		s.Pods = def.Pods
	} else {
		s.Pods = []model.Pod{}
	}

	c := obj(m, "counters")
	s.Counters = model.Counters{
		NextUnit: intField(c, "nextUnit", 0),
		NextPod:  intField(c, "nextPod", 0),
	}
	if s.Counters.NextUnit < len(s.Units)+1 {
		s.Counters.NextUnit = len(s.Units) + 1
	}
	if s.Counters.NextPod < len(s.Pods) {
		s.Counters.NextPod = len(s.Pods)
	}
	reconcilePods(&s, t.PodCapacity)

	s.EthicalQuestions = ethical(m["ethicalQuestions"])
	s.Reflections = reflections(m["reflections"])
	s.History = history(m["history"])

	a := obj(m, "ascension")
	s.Ascension = model.Ascension{
		SeedsLaunched: intField(a, "seedsLaunched", 0),
		WorldsSeeded:  worlds(a["worldsSeeded"]),
	}

	// lastCycle is narration-only and not carried across loads.
	s.LastCycle = nil

	s.ClampResources()
	return s
}

func units(raw []any) []model.Unit {
	out := make([]model.Unit, 0, len(raw))
	seen := map[string]bool{}
	for i, v := range raw {
		u, ok := v.(object)
		if !ok {
			continue
		}
		unit := model.Unit{
			ID:      str(u, "id", ""),
			Role:    model.Role(strings.ToUpper(str(u, "role", ""))),
			Type:    model.UnitType(strings.ToLower(str(u, "type", ""))),
			Fatigue: model.Clamp(num(u, "fatigue", 0), 0, 100),
			PodID:   str(u, "podId", ""),
		}
		if !unit.Role.Valid() {
			unit.Role = model.RoleSensor
		}
		if !unit.Type.Valid() {
			unit.Type = model.TypeMechanical
		}
		unit.Activity = model.Activity(strings.ToUpper(str(u, "activity", "")))
		if !unit.Activity.Valid() {
			unit.Activity = model.ActivityActive
			if active, ok := u["active"].(bool); ok && !active {
				unit.Activity = model.ActivityStandby
			}
		}
		if unit.Role == model.RoleDigester {
			unit.Activity = model.ActivityActive
		}
		if unit.ID == "" || seen[unit.ID] {
			base := unit.ID
			if base == "" {
				base = fmt.Sprintf("unit_%02d", i+1)
			}
			id := base
			for n := 2; seen[id]; n++ {
				id = fmt.Sprintf("%s_%d", base, n)
			}
			unit.ID = id
		}
		seen[unit.ID] = true
		out = append(out, unit)
	}
	return out
}

func pods(raw []any) []model.Pod {
	out := make([]model.Pod, 0, len(raw))
	seen := map[string]bool{}
	for _, v := range raw {
		p, ok := v.(object)
		if !ok {
			continue
		}
		id := str(p, "id", "")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		pod := model.Pod{
			ID:               id,
			Name:             str(p, "name", id),
			Status:           model.PodStatus(strings.ToUpper(str(p, "status", ""))),
			HeatContribution: math.Max(0, num(p, "heatContribution", 0)),
			LastRotation:     intField(p, "lastRotation", 0),
			Units:            []string{},
		}
		switch pod.Status {
		case model.PodActive, model.PodStandby, model.PodHibernating, model.PodDamaged:
		default:
			pod.Status = model.PodActive
		}
		if members, ok := p["units"].([]any); ok {
			for _, mv := range members {
				if s, ok := mv.(string); ok && s != "" {
					pod.Units = append(pod.Units, s)
				}
			}
		}
		out = append(out, pod)
	}
	return out
}

// reconcilePods makes pod membership and unit.PodID agree: every unit sits
// in exactly one pod and pods list only existing units.
func reconcilePods(s *model.State, capacity int) {
	owner := map[string]string{}
	for i := range s.Pods {
		p := &s.Pods[i]
		kept := make([]string, 0, len(p.Units))
		for _, id := range p.Units {
			if s.UnitIndex(id) < 0 || owner[id] != "" {
				continue
			}
			owner[id] = p.ID
			kept = append(kept, id)
		}
		p.Units = kept
	}
	for i := range s.Units {
		u := &s.Units[i]
		if o := owner[u.ID]; o != "" {
			u.PodID = o
			continue
		}
		if j := s.PodIndex(u.PodID); j >= 0 && s.Pods[j].Status != model.PodDamaged {
			s.Pods[j].Units = append(s.Pods[j].Units, u.ID)
			owner[u.ID] = u.PodID
			continue
		}
		j := -1
		for k, p := range s.Pods {
			if p.Status != model.PodDamaged && len(p.Units) < capacity {
				j = k
				break
			}
		}
		if j < 0 {
			id, name := colony.PodIdentity(s.Counters.NextPod)
			for s.PodIndex(id) >= 0 {
				s.Counters.NextPod++
				id, name = colony.PodIdentity(s.Counters.NextPod)
			}
			s.Counters.NextPod++
			s.Pods = append(s.Pods, model.Pod{ID: id, Name: name, Status: model.PodActive, Units: []string{}})
			j = len(s.Pods) - 1
		}
		s.Pods[j].Units = append(s.Pods[j].Units, u.ID)
		u.PodID = s.Pods[j].ID
		owner[u.ID] = u.PodID
	}
}

func ethical(v any) []model.EthicalQuestion {
	out := []model.EthicalQuestion{}
	arr, _ := v.([]any)
	for _, e := range arr {
		q, ok := e.(object)
		if !ok {
			continue
		}
		out = append(out, model.EthicalQuestion{
			Cycle:       intField(q, "cycle", 0),
			Dilemma:     str(q, "dilemma", ""),
			Title:       str(q, "title", ""),
			Choice:      str(q, "choice", ""),
			ChoiceLabel: str(q, "choiceLabel", ""),
			Weight:      str(q, "weight", ""),
			Reflection:  str(q, "reflection", ""),
		})
	}
	return out
}

func reflections(v any) []model.Reflection {
	out := []model.Reflection{}
	arr, _ := v.([]any)
	for _, e := range arr {
		switch r := e.(type) {
		case object:
			out = append(out, model.Reflection{Cycle: intField(r, "cycle", 0), Thought: str(r, "thought", "")})
		case string:
			out = append(out, model.Reflection{Thought: r})
		}
	}
	return out
}

func history(v any) []model.HistoryEntry {
	out := []model.HistoryEntry{}
	arr, _ := v.([]any)
	for _, e := range arr {
		h, ok := e.(object)
		if !ok {
			continue
		}
		out = append(out, model.HistoryEntry{
			Cycle:       intField(h, "cycle", 0),
			Event:       str(h, "event", ""),
			Description: str(h, "description", ""),
		})
	}
	return out
}

func worlds(v any) []model.SeededWorld {
	out := []model.SeededWorld{}
	arr, _ := v.([]any)
	for _, e := range arr {
		switch w := e.(type) {
		case object:
			out = append(out, model.SeededWorld{Name: str(w, "name", ""), Cycle: intField(w, "cycle", 0)})
		case string:
			out = append(out, model.SeededWorld{Name: w})
		}
	}
	return out
}

func obj(m object, key string) object {
	if m == nil {
		return nil
	}
	o, _ := m[key].(object)
	return o
}

func num(m object, key string, def float64) float64 {
	f, ok := m[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func intField(m object, key string, def int) int {
	f, ok := m[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return def
	}
	return int(math.Floor(f))
}

func str(m object, key, def string) string {
	s, ok := m[key].(string)
	if !ok {
		return def
	}
	return s
}

func boolean(m object, key string, def bool) bool {
	b, ok := m[key].(bool)
	if !ok {
		return def
	}
	return b
}

func enum(m object, key, def string, allowed ...string) string {
	v := strings.ToLower(str(m, key, ""))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}

func phaseField(m object, key string, def model.Phase) model.Phase {
	p := model.Phase(strings.ToUpper(str(m, key, "")))
	if !p.Valid() {
		return def
	}
	return p
}
