// Package colony creates runs and applies the player's direct construction
// and policy directives.
package colony

import (
	"fmt"
	"sort"
	"strings"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

var podNames = []string{
	"alpha", "beta", "gamma", "delta", "epsilon", "zeta",
	"eta", "theta", "iota", "kappa", "lambda", "mu",
}

// PodIdentity returns the id and display name of the n-th pod (0-based).
func PodIdentity(n int) (id, name string) {
	if n >= 0 && n < len(podNames) {
		w := podNames[n]
		return "pod_" + w, strings.ToUpper(w[:1]) + w[1:] + " Pod"
	}
	return fmt.Sprintf("pod_%02d", n+1), fmt.Sprintf("Pod %d", n+1)
}

// UnitID returns the stable id for the n-th unit (1-based).
func UnitID(role model.Role, typ model.UnitType, n int) string {
	return fmt.Sprintf("%s_%s_%02d", typ.Prefix(), role.Key(), n)
}

// New creates the starting state of a run. d is frozen for the run.
func New(d model.Difficulty, t tuning.Tuning) model.State {
	hostility := t.Threat.BaseHostility
	if d.NativeLifeHostility {
		hostility = t.Threat.HostileNatives
	}
	s := model.State{
		Cycle:    1,
		Phase:    model.PhaseMechanical,
		Heat:     12,
		Biomass:  450,
		Minerals: 200,
		Data:     50,
		Energy:   100,
		HiveCore: model.HiveCore{
			Health:               100,
			Capacity:             500,
			DigestionRate:        10,
			ConversionEfficiency: 0.8,
			Heat:                 5,
		},
		Territory: model.Territory{Mapped: 15, Controlled: 10},
		Threats:   model.Threats{Hostility: hostility},
		Policies: model.Policies{
			ThermalPriority:  model.ThermalStability,
			SensoryAcuity:    model.AcuityStandard,
			ReproductionMode: model.ReproductionConservative,
		},
		Unlocked:         map[model.Capability]bool{},
		EthicalQuestions: []model.EthicalQuestion{},
		Reflections:      []model.Reflection{},
		History:          []model.HistoryEntry{},
		Difficulty:       d,
		Ascension:        model.Ascension{WorldsSeeded: []model.SeededWorld{}},
	}
	for _, c := range model.Capabilities {
		s.Unlocked[c] = false
	}

	alphaID, alphaName := PodIdentity(0)
	betaID, betaName := PodIdentity(1)
	s.Pods = []model.Pod{
		{ID: alphaID, Name: alphaName, Status: model.PodActive, Units: []string{}},
		{ID: betaID, Name: betaName, Status: model.PodActive, Units: []string{}},
	}
	for i := 1; i <= 3; i++ {
		pod := 0
		if i == 3 {
			pod = 1
		}
		id := UnitID(model.RoleSensor, model.TypeMechanical, i)
		s.Units = append(s.Units, model.Unit{
			ID:       id,
			Role:     model.RoleSensor,
			Type:     model.TypeMechanical,
			Activity: model.ActivityActive,
			PodID:    s.Pods[pod].ID,
		})
		s.Pods[pod].Units = append(s.Pods[pod].Units, id)
	}
	s.Counters = model.Counters{NextUnit: 4, NextPod: 2}
	s.AddHistory("seed_awakened", "Seed intelligence online. Three mechanical scouts deployed.")
	return s
}

// Cost is the construction cost of typ after the run's difficulty scaling.
func Cost(typ model.UnitType, d model.Difficulty, t tuning.Tuning) tuning.UnitCost {
	c := t.Costs[string(typ)]
	m := d.ResourceCostMultiplier
	if m <= 0 {
		m = 1
	}
	return tuning.UnitCost{Biomass: c.Biomass * m, Minerals: c.Minerals * m}
}

// TypeAvailable reports whether the colony can build typ.
func TypeAvailable(s model.State, typ model.UnitType) bool {
	switch typ {
	case model.TypeMechanical:
		return true
	case model.TypeHybrid:
		return s.IsUnlocked(model.UnlockHybridUnits)
	case model.TypeBiological:
		return s.IsUnlocked(model.UnlockBiologicalUnits)
	}
	return false
}

// BestType is the most advanced type the colony can currently build.
func BestType(s model.State) model.UnitType {
	switch {
	case TypeAvailable(s, model.TypeBiological):
		return model.TypeBiological
	case TypeAvailable(s, model.TypeHybrid):
		return model.TypeHybrid
	default:
		return model.TypeMechanical
	}
}

// AddUnit builds one unit. When the role or type is invalid, locked, or
// unaffordable, s is returned unchanged with false.
func AddUnit(s model.State, role model.Role, typ model.UnitType, t tuning.Tuning) (model.State, bool) {
	if !role.Valid() || !TypeAvailable(s, typ) {
		return s, false
	}
	cost := Cost(typ, s.Difficulty, t)
	if s.Biomass < cost.Biomass || s.Minerals < cost.Minerals {
		return s, false
	}

	out := s.Clone()
	pod := -1
	for i, p := range out.Pods {
		if p.Status != model.PodDamaged && len(p.Units) < t.PodCapacity {
			pod = i
			break
		}
	}
	if pod < 0 {
		id, name := PodIdentity(out.Counters.NextPod)
		out.Counters.NextPod++
		out.Pods = append(out.Pods, model.Pod{ID: id, Name: name, Status: model.PodActive, Units: []string{}, LastRotation: out.Cycle})
		pod = len(out.Pods) - 1
	}

	if out.Counters.NextUnit < 1 {
		out.Counters.NextUnit = len(out.Units) + 1
	}
	id := UnitID(role, typ, out.Counters.NextUnit)
	for out.UnitIndex(id) >= 0 {
		out.Counters.NextUnit++
		id = UnitID(role, typ, out.Counters.NextUnit)
	}
	out.Counters.NextUnit++

	out.Units = append(out.Units, model.Unit{
		ID:       id,
		Role:     role,
		Type:     typ,
		Activity: model.ActivityActive,
		PodID:    out.Pods[pod].ID,
	})
	out.Pods[pod].Units = append(out.Pods[pod].Units, id)
	out.Biomass -= cost.Biomass
	out.Minerals -= cost.Minerals
	out.ClampResources()
	out.AddHistory("unit_created", fmt.Sprintf("New %s %s unit deployed to %s.", typ, role.Key(), out.Pods[pod].Name))
	return out, true
}

// UpdatePolicy sets one directive. Unknown keys or values leave s unchanged.
func UpdatePolicy(s model.State, key, value string) (model.State, bool) {
	p := s.Policies
	switch key {
	case "thermalPriority":
		v := model.ThermalPriority(value)
		if v != model.ThermalStability && v != model.ThermalPerformance {
			return s, false
		}
		p.ThermalPriority = v
	case "sensoryAcuity":
		v := model.SensoryAcuity(value)
		if v != model.AcuityLow && v != model.AcuityStandard && v != model.AcuityHigh {
			return s, false
		}
		p.SensoryAcuity = v
	case "reproductionMode":
		v := model.ReproductionMode(value)
		if v != model.ReproductionConservative && v != model.ReproductionAggressive {
			return s, false
		}
		p.ReproductionMode = v
	default:
		return s, false
	}
	out := s.Clone()
	out.Policies = p
	out.AddHistory("policy_change", fmt.Sprintf("Directive updated: %s set to %s.", key, value))
	return out, true
}

// RemoveUnits removes up to n units in place and returns how many were
// removed. Victims are chosen by highest fatigue, then most recently added;
// digesters are only taken once nothing else is left. A pod emptied by the
// loss is marked DAMAGED.
func RemoveUnits(s *model.State, n int) int {
	if n <= 0 || len(s.Units) == 0 {
		return 0
	}
	order := make([]int, len(s.Units))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ua, ub := s.Units[order[a]], s.Units[order[b]]
		da, db := ua.Role == model.RoleDigester, ub.Role == model.RoleDigester
		if da != db {
			return !da
		}
		if ua.Fatigue != ub.Fatigue {
			return ua.Fatigue > ub.Fatigue
		}
		return order[a] > order[b]
	})
	if n > len(order) {
		n = len(order)
	}
	victims := make(map[string]bool, n)
	for _, idx := range order[:n] {
		victims[s.Units[idx].ID] = true
	}

	kept := make([]model.Unit, 0, len(s.Units)-n)
	for _, u := range s.Units {
		if !victims[u.ID] {
			kept = append(kept, u)
		}
	}
	s.Units = kept

	for i := range s.Pods {
		p := &s.Pods[i]
		members := make([]string, 0, len(p.Units))
		for _, id := range p.Units {
			if !victims[id] {
				members = append(members, id)
			}
		}
		if len(members) == 0 && len(p.Units) > 0 {
			p.Status = model.PodDamaged
		}
		p.Units = members
	}
	return n
}
