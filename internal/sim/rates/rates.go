// Package rates computes per-unit production and heat rates and the colony's
// total thermal load. Everything here is a pure function of its arguments.
package rates

import (
	"math"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

// Rates is one unit's per-cycle contribution before aggregation.
type Rates struct {
	Biomass     float64
	Minerals    float64
	Data        float64
	Map         float64
	Control     float64
	Heat        float64
	Energy      float64
	Suppression float64
}

func (r *Rates) add(o Rates) {
	r.Biomass += o.Biomass
	r.Minerals += o.Minerals
	r.Data += o.Data
	r.Map += o.Map
	r.Control += o.Control
	r.Heat += o.Heat
	r.Energy += o.Energy
	r.Suppression += o.Suppression
}

func ActivityMultiplier(a model.Activity, t tuning.Tuning) tuning.Multipliers {
	switch a {
	case model.ActivityStandby:
		return t.Activity.Standby
	case model.ActivityHibernating:
		return t.Activity.Hibernating
	default:
		return t.Activity.Active
	}
}

// Factors are the policy multipliers that apply to one role.
type Factors struct {
	Output float64
	Heat   float64
	Map    float64
}

// PolicyFactors folds thermal priority and, for SENSOR only, sensory acuity.
func PolicyFactors(role model.Role, p model.Policies, t tuning.Tuning) Factors {
	tp := thermal(p.ThermalPriority, t)
	f := Factors{Output: tp.Output, Heat: tp.Heat, Map: tp.Output}
	if role != model.RoleSensor {
		return f
	}
	switch p.SensoryAcuity {
	case model.AcuityHigh:
		f.Output *= t.Policy.AcuityHigh.Output
		f.Heat *= t.Policy.AcuityHigh.Heat
		f.Map *= t.Policy.AcuityHigh.Map
	case model.AcuityLow:
		f.Output *= t.Policy.AcuityLow.Output
		f.Heat *= t.Policy.AcuityLow.Heat
		f.Map *= t.Policy.AcuityLow.Map
	}
	return f
}

// CoolingMultiplier scales the colony's passive cooling.
func CoolingMultiplier(p model.Policies, t tuning.Tuning) float64 {
	return thermal(p.ThermalPriority, t).Cooling
}

func thermal(tp model.ThermalPriority, t tuning.Tuning) tuning.ThermalPriority {
	if tp == model.ThermalPerformance {
		return t.Policy.Performance
	}
	return t.Policy.Stability
}

// ForUnit returns the unit's rates under the given policies.
func ForUnit(u model.Unit, p model.Policies, t tuning.Tuning) Rates {
	prof := t.Roles[u.Role.Key()]
	act := ActivityMultiplier(u.Activity, t)
	if u.Role == model.RoleDigester {
		// Digesters ignore scheduling.
		act = t.Activity.Active
	}
	pf := PolicyFactors(u.Role, p, t)
	scale := t.TypeScale[string(u.Type)]
	if scale == 0 {
		scale = 1
	}

	out := act.Output * pf.Output
	r := Rates{
		Biomass:  prof.Biomass * out,
		Minerals: prof.Minerals * out,
		Data:     prof.Data * out,
		Map:      prof.Map * act.Output * pf.Map,
		Control:  prof.Control * out,
		Heat:     prof.Heat * scale * act.Heat * pf.Heat,
		Energy:   prof.Energy * scale * act.Energy,
	}
	if u.Activity == model.ActivityActive {
		r.Suppression = prof.Suppression
	}
	return r
}

// Totals aggregates every unit of a state.
type Totals struct {
	Rates
	ActiveUnits     int
	ActiveDigesters int
	ActiveDefenders int
}

func Aggregate(s model.State, t tuning.Tuning) Totals {
	var tot Totals
	cognition := s.IsUnlocked(model.UnlockDistributedCognition)
	for _, u := range s.Units {
		r := ForUnit(u, s.Policies, t)
		if cognition && u.Role == model.RoleSensor {
			r.Data *= t.Policy.CognitionDataBoost
		}
		tot.add(r)
		if u.Activity == model.ActivityActive || u.Role == model.RoleDigester {
			tot.ActiveUnits++
			switch u.Role {
			case model.RoleDigester:
				tot.ActiveDigesters++
			case model.RoleDefender:
				tot.ActiveDefenders++
			}
		}
	}
	return tot
}

// TotalHeat is ambient heat plus every live contribution. It is recomputed
// on each call and never stored.
func TotalHeat(s model.State, t tuning.Tuning) float64 {
	tot := Aggregate(s, t)
	h := s.Heat + tot.Heat + s.HiveCore.Heat
	h += math.Floor(float64(tot.ActiveUnits) / float64(t.Heat.DensityGroup))
	h += PolicyLoad(s, t)
	return h
}

// PolicyLoad is the heat added by colony-wide directives and unlocks.
func PolicyLoad(s model.State, t tuning.Tuning) float64 {
	var h float64
	switch s.Policies.SensoryAcuity {
	case model.AcuityHigh:
		h += t.Heat.AcuityHighLoad
	case model.AcuityLow:
	default:
		h += t.Heat.AcuityStdLoad
	}
	if s.Policies.ReproductionMode == model.ReproductionAggressive {
		h += t.Heat.AggressiveLoad
	}
	if s.IsUnlocked(model.UnlockDistributedCognition) {
		h += t.Heat.CognitionLoad
	}
	return h
}

func IsCritical(s model.State, t tuning.Tuning) bool {
	return TotalHeat(s, t) > t.Heat.Critical
}

func IsElevated(s model.State, t tuning.Tuning) bool {
	return TotalHeat(s, t) > t.Heat.Elevated
}
