// Package scheduler assigns unit activity ahead of each cycle to keep the
// colony's thermal load in a viable band.
package scheduler

import (
	"math"
	"sort"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
)

// Enabled reports whether proactive scheduling runs for s.
func Enabled(s model.State) bool {
	return s.IsUnlocked(model.UnlockThermalRotation) || s.Policies.ThermalPriority == model.ThermalStability
}

// TargetActiveFraction is the step function of total heat.
func TargetActiveFraction(totalHeat float64, t tuning.Tuning) float64 {
	switch {
	case totalHeat >= t.Scheduler.HighBand:
		return t.Scheduler.HighFraction
	case totalHeat >= t.Scheduler.MidBand:
		return t.Scheduler.MidFraction
	default:
		return t.Scheduler.LowFraction
	}
}

// Score ranks a rotatable unit; higher scores stay active.
func Score(u model.Unit, threat float64, t tuning.Tuning) float64 {
	sc := t.Scheduler.RoleWeights[u.Role.Key()]
	if u.Role == model.RoleDefender && t.Scheduler.DefenderThreat > 0 {
		sc += threat / t.Scheduler.DefenderThreat
	}
	return sc - t.Scheduler.FatiguePenalty*u.Fatigue
}

// Apply returns a copy of s with activity and fatigue updated for this cycle.
func Apply(s model.State, t tuning.Tuning) model.State {
	out := s.Clone()

	if Enabled(s) {
		heat := rates.TotalHeat(s, t)
		rotatable := make([]int, 0, len(out.Units))
		for i, u := range out.Units {
			if u.Role != model.RoleDigester {
				rotatable = append(rotatable, i)
			}
		}
		if len(rotatable) > 0 {
			sort.SliceStable(rotatable, func(a, b int) bool {
				return Score(out.Units[rotatable[a]], s.Threats.Level, t) > Score(out.Units[rotatable[b]], s.Threats.Level, t)
			})
			desired := int(math.Floor(float64(len(rotatable)) * TargetActiveFraction(heat, t)))
			if desired < 1 {
				desired = 1
			}
			rest := model.ActivityStandby
			if heat >= t.Scheduler.HibernateAt {
				rest = model.ActivityHibernating
			}
			for rank, idx := range rotatable {
				if rank < desired {
					out.Units[idx].Activity = model.ActivityActive
				} else {
					out.Units[idx].Activity = rest
				}
			}
		}
	}

	for i := range out.Units {
		u := &out.Units[i]
		if u.Role == model.RoleDigester {
			u.Activity = model.ActivityActive
		}
		switch u.Activity {
		case model.ActivityActive:
			u.Fatigue += t.Scheduler.FatigueActive
		case model.ActivityStandby:
			u.Fatigue += t.Scheduler.FatigueStandby
		case model.ActivityHibernating:
			u.Fatigue += t.Scheduler.FatigueHibernate
		}
		u.Fatigue = model.Clamp(u.Fatigue, 0, 100)
	}

	RefreshPods(&out, t)
	return out
}

// RefreshPods derives each pod's status and heat contribution from its
// members. DAMAGED pods stay DAMAGED.
func RefreshPods(s *model.State, t tuning.Tuning) {
	for i := range s.Pods {
		p := &s.Pods[i]
		var heat float64
		anyActive, anyStandby, members := false, false, 0
		for _, id := range p.Units {
			idx := s.UnitIndex(id)
			if idx < 0 {
				continue
			}
			u := s.Units[idx]
			members++
			heat += rates.ForUnit(u, s.Policies, t).Heat
			switch u.Activity {
			case model.ActivityActive:
				anyActive = true
			case model.ActivityStandby:
				anyStandby = true
			}
		}
		p.HeatContribution = heat
		if p.Status == model.PodDamaged || members == 0 {
			continue
		}
		switch {
		case anyActive:
			p.Status = model.PodActive
		case anyStandby:
			p.Status = model.PodStandby
		default:
			p.Status = model.PodHibernating
		}
	}
}
