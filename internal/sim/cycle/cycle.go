// Package cycle advances a colony by one simulation tick. Process never
// fails: shortfalls are clamped and surfaced as history entries.
package cycle

import (
	"fmt"
	"math"
	"sort"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/progression"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/scheduler"
	"seedhive.ai/internal/sim/tuning"
)

const (
	EventEnergyStarvation  = "energy_starvation"
	EventThermalConstraint = "thermal_constraint"
	EventPodRotation       = "pod_rotation"
	EventThreatDiscovered  = "threat_discovered"
	EventAscension         = "ascension"
)

// Process returns the state one cycle after s. s is not modified.
func Process(s model.State, t tuning.Tuning) model.State {
	out := s.Clone()
	out.Cycle++

	out = scheduler.Apply(out, t)

	tot := rates.Aggregate(out, t)
	delta := model.Delta{
		Biomass:  tot.Biomass,
		Minerals: tot.Minerals,
		Data:     tot.Data,
		Energy:   -tot.Energy,
		Map:      tot.Map,
		Control:  tot.Control,
	}
	var events []string

	// Hive-core digestion always runs.
	rate := out.HiveCore.DigestionRate + t.Digestion.DigesterRateBonus*float64(tot.ActiveDigesters)
	digested := math.Min(rate*t.Digestion.Scale, out.Biomass/t.Digestion.BiomassDivisor)
	if digested < 0 {
		digested = 0
	}
	delta.Biomass -= digested * t.Digestion.BiomassPerUnit
	delta.Energy += digested * t.Digestion.EnergyPerUnit * out.HiveCore.ConversionEfficiency

	if applyThreat(&out, delta.Map, tot.Suppression, t) {
		events = append(events, EventThreatDiscovered)
	}

	heatMul := out.Difficulty.HeatMultiplier
	if heatMul <= 0 {
		heatMul = 1
	}
	cooling := t.Heat.BaseCooling * rates.CoolingMultiplier(out.Policies, t)
	gain := (tot.Heat + out.Threats.Level/t.Heat.ThreatDivisor) * heatMul
	newHeat := math.Max(0, out.Heat-cooling+gain)
	delta.Heat = newHeat - out.Heat
	out.Heat = newHeat

	out.Biomass += delta.Biomass
	out.Minerals += delta.Minerals
	out.Data += delta.Data
	out.Energy += delta.Energy
	mapped := out.Territory.Mapped + delta.Map
	if mapped > out.Territory.Mapped {
		out.Territory.Mapped = mapped
	}
	out.Territory.Controlled += delta.Control
	out.ClampResources()

	if out.Energy <= 0 {
		starve(&out, t)
		events = append(events, EventEnergyStarvation)
	}

	if rates.TotalHeat(out, t) > t.Heat.Critical {
		events = append(events, thermalConstraint(&out, t)...)
	}
	scheduler.RefreshPods(&out, t)

	if progression.Completed(out, t) {
		progression.Transition(&out, model.PhaseAscension, t)
		out.AddHistory(EventAscension, "The colony is self-sustaining. Seeding is now possible.")
		events = append(events, EventAscension)
		out.LastCycle = &model.CycleSummary{Delta: delta, Events: nonNil(events), Completed: true}
		return out
	}

	events = append(events, progression.Advance(&out, t)...)
	out.LastCycle = &model.CycleSummary{Delta: delta, Events: nonNil(events)}
	return out
}

// Run applies Process n times.
func Run(s model.State, n int, t tuning.Tuning) model.State {
	for i := 0; i < n; i++ {
		s = Process(s, t)
		if s.LastCycle != nil && s.LastCycle.Completed {
			break
		}
	}
	return s
}

// applyThreat updates threat pressure and reports first discovery.
func applyThreat(s *model.State, expansion, suppression float64, t tuning.Tuning) bool {
	th := &s.Threats
	th.Level += expansion*t.Threat.ExpansionFactor + th.Hostility*t.Threat.HostilityFactor - suppression
	th.Level = model.Clamp(th.Level, 0, 100)
	if th.Discovered && s.Difficulty.NativeLifeHostility {
		th.Hostility = model.Clamp(th.Hostility+t.Threat.HostilityGrowth, 0, 100)
	}
	if !th.Discovered && th.Level >= t.Threat.DiscoveryLevel {
		th.Discovered = true
		s.AddHistory(EventThreatDiscovered, "Native systems have noticed us. Threat pressure is now visible.")
		return true
	}
	return false
}

func starve(s *model.State, t tuning.Tuning) {
	for i := range s.Units {
		if s.Units[i].Role != model.RoleDigester {
			s.Units[i].Activity = model.ActivityHibernating
		}
	}
	s.Energy = t.Starvation.EnergyFloor
	s.Heat = math.Max(0, s.Heat-t.Starvation.HeatRelief)
	s.AddHistory(EventEnergyStarvation, "Energy reserves exhausted. All non-essential units forced into hibernation.")
}

// thermalConstraint hibernates the most fatigued share of rotatable units,
// or whole pods once rotation is unlocked, and drops sensory acuity.
func thermalConstraint(s *model.State, t tuning.Tuning) []string {
	rotatable := 0
	for _, u := range s.Units {
		if u.Role != model.RoleDigester {
			rotatable++
		}
	}
	target := int(math.Ceil(float64(rotatable) * t.Cascade.Fraction))
	events := []string{EventThermalConstraint}

	hibernated := 0
	if s.IsUnlocked(model.UnlockThermalRotation) && livePods(*s) >= 2 {
		hibernated = rotatePods(s, target, t)
		if hibernated > 0 {
			events = append(events, EventPodRotation)
		}
	}
	if hibernated < target {
		hibernated += hibernateByFatigue(s, target-hibernated)
	}

	s.Policies.SensoryAcuity = model.AcuityLow
	s.AddHistory(EventThermalConstraint, fmt.Sprintf("Thermal load critical. %d units forced into hibernation; sensory acuity reduced.", hibernated))
	return events
}

func livePods(s model.State) int {
	n := 0
	for _, p := range s.Pods {
		if p.Status != model.PodDamaged && len(p.Units) > 0 {
			n++
		}
	}
	return n
}

func hibernateByFatigue(s *model.State, n int) int {
	var idx []int
	for i, u := range s.Units {
		if u.Role != model.RoleDigester && u.Activity != model.ActivityHibernating {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.Units[idx[a]].Fatigue > s.Units[idx[b]].Fatigue
	})
	if n > len(idx) {
		n = len(idx)
	}
	for _, i := range idx[:n] {
		s.Units[i].Activity = model.ActivityHibernating
	}
	return n
}

func rotatePods(s *model.State, target int, t tuning.Tuning) int {
	type podLoad struct {
		idx     int
		fatigue float64
		heat    float64
	}
	scheduler.RefreshPods(s, t)
	var pods []podLoad
	for i, p := range s.Pods {
		if p.Status == model.PodDamaged || p.Status == model.PodHibernating || len(p.Units) == 0 {
			continue
		}
		var sum float64
		n := 0
		for _, id := range p.Units {
			if j := s.UnitIndex(id); j >= 0 {
				sum += s.Units[j].Fatigue
				n++
			}
		}
		if n == 0 {
			continue
		}
		pods = append(pods, podLoad{idx: i, fatigue: sum / float64(n), heat: p.HeatContribution})
	}
	sort.SliceStable(pods, func(a, b int) bool {
		if pods[a].fatigue != pods[b].fatigue {
			return pods[a].fatigue > pods[b].fatigue
		}
		return pods[a].heat > pods[b].heat
	})

	hibernated := 0
	for _, pl := range pods {
		if hibernated >= target {
			break
		}
		p := &s.Pods[pl.idx]
		for _, id := range p.Units {
			j := s.UnitIndex(id)
			if j < 0 || s.Units[j].Role == model.RoleDigester {
				continue
			}
			if s.Units[j].Activity != model.ActivityHibernating {
				s.Units[j].Activity = model.ActivityHibernating
				hibernated++
			}
		}
		p.LastRotation = s.Cycle
	}
	if hibernated > 0 {
		s.AddHistory(EventPodRotation, fmt.Sprintf("Pod rotation engaged. %d units resting in shifts.", hibernated))
	}
	return hibernated
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
