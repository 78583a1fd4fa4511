package command

import (
	"fmt"
	"strings"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
)

// Report is a plain-text status summary.
func Report(s model.State, t tuning.Tuning) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SYSTEM REPORT  cycle %d  phase %s\n", s.Cycle, s.Phase)
	fmt.Fprintf(&b, "thermal load %d%% (ambient %.1f)", ThermalLoad(s, t), s.Heat)
	if rates.IsCritical(s, t) {
		b.WriteString("  CRITICAL")
	} else if rates.IsElevated(s, t) {
		b.WriteString("  elevated")
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "biomass %.0f  minerals %.0f  data %.0f  energy %.0f\n", s.Biomass, s.Minerals, s.Data, s.Energy)
	fmt.Fprintf(&b, "territory %.1f mapped / %.1f controlled  threat %.0f", s.Territory.Mapped, s.Territory.Controlled, s.Threats.Level)
	if s.Threats.Discovered {
		b.WriteString(" (discovered)")
	}
	b.WriteByte('\n')

	counts := map[model.Activity]int{}
	for _, u := range s.Units {
		counts[u.Activity]++
	}
	fmt.Fprintf(&b, "units %d: %d active, %d standby, %d hibernating\n",
		len(s.Units), counts[model.ActivityActive], counts[model.ActivityStandby], counts[model.ActivityHibernating])
	fmt.Fprintf(&b, "policies: thermal=%s acuity=%s reproduction=%s",
		s.Policies.ThermalPriority, s.Policies.SensoryAcuity, s.Policies.ReproductionMode)

	var unlocked []string
	for _, c := range model.Capabilities {
		if s.Unlocked[c] {
			unlocked = append(unlocked, string(c))
		}
	}
	if len(unlocked) > 0 {
		fmt.Fprintf(&b, "\nunlocked: %s", strings.Join(unlocked, ", "))
	}
	return b.String()
}

// Timeline lists the last n history entries, oldest first.
func Timeline(s model.State, n int) string {
	h := s.History
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	if len(h) == 0 {
		return "No recorded history."
	}
	lines := make([]string, 0, len(h))
	for _, e := range h {
		lines = append(lines, fmt.Sprintf("[%03d] %s: %s", e.Cycle, e.Event, e.Description))
	}
	return strings.Join(lines, "\n")
}
