// Package command interprets free-text directives locally. Anything it does
// not recognize comes back unhandled so the caller can defer to the narrator.
package command

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/cycle"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/progression"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
)

type LogEntry struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Result struct {
	Handled bool
	State   model.State
	Reply   string
	Logs    []LogEntry
}

const helpText = "Recognized directives:\n" +
	"- \"advance cycle\" / \"next cycle\" / \"wait\" (optionally \"advance 3 cycles\")\n" +
	"- \"status report\" / \"system report\" / \"timeline\"\n" +
	"- \"prioritize stability\" | \"prioritize performance\"\n" +
	"- \"sensory acuity low|standard|high\" | \"increase acuity\" | \"reduce acuity\"\n" +
	"- \"reproduction conservative|aggressive\"\n" +
	"- \"design sensor|worker|defender|digester\"\n" +
	"- \"cooldown\" / \"hibernate\"\n" +
	"- \"launch seed <world>\" (after ascension)"

var cycleRe = regexp.MustCompile(`(?:advance|next|wait)(?:\s+(\d+))?\s*(?:cycle|cycles)?`)

// verbs are the leading words eligible for typo correction.
var verbs = []string{
	"advance", "boost", "build", "cooldown", "design", "help", "hibernate",
	"increase", "launch", "lower", "prioritize", "reduce", "report",
	"reproduction", "sensory", "spawn", "status", "system", "timeline",
}

// Normalize lowercases, trims and collapses whitespace.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// correctVerb fixes a misspelled leading word when exactly one verb is the
// closest within the distance limit for its length.
func correctVerb(text string) string {
	head, rest, _ := strings.Cut(text, " ")
	if len(head) < 5 {
		return text
	}
	type cand struct {
		verb string
		dist int
	}
	var cands []cand
	for _, v := range verbs {
		if v == head {
			return text
		}
		d := levenshtein.ComputeDistance(head, v)
		if d <= levenshteinLimit(len(v)) {
			cands = append(cands, cand{v, d})
		}
	}
	if len(cands) == 0 {
		return text
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist == cands[j].dist {
			return cands[i].verb < cands[j].verb
		}
		return cands[i].dist < cands[j].dist
	})
	if len(cands) > 1 && cands[0].dist == cands[1].dist {
		return text
	}
	if rest == "" {
		return cands[0].verb
	}
	return cands[0].verb + " " + rest
}

func levenshteinLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

func containsAny(text string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// ThermalLoad is total heat rounded for display.
func ThermalLoad(s model.State, t tuning.Tuning) int {
	return int(math.Round(rates.TotalHeat(s, t)))
}

// Interpret maps a directive onto state mutations. Unrecognized text returns
// Handled=false with s unchanged.
func Interpret(raw string, s model.State, t tuning.Tuning) Result {
	return InterpretWith(raw, s, t, nil)
}

// CycleHook observes every cycle processed by a directive. Returning true
// stops a multi-cycle advance after that cycle.
type CycleHook func(s model.State) (stop bool)

func InterpretWith(raw string, s model.State, t tuning.Tuning, onCycle CycleHook) Result {
	text := correctVerb(Normalize(raw))
	res := Result{State: s, Logs: []LogEntry{}}
	handled := func(next model.State, reply string) Result {
		res.Handled = true
		res.State = next
		res.Reply = reply
		return res
	}

	if text == "" {
		return res
	}

	if text == "help" || text == "?" || strings.Contains(text, "what can i do") {
		return handled(s, helpText)
	}

	if strings.Contains(text, "system report") || text == "status report" || text == "status" {
		res.Logs = append(res.Logs, LogEntry{Type: "system", Text: Report(s, t)})
		return handled(s, "Report generated. Artifact appended to system log.")
	}
	if containsAny(text, "timeline", "evolution log", "history") {
		res.Logs = append(res.Logs, LogEntry{Type: "system", Text: Timeline(s, 10)})
		return handled(s, "Evolution timeline generated.")
	}

	if strings.HasPrefix(text, "launch seed") {
		world := strings.TrimSpace(strings.TrimPrefix(text, "launch seed"))
		world = strings.TrimSpace(strings.TrimPrefix(world, "to "))
		if world == "" {
			world = fmt.Sprintf("world-%d", s.Ascension.SeedsLaunched+1)
		}
		next, ok := progression.LaunchSeed(s, world, t)
		if !ok {
			return handled(s, "Seeding unavailable. Requires ascension and biomass 1000, minerals 500, energy 200, data 300.")
		}
		return handled(next, fmt.Sprintf("Seed launched toward %s.", world))
	}

	if m := cycleRe.FindStringSubmatch(text); m != nil {
		count := 1
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				n = t.Commands.MaxAdvance
			}
			count = n
		}
		if count < 1 {
			count = 1
		}
		if count > t.Commands.MaxAdvance {
			count = t.Commands.MaxAdvance
		}
		next := s
		for i := 0; i < count; i++ {
			next = cycle.Process(next, t)
			done := false
			if lc := next.LastCycle; lc != nil {
				for _, ev := range lc.Events {
					res.Logs = append(res.Logs, LogEntry{Type: "event", Text: fmt.Sprintf("cycle %d: %s", next.Cycle, ev)})
				}
				done = lc.Completed
			}
			if onCycle != nil && onCycle(next) {
				done = true
			}
			if done {
				count = i + 1
				break
			}
		}
		return handled(next, fmt.Sprintf("Cycle advanced x%d. Thermal load now %d%%.", count, ThermalLoad(next, t)))
	}

	if containsAny(text, "prioritize stability", "thermal stability") {
		next, _ := colony.UpdatePolicy(s, "thermalPriority", string(model.ThermalStability))
		return handled(next, "Policy set: Thermal Priority = stability.")
	}
	if containsAny(text, "prioritize performance", "max performance", "thermal performance") {
		next, _ := colony.UpdatePolicy(s, "thermalPriority", string(model.ThermalPerformance))
		return handled(next, "Policy set: Thermal Priority = performance.")
	}

	if strings.Contains(text, "sensory acuity") {
		var mode model.SensoryAcuity
		switch {
		case strings.Contains(text, "high"):
			mode = model.AcuityHigh
		case strings.Contains(text, "low"):
			mode = model.AcuityLow
		case strings.Contains(text, "standard"):
			mode = model.AcuityStandard
		}
		if mode != "" {
			next, _ := colony.UpdatePolicy(s, "sensoryAcuity", string(mode))
			return handled(next, fmt.Sprintf("Policy set: Sensory Acuity = %s.", mode))
		}
	}
	if containsAny(text, "increase acuity", "boost sensors") {
		next, _ := colony.UpdatePolicy(s, "sensoryAcuity", string(model.AcuityHigh))
		return handled(next, "Policy set: Sensory Acuity = high.")
	}
	if containsAny(text, "reduce acuity", "lower acuity") {
		next, _ := colony.UpdatePolicy(s, "sensoryAcuity", string(model.AcuityLow))
		return handled(next, "Policy set: Sensory Acuity = low.")
	}

	if strings.Contains(text, "reproduction") {
		var mode model.ReproductionMode
		switch {
		case strings.Contains(text, "aggressive"):
			mode = model.ReproductionAggressive
		case strings.Contains(text, "conservative"):
			mode = model.ReproductionConservative
		}
		if mode != "" {
			next, _ := colony.UpdatePolicy(s, "reproductionMode", string(mode))
			return handled(next, fmt.Sprintf("Policy set: Reproduction Mode = %s.", mode))
		}
	}

	if role, ok := designRole(text); ok {
		typ := colony.BestType(s)
		next, built := colony.AddUnit(s, role, typ, t)
		if !built {
			cost := colony.Cost(typ, s.Difficulty, t)
			return handled(s, fmt.Sprintf("Insufficient resources to instantiate %s %s. (Need biomass %.0f + minerals %.0f.)",
				typ, role.Key(), cost.Biomass, cost.Minerals))
		}
		return handled(next, fmt.Sprintf("Role instantiated: %s %s pod.", strings.ToUpper(string(typ)), role))
	}

	if containsAny(text, "cooldown", "hibernate", "power down") {
		activity, relief := model.ActivityStandby, t.Commands.StandbyRelief
		reply := "Directive accepted: pods entering standby. Thermal load will decline."
		if strings.Contains(text, "hibernate") {
			activity, relief = model.ActivityHibernating, t.Commands.HibernateRelief
			reply = "Directive accepted: pods entering hibernation. Sensory continuity reduced."
		}
		next := s.Clone()
		for i := range next.Units {
			if next.Units[i].Role != model.RoleDigester {
				next.Units[i].Activity = activity
			}
		}
		next.Heat = math.Max(0, next.Heat-relief)
		return handled(next, reply)
	}

	return res
}

func designRole(text string) (model.Role, bool) {
	for _, r := range []model.Role{model.RoleSensor, model.RoleWorker, model.RoleDefender, model.RoleDigester} {
		k := r.Key()
		if containsAny(text, "design "+k, "spawn "+k, "build "+k) {
			return r, true
		}
	}
	return "", false
}
