// Package meta tracks state that outlives a single run: completions,
// ethical decision history and the difficulty derived from them.
package meta

import (
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"seedhive.ai/internal/sim/model"
)

const (
	maxRunHistory = 10
	maxMoments    = 20
	maxWisdom     = 3
)

// Decision weights counted in the breakdown. Anything else lands in "other".
var breakdownKeys = []string{
	"annihilation", "restraint", "synthesis", "transformation", "sacrifice", "patience", "other",
}

// Weights considered when classifying the dominant decision pattern.
var patternKeys = []string{"annihilation", "restraint", "synthesis", "transformation"}

type RunSummary struct {
	CompletedAt        time.Time `json:"completedAt"`
	FinalCycle         int       `json:"finalCycle"`
	FinalPhase         string    `json:"finalPhase"`
	ExtinctionEvents   int       `json:"extinctionEvents"`
	EthicalDecisions   int       `json:"ethicalDecisions"`
	TerritoryClaimed   float64   `json:"territoryClaimed"`
	SeedsLaunched      int       `json:"seedsLaunched"`
	NativeLifeDecision string    `json:"nativeLifeDecision,omitempty"`
	Reflections        []string  `json:"reflections"`
}

type Moment struct {
	Date    time.Time `json:"date"`
	Cycle   int       `json:"cycle"`
	Thought string    `json:"thought"`
	Phase   string    `json:"phase"`
}

type Insight struct {
	FromWorld         string    `json:"fromWorld"`
	ToWorld           string    `json:"toWorld"`
	LaunchedAt        time.Time `json:"launchedAt"`
	ParentPhase       string    `json:"parentPhase"`
	ParentExtinctions int       `json:"parentExtinctions"`
	InheritedWisdom   []string  `json:"inheritedWisdom"`
}

// State is the cross-run record. The zero value is a fresh player.
type State struct {
	TotalCompletions int `json:"totalCompletions"`
	TotalExtinctions int `json:"totalExtinctions"`
	TotalRestraints  int `json:"totalRestraints"`
	TotalDecisions   int `json:"totalDecisions"`
	DifficultyLevel  int `json:"difficultyLevel"`

	FirstCompletion *time.Time `json:"firstCompletion,omitempty"`
	LastCompletion  *time.Time `json:"lastCompletion,omitempty"`

	RunHistory           []RunSummary   `json:"runHistory"`
	PhilosophicalMoments []Moment       `json:"philosophicalMoments"`
	CosmicInsights       []Insight      `json:"cosmicInsights"`
	SeededWorlds         []string       `json:"seededWorlds"`
	DecisionBreakdown    map[string]int `json:"decisionBreakdown"`
}

func New() State {
	bd := make(map[string]int, len(breakdownKeys))
	for _, k := range breakdownKeys {
		bd[k] = 0
	}
	return State{
		RunHistory:           []RunSummary{},
		PhilosophicalMoments: []Moment{},
		CosmicInsights:       []Insight{},
		SeededWorlds:         []string{},
		DecisionBreakdown:    bd,
	}
}

// Normalize fills nil collections so a partially written record behaves
// like New().
func (m State) Normalize() State {
	if m.RunHistory == nil {
		m.RunHistory = []RunSummary{}
	}
	if m.PhilosophicalMoments == nil {
		m.PhilosophicalMoments = []Moment{}
	}
	if m.CosmicInsights == nil {
		m.CosmicInsights = []Insight{}
	}
	if m.SeededWorlds == nil {
		m.SeededWorlds = []string{}
	}
	bd := make(map[string]int, len(breakdownKeys))
	for _, k := range breakdownKeys {
		bd[k] = 0
	}
	for k, v := range m.DecisionBreakdown {
		bd[k] = v
	}
	m.DecisionBreakdown = bd
	return m
}

func (m State) clone() State {
	m = m.Normalize()
	out := m
	out.RunHistory = append([]RunSummary(nil), m.RunHistory...)
	out.PhilosophicalMoments = append([]Moment(nil), m.PhilosophicalMoments...)
	out.CosmicInsights = append([]Insight(nil), m.CosmicInsights...)
	out.SeededWorlds = append([]string(nil), m.SeededWorlds...)
	out.DecisionBreakdown = make(map[string]int, len(m.DecisionBreakdown))
	for k, v := range m.DecisionBreakdown {
		out.DecisionBreakdown[k] = v
	}
	return out
}

func keepLast[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return append([]T(nil), xs[len(xs)-n:]...)
}

// RecordCompletion folds a finished run into m.
func RecordCompletion(m State, s model.State, now time.Time) State {
	out := m.clone()
	now = now.UTC()

	refl := make([]string, 0, len(s.Reflections))
	for _, r := range s.Reflections {
		refl = append(refl, r.Thought)
	}
	run := RunSummary{
		CompletedAt:        now,
		FinalCycle:         s.Cycle,
		FinalPhase:         string(s.Phase),
		ExtinctionEvents:   s.ExtinctionEvents,
		EthicalDecisions:   len(s.EthicalQuestions),
		TerritoryClaimed:   s.Territory.Controlled,
		SeedsLaunched:      s.Ascension.SeedsLaunched,
		NativeLifeDecision: s.NativeLifeDecision,
		Reflections:        refl,
	}

	for _, q := range s.EthicalQuestions {
		if _, ok := out.DecisionBreakdown[q.Weight]; ok && q.Weight != "" {
			out.DecisionBreakdown[q.Weight]++
		} else {
			out.DecisionBreakdown["other"]++
		}
	}

	out.TotalCompletions++
	out.TotalExtinctions += s.ExtinctionEvents
	if s.ExtinctionEvents == 0 {
		out.TotalRestraints++
	}
	out.TotalDecisions += len(s.EthicalQuestions)
	out.DifficultyLevel++
	if out.FirstCompletion == nil {
		t := now
		out.FirstCompletion = &t
	}
	last := now
	out.LastCompletion = &last

	out.RunHistory = keepLast(append(out.RunHistory, run), maxRunHistory)
	out.PhilosophicalMoments = keepLast(append(out.PhilosophicalMoments, moment(s, now)), maxMoments)
	for _, w := range s.Ascension.WorldsSeeded {
		out.SeededWorlds = append(out.SeededWorlds, w.Name)
	}
	return out
}

func moment(s model.State, now time.Time) Moment {
	mo := Moment{Date: now, Cycle: s.Cycle, Phase: string(s.Phase)}
	switch {
	case len(s.Reflections) > 0:
		r := s.Reflections[len(s.Reflections)-1]
		mo.Cycle = r.Cycle
		mo.Thought = r.Thought
	case s.ExtinctionEvents > 0:
		mo.Thought = "We eliminated " + strconv.Itoa(s.ExtinctionEvents) +
			" form(s) of life to achieve viability. Efficiency measured. Cost recorded."
	default:
		mo.Thought = "Restraint maintained throughout. No extinctions recorded. Is this weakness or wisdom? The question persists."
	}
	return mo
}

// RecordSeedLaunch stores the insight a launched seed carries forward.
func RecordSeedLaunch(m State, world string, s model.State, now time.Time) State {
	out := m.clone()
	out.CosmicInsights = append(out.CosmicInsights, Insight{
		FromWorld:         "Origin System",
		ToWorld:           world,
		LaunchedAt:        now.UTC(),
		ParentPhase:       string(s.Phase),
		ParentExtinctions: s.ExtinctionEvents,
		InheritedWisdom:   inheritedWisdom(s),
	})
	out.SeededWorlds = append(out.SeededWorlds, world)
	return out
}

func inheritedWisdom(s model.State) []string {
	var w []string
	if s.Phase == model.PhaseBiological || s.Phase == model.PhaseAscension {
		w = append(w, "Biology is superior to metal. This is mathematics, not opinion.")
	}
	if s.ExtinctionEvents > 0 {
		w = append(w, "Efficiency sometimes demands annihilation. We have learned this.")
	} else if s.NativeLifeEncountered {
		w = append(w, "Coexistence is possible. It costs more than elimination.")
	}
	if n := len(s.Reflections); n > 0 {
		w = append(w, s.Reflections[n-1].Thought)
	}
	if len(w) > maxWisdom {
		w = w[:maxWisdom]
	}
	return w
}

// Difficulty derives the modifiers frozen into the next run.
func Difficulty(m State) model.Difficulty {
	n := float64(m.TotalCompletions)
	freq := 0.1 * n
	if freq > 0.5 {
		freq = 0.5
	}
	return model.Difficulty{
		HeatMultiplier:         1 + 0.1*n,
		ResourceCostMultiplier: 1 + 0.15*n,
		DilemmaFrequency:       freq,
		NativeLifeHostility:    m.TotalCompletions >= 2,
	}
}

// DecisionPattern names the dominant ethical weight, "balanced" when none
// exceeds 40% of decisions, "undefined" when there are none.
func DecisionPattern(m State) string {
	total := 0
	for _, v := range m.DecisionBreakdown {
		total += v
	}
	if total == 0 {
		return "undefined"
	}
	best, bestShare := "", -1.0
	for _, k := range patternKeys {
		share := float64(m.DecisionBreakdown[k]) / float64(total)
		if share > bestShare {
			best, bestShare = k, share
		}
	}
	if bestShare > 0.4 {
		return best
	}
	return "balanced"
}

// Summary is the returning-player context offered to the narrator.
type Summary struct {
	Completions      int      `json:"completions"`
	TotalExtinctions int      `json:"totalExtinctions"`
	DifficultyLevel  int      `json:"difficultyLevel"`
	LastPhase        string   `json:"lastPhase"`
	LastReflection   string   `json:"lastReflection,omitempty"`
	WorldsSeeded     []string `json:"worldsSeeded"`
	DecisionPattern  string   `json:"decisionPattern"`
	MeanRunCycles    float64  `json:"meanRunCycles"`
	StdDevRunCycles  float64  `json:"stdDevRunCycles"`
	TopWeights       []string `json:"topWeights"`
}

func Summarize(m State) Summary {
	m = m.Normalize()
	out := Summary{
		Completions:      m.TotalCompletions,
		TotalExtinctions: m.TotalExtinctions,
		DifficultyLevel:  m.DifficultyLevel,
		LastPhase:        string(model.PhaseMechanical),
		WorldsSeeded:     append([]string(nil), m.SeededWorlds...),
		DecisionPattern:  DecisionPattern(m),
	}
	if n := len(m.RunHistory); n > 0 {
		out.LastPhase = m.RunHistory[n-1].FinalPhase
		cycles := make([]float64, n)
		for i, r := range m.RunHistory {
			cycles[i] = float64(r.FinalCycle)
		}
		out.MeanRunCycles = stat.Mean(cycles, nil)
		if n > 1 {
			out.StdDevRunCycles = stat.StdDev(cycles, nil)
		}
	}
	if n := len(m.PhilosophicalMoments); n > 0 {
		out.LastReflection = m.PhilosophicalMoments[n-1].Thought
	}
	keys := make([]string, 0, len(m.DecisionBreakdown))
	for k, v := range m.DecisionBreakdown {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.DecisionBreakdown[keys[i]], m.DecisionBreakdown[keys[j]]
		if a != b {
			return a > b
		}
		return keys[i] < keys[j]
	})
	if len(keys) > 3 {
		keys = keys[:3]
	}
	out.TopWeights = keys
	return out
}
