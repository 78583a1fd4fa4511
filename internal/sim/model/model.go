// Package model defines the colony state aggregate. Every operation in
// internal/sim treats a State as a value: callers Clone before mutating and
// never alias slices or maps of the input.
package model

type Phase string

const (
	PhaseMechanical Phase = "MECHANICAL"
	PhaseHybrid     Phase = "HYBRID"
	PhaseBiological Phase = "BIOLOGICAL"
	PhaseAscension  Phase = "ASCENSION"
)

var phaseOrder = []Phase{PhaseMechanical, PhaseHybrid, PhaseBiological, PhaseAscension}

// Rank returns the position of p in the progression, or -1 if p is unknown.
func (p Phase) Rank() int {
	for i, q := range phaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

// Next returns the phase following p.
func (p Phase) Next() (Phase, bool) {
	r := p.Rank()
	if r < 0 || r+1 >= len(phaseOrder) {
		return "", false
	}
	return phaseOrder[r+1], true
}

func (p Phase) Valid() bool { return p.Rank() >= 0 }

type Role string

const (
	RoleSensor   Role = "SENSOR"
	RoleWorker   Role = "WORKER"
	RoleDefender Role = "DEFENDER"
	RoleDigester Role = "DIGESTER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSensor, RoleWorker, RoleDefender, RoleDigester:
		return true
	}
	return false
}

// Key is the lowercase name used by tuning tables and unit ids.
func (r Role) Key() string {
	switch r {
	case RoleSensor:
		return "sensor"
	case RoleWorker:
		return "worker"
	case RoleDefender:
		return "defender"
	case RoleDigester:
		return "digester"
	}
	return ""
}

type UnitType string

const (
	TypeMechanical UnitType = "mechanical"
	TypeHybrid     UnitType = "hybrid"
	TypeBiological UnitType = "biological"
)

func (t UnitType) Valid() bool {
	switch t {
	case TypeMechanical, TypeHybrid, TypeBiological:
		return true
	}
	return false
}

// Prefix is the short tag used in unit ids.
func (t UnitType) Prefix() string {
	switch t {
	case TypeHybrid:
		return "hyb"
	case TypeBiological:
		return "bio"
	default:
		return "mech"
	}
}

type Activity string

const (
	ActivityActive      Activity = "ACTIVE"
	ActivityStandby     Activity = "STANDBY"
	ActivityHibernating Activity = "HIBERNATING"
)

func (a Activity) Valid() bool {
	switch a {
	case ActivityActive, ActivityStandby, ActivityHibernating:
		return true
	}
	return false
}

type PodStatus string

const (
	PodActive      PodStatus = "ACTIVE"
	PodStandby     PodStatus = "STANDBY"
	PodHibernating PodStatus = "HIBERNATING"
	PodDamaged     PodStatus = "DAMAGED"
)

type ThermalPriority string

const (
	ThermalStability   ThermalPriority = "stability"
	ThermalPerformance ThermalPriority = "performance"
)

type SensoryAcuity string

const (
	AcuityLow      SensoryAcuity = "low"
	AcuityStandard SensoryAcuity = "standard"
	AcuityHigh     SensoryAcuity = "high"
)

type ReproductionMode string

const (
	ReproductionConservative ReproductionMode = "conservative"
	ReproductionAggressive   ReproductionMode = "aggressive"
)

// Capability names a one-way unlock.
type Capability string

const (
	UnlockHybridUnits          Capability = "hybridUnits"
	UnlockBiologicalUnits      Capability = "biologicalUnits"
	UnlockThermalRotation      Capability = "thermalRotation"
	UnlockGeneticRecombination Capability = "geneticRecombination"
	UnlockDistributedCognition Capability = "distributedCognition"
	UnlockSelfReplication      Capability = "selfReplication"
	UnlockNativeIntegration    Capability = "nativeIntegration"
	UnlockInterstellarSeeding  Capability = "interstellarSeeding"
)

// Capabilities lists every known unlock key in a stable order.
var Capabilities = []Capability{
	UnlockHybridUnits,
	UnlockBiologicalUnits,
	UnlockThermalRotation,
	UnlockGeneticRecombination,
	UnlockDistributedCognition,
	UnlockSelfReplication,
	UnlockNativeIntegration,
	UnlockInterstellarSeeding,
}

type Unit struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Type     UnitType `json:"type"`
	Activity Activity `json:"activity"`
	Fatigue  float64  `json:"fatigue"`
	PodID    string   `json:"podId,omitempty"`
}

type Pod struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Status           PodStatus `json:"status"`
	Units            []string  `json:"units"`
	HeatContribution float64   `json:"heatContribution"`
	LastRotation     int       `json:"lastRotation"`
}

type HiveCore struct {
	Health               float64 `json:"health"`
	Capacity             float64 `json:"capacity"`
	DigestionRate        float64 `json:"digestionRate"`
	ConversionEfficiency float64 `json:"conversionEfficiency"`
	Heat                 float64 `json:"heat"`
}

type Territory struct {
	Mapped     float64 `json:"mapped"`
	Controlled float64 `json:"controlled"`
}

type Threats struct {
	Level      float64 `json:"level"`
	Discovered bool    `json:"discovered"`
	Hostility  float64 `json:"hostility"`
}

type Policies struct {
	ThermalPriority  ThermalPriority  `json:"thermalPriority"`
	SensoryAcuity    SensoryAcuity    `json:"sensoryAcuity"`
	ReproductionMode ReproductionMode `json:"reproductionMode"`
}

// Difficulty is derived from cross-run meta state and frozen at creation.
type Difficulty struct {
	HeatMultiplier         float64 `json:"heatMultiplier"`
	ResourceCostMultiplier float64 `json:"resourceCostMultiplier"`
	DilemmaFrequency       float64 `json:"dilemmaFrequency"`
	NativeLifeHostility    bool    `json:"nativeLifeHostility"`
}

func DefaultDifficulty() Difficulty {
	return Difficulty{HeatMultiplier: 1, ResourceCostMultiplier: 1}
}

// Counters drive deterministic ids.
type Counters struct {
	NextUnit int `json:"nextUnit"`
	NextPod  int `json:"nextPod"`
}

type SeededWorld struct {
	Name  string `json:"name"`
	Cycle int    `json:"cycle"`
}

type Ascension struct {
	SeedsLaunched int           `json:"seedsLaunched"`
	WorldsSeeded  []SeededWorld `json:"worldsSeeded"`
}

type HistoryEntry struct {
	Cycle       int    `json:"cycle"`
	Event       string `json:"event"`
	Description string `json:"description"`
}

type Reflection struct {
	Cycle   int    `json:"cycle"`
	Thought string `json:"thought"`
}

type EthicalQuestion struct {
	Cycle       int    `json:"cycle"`
	Dilemma     string `json:"dilemma"`
	Title       string `json:"title"`
	Choice      string `json:"choice"`
	ChoiceLabel string `json:"choiceLabel"`
	Weight      string `json:"weight"`
	Reflection  string `json:"reflection"`
}

// Delta is the aggregated change of one cycle.
type Delta struct {
	Biomass  float64 `json:"biomass"`
	Minerals float64 `json:"minerals"`
	Data     float64 `json:"data"`
	Energy   float64 `json:"energy"`
	Map      float64 `json:"map"`
	Control  float64 `json:"control"`
	Heat     float64 `json:"heat"`
}

// CycleSummary is narration-only output of the most recent cycle.
type CycleSummary struct {
	Delta     Delta    `json:"delta"`
	Events    []string `json:"events"`
	Completed bool     `json:"completed"`
}

type State struct {
	Cycle int   `json:"cycle"`
	Phase Phase `json:"phase"`

	Heat     float64 `json:"heat"`
	Biomass  float64 `json:"biomass"`
	Minerals float64 `json:"minerals"`
	Data     float64 `json:"data"`
	Energy   float64 `json:"energy"`

	Units     []Unit    `json:"units"`
	Pods      []Pod     `json:"pods"`
	HiveCore  HiveCore  `json:"hiveCore"`
	Territory Territory `json:"territory"`
	Threats   Threats   `json:"threats"`
	Policies  Policies  `json:"policies"`

	Unlocked map[Capability]bool `json:"unlocked"`

	EthicalQuestions []EthicalQuestion `json:"ethicalQuestions"`
	Reflections      []Reflection      `json:"reflections"`
	History          []HistoryEntry    `json:"history"`

	ExtinctionEvents      int    `json:"extinctionEvents"`
	NativeLifeEncountered bool   `json:"nativeLifeEncountered"`
	NativeLifeDecision    string `json:"nativeLifeDecision,omitempty"`

	Difficulty Difficulty `json:"difficulty"`
	Counters   Counters   `json:"counters"`
	Ascension  Ascension  `json:"ascension"`

	LastCycle *CycleSummary `json:"lastCycle"`
}

// Clone returns a deep copy sharing no slices or maps with s.
func (s State) Clone() State {
	out := s
	out.Units = append([]Unit{}, s.Units...)
	out.Pods = make([]Pod, len(s.Pods))
	for i, p := range s.Pods {
		p.Units = append([]string{}, p.Units...)
		out.Pods[i] = p
	}
	out.Unlocked = make(map[Capability]bool, len(s.Unlocked))
	for k, v := range s.Unlocked {
		out.Unlocked[k] = v
	}
	out.EthicalQuestions = append([]EthicalQuestion{}, s.EthicalQuestions...)
	out.Reflections = append([]Reflection{}, s.Reflections...)
	out.History = append([]HistoryEntry{}, s.History...)
	out.Ascension.WorldsSeeded = append([]SeededWorld{}, s.Ascension.WorldsSeeded...)
	if s.LastCycle != nil {
		lc := *s.LastCycle
		lc.Events = append([]string{}, s.LastCycle.Events...)
		out.LastCycle = &lc
	}
	return out
}

func (s State) IsUnlocked(c Capability) bool { return s.Unlocked[c] }

// Unlock sets c and reports whether it was newly set. Unlocks never reset.
func (s *State) Unlock(c Capability) bool {
	if s.Unlocked == nil {
		s.Unlocked = map[Capability]bool{}
	}
	if s.Unlocked[c] {
		return false
	}
	s.Unlocked[c] = true
	return true
}

func (s *State) AddHistory(event, description string) {
	s.History = append(s.History, HistoryEntry{Cycle: s.Cycle, Event: event, Description: description})
}

func (s *State) AddReflection(thought string) {
	s.Reflections = append(s.Reflections, Reflection{Cycle: s.Cycle, Thought: thought})
}

// ClampResources enforces the non-negative pools and territory ordering.
func (s *State) ClampResources() {
	s.Heat = nonNeg(s.Heat)
	s.Biomass = nonNeg(s.Biomass)
	s.Minerals = nonNeg(s.Minerals)
	s.Data = nonNeg(s.Data)
	s.Energy = nonNeg(s.Energy)
	s.Territory.Mapped = nonNeg(s.Territory.Mapped)
	s.Territory.Controlled = nonNeg(s.Territory.Controlled)
	if s.Territory.Controlled > s.Territory.Mapped {
		s.Territory.Controlled = s.Territory.Mapped
	}
	s.Threats.Level = Clamp(s.Threats.Level, 0, 100)
	s.Threats.Hostility = Clamp(s.Threats.Hostility, 0, 100)
}

func (s State) UnitIndex(id string) int {
	for i := range s.Units {
		if s.Units[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) PodIndex(id string) int {
	for i := range s.Pods {
		if s.Pods[i].ID == id {
			return i
		}
	}
	return -1
}

// CountActive counts ACTIVE units.
func (s State) CountActive() int {
	n := 0
	for _, u := range s.Units {
		if u.Activity == ActivityActive {
			n++
		}
	}
	return n
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nonNeg also maps NaN to 0.
func nonNeg(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}
