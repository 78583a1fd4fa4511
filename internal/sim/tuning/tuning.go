package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning holds every balance constant read by the simulation packages.
// The zero value is not usable; start from Defaults().
type Tuning struct {
	Activity   ActivityConfig         `yaml:"activity"`
	Policy     PolicyConfig           `yaml:"policy"`
	Roles      map[string]RoleProfile `yaml:"roles"`
	TypeScale  map[string]float64     `yaml:"type_scale"`
	Heat       HeatConfig             `yaml:"heat"`
	Digestion  DigestionConfig        `yaml:"digestion"`
	Threat     ThreatConfig           `yaml:"threat"`
	Scheduler  SchedulerConfig        `yaml:"scheduler"`
	Cascade    CascadeConfig          `yaml:"cascade"`
	Starvation StarvationConfig       `yaml:"starvation"`
	Progress   ProgressConfig         `yaml:"progression"`
	Costs      map[string]UnitCost    `yaml:"unit_costs"`
	Seed       SeedLaunchConfig       `yaml:"seed_launch"`
	Dilemmas   DilemmaConfig          `yaml:"dilemmas"`
	Commands   CommandConfig          `yaml:"commands"`

	PodCapacity int `yaml:"pod_capacity"`
}

type Multipliers struct {
	Output float64 `yaml:"output"`
	Heat   float64 `yaml:"heat"`
	Energy float64 `yaml:"energy"`
}

type ActivityConfig struct {
	Active      Multipliers `yaml:"active"`
	Standby     Multipliers `yaml:"standby"`
	Hibernating Multipliers `yaml:"hibernating"`
}

type ThermalPriority struct {
	Output  float64 `yaml:"output"`
	Heat    float64 `yaml:"heat"`
	Cooling float64 `yaml:"cooling"`
}

type Acuity struct {
	Output float64 `yaml:"output"`
	Heat   float64 `yaml:"heat"`
	Map    float64 `yaml:"map"`
}

type PolicyConfig struct {
	Stability   ThermalPriority `yaml:"stability"`
	Performance ThermalPriority `yaml:"performance"`
	AcuityHigh  Acuity          `yaml:"acuity_high"`
	AcuityLow   Acuity          `yaml:"acuity_low"`

	// Applied to SENSOR data output once distributed cognition is unlocked.
	CognitionDataBoost float64 `yaml:"cognition_data_boost"`
}

// RoleProfile is the ACTIVE, mechanical, policy-neutral per-cycle rate of a role.
type RoleProfile struct {
	Biomass  float64 `yaml:"biomass"`
	Minerals float64 `yaml:"minerals"`
	Data     float64 `yaml:"data"`
	Map      float64 `yaml:"map"`
	Control  float64 `yaml:"control"`
	Heat     float64 `yaml:"heat"`
	Energy   float64 `yaml:"energy"`

	// Threat suppression per cycle (defenders only in the default table).
	Suppression float64 `yaml:"suppression"`
}

type HeatConfig struct {
	BaseCooling    float64 `yaml:"base_cooling"`
	Critical       float64 `yaml:"critical"`
	Elevated       float64 `yaml:"elevated"`
	ThreatDivisor  float64 `yaml:"threat_divisor"`
	DensityGroup   int     `yaml:"density_group"`
	AcuityHighLoad float64 `yaml:"acuity_high_load"`
	AcuityStdLoad  float64 `yaml:"acuity_standard_load"`
	AggressiveLoad float64 `yaml:"aggressive_reproduction_load"`
	CognitionLoad  float64 `yaml:"cognition_load"`
}

type DigestionConfig struct {
	Scale             float64 `yaml:"scale"`
	BiomassDivisor    float64 `yaml:"biomass_divisor"`
	BiomassPerUnit    float64 `yaml:"biomass_per_unit"`
	EnergyPerUnit     float64 `yaml:"energy_per_unit"`
	DigesterRateBonus float64 `yaml:"digester_rate_bonus"`
}

type ThreatConfig struct {
	ExpansionFactor float64 `yaml:"expansion_factor"`
	HostilityFactor float64 `yaml:"hostility_factor"`
	DiscoveryLevel  float64 `yaml:"discovery_level"`
	HostilityGrowth float64 `yaml:"hostility_growth"`
	BaseHostility   float64 `yaml:"base_hostility"`
	HostileNatives  float64 `yaml:"hostile_natives_hostility"`
}

type SchedulerConfig struct {
	MidBand          float64            `yaml:"mid_band"`
	HighBand         float64            `yaml:"high_band"`
	LowFraction      float64            `yaml:"low_fraction"`
	MidFraction      float64            `yaml:"mid_fraction"`
	HighFraction     float64            `yaml:"high_fraction"`
	HibernateAt      float64            `yaml:"hibernate_at"`
	RoleWeights      map[string]float64 `yaml:"role_weights"`
	DefenderThreat   float64            `yaml:"defender_threat_divisor"`
	FatiguePenalty   float64            `yaml:"fatigue_penalty"`
	FatigueActive    float64            `yaml:"fatigue_active"`
	FatigueStandby   float64            `yaml:"fatigue_standby"`
	FatigueHibernate float64            `yaml:"fatigue_hibernating"`
}

type CascadeConfig struct {
	Fraction float64 `yaml:"fraction"`
}

type StarvationConfig struct {
	EnergyFloor float64 `yaml:"energy_floor"`
	HeatRelief  float64 `yaml:"heat_relief"`
}

type PhaseGate struct {
	Biomass  float64 `yaml:"biomass"`
	Minerals float64 `yaml:"minerals"`
	Data     float64 `yaml:"data"`
	Cycle    int     `yaml:"cycle"`
}

type CompletionGate struct {
	Controlled float64 `yaml:"controlled"`
	Data       float64 `yaml:"data"`
	Energy     float64 `yaml:"energy"`
}

type ProgressConfig struct {
	ThermalRotationCycle     int            `yaml:"thermal_rotation_cycle"`
	DistributedCognitionData float64        `yaml:"distributed_cognition_data"`
	Hybrid                   PhaseGate      `yaml:"hybrid"`
	Biological               PhaseGate      `yaml:"biological"`
	Completion               CompletionGate `yaml:"completion"`
	HybridEfficiency         float64        `yaml:"hybrid_efficiency"`
	BiologicalEfficiency     float64        `yaml:"biological_efficiency"`
	BiologicalDigestionRate  float64        `yaml:"biological_digestion_rate"`
}

type UnitCost struct {
	Biomass  float64 `yaml:"biomass"`
	Minerals float64 `yaml:"minerals"`
}

type SeedLaunchConfig struct {
	Biomass  float64 `yaml:"biomass"`
	Minerals float64 `yaml:"minerals"`
	Energy   float64 `yaml:"energy"`
	Data     float64 `yaml:"data"`
}

// DilemmaConfig holds the pass thresholds of the random gates: a gate opens
// when roll > threshold*(1-dilemmaFrequency).
type DilemmaConfig struct {
	NativeLife  float64 `yaml:"native_life"`
	Thermal     float64 `yaml:"thermal"`
	Biological  float64 `yaml:"biological"`
	Discovery   float64 `yaml:"discovery"`
	Existential float64 `yaml:"existential"`
}

type CommandConfig struct {
	MaxAdvance      int     `yaml:"max_advance"`
	StandbyRelief   float64 `yaml:"standby_relief"`
	HibernateRelief float64 `yaml:"hibernate_relief"`
}

func Defaults() Tuning {
	return Tuning{
		Activity: ActivityConfig{
			Active:      Multipliers{Output: 1, Heat: 1, Energy: 1},
			Standby:     Multipliers{Output: 0.15, Heat: 0.25, Energy: 0.25},
			Hibernating: Multipliers{Output: 0, Heat: 0.05, Energy: 0.05},
		},
		Policy: PolicyConfig{
			Stability:          ThermalPriority{Output: 0.85, Heat: 0.85, Cooling: 1.25},
			Performance:        ThermalPriority{Output: 1.15, Heat: 1.15, Cooling: 0.75},
			AcuityHigh:         Acuity{Output: 1.35, Heat: 1.35, Map: 1.35},
			AcuityLow:          Acuity{Output: 0.6, Heat: 0.75, Map: 0.65},
			CognitionDataBoost: 1.25,
		},
		Roles: map[string]RoleProfile{
			"sensor":   {Biomass: 15, Minerals: 3, Data: 5, Map: 0.6, Heat: 2.0, Energy: 5.0},
			"worker":   {Biomass: 2, Minerals: 10, Data: 1, Map: 0.2, Control: 0.5, Heat: 1.8, Energy: 4.5},
			"defender": {Heat: 1.5, Energy: 4.0, Suppression: 1.5},
			"digester": {Heat: 1.0, Energy: 1.0},
		},
		TypeScale: map[string]float64{
			"mechanical": 1.0,
			"hybrid":     0.8,
			"biological": 0.6,
		},
		Heat: HeatConfig{
			BaseCooling:    6.5,
			Critical:       80,
			Elevated:       60,
			ThreatDivisor:  30,
			DensityGroup:   4,
			AcuityHighLoad: 8,
			AcuityStdLoad:  4,
			AggressiveLoad: 5,
			CognitionLoad:  6,
		},
		Digestion: DigestionConfig{
			Scale:             0.1,
			BiomassDivisor:    20,
			BiomassPerUnit:    20,
			EnergyPerUnit:     12,
			DigesterRateBonus: 4,
		},
		Threat: ThreatConfig{
			ExpansionFactor: 0.5,
			HostilityFactor: 0.01,
			DiscoveryLevel:  20,
			HostilityGrowth: 0.5,
			BaseHostility:   10,
			HostileNatives:  35,
		},
		Scheduler: SchedulerConfig{
			MidBand:      70,
			HighBand:     85,
			LowFraction:  0.7,
			MidFraction:  0.5,
			HighFraction: 0.3,
			HibernateAt:  80,
			RoleWeights: map[string]float64{
				"sensor":   3,
				"worker":   2,
				"defender": 1,
			},
			DefenderThreat:   25,
			FatiguePenalty:   0.05,
			FatigueActive:    6,
			FatigueStandby:   1,
			FatigueHibernate: -4,
		},
		Cascade:    CascadeConfig{Fraction: 0.45},
		Starvation: StarvationConfig{EnergyFloor: 5, HeatRelief: 10},
		Progress: ProgressConfig{
			ThermalRotationCycle:     8,
			DistributedCognitionData: 900,
			Hybrid:                   PhaseGate{Biomass: 800, Minerals: 300, Data: 150, Cycle: 10},
			Biological:               PhaseGate{Biomass: 2000, Data: 600, Cycle: 30},
			Completion:               CompletionGate{Controlled: 220, Data: 1600, Energy: 280},
			HybridEfficiency:         0.9,
			BiologicalEfficiency:     0.95,
			BiologicalDigestionRate:  20,
		},
		Costs: map[string]UnitCost{
			"mechanical": {Biomass: 30, Minerals: 50},
			"hybrid":     {Biomass: 80, Minerals: 30},
			"biological": {Biomass: 150, Minerals: 10},
		},
		Seed: SeedLaunchConfig{Biomass: 1000, Minerals: 500, Energy: 200, Data: 300},
		Dilemmas: DilemmaConfig{
			NativeLife:  0.85,
			Thermal:     0.6,
			Biological:  0.5,
			Discovery:   0.9,
			Existential: 0.8,
		},
		Commands: CommandConfig{
			MaxAdvance:      25,
			StandbyRelief:   6,
			HibernateRelief: 12,
		},
		PodCapacity: 3,
	}
}

// Load reads a tuning.yaml overlay. Keys missing from the file keep their
// default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Digest identifies a tuning set. Sessions report it so logs can be matched
// to the constants that produced them.
func Digest(t Tuning) (string, []byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// Validate enforces the activity contract: standby and hibernation always cost
// some heat and energy, and each step down is strictly cheaper.
func (t Tuning) Validate() error {
	a := t.Activity
	if !(a.Hibernating.Heat > 0 && a.Hibernating.Heat < a.Standby.Heat && a.Standby.Heat < a.Active.Heat) {
		return fmt.Errorf("activity heat multipliers must satisfy 0 < hibernating < standby < active")
	}
	if !(a.Hibernating.Energy > 0 && a.Hibernating.Energy < a.Standby.Energy && a.Standby.Energy < a.Active.Energy) {
		return fmt.Errorf("activity energy multipliers must satisfy 0 < hibernating < standby < active")
	}
	if a.Hibernating.Output < 0 || a.Hibernating.Output > a.Standby.Output || a.Standby.Output >= a.Active.Output {
		return fmt.Errorf("activity output multipliers must satisfy 0 <= hibernating <= standby < active")
	}
	for _, role := range []string{"sensor", "worker", "defender", "digester"} {
		if _, ok := t.Roles[role]; !ok {
			return fmt.Errorf("missing role profile %q", role)
		}
	}
	for _, typ := range []string{"mechanical", "hybrid", "biological"} {
		if s, ok := t.TypeScale[typ]; !ok || s <= 0 {
			return fmt.Errorf("type_scale.%s must be > 0", typ)
		}
		if _, ok := t.Costs[typ]; !ok {
			return fmt.Errorf("missing unit cost for %q", typ)
		}
	}
	if t.Heat.Critical <= 0 || t.Heat.BaseCooling < 0 {
		return fmt.Errorf("heat.critical must be > 0 and heat.base_cooling >= 0")
	}
	if t.Heat.DensityGroup <= 0 {
		return fmt.Errorf("heat.density_group must be > 0")
	}
	if t.Cascade.Fraction <= 0 || t.Cascade.Fraction > 1 {
		return fmt.Errorf("cascade.fraction must be in (0,1]")
	}
	if t.Commands.MaxAdvance < 1 {
		return fmt.Errorf("commands.max_advance must be >= 1")
	}
	if t.PodCapacity < 1 {
		return fmt.Errorf("pod_capacity must be >= 1")
	}
	return nil
}
