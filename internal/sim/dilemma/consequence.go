package dilemma

import (
	"encoding/json"
	"fmt"

	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/progression"
	"seedhive.ai/internal/sim/tuning"
)

// Consequence is one effect of a dilemma option. The set of kinds is closed;
// apply switches over every implementation.
type Consequence interface {
	Kind() string
	consequence()
}

// ResourceDelta adds to the resource pools and ambient heat.
type ResourceDelta struct {
	Biomass  float64
	Minerals float64
	Data     float64
	Energy   float64
	Heat     float64
}

// TerritoryDelta moves controlled territory. Growth past the mapped
// frontier maps the new ground too.
type TerritoryDelta struct {
	Controlled float64
}

// PhaseSet requests a phase change; it only applies when Phase is the next
// phase of the colony.
type PhaseSet struct {
	Phase model.Phase
}

type UnlockSet struct {
	Capability model.Capability
}

// UnitCountDelta removes units when negative. Positive counts are ignored.
type UnitCountDelta struct {
	Count int
}

// CycleAdvance skips the cycle counter forward.
type CycleAdvance struct {
	Cycles int
}

type ExtinctionDelta struct {
	Count int
}

func (ResourceDelta) Kind() string   { return "resource" }
func (TerritoryDelta) Kind() string  { return "territory" }
func (PhaseSet) Kind() string        { return "phase" }
func (UnlockSet) Kind() string       { return "unlock" }
func (UnitCountDelta) Kind() string  { return "units" }
func (CycleAdvance) Kind() string    { return "cycle" }
func (ExtinctionDelta) Kind() string { return "extinction" }

func (ResourceDelta) consequence()   {}
func (TerritoryDelta) consequence()  {}
func (PhaseSet) consequence()        {}
func (UnlockSet) consequence()       {}
func (UnitCountDelta) consequence()  {}
func (CycleAdvance) consequence()    {}
func (ExtinctionDelta) consequence() {}

func apply(s *model.State, c Consequence, t tuning.Tuning) {
	switch c := c.(type) {
	case nil:
	case ResourceDelta:
		s.Biomass += c.Biomass
		s.Minerals += c.Minerals
		s.Data += c.Data
		s.Energy += c.Energy
		s.Heat += c.Heat
	case TerritoryDelta:
		s.Territory.Controlled += c.Controlled
		if s.Territory.Controlled > s.Territory.Mapped {
			s.Territory.Mapped = s.Territory.Controlled
		}
	case PhaseSet:
		progression.Transition(s, c.Phase, t)
	case UnlockSet:
		s.Unlock(c.Capability)
	case UnitCountDelta:
		if c.Count < 0 {
			colony.RemoveUnits(s, -c.Count)
		}
	case CycleAdvance:
		if c.Cycles > 0 {
			s.Cycle += c.Cycles
		}
	case ExtinctionDelta:
		if c.Count > 0 {
			s.ExtinctionEvents += c.Count
		}
	default:
		// Unknown kinds change nothing; the history keeps a trace of them.
		s.AddHistory("consequence_skipped", fmt.Sprintf("Unhandled consequence %q (%T) ignored.", c.Kind(), c))
	}
}

// Consequences marshals as a list of objects tagged with "kind".
type Consequences []Consequence

type wireConsequence struct {
	Kind       string           `json:"kind"`
	Biomass    float64          `json:"biomass,omitempty"`
	Minerals   float64          `json:"minerals,omitempty"`
	Data       float64          `json:"data,omitempty"`
	Energy     float64          `json:"energy,omitempty"`
	Heat       float64          `json:"heat,omitempty"`
	Controlled float64          `json:"controlled,omitempty"`
	Phase      model.Phase      `json:"phase,omitempty"`
	Capability model.Capability `json:"capability,omitempty"`
	Count      int              `json:"count,omitempty"`
}

func (cs Consequences) MarshalJSON() ([]byte, error) {
	out := make([]wireConsequence, 0, len(cs))
	for _, c := range cs {
		w := wireConsequence{Kind: c.Kind()}
		switch c := c.(type) {
		case ResourceDelta:
			w.Biomass, w.Minerals, w.Data, w.Energy, w.Heat = c.Biomass, c.Minerals, c.Data, c.Energy, c.Heat
		case TerritoryDelta:
			w.Controlled = c.Controlled
		case PhaseSet:
			w.Phase = c.Phase
		case UnlockSet:
			w.Capability = c.Capability
		case UnitCountDelta:
			w.Count = c.Count
		case CycleAdvance:
			w.Count = c.Cycles
		case ExtinctionDelta:
			w.Count = c.Count
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

func (cs *Consequences) UnmarshalJSON(b []byte) error {
	var in []wireConsequence
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := make(Consequences, 0, len(in))
	for i, w := range in {
		switch w.Kind {
		case "resource":
			out = append(out, ResourceDelta{Biomass: w.Biomass, Minerals: w.Minerals, Data: w.Data, Energy: w.Energy, Heat: w.Heat})
		case "territory":
			out = append(out, TerritoryDelta{Controlled: w.Controlled})
		case "phase":
			out = append(out, PhaseSet{Phase: w.Phase})
		case "unlock":
			out = append(out, UnlockSet{Capability: w.Capability})
		case "units":
			out = append(out, UnitCountDelta{Count: w.Count})
		case "cycle":
			out = append(out, CycleAdvance{Cycles: w.Count})
		case "extinction":
			out = append(out, ExtinctionDelta{Count: w.Count})
		default:
			return fmt.Errorf("consequence %d: unknown kind %q", i, w.Kind)
		}
	}
	*cs = out
	return nil
}
