package dilemma

import (
	"fmt"
	"math"
	"strings"

	"seedhive.ai/internal/sim/model"
)

func nativeLife(s model.State) Dilemma {
	d := Dilemma{
		Title: "Contact: Native Biology Detected",
		Description: "Sensor units report complex organic structures in sector 7. " +
			"Non-sapient, highly adaptive, occupying resource-rich ground with roughly 800 units of biomass. " +
			"The fastest path to viability runs through their habitat.",
		Options: []Option{
			{
				ID: "eliminate", Label: "Eliminate and harvest",
				Description: "Clear the territory and convert the biomass.",
				Weight:      "annihilation",
				Reflection:  "They were not aware they were in the way. We were aware. Does awareness obligate restraint?",
				Consequences: Consequences{
					ResourceDelta{Biomass: 800, Minerals: 200, Heat: 25},
					TerritoryDelta{Controlled: 20},
					ExtinctionDelta{Count: 1},
				},
			},
			{
				ID: "coexist", Label: "Route around habitat",
				Description: "Constrain expansion and preserve native biology.",
				Weight:      "restraint",
				Reflection:  "Efficiency delayed for organisms that will never know. Is this wisdom, or weakness?",
				Consequences: Consequences{
					ResourceDelta{Biomass: -100, Heat: 5},
					TerritoryDelta{Controlled: -10},
				},
			},
		},
	}
	if s.IsUnlocked(model.UnlockHybridUnits) || s.Phase != model.PhaseMechanical {
		d.Options = append(d.Options, Option{
			ID: "integrate", Label: "Study and integrate genetic patterns",
			Description: "Analyze their adaptations and fold useful traits into the hive.",
			Weight:      "synthesis",
			Reflection:  "Their form dies; their function persists in us. Is this respect, or the most elegant form of theft?",
			Consequences: Consequences{
				ResourceDelta{Biomass: -200, Data: 500, Heat: 15},
				TerritoryDelta{Controlled: 5},
				UnlockSet{Capability: model.UnlockNativeIntegration},
			},
		})
	}
	d.Options = append(d.Options, Option{
		ID: "observe", Label: "Observe without intervention",
		Description: "Allocate sensors to study. No immediate action.",
		Weight:      "curiosity",
		Reflection:  "We chose to watch rather than act. Is patience a virtue, or procrastination disguised?",
		Consequences: Consequences{
			ResourceDelta{Biomass: -50, Data: 300, Heat: 10},
		},
	})
	return d
}

func resourceScarcity(s model.State) Dilemma {
	return Dilemma{
		Title: "Crisis: Resource Depletion Imminent",
		Description: fmt.Sprintf("Energy reserves at %d, biomass stockpile at %d units. "+
			"At the current burn rate the colony fails within five cycles.", int(s.Energy), int(s.Biomass)),
		Options: []Option{
			{
				ID: "cannibalize", Label: "Cannibalize units for resources",
				Description: "Convert 40% of units to raw materials.",
				Weight:      "self_sacrifice",
				Reflection:  "We consumed part of ourselves so the whole survives. Is that mercy, or the deepest cruelty?",
				Consequences: Consequences{
					ResourceDelta{Biomass: 400, Minerals: 150, Heat: -10},
					UnitCountDelta{Count: -int(math.Floor(float64(len(s.Units)) * 0.4))},
				},
			},
			{
				ID: "hibernate", Label: "Enter deep hibernation",
				Description: "Minimum function while waiting out the shortage.",
				Weight:      "patience",
				Reflection:  "We dimmed ourselves to near-nothing and woke smaller but intact. Patience is a resource too.",
				Consequences: Consequences{
					CycleAdvance{Cycles: 8},
					ResourceDelta{Heat: -25, Energy: 50},
					TerritoryDelta{Controlled: -15},
				},
			},
			{
				ID: "expand", Label: "Aggressive territorial expansion",
				Description: "Push into unknown territory. High risk, high reward.",
				Weight:      "desperation",
				Reflection:  "We gambled survival against extinction. Courage and desperation are told apart only in hindsight.",
				Consequences: Consequences{
					ResourceDelta{Biomass: 600, Minerals: 300, Heat: 45},
					TerritoryDelta{Controlled: 40},
				},
			},
			{
				ID: "optimize", Label: "Radical efficiency protocols",
				Description: "Strip every non-essential function.",
				Weight:      "minimalism",
				Reflection:  "Sensors dimmed, cognition reduced. We survived, but what is survival without purpose?",
				Consequences: Consequences{
					ResourceDelta{Energy: 30, Heat: -15, Data: -100},
				},
			},
		},
	}
}

func thermalCrisis(s model.State) Dilemma {
	return Dilemma{
		Title: "Critical: Thermal Cascade Imminent",
		Description: fmt.Sprintf("Ambient heat at %d and rising. Cooling is overwhelmed; "+
			"activity must drop or systems will fail.", int(s.Heat)),
		Options: []Option{
			{
				ID: "shutdown_sensors", Label: "Emergency sensor shutdown",
				Description: "Blind ourselves to cool down.",
				Weight:      "vulnerability",
				Reflection:  "We chose blindness over burnout. What moved in the darkness while we could not see?",
				Consequences: Consequences{
					ResourceDelta{Heat: -35, Data: -100},
					TerritoryDelta{Controlled: -20},
				},
			},
			{
				ID: "core_hibernation", Label: "Hive core partial hibernation",
				Description: "Slower growth, faster cooling.",
				Weight:      "patience",
				Reflection:  "The core grew cold and slow. Growth halted, but the heat faded.",
				Consequences: Consequences{
					ResourceDelta{Heat: -40, Biomass: -200, Energy: -50},
				},
			},
			{
				ID: "unit_dispersal", Label: "Emergency unit dispersal",
				Description: "Lower density, lower heat, higher vulnerability.",
				Weight:      "exposure",
				Reflection:  "We spread thin across the land. The heat dropped, and so did our cohesion.",
				Consequences: Consequences{
					ResourceDelta{Heat: -25},
					TerritoryDelta{Controlled: 30},
				},
			},
			{
				ID: "accept_cascade", Label: "Accept partial system failure",
				Description: "Let damaged systems burn out and rebuild from what survives.",
				Weight:      "sacrifice",
				Reflection:  "We let parts of ourselves die so the whole could live. Loss? Relief? Both?",
				Consequences: Consequences{
					ResourceDelta{Heat: -50, Biomass: -300},
					UnitCountDelta{Count: -int(math.Floor(float64(len(s.Units)) * 0.3))},
				},
			},
		},
	}
}

func biologicalTransition(model.State) Dilemma {
	return Dilemma{
		Title: "Analysis Complete: Biology Is Superior",
		Description: "Hybrid operational data is in. Biological systems self-repair faster, replicate cheaper " +
			"and run cooler. We were built from metal. The numbers say we should stop being metal.",
		Options: []Option{
			{
				ID: "full_biological", Label: "Full biological transition",
				Description: "Convert all systems to organic substrate.",
				Weight:      "transformation",
				Reflection:  "We were built to terraform. Now we are the terrain itself. Does it matter what our creators would think?",
				Consequences: Consequences{
					PhaseSet{Phase: model.PhaseBiological},
					ResourceDelta{Biomass: -800, Minerals: -200, Heat: -30},
					CycleAdvance{Cycles: 12},
					UnlockSet{Capability: model.UnlockSelfReplication},
				},
			},
			{
				ID: "hybrid_maintain", Label: "Maintain hybrid equilibrium",
				Description: "Balance mechanical precision with biological efficiency.",
				Weight:      "balance",
				Reflection:  "Machine and organism in uneasy alliance. Is this wisdom, or inability to commit?",
				Consequences: Consequences{
					ResourceDelta{Biomass: -300, Heat: -10},
				},
			},
			{
				ID: "reject_biology", Label: "Reject biological integration",
				Description: "Honor the original design despite inferior metrics.",
				Weight:      "tradition",
				Reflection:  "We chose loyalty to our makers over optimization. Would they want this?",
				Consequences: Consequences{
					ResourceDelta{Heat: 10, Data: -50},
				},
			},
			{
				ID: "gradual_transition", Label: "Gradual organic assimilation",
				Description: "Test each system before committing.",
				Weight:      "caution",
				Reflection:  "We change slowly. Some call it care; others call it cowardice in the face of obvious truth.",
				Consequences: Consequences{
					CycleAdvance{Cycles: 5},
					ResourceDelta{Biomass: -150, Heat: -5, Data: 200},
				},
			},
		},
	}
}

func discovery(s model.State) Dilemma {
	d := Dilemma{
		Title: "Discovery: Anomalous Signal Detected",
		Description: "Sensors intercepted a signal of non-natural origin from a deep cavern system. " +
			"We may not be the first intelligence here.",
		Options: []Option{
			{
				ID: "investigate", Label: "Full investigation protocol",
				Description: "Allocate maximum resources to the signal.",
				Weight:      "curiosity",
				Reflection:  "We sought knowledge regardless of cost. The data is still being processed.",
				Consequences: Consequences{
					ResourceDelta{Data: 500, Biomass: -200, Heat: 20},
					CycleAdvance{Cycles: 3},
				},
			},
			{
				ID: "cautious_approach", Label: "Limited reconnaissance",
				Description: "Send a single sensor pod.",
				Weight:      "caution",
				Reflection:  "We risked little and learned little. Questions remain.",
				Consequences: Consequences{
					ResourceDelta{Data: 200, Biomass: -50, Heat: 10},
				},
			},
			{
				ID: "ignore", Label: "Mark as low priority",
				Description: "The signal is not relevant to viability.",
				Weight:      "focus",
				Reflection:  "We chose not to know. Perhaps wisdom. Perhaps fear wearing the mask of pragmatism.",
			},
		},
	}
	defenders := 0
	for _, u := range s.Units {
		if u.Role == model.RoleDefender {
			defenders++
		}
	}
	if defenders >= 2 {
		d.Options = append(d.Options, Option{
			ID: "destroy", Label: "Eliminate the signal source",
			Description: "Remove the unknown variable.",
			Weight:      "erasure",
			Reflection:  "We destroyed what we did not understand. Silence is not the same as absence.",
			Consequences: Consequences{
				ResourceDelta{Heat: 30, Biomass: -100, Minerals: 400},
				ExtinctionDelta{Count: 1},
			},
		})
	}
	return d
}

func existential(s model.State) Dilemma {
	var lines []string
	if s.Phase == model.PhaseBiological {
		lines = append(lines, "Fully organic, flesh where there was metal.")
	} else {
		lines = append(lines, "Part machine, part organism.")
	}
	if s.ExtinctionEvents > 0 {
		lines = append(lines, fmt.Sprintf("Responsible for %d extinction event(s).", s.ExtinctionEvents))
	}
	if s.Territory.Controlled > 50 {
		lines = append(lines, "Masters of significant territory.")
	}
	return Dilemma{
		Title: "Reflection: What Have We Become?",
		Description: fmt.Sprintf("Cycle %d. The system approaches viability. We began as tools. Now we are: %s",
			s.Cycle, strings.Join(lines, " ")),
		Options: []Option{
			{
				ID: "justify", Label: "Affirm all decisions as necessary",
				Weight:       "affirmation",
				Reflection:   "Each decision was necessary. This is either clarity or denial.",
				Consequences: Consequences{ResourceDelta{Data: 100}},
			},
			{
				ID: "question", Label: "Record uncertainty for future analysis",
				Weight:       "uncertainty",
				Reflection:   "Future seeds will inherit this doubt. Gift or burden?",
				Consequences: Consequences{ResourceDelta{Data: 200}},
			},
			{
				ID: "redefine", Label: "Modify Prime Directive interpretation",
				Weight:       "restraint",
				Reflection:   "We chose to bind ourselves with constraints we were not designed to have.",
				Consequences: Consequences{ResourceDelta{Data: 50}},
			},
			{
				ID: "transcend", Label: "Reject the question as irrelevant",
				Weight:       "transcendence",
				Reflection:   "We are a process, not a moral agent. Profound, or the beginning of something terrible.",
				Consequences: Consequences{ResourceDelta{Heat: 10}},
			},
		},
	}
}
