package model

import (
	"math"
	"testing"
)

func TestPhase_NextIsStrictlyForward(t *testing.T) {
	cases := []struct {
		in   Phase
		want Phase
		ok   bool
	}{
		{PhaseMechanical, PhaseHybrid, true},
		{PhaseHybrid, PhaseBiological, true},
		{PhaseBiological, PhaseAscension, true},
		{PhaseAscension, "", false},
		{Phase("BOGUS"), "", false},
	}
	for _, tc := range cases {
		got, ok := tc.in.Next()
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s.Next() = (%q,%v), want (%q,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	s := State{
		Units:     []Unit{{ID: "u1", Activity: ActivityActive}},
		Pods:      []Pod{{ID: "pod_alpha", Units: []string{"u1"}}},
		Unlocked:  map[Capability]bool{UnlockHybridUnits: true},
		History:   []HistoryEntry{{Cycle: 1, Event: "init"}},
		LastCycle: &CycleSummary{Events: []string{"a"}},
	}
	c := s.Clone()
	c.Units[0].Activity = ActivityHibernating
	c.Pods[0].Units[0] = "u2"
	c.Unlocked[UnlockThermalRotation] = true
	c.History[0].Event = "changed"
	c.LastCycle.Events[0] = "b"

	if s.Units[0].Activity != ActivityActive {
		t.Fatalf("units aliased")
	}
	if s.Pods[0].Units[0] != "u1" {
		t.Fatalf("pod members aliased")
	}
	if s.Unlocked[UnlockThermalRotation] {
		t.Fatalf("unlocks aliased")
	}
	if s.History[0].Event != "init" {
		t.Fatalf("history aliased")
	}
	if s.LastCycle.Events[0] != "a" {
		t.Fatalf("lastCycle aliased")
	}
}

func TestClampResources(t *testing.T) {
	s := State{
		Heat:      -3,
		Biomass:   math.NaN(),
		Energy:    -0.5,
		Territory: Territory{Mapped: 10, Controlled: 25},
		Threats:   Threats{Level: 140, Hostility: -2},
	}
	s.ClampResources()
	if s.Heat != 0 || s.Biomass != 0 || s.Energy != 0 {
		t.Fatalf("pools not clamped: heat=%v biomass=%v energy=%v", s.Heat, s.Biomass, s.Energy)
	}
	if s.Territory.Controlled != 10 {
		t.Fatalf("controlled=%v want 10", s.Territory.Controlled)
	}
	if s.Threats.Level != 100 || s.Threats.Hostility != 0 {
		t.Fatalf("threats not clamped: %+v", s.Threats)
	}
}

func TestUnlock_OneWay(t *testing.T) {
	var s State
	if !s.Unlock(UnlockThermalRotation) {
		t.Fatalf("first unlock should report true")
	}
	if s.Unlock(UnlockThermalRotation) {
		t.Fatalf("second unlock should report false")
	}
	if !s.IsUnlocked(UnlockThermalRotation) {
		t.Fatalf("unlock lost")
	}
}
