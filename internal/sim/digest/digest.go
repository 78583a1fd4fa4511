// Package digest fingerprints colony state for replay verification.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"seedhive.ai/internal/sim/model"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hashWriter, tmp *[8]byte, v int64) { writeU64(h, tmp, uint64(v)) }

func writeF64(h hashWriter, tmp *[8]byte, v float64) { writeU64(h, tmp, math.Float64bits(v)) }

func writeStr(h hashWriter, tmp *[8]byte, s string) {
	writeU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func writeBool(h hashWriter, b bool) {
	if b {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

// State returns the hex sha256 of every engine-visible field of s. The
// narration-only LastCycle summary is excluded.
func State(s model.State) string {
	h := sha256.New()
	var tmp [8]byte

	writeI64(h, &tmp, int64(s.Cycle))
	writeStr(h, &tmp, string(s.Phase))
	for _, v := range []float64{s.Heat, s.Biomass, s.Minerals, s.Data, s.Energy} {
		writeF64(h, &tmp, v)
	}

	writeU64(h, &tmp, uint64(len(s.Units)))
	for _, u := range s.Units {
		writeStr(h, &tmp, u.ID)
		writeStr(h, &tmp, string(u.Role))
		writeStr(h, &tmp, string(u.Type))
		writeStr(h, &tmp, string(u.Activity))
		writeF64(h, &tmp, u.Fatigue)
		writeStr(h, &tmp, u.PodID)
	}
	writeU64(h, &tmp, uint64(len(s.Pods)))
	for _, p := range s.Pods {
		writeStr(h, &tmp, p.ID)
		writeStr(h, &tmp, string(p.Status))
		writeU64(h, &tmp, uint64(len(p.Units)))
		for _, id := range p.Units {
			writeStr(h, &tmp, id)
		}
		writeF64(h, &tmp, p.HeatContribution)
		writeI64(h, &tmp, int64(p.LastRotation))
	}

	hc := s.HiveCore
	for _, v := range []float64{hc.Health, hc.Capacity, hc.DigestionRate, hc.ConversionEfficiency, hc.Heat} {
		writeF64(h, &tmp, v)
	}
	writeF64(h, &tmp, s.Territory.Mapped)
	writeF64(h, &tmp, s.Territory.Controlled)
	writeF64(h, &tmp, s.Threats.Level)
	writeBool(h, s.Threats.Discovered)
	writeF64(h, &tmp, s.Threats.Hostility)
	writeStr(h, &tmp, string(s.Policies.ThermalPriority))
	writeStr(h, &tmp, string(s.Policies.SensoryAcuity))
	writeStr(h, &tmp, string(s.Policies.ReproductionMode))

	// Fixed key order keeps map iteration out of the hash.
	for _, c := range model.Capabilities {
		writeBool(h, s.Unlocked[c])
	}

	writeU64(h, &tmp, uint64(len(s.History)))
	for _, e := range s.History {
		writeI64(h, &tmp, int64(e.Cycle))
		writeStr(h, &tmp, e.Event)
	}
	writeU64(h, &tmp, uint64(len(s.EthicalQuestions)))
	for _, q := range s.EthicalQuestions {
		writeStr(h, &tmp, q.Dilemma)
		writeStr(h, &tmp, q.Choice)
	}
	writeU64(h, &tmp, uint64(len(s.Reflections)))

	writeI64(h, &tmp, int64(s.ExtinctionEvents))
	writeBool(h, s.NativeLifeEncountered)
	writeStr(h, &tmp, s.NativeLifeDecision)

	d := s.Difficulty
	writeF64(h, &tmp, d.HeatMultiplier)
	writeF64(h, &tmp, d.ResourceCostMultiplier)
	writeF64(h, &tmp, d.DilemmaFrequency)
	writeBool(h, d.NativeLifeHostility)

	writeI64(h, &tmp, int64(s.Counters.NextUnit))
	writeI64(h, &tmp, int64(s.Counters.NextPod))
	writeI64(h, &tmp, int64(s.Ascension.SeedsLaunched))
	writeU64(h, &tmp, uint64(len(s.Ascension.WorldsSeeded)))
	for _, w := range s.Ascension.WorldsSeeded {
		writeStr(h, &tmp, w.Name)
	}

	return hex.EncodeToString(h.Sum(nil))
}
