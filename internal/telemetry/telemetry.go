// Package telemetry writes one CSV row per processed cycle.
package telemetry

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
)

// CycleRecord is a flat view of the state after one cycle.
type CycleRecord struct {
	Run         int     `csv:"run"`
	Cycle       int     `csv:"cycle"`
	Phase       string  `csv:"phase"`
	TotalHeat   float64 `csv:"total_heat"`
	Ambient     float64 `csv:"ambient_heat"`
	Biomass     float64 `csv:"biomass"`
	Minerals    float64 `csv:"minerals"`
	Data        float64 `csv:"data"`
	Energy      float64 `csv:"energy"`
	Units       int     `csv:"units"`
	Active      int     `csv:"active"`
	Standby     int     `csv:"standby"`
	Hibernating int     `csv:"hibernating"`
	Pods        int     `csv:"pods"`
	MeanFatigue float64 `csv:"mean_fatigue"`
	Mapped      float64 `csv:"mapped"`
	Controlled  float64 `csv:"controlled"`
	ThreatLevel float64 `csv:"threat_level"`
	Extinctions int     `csv:"extinctions"`
	Events      string  `csv:"events"`
	Completed   bool    `csv:"completed"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func Record(run int, s model.State, t tuning.Tuning) CycleRecord {
	rec := CycleRecord{
		Run:         run,
		Cycle:       s.Cycle,
		Phase:       string(s.Phase),
		TotalHeat:   round2(rates.TotalHeat(s, t)),
		Ambient:     round2(s.Heat),
		Biomass:     round2(s.Biomass),
		Minerals:    round2(s.Minerals),
		Data:        round2(s.Data),
		Energy:      round2(s.Energy),
		Units:       len(s.Units),
		Pods:        len(s.Pods),
		Mapped:      round2(s.Territory.Mapped),
		Controlled:  round2(s.Territory.Controlled),
		ThreatLevel: round2(s.Threats.Level),
		Extinctions: s.ExtinctionEvents,
	}
	var fatigue float64
	for _, u := range s.Units {
		switch u.Activity {
		case model.ActivityActive:
			rec.Active++
		case model.ActivityStandby:
			rec.Standby++
		case model.ActivityHibernating:
			rec.Hibernating++
		}
		fatigue += u.Fatigue
	}
	if len(s.Units) > 0 {
		rec.MeanFatigue = round2(fatigue / float64(len(s.Units)))
	}
	if s.LastCycle != nil {
		rec.Events = strings.Join(s.LastCycle.Events, ";")
		rec.Completed = s.LastCycle.Completed
	}
	return rec
}

// CSVWriter appends records to w, writing the header once.
type CSVWriter struct {
	mu            sync.Mutex
	w             io.Writer
	headerWritten bool
}

func NewCSVWriter(w io.Writer) *CSVWriter { return &CSVWriter{w: w} }

func (c *CSVWriter) Write(recs ...CycleRecord) error {
	if c == nil || len(recs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.headerWritten {
		if err := gocsv.Marshal(recs, c.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		c.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(recs, c.w); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// FileSink appends records to a CSV file. The header is written only when
// the file starts empty.
type FileSink struct {
	f *os.File
	*CSVWriter
}

func OpenFile(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := NewCSVWriter(f)
	w.headerWritten = st.Size() > 0
	return &FileSink{f: f, CSVWriter: w}, nil
}

func (s *FileSink) Close() error { return s.f.Close() }

// ReadAll parses records previously written by CSVWriter.
func ReadAll(r io.Reader) ([]CycleRecord, error) {
	var out []CycleRecord
	if err := gocsv.Unmarshal(r, &out); err != nil {
		return nil, err
	}
	return out, nil
}
