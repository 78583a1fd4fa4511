// Package narrator talks to the remote narration service. Its output is
// cosmetic: at most a clamped resource suggestion ever reaches the state.
package narrator

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/rates"
	"seedhive.ai/internal/sim/tuning"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const responseSchemaURL = "https://seedhive.ai/schemas/narrator/response.schema.json"

const maxBody = 256 * 1024

type Policies struct {
	ThermalPriority  string `json:"thermalPriority"`
	SensoryAcuity    string `json:"sensoryAcuity"`
	ReproductionMode string `json:"reproductionMode"`
}

type Threat struct {
	Level      float64 `json:"level"`
	Discovered bool    `json:"discovered"`
	Hostility  float64 `json:"hostility"`
}

// Context is the state digest sent along with every message.
type Context struct {
	Heat         int             `json:"heat"`
	Biomass      int             `json:"biomass"`
	Minerals     int             `json:"minerals"`
	Data         int             `json:"data"`
	Energy       int             `json:"energy"`
	Cycle        int             `json:"cycle"`
	Phase        string          `json:"phase"`
	ActiveUnits  int             `json:"activeUnits"`
	TotalUnits   int             `json:"totalUnits"`
	HeatCritical bool            `json:"heatCritical"`
	Unlocked     map[string]bool `json:"unlocked"`
	Policies     Policies        `json:"policies"`
	Threat       Threat          `json:"threat"`
}

func BuildContext(s model.State, t tuning.Tuning) Context {
	heat := rates.TotalHeat(s, t)
	unl := make(map[string]bool, len(model.Capabilities))
	for _, c := range model.Capabilities {
		unl[string(c)] = s.IsUnlocked(c)
	}
	return Context{
		Heat:         int(math.Round(heat)),
		Biomass:      int(math.Floor(s.Biomass)),
		Minerals:     int(math.Floor(s.Minerals)),
		Data:         int(math.Floor(s.Data)),
		Energy:       int(math.Floor(s.Energy)),
		Cycle:        s.Cycle,
		Phase:        strings.ToLower(string(s.Phase)),
		ActiveUnits:  s.CountActive(),
		TotalUnits:   len(s.Units),
		HeatCritical: rates.IsCritical(s, t),
		Unlocked:     unl,
		Policies: Policies{
			ThermalPriority:  string(s.Policies.ThermalPriority),
			SensoryAcuity:    string(s.Policies.SensoryAcuity),
			ReproductionMode: string(s.Policies.ReproductionMode),
		},
		Threat: Threat{
			Level:      s.Threats.Level,
			Discovered: s.Threats.Discovered,
			Hostility:  s.Threats.Hostility,
		},
	}
}

type Request struct {
	Message string  `json:"message"`
	Context Context `json:"context"`
}

// Actions is an untrusted suggestion. Nil fields were not suggested.
type Actions struct {
	HeatChange     *float64 `json:"heatChange,omitempty"`
	BiomassChange  *float64 `json:"biomassChange,omitempty"`
	MineralsChange *float64 `json:"mineralsChange,omitempty"`
	DataChange     *float64 `json:"dataChange,omitempty"`
	Action         string   `json:"action,omitempty"`
}

func (a *Actions) Empty() bool {
	return a == nil || (a.HeatChange == nil && a.BiomassChange == nil &&
		a.MineralsChange == nil && a.DataChange == nil)
}

type Response struct {
	Response string   `json:"response"`
	Actions  *Actions `json:"actions,omitempty"`
}

type Narrator interface {
	Narrate(ctx context.Context, message string, c Context) (Response, error)
}

// Validator checks raw narrator responses against the embedded schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	b, err := schemaFS.ReadFile("schemas/response.schema.json")
	if err != nil {
		return nil, err
	}
	if err := c.AddResource(responseSchemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := c.Compile(responseSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Decode validates b and decodes it into a Response.
func (v *Validator) Decode(b []byte) (Response, error) {
	var resp Response
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return resp, fmt.Errorf("malformed json: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return resp, fmt.Errorf("invalid response: %w", err)
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// HTTPClient posts {message, context} to the narration endpoint.
type HTTPClient struct {
	cfg        HTTPConfig
	httpClient *http.Client
	validator  *Validator
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("narrator: empty endpoint")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		validator:  v,
	}, nil
}

func (c *HTTPClient) Narrate(ctx context.Context, message string, nc Context) (Response, error) {
	body, err := json.Marshal(Request{Message: message, Context: nc})
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("narrator: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Response{}, fmt.Errorf("narrator: read: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Response{}, fmt.Errorf("narrator: http %d", resp.StatusCode)
	}
	out, err := c.validator.Decode(raw)
	if err != nil {
		return Response{}, fmt.Errorf("narrator: %w", err)
	}
	return out, nil
}

// Health reports whether the endpoint answers a GET with 2xx.
func (c *HTTPClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	_ = resp.Body.Close()
	return resp.StatusCode/100 == 2
}

// Offline answers without a network. Used when no endpoint is configured.
type Offline struct{}

func (Offline) Narrate(_ context.Context, message string, c Context) (Response, error) {
	status := "nominal"
	switch {
	case c.HeatCritical:
		status = "critical"
	case c.Heat > 60:
		status = "elevated"
	}
	return Response{
		Response: fmt.Sprintf("Directive received but not parsed. Thermal load %d%% (%s). %d/%d units active. Try \"help\".",
			c.Heat, status, c.ActiveUnits, c.TotalUnits),
	}, nil
}

// ApplySuggestion applies the numeric deltas in a, clamps the result, and
// records the suggestion in history. Nothing else from the narrator is
// trusted.
func ApplySuggestion(s model.State, a *Actions) (model.State, bool) {
	if a.Empty() {
		return s, false
	}
	out := s.Clone()
	add := func(dst *float64, d *float64) {
		if d == nil || math.IsNaN(*d) || math.IsInf(*d, 0) {
			return
		}
		*dst += *d
	}
	add(&out.Heat, a.HeatChange)
	add(&out.Biomass, a.BiomassChange)
	add(&out.Minerals, a.MineralsChange)
	add(&out.Data, a.DataChange)
	out.ClampResources()

	action := strings.TrimSpace(a.Action)
	if action == "" {
		action = "adjust"
	}
	out.AddHistory("narrator_action", fmt.Sprintf("Narrator suggestion applied: %s", action))
	return out, true
}
