// Package driver is the top-level entry point: it turns a catalog into a
// registry session and runs executors by id, with text in and text out.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/data"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// Driver owns sessions built from catalogs.
type Driver struct {
	engine   *engine.Engine
	registry *registry.Registry
	logger   *zap.Logger
}

// RunRequest describes one top-level run.
type RunRequest struct {
	Session  string
	Executor string
	// Inputs are port texts: scalars verbatim, numbers as a JSON list or
	// {"values": [...], "width": n}.
	Inputs     map[string]string
	Parameters map[string]any
	Settings   []byte
	Options    engine.Options

	// LogSettings logs the merged settings document at info.
	LogSettings bool
	// LogTiming logs phase durations and timing windows at info.
	LogTiming bool
	// Repeat runs the executor that many times; the last result is returned.
	Repeat int
}

// RunResult is the text rendering of a completed run.
type RunResult struct {
	Executor  string
	Variant   string
	Cancelled bool
	Settings  string
	// Outputs maps every initialized output port to its text.
	Outputs map[string]string
	// Visible names the visible output port, if one could be chosen.
	Visible string
	Timing  engine.Phases
	Runs    int
	Elapsed time.Duration
}

// VisibleText returns the text of the visible output.
func (r *RunResult) VisibleText() (string, bool) {
	if r.Visible == "" {
		return "", false
	}
	v, ok := r.Outputs[r.Visible]
	return v, ok
}

// New creates a driver over an engine and the registry it executes.
func New(e *engine.Engine, reg *registry.Registry, logger *zap.Logger) (*Driver, error) {
	if e == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if reg == nil {
		reg = e.Registry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{engine: e, registry: reg, logger: logger}, nil
}

// LoadSession registers a worker for every spec of cat in a new session.
// On failure nothing stays registered.
func (d *Driver) LoadSession(cat *spec.Catalog) (string, error) {
	session := registry.NewSessionID()
	for _, s := range cat.Specs() {
		w, err := d.engine.NewWorker(s)
		if err == nil {
			err = d.registry.Register(session, s, w)
		}
		if err != nil {
			_ = d.registry.CloseSession(session)
			return "", fmt.Errorf("failed to load executor %q: %w", s.ID, err)
		}
	}
	d.logger.Debug("session loaded",
		zap.String("session_id", session),
		zap.Int("executors", cat.Len()))
	return session, nil
}

// Close drops a session and closes its workers.
func (d *Driver) Close(session string) error {
	return d.registry.CloseSession(session)
}

// Run executes req.Executor req.Repeat times (at least once).
func (d *Driver) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	s, err := d.registry.Spec(req.Session, req.Executor)
	if err != nil {
		return nil, err
	}
	runs := max(req.Repeat, 1)

	var res *engine.Result
	var outputs data.Ports
	start := time.Now()
	for i := 0; i < runs; i++ {
		inputs, err := BuildInputs(s, req.Inputs)
		if err != nil {
			return nil, err
		}
		outputs = s.NewOutputPorts()
		res, err = d.engine.Execute(ctx, engine.Call{
			Session:    req.Session,
			Executor:   req.Executor,
			Inputs:     inputs,
			Outputs:    outputs,
			Parameters: req.Parameters,
			Settings:   req.Settings,
			Options:    req.Options,
		})
		if err != nil {
			d.logger.Error("run failed",
				zap.String("executor", req.Executor),
				zap.Int("run", i+1),
				zap.Error(err))
			return nil, err
		}
	}

	result := &RunResult{
		Executor:  res.Executor,
		Variant:   res.Variant,
		Cancelled: res.Cancelled,
		Settings:  res.Settings,
		Outputs:   make(map[string]string),
		Visible:   res.Visible,
		Timing:    res.Timing,
		Runs:      runs,
		Elapsed:   time.Since(start),
	}
	for _, name := range outputs.Names() {
		p := outputs[name]
		if !p.IsInitialized() {
			continue
		}
		text, err := FormatPort(p)
		if err != nil {
			return nil, err
		}
		result.Outputs[name] = text
	}

	d.logger.Info("executed",
		zap.String("executor", describe(s, res)),
		zap.Int("runs", runs),
		zap.Bool("cancelled", res.Cancelled),
		zap.Duration("elapsed", result.Elapsed))
	if req.LogSettings {
		d.logger.Info("settings",
			zap.String("executor", describe(s, res)),
			zap.String("document", res.Settings))
	}
	if req.LogTiming {
		d.logger.Info("timing",
			zap.String("executor", describe(s, res)),
			zap.Duration("loading", res.Timing.Loading),
			zap.Duration("executing", res.Timing.Executing),
			zap.Duration("total", res.Timing.Total))
		if summary := strings.TrimSpace(d.engine.Analyse()); summary != "" {
			d.logger.Info("timing windows\n" + summary)
		}
	}
	m := d.engine.Metrics()
	d.logger.Debug("engine metrics",
		zap.Int64("invocations", m.Invocations),
		zap.Int64("errors", m.Errors),
		zap.Int64("cancelled", m.Cancelled),
		zap.Int64("skipped_blocks", m.SkippedBlocks),
		zap.Int64("live_clones", d.registry.LiveClones()))
	return result, nil
}

func describe(s *spec.ExecutorSpec, res *engine.Result) string {
	name := s.DisplayName()
	if res.Variant != "" {
		name += " [" + res.Variant + "]"
	}
	return name
}

// BuildInputs creates the input ports of s from texts. Unknown names are
// rejected; ports without text stay uninitialized.
func BuildInputs(s *spec.ExecutorSpec, texts map[string]string) (data.Ports, error) {
	ports := s.NewInputPorts()
	for name, text := range texts {
		p := ports.Get(name)
		if p == nil {
			if name != spec.SettingsPort {
				return nil, fmt.Errorf("executor %q has no input %q", s.ID, name)
			}
			p = ports.Add(name, data.Input, data.KindScalar)
		}
		if err := ParsePort(p, text); err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
	}
	return ports, nil
}

// ParsePort sets p from text.
func ParsePort(p *data.Port, text string) error {
	switch p.Kind() {
	case data.KindScalar:
		sc, err := p.Scalar()
		if err != nil {
			return err
		}
		sc.Set(text)
		return nil
	case data.KindNumbers:
		n, err := p.Numbers()
		if err != nil {
			return err
		}
		values, width, err := parseNumbers(text)
		if err != nil {
			return err
		}
		return n.SetTo(values, width)
	default:
		return fmt.Errorf("%s ports cannot be set from text", p.Kind())
	}
}

func parseNumbers(text string) ([]float64, int, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		var v struct {
			Values []float64 `json:"values"`
			Width  int       `json:"width"`
		}
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, 0, err
		}
		return v.Values, max(v.Width, 1), nil
	}
	if strings.HasPrefix(text, "[") {
		var values []float64
		if err := json.Unmarshal([]byte(text), &values); err != nil {
			return nil, 0, err
		}
		return values, 1, nil
	}
	var values []float64
	for _, field := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' }) {
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, 0, err
		}
		values = append(values, f)
	}
	return values, 1, nil
}

// FormatPort renders an initialized port as text.
func FormatPort(p *data.Port) (string, error) {
	switch p.Kind() {
	case data.KindScalar:
		sc, err := p.Scalar()
		if err != nil {
			return "", err
		}
		return sc.String(), nil
	case data.KindNumbers:
		n, err := p.Numbers()
		if err != nil {
			return "", err
		}
		var raw []byte
		if n.RecordWidth() == 1 {
			raw, err = json.Marshal(n.Values())
		} else {
			raw, err = json.Marshal(map[string]any{"values": n.Values(), "width": n.RecordWidth()})
		}
		return string(raw), err
	default:
		m, err := p.Matrix()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("matrix %s %v x%d (%d bytes)", m.ElementType(), m.Dimensions(), m.Channels(), len(m.Payload())), nil
	}
}
