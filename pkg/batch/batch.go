// Package batch runs the region statistics pipeline over many subjects
// listed in a YAML manifest.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"mdroistats/internal/logging"
	"mdroistats/pkg/pipeline"
	"mdroistats/pkg/roistats"
	"mdroistats/pkg/store"
)

// Subject is one manifest entry
type Subject struct {
	ID     string `yaml:"id"`
	Metric string `yaml:"metric"`
	Labels string `yaml:"labels"`
}

// Manifest lists the subjects of a batch. LUT applies to every subject.
type Manifest struct {
	LUT      string    `yaml:"lut"`
	Subjects []Subject `yaml:"subjects"`
}

// LoadManifest reads a manifest. Relative paths are resolved against the
// manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	m.LUT = resolve(m.LUT)
	for i := range m.Subjects {
		m.Subjects[i].Metric = resolve(m.Subjects[i].Metric)
		m.Subjects[i].Labels = resolve(m.Subjects[i].Labels)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that subjects are present, complete and uniquely named
func (m *Manifest) Validate() error {
	if len(m.Subjects) == 0 {
		return errors.New("manifest lists no subjects")
	}
	seen := make(map[string]bool, len(m.Subjects))
	for i, s := range m.Subjects {
		if s.ID == "" {
			return fmt.Errorf("subject %d has no id", i+1)
		}
		if s.Metric == "" || s.Labels == "" {
			return fmt.Errorf("subject %s needs both metric and labels", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate subject id %s", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// SubjectResult is the outcome of one subject. Err is set when the subject
// failed; the other fields are then zero.
type SubjectResult struct {
	ID      string
	CSVPath string
	RunID   int64
	Summary roistats.Summary
	Err     error
}

// Runner processes manifests
type Runner struct {
	// Template holds the settings shared by every subject. Subject, input
	// paths and LUT are filled in per subject.
	Template pipeline.Params

	// Workers bounds the subjects processed concurrently
	Workers int

	// Store optionally records every successful subject
	Store *store.Store

	Logger *slog.Logger
}

// Run processes every subject of m and returns one result per subject in
// manifest order. A failing subject does not stop the others; the returned
// error is only set for an invalid manifest or a cancelled context.
func (r *Runner) Run(ctx context.Context, m *Manifest) ([]SubjectResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	results := make([]SubjectResult, len(m.Subjects))

	g, gctx := errgroup.WithContext(ctx)
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, subject := range m.Subjects {
		g.Go(func() error {
			results[i] = r.runSubject(gctx, subject, m.LUT, logger)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runSubject(ctx context.Context, s Subject, lut string, logger *slog.Logger) SubjectResult {
	result := SubjectResult{ID: s.ID}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	params := r.Template
	params.Subject = s.ID
	params.MetricPath = s.Metric
	params.LabelsPath = s.Labels
	params.LUTPath = lut

	p := pipeline.NewPipeline(&params, logger)
	if err := p.Process(ctx); err != nil {
		logger.Error("subject failed", "subject", s.ID, "error", err)
		result.Err = err
		return result
	}

	if r.Store != nil {
		id, err := r.Store.SaveRun(ctx, s.ID, p.Table())
		if err != nil {
			logger.Error("failed to store run", "subject", s.ID, "error", err)
			result.Err = fmt.Errorf("failed to store run: %w", err)
			return result
		}
		result.RunID = id
	}

	result.CSVPath = p.CSVPath()
	result.Summary = p.Table().Summary()
	return result
}

// Failed returns the results that carry an error
func Failed(results []SubjectResult) []SubjectResult {
	var failed []SubjectResult
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}
