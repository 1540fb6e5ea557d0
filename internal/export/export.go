// Package export renders pipeline results as analyst-facing artifacts: a
// markdown report and a full JSON dump, written to the export directory and
// optionally mirrored to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/svap-labs/svap/internal/store/postgres"
)

// Store is the read surface the exporter needs.
type Store interface {
	ListCases(ctx context.Context) ([]postgres.Case, error)
	ListTaxonomy(ctx context.Context) ([]postgres.Quality, error)
	ConvergenceMatrix(ctx context.Context, runID string) ([]postgres.ConvergenceCell, error)
	GetCalibration(ctx context.Context, runID string) (*postgres.Calibration, error)
	ListPolicies(ctx context.Context) ([]postgres.Policy, error)
	ListPolicyScores(ctx context.Context, runID string) ([]postgres.PolicyScore, error)
	ListPredictions(ctx context.Context, runID string) ([]postgres.Prediction, error)
	ListDetectionPatterns(ctx context.Context, runID string) ([]postgres.DetectionPattern, error)
}

// Uploader mirrors export artifacts to object storage. *minio.Client
// satisfies it; nil disables upload.
type Uploader interface {
	UploadBytes(ctx context.Context, objectName, contentType string, data []byte) error
}

type Exporter struct {
	store    Store
	uploader Uploader
	dir      string
	logger   *slog.Logger
}

func New(store Store, uploader Uploader, dir string, logger *slog.Logger) *Exporter {
	return &Exporter{store: store, uploader: uploader, dir: dir, logger: logger}
}

// Result names the artifacts an export produced.
type Result struct {
	Path   string `json:"path"`
	Object string `json:"object,omitempty"`
}

// JSON dumps every result table for the run to svap_export_<run>.json.
func (e *Exporter) JSON(ctx context.Context, runID string) (Result, error) {
	dump := make(map[string]any)
	loads := []struct {
		key  string
		load func() (any, error)
	}{
		{"cases", func() (any, error) { return e.store.ListCases(ctx) }},
		{"taxonomy", func() (any, error) { return e.store.ListTaxonomy(ctx) }},
		{"convergence_matrix", func() (any, error) { return e.store.ConvergenceMatrix(ctx, runID) }},
		{"calibration", func() (any, error) { return e.store.GetCalibration(ctx, runID) }},
		{"policies", func() (any, error) { return e.store.ListPolicies(ctx) }},
		{"policy_scores", func() (any, error) { return e.store.ListPolicyScores(ctx, runID) }},
		{"predictions", func() (any, error) { return e.store.ListPredictions(ctx, runID) }},
		{"detection_patterns", func() (any, error) { return e.store.ListDetectionPatterns(ctx, runID) }},
	}
	for _, l := range loads {
		v, err := l.load()
		if err != nil {
			return Result{}, fmt.Errorf("export %s: %w", l.key, err)
		}
		dump[l.key] = v
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return e.write(ctx, fmt.Sprintf("svap_export_%s.json", runID), "application/json", data)
}

// Markdown renders the analyst report to svap_report_<run>.md.
func (e *Exporter) Markdown(ctx context.Context, runID string) (Result, error) {
	taxonomy, err := e.store.ListTaxonomy(ctx)
	if err != nil {
		return Result{}, err
	}
	calibration, err := e.store.GetCalibration(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	predictions, err := e.store.ListPredictions(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	patterns, err := e.store.ListDetectionPatterns(ctx, runID)
	if err != nil {
		return Result{}, err
	}

	report := RenderReport(runID, taxonomy, calibration, predictions, patterns)
	return e.write(ctx, fmt.Sprintf("svap_report_%s.md", runID), "text/markdown", []byte(report))
}

func (e *Exporter) write(ctx context.Context, name, contentType string, data []byte) (Result, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", path, err)
	}
	res := Result{Path: path}

	if e.uploader != nil {
		if err := e.uploader.UploadBytes(ctx, name, contentType, data); err != nil {
			// Local copy landed; upload failure is not fatal.
			e.logger.Warn("export upload failed", "object", name, "error", err)
		} else {
			res.Object = name
		}
	}
	e.logger.Info("export written", "path", path, "bytes", len(data))
	return res, nil
}

// RenderReport builds the markdown report body.
func RenderReport(runID string, taxonomy []postgres.Quality, calibration *postgres.Calibration,
	predictions []postgres.Prediction, patterns []postgres.DetectionPattern) string {

	var b strings.Builder
	b.WriteString("# SVAP Analysis Report\n\n")
	fmt.Fprintf(&b, "Run: %s\n", runID)

	if len(taxonomy) > 0 {
		b.WriteString("\n## Vulnerability Taxonomy\n")
		for _, q := range taxonomy {
			fmt.Fprintf(&b, "\n### %s: %s\n\n", q.QualityID, q.Name)
			fmt.Fprintf(&b, "**Definition:** %s\n\n", q.Definition)
			fmt.Fprintf(&b, "**Recognition Test:** %s\n\n", q.RecognitionTest)
			fmt.Fprintf(&b, "**Exploitation Logic:** %s\n", q.ExploitationLogic)
		}
	}

	if calibration != nil {
		b.WriteString("\n## Calibration\n\n")
		fmt.Fprintf(&b, "**Threshold:** %d\n\n", calibration.Threshold)
		fmt.Fprintf(&b, "**Notes:** %s\n", calibration.CorrelationNotes)
	}

	if len(predictions) > 0 {
		b.WriteString("\n## Exploitation Predictions (by priority)\n")
		for _, p := range predictions {
			fmt.Fprintf(&b, "\n### %s (score=%d)\n\n", orUnknown(p.PolicyName), p.ConvergenceScore)
			fmt.Fprintf(&b, "**Mechanics:** %s\n\n", p.Mechanics)
			fmt.Fprintf(&b, "**Actor Profile:** %s\n\n", orUnknown(p.ActorProfile))
			fmt.Fprintf(&b, "**Lifecycle Stage:** %s\n\n", orUnknown(p.LifecycleStage))
			fmt.Fprintf(&b, "**Detection Difficulty:** %s\n", orUnknown(p.DetectionDifficulty))
		}
	}

	if len(patterns) > 0 {
		b.WriteString("\n## Detection Patterns\n")
		for _, p := range patterns {
			priority := p.Priority
			if priority == "" {
				priority = "medium"
			}
			fmt.Fprintf(&b, "\n### [%s] %s\n\n", strings.ToUpper(priority), p.PolicyName)
			fmt.Fprintf(&b, "**Data Source:** %s\n\n", p.DataSource)
			fmt.Fprintf(&b, "**Anomaly Signal:** %s\n\n", p.AnomalySignal)
			fmt.Fprintf(&b, "**Baseline:** %s\n\n", orUnknown(p.Baseline))
			fmt.Fprintf(&b, "**False Positive Risk:** %s\n\n", orUnknown(p.FalsePositiveRisk))
			fmt.Fprintf(&b, "**Detection Latency:** %s\n", orUnknown(p.DetectionLatency))
		}
	}

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
