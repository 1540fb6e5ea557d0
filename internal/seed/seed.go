// Package seed loads curated reference data: an approved vulnerability
// taxonomy and the policy scan targets. Everything downstream (cases,
// scores, predictions, patterns) is produced by the pipeline itself.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/svap-labs/svap/internal/store/postgres"
)

// Store is the write surface seeding needs.
type Store interface {
	UpsertQuality(ctx context.Context, q postgres.Quality) error
	UpsertPolicy(ctx context.Context, p postgres.Policy) error
}

type seedQuality struct {
	QualityID         string   `json:"quality_id"`
	Name              string   `json:"name"`
	Definition        string   `json:"definition"`
	RecognitionTest   string   `json:"recognition_test"`
	ExploitationLogic string   `json:"exploitation_logic"`
	CanonicalExamples []string `json:"canonical_examples"`
	ReviewStatus      string   `json:"review_status"`
}

type seedPolicy struct {
	PolicyID       string `json:"policy_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	SourceDocument string `json:"source_document"`
}

// Result counts what a seed pass loaded.
type Result struct {
	Taxonomy int `json:"taxonomy"`
	Policies int `json:"policies"`
}

// Load reads taxonomy.json and policies.json from dir and upserts their
// contents. Curated qualities default to approved: they have already been
// through analyst review.
func Load(ctx context.Context, store Store, dir, runID string, logger *slog.Logger) (Result, error) {
	var res Result

	var qualities []seedQuality
	if err := readJSON(filepath.Join(dir, "taxonomy.json"), &qualities); err != nil {
		return res, err
	}
	for _, sq := range qualities {
		examples, err := json.Marshal(sq.CanonicalExamples)
		if err != nil {
			return res, err
		}
		status := sq.ReviewStatus
		if status == "" {
			status = "approved"
		}
		if err := store.UpsertQuality(ctx, postgres.Quality{
			QualityID:         sq.QualityID,
			RunID:             runID,
			Name:              sq.Name,
			Definition:        sq.Definition,
			RecognitionTest:   sq.RecognitionTest,
			ExploitationLogic: sq.ExploitationLogic,
			CanonicalExamples: examples,
			ReviewStatus:      status,
		}); err != nil {
			return res, fmt.Errorf("seed quality %s: %w", sq.QualityID, err)
		}
		res.Taxonomy++
	}

	var policies []seedPolicy
	if err := readJSON(filepath.Join(dir, "policies.json"), &policies); err != nil {
		return res, err
	}
	for _, sp := range policies {
		if err := store.UpsertPolicy(ctx, postgres.Policy{
			PolicyID:       sp.PolicyID,
			RunID:          runID,
			Name:           sp.Name,
			Description:    sp.Description,
			SourceDocument: sp.SourceDocument,
		}); err != nil {
			return res, fmt.Errorf("seed policy %s: %w", sp.PolicyID, err)
		}
		res.Policies++
	}

	logger.Info("seed data loaded", "taxonomy", res.Taxonomy, "policies", res.Policies)
	return res, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
