package seed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/svap-labs/svap/internal/store/postgres"
)

type captureStore struct {
	qualities []postgres.Quality
	policies  []postgres.Policy
}

func (c *captureStore) UpsertQuality(_ context.Context, q postgres.Quality) error {
	c.qualities = append(c.qualities, q)
	return nil
}

func (c *captureStore) UpsertPolicy(_ context.Context, p postgres.Policy) error {
	c.policies = append(c.policies, p)
	return nil
}

func writeSeedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	taxonomy := `[
		{"quality_id": "q_attest", "name": "Self-Attested Eligibility",
		 "definition": "d", "recognition_test": "rt", "exploitation_logic": "el",
		 "canonical_examples": ["no income verification"]},
		{"quality_id": "q_draft", "name": "Draft Quality", "definition": "d",
		 "review_status": "draft"}
	]`
	policies := `[
		{"policy_id": "p_hospice", "name": "Hospice Benefit", "description": "d",
		 "source_document": "seed"}
	]`
	if err := os.WriteFile(filepath.Join(dir, "taxonomy.json"), []byte(taxonomy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "policies.json"), []byte(policies), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	store := &captureStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res, err := Load(context.Background(), store, writeSeedDir(t), "run_1", logger)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Taxonomy != 2 || res.Policies != 1 {
		t.Errorf("result = %+v, want 2 qualities and 1 policy", res)
	}

	// Curated qualities default to approved; an explicit status is kept.
	if store.qualities[0].ReviewStatus != "approved" {
		t.Errorf("quality 0 status = %q, want approved", store.qualities[0].ReviewStatus)
	}
	if store.qualities[1].ReviewStatus != "draft" {
		t.Errorf("quality 1 status = %q, want draft", store.qualities[1].ReviewStatus)
	}
	if store.policies[0].PolicyID != "p_hospice" {
		t.Errorf("policy = %+v", store.policies[0])
	}
}

func TestLoadMissingDir(t *testing.T) {
	store := &captureStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Load(context.Background(), store, t.TempDir(), "run_1", logger); err == nil {
		t.Error("expected error for missing seed files")
	}
}
