package delta

import (
	"testing"

	"github.com/svap-labs/svap/internal/store/postgres"
)

func TestHash(t *testing.T) {
	h := Hash("doc_1", "some text")
	if len(h) != 12 {
		t.Fatalf("hash length = %d, want 12", len(h))
	}
	if h != Hash("doc_1", "some text") {
		t.Fatal("hash not deterministic")
	}
	if h == Hash("doc_1", "other text") {
		t.Fatal("different inputs produced the same hash")
	}
	// Part boundaries matter: ("ab","c") and ("a","bc") must differ.
	if Hash("ab", "c") == Hash("a", "bc") {
		t.Fatal("part boundaries not preserved")
	}
}

func TestTaxonomyFingerprint(t *testing.T) {
	a := []postgres.Quality{{QualityID: "Q1"}, {QualityID: "Q2"}}
	b := []postgres.Quality{{QualityID: "Q2"}, {QualityID: "Q1"}}
	if TaxonomyFingerprint(a) != TaxonomyFingerprint(b) {
		t.Fatal("fingerprint depends on ordering")
	}

	grown := append([]postgres.Quality{{QualityID: "Q3"}}, a...)
	if TaxonomyFingerprint(grown) == TaxonomyFingerprint(a) {
		t.Fatal("adding a quality did not change the fingerprint")
	}
}

func TestCalibrationFingerprint(t *testing.T) {
	if got := CalibrationFingerprint(nil); got != "3" {
		t.Fatalf("nil calibration fingerprint = %q, want default threshold", got)
	}
	if got := CalibrationFingerprint(&postgres.Calibration{Threshold: 4}); got != "4" {
		t.Fatalf("fingerprint = %q, want 4", got)
	}
}

func TestPolicyQualityProfile(t *testing.T) {
	scores := []postgres.PolicyScore{
		{PolicyID: "P1", QualityID: "Q2", Present: true},
		{PolicyID: "P1", QualityID: "Q1", Present: true},
		{PolicyID: "P1", QualityID: "Q3", Present: false},
		{PolicyID: "P2", QualityID: "Q9", Present: true},
	}

	if got := PolicyQualityProfile("P1", scores); got != "Q1:Q2" {
		t.Fatalf("profile = %q, want sorted present qualities only", got)
	}
	if got := PolicyQualityProfile("P3", scores); got != "none" {
		t.Fatalf("profile for unscored policy = %q, want none", got)
	}
}
