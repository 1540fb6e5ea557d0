// Package delta computes the input digests behind incremental stage
// execution. A stage hashes the inputs it would process per entity, compares
// against the digests recorded in the processing ledger, and skips entities
// whose digest is unchanged.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/svap-labs/svap/internal/store/postgres"
)

// Hash returns a short hex digest of the joined parts. Twelve hex characters
// keep ledger rows readable while leaving collision odds negligible at
// corpus scale.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:12]
}

// TaxonomyFingerprint is a stable digest of which qualities exist. It is
// folded into the input hash of every taxonomy-dependent stage, so adding or
// removing an approved quality invalidates all downstream ledger entries.
func TaxonomyFingerprint(taxonomy []postgres.Quality) string {
	ids := make([]string, len(taxonomy))
	for i, q := range taxonomy {
		ids[i] = q.QualityID
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ":")))
	return hex.EncodeToString(sum[:])[:12]
}

// CalibrationFingerprint digests the calibration threshold. When no
// calibration exists yet, the default threshold stands in so downstream
// hashes stay stable across the first calibration write.
func CalibrationFingerprint(cal *postgres.Calibration) string {
	if cal == nil {
		return "3"
	}
	return strconv.Itoa(cal.Threshold)
}

// PolicyQualityProfile digests which qualities are present for one policy.
// Stage inputs built on a policy's scoring profile change exactly when this
// string changes.
func PolicyQualityProfile(policyID string, scores []postgres.PolicyScore) string {
	var present []string
	for _, ps := range scores {
		if ps.PolicyID == policyID && ps.Present {
			present = append(present, ps.QualityID)
		}
	}
	if len(present) == 0 {
		return "none"
	}
	sort.Strings(present)
	return strings.Join(present, ":")
}
