package stages

import (
	"context"
	"fmt"

	"github.com/svap-labs/svap/internal/delta"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/store/postgres"
)

type extractedCase struct {
	CaseName          string `json:"case_name"`
	SchemeMechanics   string `json:"scheme_mechanics"`
	ExploitedPolicy   string `json:"exploited_policy"`
	EnablingCondition string `json:"enabling_condition"`
	ScaleDollars      any    `json:"scale_dollars"`
	DetectionMethod   string `json:"detection_method"`
}

// runCaseAssembly extracts structured cases from enforcement documents. One
// ledger entity per document, keyed on the document's full text, so an
// edited document is re-extracted and untouched ones are skipped.
func runCaseAssembly(ctx context.Context, env *Env, runID string) error {
	docs, err := env.Store.ListDocuments(ctx, "enforcement")
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		env.Logger.Info("no enforcement documents to process", "run_id", runID)
		_, err := env.Store.CompleteStage(ctx, runID, 1,
			completionMeta(map[string]any{"cases_extracted": 0, "note": "no documents"}))
		return err
	}

	known, err := env.Store.HashesForStage(ctx, 1)
	if err != nil {
		return err
	}

	type docJob struct {
		doc    postgres.Document
		digest string
	}
	var jobs []pipeline.Job[postgres.Document, docJob]
	for _, doc := range docs {
		digest := delta.Hash(doc.FullText)
		if known[doc.DocID] == digest {
			continue
		}
		jobs = append(jobs, pipeline.Job[postgres.Document, docJob]{
			Label:   doc.DocID,
			Payload: doc,
			Context: docJob{doc: doc, digest: digest},
		})
	}

	if len(jobs) == 0 {
		env.Logger.Info("all documents unchanged", "run_id", runID, "documents", len(docs))
		_, err := env.Store.CompleteStage(ctx, runID, 1,
			completionMeta(map[string]any{"cases_extracted": 0, "skipped_unchanged": len(docs)}))
		return err
	}

	invoke := func(ctx context.Context, doc postgres.Document) ([]extractedCase, error) {
		var cases []extractedCase
		prompt := extractPrompt(truncate(doc.FullText, 12000))
		if err := env.LLM.InvokeJSON(ctx, prompt, systemExtract, &cases); err != nil {
			return nil, fmt.Errorf("extract cases from %s: %w", doc.Filename, err)
		}
		return cases, nil
	}

	onResult := func(cases []extractedCase, job docJob) (int, error) {
		for _, c := range cases {
			caseID := shortID(12, job.doc.Filename, c.CaseName)
			if err := env.Store.UpsertCase(ctx, postgres.Case{
				CaseID:            caseID,
				RunID:             runID,
				SourceDocument:    job.doc.Filename,
				CaseName:          c.CaseName,
				SchemeMechanics:   c.SchemeMechanics,
				ExploitedPolicy:   c.ExploitedPolicy,
				EnablingCondition: c.EnablingCondition,
				ScaleDollars:      parseDollars(c.ScaleDollars),
				DetectionMethod:   c.DetectionMethod,
			}); err != nil {
				return 0, err
			}
		}
		// Ledger last: a crash above leaves the stale digest in place and the
		// document is re-extracted on retry.
		if err := env.Store.RecordProcessed(ctx, 1, job.doc.DocID, job.digest, runID); err != nil {
			return 0, err
		}
		return len(cases), nil
	}

	total, failed := pipeline.Dispatch(ctx, jobs, invoke, onResult, env.Pipeline.MaxConcurrency)
	env.Logger.Info("case assembly finished",
		"run_id", runID, "cases_extracted", total,
		"documents_processed", len(jobs)-len(failed), "documents_failed", len(failed))

	meta := map[string]any{
		"cases_extracted":   total,
		"documents":         len(docs),
		"skipped_unchanged": len(docs) - len(jobs),
	}
	if len(failed) > 0 {
		meta["failed_documents"] = failed
	}
	_, err = env.Store.CompleteStage(ctx, runID, 1, completionMeta(meta))
	return err
}
