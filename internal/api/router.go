package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apihandler "github.com/svap-labs/svap/internal/api/handler"
	apimw "github.com/svap-labs/svap/internal/api/middleware"
	"github.com/svap-labs/svap/internal/export"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/queue"
	"github.com/svap-labs/svap/internal/rag"
	"github.com/svap-labs/svap/internal/store"
)

// RouterDeps holds the collaborators the handlers need beyond the store.
type RouterDeps struct {
	Producer       *queue.Producer
	Gates          *pipeline.GateCoordinator
	Ingester       *rag.Ingester
	Exporter       *export.Exporter
	ConfigSnapshot []byte
}

func NewRouter(logger *slog.Logger, s *store.Store, deps *RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(s.Pool())
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if deps == nil {
		deps = &RouterDeps{}
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		runs := apihandler.NewRunHandler(logger, s, deps.ConfigSnapshot)
		review := apihandler.NewReviewHandler(logger, s)
		admin := apihandler.NewAdminHandler(logger, s)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", runs.List)
			r.Post("/", runs.Create)
			r.Get("/latest", runs.Latest)

			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/status", runs.Status)
				r.Get("/predictions", review.ListPredictions)
				r.Get("/assessments", review.ListAssessments)
				r.Get("/patterns", review.ListPatterns)

				if deps.Producer != nil && deps.Gates != nil {
					stage := apihandler.NewStageHandler(logger, s, deps.Producer, deps.Gates)
					r.Post("/stages/{stage}/run", stage.Run)
					r.Post("/stages/{stage}/gate", stage.Gate)
					r.Post("/stages/{stage}/approve", stage.Approve)
				}

				if deps.Exporter != nil {
					exp := apihandler.NewExportHandler(logger, s, deps.Exporter)
					r.Post("/export", exp.Export)
				}

				r.Delete("/", admin.DeleteRun)
			})
		})

		r.Delete("/corpus", admin.WipeCorpus)

		r.Route("/taxonomy", func(r chi.Router) {
			r.Get("/", review.ListTaxonomy)
			r.Post("/{qualityID}/review", review.ReviewQuality)
		})

		if deps.Ingester != nil {
			docs := apihandler.NewDocumentHandler(logger, deps.Ingester)
			r.Post("/documents", docs.Ingest)
		}
	})

	return r
}
