package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/svap-labs/svap/internal/store/postgres"
)

// fakeAdminStore records destructive calls instead of touching a database.
type fakeAdminStore struct {
	runs      map[string]postgres.PipelineRun
	deleted   []string
	wiped     bool
	deleteErr error
	wipeErr   error
}

func (f *fakeAdminStore) GetRun(_ context.Context, runID string) (postgres.PipelineRun, error) {
	r, ok := f.runs[runID]
	if !ok {
		return postgres.PipelineRun{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeAdminStore) DeleteRun(_ context.Context, runID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, runID)
	return nil
}

func (f *fakeAdminStore) WipeCorpus(context.Context) error {
	if f.wipeErr != nil {
		return f.wipeErr
	}
	f.wiped = true
	return nil
}

func adminHandler(store *fakeAdminStore) *AdminHandler {
	return NewAdminHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
}

func runRequest(method, target, runID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("runID", runID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAdminHandler_DeleteRun(t *testing.T) {
	store := &fakeAdminStore{runs: map[string]postgres.PipelineRun{"run_1": {RunID: "run_1"}}}
	w := httptest.NewRecorder()

	adminHandler(store).DeleteRun(w, runRequest(http.MethodDelete, "/api/v1/runs/run_1", "run_1"))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "run_1" {
		t.Errorf("deleted = %v, want [run_1]", store.deleted)
	}
}

func TestAdminHandler_DeleteRun_NotFound(t *testing.T) {
	store := &fakeAdminStore{runs: map[string]postgres.PipelineRun{}}
	w := httptest.NewRecorder()

	adminHandler(store).DeleteRun(w, runRequest(http.MethodDelete, "/api/v1/runs/run_x", "run_x"))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if len(store.deleted) != 0 {
		t.Errorf("delete must not run for an unknown run, got %v", store.deleted)
	}
}

func TestAdminHandler_DeleteRun_StoreError(t *testing.T) {
	store := &fakeAdminStore{
		runs:      map[string]postgres.PipelineRun{"run_1": {RunID: "run_1"}},
		deleteErr: errors.New("tx aborted"),
	}
	w := httptest.NewRecorder()

	adminHandler(store).DeleteRun(w, runRequest(http.MethodDelete, "/api/v1/runs/run_1", "run_1"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestAdminHandler_WipeCorpus(t *testing.T) {
	store := &fakeAdminStore{}
	w := httptest.NewRecorder()

	adminHandler(store).WipeCorpus(w, httptest.NewRequest(http.MethodDelete, "/api/v1/corpus", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !store.wiped {
		t.Error("corpus wipe never reached the store")
	}
}
