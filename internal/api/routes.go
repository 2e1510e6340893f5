package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Masterminds/semver/v3"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aopkg/aopkg-server/internal/artifacts"
	"github.com/aopkg/aopkg-server/internal/fetcher"
	"github.com/aopkg/aopkg-server/internal/ingest"
	"github.com/aopkg/aopkg-server/internal/store"
	"github.com/aopkg/aopkg-server/internal/telemetry"
	"github.com/aopkg/aopkg-server/internal/validators"
	"github.com/aopkg/aopkg-server/internal/webhook"
)

// MaxUploadBytes caps the request body on the upload endpoint.
const MaxUploadBytes = 5 << 20

// Routes handles HTTP requests for the package registry.
type Routes struct {
	store     store.Store
	ingest    *ingest.Service
	trigger   *webhook.Trigger
	artifacts *artifacts.Store
	identity  IdentityResolver
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

// NewRoutes creates a Routes instance with the given collaborators.
func NewRoutes(
	st store.Store,
	ing *ingest.Service,
	trigger *webhook.Trigger,
	art *artifacts.Store,
	identity IdentityResolver,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Routes {
	return &Routes{
		store:     st,
		ingest:    ing,
		trigger:   trigger,
		artifacts: art,
		identity:  identity,
		metrics:   metrics,
		logger:    logger,
	}
}

func (routes *Routes) upload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := routes.identity.Resolve(r)
	if !ok {
		WriteErrorResponse(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		routes.metrics.RecordIngest(telemetry.OutcomeRejected)
		WriteErrorResponse(w, "payload too large", http.StatusBadRequest)
		return
	}

	rec, err := routes.ingest.Ingest(r.Context(), payload, ownerID)
	if err != nil {
		status, outcome := classifyIngestError(err)
		routes.metrics.RecordIngest(outcome)
		routes.logger.Debug("upload rejected",
			zap.Int64("owner", ownerID),
			zap.Int("status", status),
			zap.Error(err),
		)
		WriteErrorResponse(w, err.Error(), status)
		return
	}

	routes.metrics.RecordIngest(telemetry.OutcomeCreated)
	WriteJSONResponse(w, toVersionResponse(rec), http.StatusCreated)
}

// classifyIngestError maps a pipeline failure to an HTTP status and an
// ingestion outcome label.
func classifyIngestError(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrTimeout):
		return http.StatusRequestTimeout, telemetry.OutcomeTimeout
	case errors.Is(err, ingest.ErrValidationFailed), errors.Is(err, ingest.ErrRejected):
		return http.StatusBadRequest, telemetry.OutcomeRejected
	case errors.Is(err, store.ErrOwnershipConflict), errors.Is(err, store.ErrDuplicateVersion):
		return http.StatusForbidden, telemetry.OutcomeForbidden
	default:
		return http.StatusForbidden, telemetry.OutcomeError
	}
}

func (routes *Routes) listAll(w http.ResponseWriter, r *http.Request) {
	recs, err := routes.store.ListAll(r.Context())
	if err != nil {
		WriteErrorResponse(w, "failed to list packages", http.StatusInternalServerError)
		return
	}
	WriteJSONResponse(w, toVersionResponses(recs), http.StatusOK)
}

func (routes *Routes) listLatest(w http.ResponseWriter, r *http.Request) {
	recs, err := routes.store.ListLatest(r.Context())
	if err != nil {
		WriteErrorResponse(w, "failed to list packages", http.StatusInternalServerError)
		return
	}
	WriteJSONResponse(w, toVersionResponses(recs), http.StatusOK)
}

func (routes *Routes) listVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	recs, err := routes.store.ListVersions(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSONResponse(w, toVersionResponses(recs), http.StatusOK)
}

func (routes *Routes) getVersion(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")

	rec, err := routes.store.GetVersion(r.Context(), name, version)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSONResponse(w, toVersionResponse(rec), http.StatusOK)
}

func (routes *Routes) getLatest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := routes.store.GetLatest(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSONResponse(w, toVersionResponse(rec), http.StatusOK)
}

// download streams the stored archive bytes. The name charset and version
// grammar are re-checked before any filesystem access so path fragments
// never reach the artifact store.
func (routes *Routes) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")

	if !validators.ValidName(name) {
		WriteErrorResponse(w, "package not found", http.StatusNotFound)
		return
	}
	if _, err := semver.StrictNewVersion(version); err != nil {
		WriteErrorResponse(w, "package not found", http.StatusNotFound)
		return
	}

	data, err := routes.artifacts.Read(name, version)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			WriteErrorResponse(w, "package not found", http.StatusNotFound)
			return
		}
		WriteErrorResponse(w, "failed to read package", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifacts.Key(name, version)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (routes *Routes) githubWebhook(w http.ResponseWriter, r *http.Request) {
	var event webhook.ReleaseEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		WriteErrorResponse(w, "malformed webhook payload", http.StatusBadRequest)
		return
	}

	handled, err := routes.trigger.Handle(r.Context(), &event)
	if err != nil {
		status, message := classifyWebhookError(err)
		routes.logger.Debug("webhook rejected",
			zap.String("repository", event.Repository.FullName),
			zap.Int("status", status),
			zap.Error(err),
		)
		WriteErrorResponse(w, message, status)
		return
	}
	if !handled {
		WriteJSONResponse(w, map[string]string{"status": "ignored"}, http.StatusOK)
		return
	}
	WriteJSONResponse(w, map[string]string{"status": "ingested"}, http.StatusOK)
}

func classifyWebhookError(err error) (int, string) {
	switch {
	case errors.Is(err, webhook.ErrNoPackage):
		return http.StatusNotFound, "no package found"
	case errors.Is(err, fetcher.ErrNoRelease):
		return http.StatusNotFound, "no release found"
	case errors.Is(err, ingest.ErrTimeout):
		return http.StatusRequestTimeout, err.Error()
	case errors.Is(err, ingest.ErrValidationFailed), errors.Is(err, ingest.ErrRejected):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusBadGateway, err.Error()
	}
}

func (*Routes) health(w http.ResponseWriter, _ *http.Request) {
	WriteJSONResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		WriteErrorResponse(w, "package not found", http.StatusNotFound)
		return
	}
	WriteErrorResponse(w, "storage failure", http.StatusInternalServerError)
}
