package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rosterops/console/internal/routing"
	"github.com/rosterops/console/modules/reconcile"
	"github.com/rosterops/console/modules/roster/domain/types"
	"github.com/rosterops/console/pkg/authz"
)

const maxReconcilePayloadBytes = 8 << 20

// cachedOwnerStore routes ListOwners through the owner roster cache so
// reconciliation runs share it with the dashboard.
type cachedOwnerStore struct {
	RosterStore
	cache *ownerRosterCache
}

func (s cachedOwnerStore) ListOwners(ctx context.Context, tenantID string) ([]types.Owner, error) {
	return s.cache.Owners(ctx, tenantID)
}

func handleReconcileAPI(w http.ResponseWriter, r *http.Request, store RosterStore, ownerCache *ownerRosterCache, aliases reconcile.AliasTable) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	dryRun := true
	if raw := strings.TrimSpace(r.URL.Query().Get("dry_run")); raw != "" {
		switch raw {
		case "true", "1":
			dryRun = true
		case "false", "0":
			dryRun = false
		default:
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "RECONCILE_DRY_RUN_INVALID", "dry_run must be true or false")
			return
		}
	}

	// Execute mode mutates the roster; viewers are limited to dry runs.
	if !dryRun {
		p, ok := currentPrincipal(r.Context())
		if !ok || p.RoleSlug != authz.RoleTenantAdmin {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, "RECONCILE_EXECUTE_FORBIDDEN", "execute requires tenant-admin")
			return
		}
	}

	payload, kind, ok := readReconcilePayload(w, r)
	if !ok {
		return
	}

	coord := reconcile.NewCoordinator(cachedOwnerStore{RosterStore: store, cache: ownerCache}, aliases)
	summary, state, err := coord.Run(r.Context(), tenant.ID, payload, kind, dryRun)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrMalformedInput):
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "RECONCILE_MALFORMED_INPUT", "malformed input")
		case errors.Is(err, reconcile.ErrInvalidPayloadShape):
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "RECONCILE_INVALID_PAYLOAD_SHAPE", "invalid payload shape")
		case errors.Is(err, reconcile.ErrBatchApply):
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "RECONCILE_BATCH_APPLY_FAILED", "batch apply failed")
		default:
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "RECONCILE_INTERNAL", "reconcile internal")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"state":   string(state),
		"summary": summary,
	})
}

func readReconcilePayload(w http.ResponseWriter, r *http.Request) ([]byte, reconcile.Kind, bool) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnsupportedMediaType, "RECONCILE_CONTENT_TYPE", "unsupported content type")
		return nil, "", false
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxReconcilePayloadBytes); err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "RECONCILE_MULTIPART_INVALID", "invalid multipart form")
			return nil, "", false
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "RECONCILE_FILE_MISSING", "file field required")
			return nil, "", false
		}
		defer f.Close()
		payload, err := io.ReadAll(io.LimitReader(f, maxReconcilePayloadBytes))
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "RECONCILE_FILE_UNREADABLE", "file unreadable")
			return nil, "", false
		}
		kind := reconcile.KindCSV
		if strings.EqualFold(filepath.Ext(header.Filename), ".json") {
			kind = reconcile.KindJSON
		}
		return payload, kind, true

	case "text/csv":
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxReconcilePayloadBytes))
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "RECONCILE_BODY_UNREADABLE", "body unreadable")
			return nil, "", false
		}
		return payload, reconcile.KindCSV, true

	case "application/json":
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxReconcilePayloadBytes))
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "RECONCILE_BODY_UNREADABLE", "body unreadable")
			return nil, "", false
		}
		return payload, reconcile.KindJSON, true

	default:
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnsupportedMediaType, "RECONCILE_CONTENT_TYPE", "unsupported content type")
		return nil, "", false
	}
}
