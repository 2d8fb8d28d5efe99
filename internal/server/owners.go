package server

import (
	"encoding/json"
	"net/http"

	"github.com/rosterops/console/internal/routing"
)

func handleOwnersAPI(w http.ResponseWriter, r *http.Request, store RosterStore) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	owners, err := store.ListOwners(r.Context(), tenant.ID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
		return
	}

	type item struct {
		OwnerID string `json:"owner_id"`
		Name    string `json:"name"`
		Role    string `json:"role"`
	}
	out := make([]item, 0, len(owners))
	for _, o := range owners {
		out = append(out, item{OwnerID: o.ID, Name: o.Name, Role: o.Role})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenant_id": tenant.ID,
		"owners":    out,
	})
}
