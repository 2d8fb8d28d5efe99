package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rosterops/console/internal/routing"
	"github.com/rosterops/console/modules/roster/domain/types"
	"github.com/rosterops/console/pkg/httperr"
)

func handleMeetingsAPI(w http.ResponseWriter, r *http.Request, store RosterStore) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		contactID := strings.TrimSpace(r.URL.Query().Get("contact_id"))
		if contactID == "" {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "MEETING_CONTACT_INVALID", "contact_id required")
			return
		}
		meetings, err := store.ListMeetings(r.Context(), tenant.ID, contactID)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
			return
		}
		type item struct {
			MeetingID string `json:"meeting_id"`
			ContactID string `json:"contact_id"`
			HeldOn    string `json:"held_on"`
			Note      string `json:"note,omitempty"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]item, 0, len(meetings))
		for _, m := range meetings {
			out = append(out, item{
				MeetingID: m.ID,
				ContactID: m.ContactID,
				HeldOn:    m.HeldOn,
				Note:      m.Note,
				CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"contact_id": contactID,
			"meetings":   out,
		})
		return

	case http.MethodPost:
		var req struct {
			ContactID string `json:"contact_id"`
			HeldOn    string `json:"held_on"`
			Note      string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if strings.TrimSpace(req.ContactID) == "" {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "MEETING_CONTACT_INVALID", "contact_id required")
			return
		}
		m, err := store.CreateMeeting(r.Context(), tenant.ID, types.Meeting{
			ContactID: strings.TrimSpace(req.ContactID),
			HeldOn:    req.HeldOn,
			Note:      strings.TrimSpace(req.Note),
		})
		if err != nil {
			if httperr.IsBadRequest(err) {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "MEETING_CREATE_FAILED", err.Error())
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"meeting_id": m.ID,
			"contact_id": m.ContactID,
			"held_on":    m.HeldOn,
			"note":       m.Note,
		})
		return

	default:
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
}
