package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rosterops/console/internal/routing"
	"github.com/rosterops/console/modules/roster/domain/ports"
	"github.com/rosterops/console/modules/roster/domain/types"
	"github.com/rosterops/console/pkg/httperr"
)

// RosterStore is everything the console handlers need from the contact
// store. It extends the reconciliation engine's RecordStore with the
// routine CRUD surface.
type RosterStore interface {
	ports.RecordStore

	ListContacts(ctx context.Context, tenantID string, q string, limit int) ([]types.Contact, error)
	CreateContact(ctx context.Context, tenantID string, c types.Contact) (types.Contact, error)
	UpdateContact(ctx context.Context, tenantID string, contactID string, changes types.ChangeSet) error
	ListMeetings(ctx context.Context, tenantID string, contactID string) ([]types.Meeting, error)
	CreateMeeting(ctx context.Context, tenantID string, m types.Meeting) (types.Meeting, error)
	MeetingFacts(ctx context.Context, tenantID string, asOf time.Time) (map[string]types.MeetingFact, error)
}

type contactItem struct {
	ContactID       string `json:"contact_id"`
	Email           string `json:"email,omitempty"`
	LastName        string `json:"last_name"`
	FirstName       string `json:"first_name"`
	AssignedOwnerID string `json:"assigned_owner_id,omitempty"`
	Tier            string `json:"tier"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

func contactToItem(c types.Contact) contactItem {
	return contactItem{
		ContactID:       c.ID,
		Email:           c.Email,
		LastName:        c.LastName,
		FirstName:       c.FirstName,
		AssignedOwnerID: c.AssignedOwnerID,
		Tier:            string(c.Tier),
		Status:          c.Status,
		CreatedAt:       c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func handleContactsAPI(w http.ResponseWriter, r *http.Request, store RosterStore) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				limit = n
			}
		}
		items, err := store.ListContacts(r.Context(), tenant.ID, q, limit)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
			return
		}
		out := make([]contactItem, 0, len(items))
		for _, c := range items {
			out = append(out, contactToItem(c))
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tenant_id": tenant.ID,
			"contacts":  out,
		})
		return

	case http.MethodPost:
		var req struct {
			Email     string `json:"email"`
			LastName  string `json:"last_name"`
			FirstName string `json:"first_name"`
			Tier      string `json:"tier"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		c, err := store.CreateContact(r.Context(), tenant.ID, types.Contact{
			Email:     req.Email,
			LastName:  req.LastName,
			FirstName: req.FirstName,
			Tier:      types.Tier(strings.ToUpper(strings.TrimSpace(req.Tier))),
		})
		if err != nil {
			if httperr.IsBadRequest(err) {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "CONTACT_CREATE_FAILED", err.Error())
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(contactToItem(c))
		return

	default:
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
}

func handleContactByEmailAPI(w http.ResponseWriter, r *http.Request, store RosterStore) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "CONTACT_EMAIL_INVALID", "email invalid")
		return
	}

	c, found, err := store.FindByEmail(r.Context(), tenant.ID, email)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
		return
	}
	if !found {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "CONTACT_NOT_FOUND", "contact not found")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(contactToItem(c))
}

func handleContactUpdateAPI(w http.ResponseWriter, r *http.Request, store RosterStore) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req struct {
		ContactID       string  `json:"contact_id"`
		AssignedOwnerID *string `json:"assigned_owner_id"`
		Tier            *string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	contactID := strings.TrimSpace(req.ContactID)
	if contactID == "" {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "CONTACT_ID_INVALID", "contact_id required")
		return
	}

	changes := types.ChangeSet{}
	if req.AssignedOwnerID != nil {
		changes[types.FieldAssignedOwnerID] = strings.TrimSpace(*req.AssignedOwnerID)
	}
	if req.Tier != nil {
		tier := types.Tier(strings.ToUpper(strings.TrimSpace(*req.Tier)))
		if tier != types.Tier1 && tier != types.Tier2 {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "CONTACT_TIER_INVALID", "tier must be TIER1 or TIER2")
			return
		}
		changes[types.FieldTier] = string(tier)
	}
	if len(changes) == 0 {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "CONTACT_UPDATE_EMPTY", "no changes given")
		return
	}

	if err := store.UpdateContact(r.Context(), tenant.ID, contactID, changes); err != nil {
		if httperr.IsBadRequest(err) {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "CONTACT_UPDATE_FAILED", err.Error())
			return
		}
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"contact_id": contactID,
		"changes":    changes,
	})
}
