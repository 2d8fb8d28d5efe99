package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rosterops/console/internal/routing"
	"github.com/rosterops/console/modules/roster/domain/types"
)

// ownerRosterCache keeps the owner roster per tenant for a short TTL so
// dashboard and reconciliation requests do not hit the store on every
// call. State lives on the cache object, not at package level.
type ownerRosterCache struct {
	store RosterStore
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]ownerRosterEntry
}

type ownerRosterEntry struct {
	owners    []types.Owner
	fetchedAt time.Time
}

func ownerCacheTTLFromEnv() time.Duration {
	const defaultSeconds = 30

	v := os.Getenv("OWNER_CACHE_TTL_SECONDS")
	if v == "" {
		return defaultSeconds * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultSeconds * time.Second
	}
	return time.Duration(n) * time.Second
}

func newOwnerRosterCache(store RosterStore, ttl time.Duration) *ownerRosterCache {
	return &ownerRosterCache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]ownerRosterEntry),
	}
}

func (c *ownerRosterCache) Owners(ctx context.Context, tenantID string) ([]types.Owner, error) {
	c.mu.Lock()
	e, ok := c.entries[tenantID]
	c.mu.Unlock()
	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.owners, nil
	}

	owners, err := c.store.ListOwners(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[tenantID] = ownerRosterEntry{owners: owners, fetchedAt: time.Now()}
	c.mu.Unlock()
	return owners, nil
}

func handleDashboardAPI(w http.ResponseWriter, r *http.Request, store RosterStore, ownerCache *ownerRosterCache) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	contacts, err := store.ListContacts(r.Context(), tenant.ID, "", 200)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
		return
	}
	owners, err := ownerCache.Owners(r.Context(), tenant.ID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
		return
	}
	facts, err := store.MeetingFacts(r.Context(), tenant.ID, time.Now().UTC())
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "ROSTER_INTERNAL", "roster internal")
		return
	}

	ownerNames := make(map[string]string, len(owners))
	for _, o := range owners {
		ownerNames[o.ID] = o.Name
	}

	expr := staleRuleExprFromEnv()
	byTier := map[string]int{}
	byOwner := map[string]int{}
	unassigned := 0
	stale := 0
	for _, c := range contacts {
		byTier[string(c.Tier)]++
		if c.AssignedOwnerID == "" {
			unassigned++
		} else {
			name := ownerNames[c.AssignedOwnerID]
			if name == "" {
				name = c.AssignedOwnerID
			}
			byOwner[name]++
		}

		isStale, err := evalStaleRule(expr, facts[c.ID])
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "STALE_RULE_INVALID", "stale rule invalid")
			return
		}
		if isStale {
			stale++
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenant_id":  tenant.ID,
		"total":      len(contacts),
		"by_tier":    byTier,
		"by_owner":   byOwner,
		"unassigned": unassigned,
		"stale":      stale,
		"stale_rule": strings.TrimSpace(expr),
	})
}
