package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rosterops/console/modules/roster/domain/types"
	"github.com/rosterops/console/modules/roster/infrastructure/persistence"
	"github.com/rosterops/console/pkg/authz"
)

func TestDashboard_CountsAndStale(t *testing.T) {
	store := persistence.NewRosterMemoryStore()
	owner := store.SeedOwner(testTenantID, types.Owner{Name: "山田", Role: "sales"})

	fresh, err := store.CreateContact(context.Background(), testTenantID, types.Contact{
		Email: "fresh@x.com", LastName: "Doe", FirstName: "Ann", Tier: types.Tier1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateContact(context.Background(), testTenantID, fresh.ID, types.ChangeSet{
		types.FieldAssignedOwnerID: owner.ID,
	}); err != nil {
		t.Fatal(err)
	}
	// no meetings at all: stale by default rule
	if _, err := store.CreateContact(context.Background(), testTenantID, types.Contact{
		Email: "cold@x.com", LastName: "Roe", FirstName: "Bob", Tier: types.Tier2,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := store.CreateMeeting(context.Background(), testTenantID, types.Meeting{
		ContactID: fresh.ID,
		HeldOn:    time.Now().UTC().AddDate(0, 0, -3).Format("2006-01-02"),
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestHandler(t, store, authz.RoleTenantAdmin)
	sid := loginSID(t, h)

	rec := doJSON(t, h, sid, http.MethodGet, "/roster/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Total      int            `json:"total"`
		ByTier     map[string]int `json:"by_tier"`
		ByOwner    map[string]int `json:"by_owner"`
		Unassigned int            `json:"unassigned"`
		Stale      int            `json:"stale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || resp.ByTier["TIER1"] != 1 || resp.ByTier["TIER2"] != 1 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.ByOwner["山田"] != 1 || resp.Unassigned != 1 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Stale != 1 {
		t.Fatalf("stale=%d", resp.Stale)
	}
}

func TestDashboard_StaleRuleOverride(t *testing.T) {
	t.Setenv("STALE_RULE_EXPR", "meeting_count >= 0")

	store := persistence.NewRosterMemoryStore()
	if _, err := store.CreateContact(context.Background(), testTenantID, types.Contact{
		LastName: "Doe", FirstName: "Ann", Tier: types.Tier1,
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestHandler(t, store, authz.RoleTenantAdmin)
	sid := loginSID(t, h)

	rec := doJSON(t, h, sid, http.MethodGet, "/roster/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Stale int `json:"stale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Stale != 1 {
		t.Fatalf("stale=%d", resp.Stale)
	}
}

func TestOwnerRosterCache_TTL(t *testing.T) {
	store := persistence.NewRosterMemoryStore()
	store.SeedOwner(testTenantID, types.Owner{Name: "A", Role: "sales"})

	cache := newOwnerRosterCache(store, time.Hour)
	first, err := cache.Owners(context.Background(), testTenantID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("owners=%d", len(first))
	}

	// within TTL the new owner is not visible yet
	store.SeedOwner(testTenantID, types.Owner{Name: "B", Role: "manager"})
	second, err := cache.Owners(context.Background(), testTenantID)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 {
		t.Fatalf("owners=%d", len(second))
	}

	// expired entry refreshes
	cache.mu.Lock()
	e := cache.entries[testTenantID]
	e.fetchedAt = time.Now().Add(-2 * time.Hour)
	cache.entries[testTenantID] = e
	cache.mu.Unlock()

	third, err := cache.Owners(context.Background(), testTenantID)
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 2 {
		t.Fatalf("owners=%d", len(third))
	}
}
