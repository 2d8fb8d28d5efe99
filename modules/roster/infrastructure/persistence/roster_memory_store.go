package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rosterops/console/modules/roster/domain/types"
	"github.com/rosterops/console/pkg/httperr"
)

// RosterMemoryStore backs the server when no database pool is
// configured and doubles as the test store. BatchUpdate stages every
// op against a copy and swaps it in only when the whole batch
// succeeded, mirroring the transactional pg store.
type RosterMemoryStore struct {
	mu       sync.Mutex
	contacts map[string][]types.Contact // tenantID -> contacts
	owners   map[string][]types.Owner
	meetings map[string][]types.Meeting

	// FailOnContactID makes BatchUpdate fail when it reaches the given
	// contact, for atomicity tests.
	FailOnContactID string
}

func NewRosterMemoryStore() *RosterMemoryStore {
	return &RosterMemoryStore{
		contacts: make(map[string][]types.Contact),
		owners:   make(map[string][]types.Owner),
		meetings: make(map[string][]types.Meeting),
	}
}

func (s *RosterMemoryStore) SeedOwner(tenantID string, o types.Owner) types.Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.owners[tenantID] = append(s.owners[tenantID], o)
	return o
}

func (s *RosterMemoryStore) ListContacts(_ context.Context, tenantID string, q string, limit int) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q = strings.ToLower(strings.TrimSpace(q))
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var out []types.Contact
	for _, c := range s.contacts[tenantID] {
		if q != "" &&
			!strings.Contains(strings.ToLower(c.LastName), q) &&
			!strings.Contains(strings.ToLower(c.FirstName), q) &&
			!strings.Contains(strings.ToLower(c.Email), q) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RosterMemoryStore) CreateContact(_ context.Context, tenantID string, c types.Contact) (types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Email = strings.TrimSpace(c.Email)
	c.LastName = strings.TrimSpace(c.LastName)
	c.FirstName = strings.TrimSpace(c.FirstName)
	if c.LastName == "" || c.FirstName == "" {
		return types.Contact{}, httperr.NewBadRequest("last_name and first_name are required")
	}
	if c.Tier == "" {
		c.Tier = types.Tier2
	}
	if c.Tier != types.Tier1 && c.Tier != types.Tier2 {
		return types.Contact{}, httperr.NewBadRequest("tier must be TIER1 or TIER2")
	}
	if c.Email != "" {
		c.Email = strings.ToLower(c.Email)
		for _, existing := range s.contacts[tenantID] {
			if existing.Email != "" && existing.Email == c.Email {
				return types.Contact{}, httperr.NewBadRequest("email already exists")
			}
		}
	}

	c.ID = uuid.NewString()
	c.Status = "active"
	c.CreatedAt = time.Now().UTC()
	s.contacts[tenantID] = append(s.contacts[tenantID], c)
	return c, nil
}

func (s *RosterMemoryStore) FindByEmail(_ context.Context, tenantID string, email string) (types.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return types.Contact{}, false, nil
	}
	for _, c := range s.contacts[tenantID] {
		if c.Email != "" && strings.ToLower(c.Email) == email {
			return c, true, nil
		}
	}
	return types.Contact{}, false, nil
}

func (s *RosterMemoryStore) FindByNameExact(_ context.Context, tenantID string, lastName string, firstName string) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Contact
	for _, c := range s.contacts[tenantID] {
		if c.LastName == lastName && c.FirstName == firstName {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *RosterMemoryStore) ListOwners(_ context.Context, tenantID string) ([]types.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Owner
	for _, o := range s.owners[tenantID] {
		for _, role := range types.OwnerRoles {
			if o.Role == role {
				out = append(out, o)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RosterMemoryStore) BatchUpdate(_ context.Context, tenantID string, ops []types.UpdateOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	staged := append([]types.Contact(nil), s.contacts[tenantID]...)
	for _, op := range ops {
		if s.FailOnContactID != "" && op.ContactID == s.FailOnContactID {
			return httperr.NewBadRequest("injected batch failure")
		}
		idx := -1
		for i := range staged {
			if staged[i].ID == op.ContactID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return httperr.NewBadRequest("contact vanished during batch update")
		}
		if ownerID, ok := op.Changes[types.FieldAssignedOwnerID]; ok {
			staged[idx].AssignedOwnerID = ownerID
		}
		if tier, ok := op.Changes[types.FieldTier]; ok {
			staged[idx].Tier = types.Tier(tier)
		}
	}

	s.contacts[tenantID] = staged
	return nil
}

func (s *RosterMemoryStore) UpdateContact(ctx context.Context, tenantID string, contactID string, changes types.ChangeSet) error {
	if len(changes) == 0 {
		return httperr.NewBadRequest("no changes given")
	}
	return s.BatchUpdate(ctx, tenantID, []types.UpdateOp{{ContactID: contactID, Changes: changes}})
}

func (s *RosterMemoryStore) ListMeetings(_ context.Context, tenantID string, contactID string) ([]types.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Meeting
	for _, m := range s.meetings[tenantID] {
		if m.ContactID == contactID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeldOn > out[j].HeldOn })
	return out, nil
}

func (s *RosterMemoryStore) CreateMeeting(_ context.Context, tenantID string, m types.Meeting) (types.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.HeldOn = strings.TrimSpace(m.HeldOn)
	if _, err := time.Parse("2006-01-02", m.HeldOn); err != nil {
		return types.Meeting{}, httperr.NewBadRequest("invalid held_on")
	}
	found := false
	for _, c := range s.contacts[tenantID] {
		if c.ID == m.ContactID {
			found = true
			break
		}
	}
	if !found {
		return types.Meeting{}, httperr.NewBadRequest("contact not found")
	}

	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	s.meetings[tenantID] = append(s.meetings[tenantID], m)
	return m, nil
}

func (s *RosterMemoryStore) MeetingFacts(_ context.Context, tenantID string, asOf time.Time) (map[string]types.MeetingFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.MeetingFact, len(s.contacts[tenantID]))
	day := asOf.UTC().Truncate(24 * time.Hour)
	for _, c := range s.contacts[tenantID] {
		out[c.ID] = types.MeetingFact{}
	}
	for _, m := range s.meetings[tenantID] {
		held, err := time.Parse("2006-01-02", m.HeldOn)
		if err != nil {
			continue
		}
		f := out[m.ContactID]
		f.MeetingCount++
		days := int(day.Sub(held).Hours() / 24)
		if f.MeetingCount == 1 || days < f.DaysSinceLast {
			f.DaysSinceLast = days
		}
		out[m.ContactID] = f
	}
	return out, nil
}
