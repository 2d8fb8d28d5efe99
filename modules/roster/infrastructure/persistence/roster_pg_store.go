package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rosterops/console/modules/roster/domain/types"
	"github.com/rosterops/console/pkg/httperr"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RosterPGStore is the Postgres-backed canonical record store. Every
// method runs in its own transaction with the tenant pinned via
// set_config, matching the row-level security policies on the roster
// schema.
type RosterPGStore struct {
	pool pgBeginner
}

func NewRosterPGStore(pool pgBeginner) *RosterPGStore {
	return &RosterPGStore{pool: pool}
}

func (s *RosterPGStore) begin(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	return tx, nil
}

const contactColumns = `
  contact_id::text,
  COALESCE(email, ''),
  last_name,
  first_name,
  COALESCE(assigned_owner_id::text, ''),
  tier,
  status,
  created_at
`

func scanContact(row pgx.Row) (types.Contact, error) {
	var c types.Contact
	var tier string
	if err := row.Scan(&c.ID, &c.Email, &c.LastName, &c.FirstName, &c.AssignedOwnerID, &tier, &c.Status, &c.CreatedAt); err != nil {
		return types.Contact{}, err
	}
	c.Tier = types.Tier(tier)
	return c, nil
}

func (s *RosterPGStore) ListContacts(ctx context.Context, tenantID string, q string, limit int) ([]types.Contact, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	q = strings.TrimSpace(q)
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := tx.Query(ctx, `
SELECT`+contactColumns+`
FROM roster.contacts
WHERE tenant_id = $1::uuid
  AND (
    $2::text = ''
    OR last_name ILIKE ('%' || $2::text || '%')
    OR first_name ILIKE ('%' || $2::text || '%')
    OR email ILIKE ('%' || $2::text || '%')
  )
ORDER BY created_at DESC, contact_id DESC
LIMIT $3::int
`, tenantID, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RosterPGStore) CreateContact(ctx context.Context, tenantID string, c types.Contact) (types.Contact, error) {
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

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Contact{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	c.Status = "active"
	if err := tx.QueryRow(ctx, `
INSERT INTO roster.contacts (tenant_id, email, last_name, first_name, assigned_owner_id, tier, status)
VALUES ($1::uuid, NULLIF(lower($2::text), ''), $3::text, $4::text, NULLIF($5::text, '')::uuid, $6::text, 'active')
RETURNING contact_id::text, created_at
`, tenantID, c.Email, c.LastName, c.FirstName, c.AssignedOwnerID, string(c.Tier)).Scan(&c.ID, &c.CreatedAt); err != nil {
		return types.Contact{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Contact{}, err
	}
	return c, nil
}

func (s *RosterPGStore) FindByEmail(ctx context.Context, tenantID string, email string) (types.Contact, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return types.Contact{}, false, nil
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Contact{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	c, err := scanContact(tx.QueryRow(ctx, `
SELECT`+contactColumns+`
FROM roster.contacts
WHERE tenant_id = $1::uuid AND lower(email) = lower($2::text)
`, tenantID, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Contact{}, false, nil
		}
		return types.Contact{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Contact{}, false, err
	}
	return c, true, nil
}

func (s *RosterPGStore) FindByNameExact(ctx context.Context, tenantID string, lastName string, firstName string) ([]types.Contact, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT`+contactColumns+`
FROM roster.contacts
WHERE tenant_id = $1::uuid AND last_name = $2::text AND first_name = $3::text
ORDER BY created_at ASC, contact_id ASC
`, tenantID, lastName, firstName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RosterPGStore) ListOwners(ctx context.Context, tenantID string) ([]types.Owner, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT owner_id::text, name, role
FROM roster.owners
WHERE tenant_id = $1::uuid AND role = ANY($2::text[])
ORDER BY name ASC, owner_id ASC
`, tenantID, types.OwnerRoles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Owner
	for rows.Next() {
		var o types.Owner
		if err := rows.Scan(&o.ID, &o.Name, &o.Role); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchUpdate applies every staged op inside one transaction. Any
// failure rolls back the whole batch.
func (s *RosterPGStore) BatchUpdate(ctx context.Context, tenantID string, ops []types.UpdateOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	for _, op := range ops {
		if err := applyOp(ctx, tx, tenantID, op); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func applyOp(ctx context.Context, tx pgx.Tx, tenantID string, op types.UpdateOp) error {
	if len(op.Changes) == 0 {
		return nil
	}

	ownerID, hasOwner := op.Changes[types.FieldAssignedOwnerID]
	tier, hasTier := op.Changes[types.FieldTier]

	tag, err := tx.Exec(ctx, `
UPDATE roster.contacts
SET assigned_owner_id = CASE WHEN $3::bool THEN NULLIF($4::text, '')::uuid ELSE assigned_owner_id END,
    tier              = CASE WHEN $5::bool THEN $6::text ELSE tier END,
    updated_at        = now()
WHERE tenant_id = $1::uuid AND contact_id = $2::uuid
`, tenantID, op.ContactID, hasOwner, ownerID, hasTier, tier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return errors.New("roster: contact vanished during batch update")
	}
	return nil
}

func (s *RosterPGStore) UpdateContact(ctx context.Context, tenantID string, contactID string, changes types.ChangeSet) error {
	if len(changes) == 0 {
		return httperr.NewBadRequest("no changes given")
	}
	return s.BatchUpdate(ctx, tenantID, []types.UpdateOp{{ContactID: contactID, Changes: changes}})
}

func (s *RosterPGStore) ListMeetings(ctx context.Context, tenantID string, contactID string) ([]types.Meeting, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT meeting_id::text, contact_id::text, held_on::text, COALESCE(note, ''), created_at
FROM roster.meetings
WHERE tenant_id = $1::uuid AND contact_id = $2::uuid
ORDER BY held_on DESC, meeting_id DESC
`, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Meeting
	for rows.Next() {
		var m types.Meeting
		if err := rows.Scan(&m.ID, &m.ContactID, &m.HeldOn, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RosterPGStore) CreateMeeting(ctx context.Context, tenantID string, m types.Meeting) (types.Meeting, error) {
	m.HeldOn = strings.TrimSpace(m.HeldOn)
	if _, err := time.Parse("2006-01-02", m.HeldOn); err != nil {
		return types.Meeting{}, httperr.NewBadRequest("invalid held_on")
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Meeting{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := tx.QueryRow(ctx, `
INSERT INTO roster.meetings (tenant_id, contact_id, held_on, note)
VALUES ($1::uuid, $2::uuid, $3::date, NULLIF($4::text, ''))
RETURNING meeting_id::text, created_at
`, tenantID, m.ContactID, m.HeldOn, m.Note).Scan(&m.ID, &m.CreatedAt); err != nil {
		return types.Meeting{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Meeting{}, err
	}
	return m, nil
}

// MeetingFacts returns per-contact meeting aggregates for every
// contact of the tenant, including contacts without meetings.
func (s *RosterPGStore) MeetingFacts(ctx context.Context, tenantID string, asOf time.Time) (map[string]types.MeetingFact, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT c.contact_id::text,
       count(m.meeting_id),
       COALESCE(($2::date - max(m.held_on))::int, 0)
FROM roster.contacts c
LEFT JOIN roster.meetings m
  ON m.tenant_id = c.tenant_id AND m.contact_id = c.contact_id
WHERE c.tenant_id = $1::uuid
GROUP BY c.contact_id
`, tenantID, asOf.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]types.MeetingFact)
	for rows.Next() {
		var id string
		var f types.MeetingFact
		if err := rows.Scan(&id, &f.MeetingCount, &f.DaysSinceLast); err != nil {
			return nil, err
		}
		out[id] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
