package types

import "time"

type Tier string

const (
	Tier1 Tier = "TIER1"
	Tier2 Tier = "TIER2"
)

// Contact is a tracked roster record subject to ownership and tier
// assignment. Email is unique per tenant (case-insensitive) when present.
type Contact struct {
	ID              string
	Email           string
	LastName        string
	FirstName       string
	AssignedOwnerID string
	Tier            Tier
	Status          string
	CreatedAt       time.Time
}

// Owner is an internal staff member eligible to be assigned contacts.
type Owner struct {
	ID   string
	Name string
	Role string
}

// OwnerRoles are the privileged roles eligible to own contacts.
var OwnerRoles = []string{"sales", "manager"}

type Meeting struct {
	ID        string
	ContactID string
	HeldOn    string
	Note      string
	CreatedAt time.Time
}

// ChangeSet is the minimal set of field-level differences to apply to
// one contact. Keys are the canonical field names used by the store.
type ChangeSet map[string]string

const (
	FieldAssignedOwnerID = "assigned_owner_id"
	FieldTier            = "tier"
)

// UpdateOp is one staged write of the reconciliation apply phase.
type UpdateOp struct {
	ContactID string
	Changes   ChangeSet
}
