package ports

import (
	"context"

	"github.com/rosterops/console/modules/roster/domain/types"
)

// RecordStore is the read/write surface the reconciliation engine needs
// from the canonical contact store. BatchUpdate is all-or-nothing: a
// failure on any op leaves every contact untouched.
type RecordStore interface {
	FindByEmail(ctx context.Context, tenantID string, email string) (types.Contact, bool, error)
	FindByNameExact(ctx context.Context, tenantID string, lastName string, firstName string) ([]types.Contact, error)
	ListOwners(ctx context.Context, tenantID string) ([]types.Owner, error)
	BatchUpdate(ctx context.Context, tenantID string, ops []types.UpdateOp) error
}
