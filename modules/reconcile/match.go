package reconcile

import (
	"context"
	"strings"

	"github.com/rosterops/console/modules/roster/domain/ports"
	"github.com/rosterops/console/modules/roster/domain/types"
)

const (
	reasonNameIncomplete = "email empty and name incomplete"
	reasonNoRecord       = "no matching record"
)

type matchFailureKind int

const (
	matchNotFound matchFailureKind = iota + 1
	matchAmbiguous
)

// matchFailure is a row-level condition; it never aborts the run.
type matchFailure struct {
	kind   matchFailureKind
	key    string
	reason string
	count  int
}

// matchContact resolves an ImportRow to exactly one canonical contact:
// by trimmed, case-insensitive email when present, otherwise by exact
// (last, first) name pair. Ambiguity is never auto-resolved.
func matchContact(ctx context.Context, store ports.RecordStore, tenantID string, row ImportRow) (types.Contact, *matchFailure, error) {
	email := strings.TrimSpace(row.Email)
	if email != "" {
		c, ok, err := store.FindByEmail(ctx, tenantID, email)
		if err != nil {
			return types.Contact{}, nil, err
		}
		if !ok {
			return types.Contact{}, &matchFailure{kind: matchNotFound, key: "email:" + email, reason: reasonNoRecord}, nil
		}
		return c, nil, nil
	}

	last := strings.TrimSpace(row.LastName)
	first := strings.TrimSpace(row.FirstName)
	nameKey := "name:" + last + first
	if last == "" || first == "" {
		return types.Contact{}, &matchFailure{kind: matchNotFound, key: nameKey, reason: reasonNameIncomplete}, nil
	}

	candidates, err := store.FindByNameExact(ctx, tenantID, last, first)
	if err != nil {
		return types.Contact{}, nil, err
	}
	switch len(candidates) {
	case 0:
		return types.Contact{}, &matchFailure{kind: matchNotFound, key: nameKey, reason: reasonNoRecord}, nil
	case 1:
		return candidates[0], nil, nil
	default:
		return types.Contact{}, &matchFailure{kind: matchAmbiguous, key: nameKey, count: len(candidates)}, nil
	}
}
