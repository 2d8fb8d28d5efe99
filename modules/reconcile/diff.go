package reconcile

import (
	"strings"

	"golang.org/x/text/width"

	"github.com/rosterops/console/modules/roster/domain/types"
)

// NormalizeTier maps accepted spellings onto the two canonical tier
// values. Full-width digits and letters fold to their narrow forms
// before comparison. Empty input is "no tier given", not an error.
func NormalizeTier(raw string) (types.Tier, bool) {
	s := strings.TrimSpace(width.Narrow.String(raw))
	if s == "" {
		return "", false
	}
	s = strings.ToUpper(s)
	s = strings.TrimPrefix(s, "TIER")
	s = strings.TrimPrefix(s, "T")
	s = strings.TrimLeft(s, "0")
	switch s {
	case "1":
		return types.Tier1, true
	case "2":
		return types.Tier2, true
	default:
		return "", false
	}
}

// buildChangeSet computes the minimal field-level difference between
// the matched contact and the resolved incoming values. Owner
// reassignment requires a successful resolution; tier update requires
// successful normalization. Equal values never enter the set.
func buildChangeSet(contact types.Contact, ownerID string, ownerResolved bool, tier types.Tier, tierOK bool) types.ChangeSet {
	changes := types.ChangeSet{}
	if ownerResolved && ownerID != contact.AssignedOwnerID {
		changes[types.FieldAssignedOwnerID] = ownerID
	}
	if tierOK && tier != contact.Tier {
		changes[types.FieldTier] = string(tier)
	}
	return changes
}
