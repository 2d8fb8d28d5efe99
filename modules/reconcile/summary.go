package reconcile

import "github.com/rosterops/console/modules/roster/domain/types"

type Mode string

const (
	ModeDryRun  Mode = "dry_run"
	ModeExecute Mode = "execute"
)

// Skip reasons, in recording priority order.
const (
	SkipOwnerUnresolved = "owner unresolved"
	SkipInvalidTier     = "invalid tier"
	SkipNoDifference    = "no difference from current state"
)

type NotFoundEntry struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type AmbiguousEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Snapshot captures the owner/tier pair of one side of a skipped row,
// for audit.
type Snapshot struct {
	OwnerID string `json:"owner_id"`
	Tier    string `json:"tier"`
}

type RowChange struct {
	Line      int             `json:"line"`
	ContactID string          `json:"contact_id"`
	Email     string          `json:"email,omitempty"`
	Changes   types.ChangeSet `json:"changes"`
}

type SkipDetail struct {
	Line      int      `json:"line"`
	ContactID string   `json:"contact_id"`
	Reason    string   `json:"reason"`
	Current   Snapshot `json:"current"`
	Incoming  Snapshot `json:"incoming"`
}

// Summary is the immutable aggregate report of one reconciliation run.
type Summary struct {
	Mode             Mode             `json:"mode"`
	Received         int              `json:"received"`
	Matched          int              `json:"matched"`
	Updated          int              `json:"updated"`
	Skipped          int              `json:"skipped"`
	WouldChangeOwner int              `json:"would_change_owner"`
	WouldChangeTier  int              `json:"would_change_tier"`
	Truncated        bool             `json:"truncated"`
	NotFound         []NotFoundEntry  `json:"not_found"`
	OwnerNotFound    []string         `json:"owner_not_found"`
	InvalidTier      []string         `json:"invalid_tier"`
	AmbiguousMatch   []AmbiguousEntry `json:"ambiguous_match"`
	Details          []RowChange      `json:"details"`
	SkipReasons      []SkipDetail     `json:"skip_reasons"`
}

func newSummary(mode Mode) Summary {
	return Summary{
		Mode:           mode,
		NotFound:       []NotFoundEntry{},
		OwnerNotFound:  []string{},
		InvalidTier:    []string{},
		AmbiguousMatch: []AmbiguousEntry{},
		Details:        []RowChange{},
		SkipReasons:    []SkipDetail{},
	}
}
