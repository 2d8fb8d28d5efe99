package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rosterops/console/modules/roster/domain/ports"
	"github.com/rosterops/console/modules/roster/domain/types"
)

// ErrBatchApply wraps a failed execute-mode batch. The store rolls the
// whole batch back; partial application is never observable.
var ErrBatchApply = errors.New("reconcile: batch apply failed")

type State string

const (
	StateIngesting      State = "INGESTING"
	StateResolvingAlias State = "RESOLVING_ALIASES"
	StateProcessingRows State = "PROCESSING_ROWS"
	StateDryRunDone     State = "DRY_RUN_DONE"
	StateApplying       State = "APPLYING"
	StateApplied        State = "APPLIED"
	StateReported       State = "REPORTED"
	StateFailed         State = "FAILED"
)

// MaxRowsPerRun bounds the batch size and transaction duration of a
// single run. Extra rows are truncated, not rejected.
const MaxRowsPerRun = 500

// Coordinator orchestrates ingestion, alias resolution, matching,
// diffing and the conditional apply phase of one reconciliation run.
// It holds no per-run state; Run is safe for concurrent callers,
// though overlapping runs against the same contacts are last-writer-
// wins (no per-record locking).
type Coordinator struct {
	store   ports.RecordStore
	aliases AliasTable
	maxRows int
}

func NewCoordinator(store ports.RecordStore, aliases AliasTable) *Coordinator {
	return &Coordinator{store: store, aliases: aliases, maxRows: MaxRowsPerRun}
}

// Run executes one reconciliation. Mode is fixed for the whole run.
// Row-level conditions accumulate in the summary; only ingestion
// failures and a failed batch apply are fatal.
func (c *Coordinator) Run(ctx context.Context, tenantID string, payload []byte, kind Kind, dryRun bool) (Summary, State, error) {
	mode := ModeExecute
	if dryRun {
		mode = ModeDryRun
	}
	summary := newSummary(mode)

	// INGESTING
	rows, err := ParseRows(payload, kind)
	if err != nil {
		return Summary{}, StateFailed, err
	}
	summary.Received = len(rows)
	if len(rows) > c.maxRows {
		rows = rows[:c.maxRows]
		summary.Truncated = true
	}

	// RESOLVING_ALIASES
	owners, err := c.store.ListOwners(ctx, tenantID)
	if err != nil {
		return Summary{}, StateFailed, err
	}
	resolver := NewOwnerResolver(c.aliases, owners)

	// PROCESSING_ROWS
	var staged []types.UpdateOp
	for _, row := range rows {
		if err := c.processRow(ctx, tenantID, resolver, row, &summary, &staged); err != nil {
			return Summary{}, StateFailed, err
		}
	}

	// DRY_RUN_DONE | APPLYING -> APPLIED
	if !dryRun {
		if len(staged) > 0 {
			if err := c.store.BatchUpdate(ctx, tenantID, staged); err != nil {
				return Summary{}, StateFailed, fmt.Errorf("%w: %v", ErrBatchApply, err)
			}
		}
		summary.Updated = len(staged)
	}

	return summary, StateReported, nil
}

func (c *Coordinator) processRow(ctx context.Context, tenantID string, resolver *OwnerResolver, row ImportRow, summary *Summary, staged *[]types.UpdateOp) error {
	contact, failure, err := matchContact(ctx, c.store, tenantID, row)
	if err != nil {
		return err
	}
	if failure != nil {
		summary.Skipped++
		switch failure.kind {
		case matchNotFound:
			summary.NotFound = append(summary.NotFound, NotFoundEntry{Key: failure.key, Reason: failure.reason})
		case matchAmbiguous:
			summary.AmbiguousMatch = append(summary.AmbiguousMatch, AmbiguousEntry{Key: failure.key, Count: failure.count})
		}
		return nil
	}
	summary.Matched++

	ownerName := strings.TrimSpace(row.OwnerName)
	ownerID := ""
	ownerResolved := false
	ownerUnresolved := false
	if ownerName != "" {
		ownerID, ownerResolved = resolver.Resolve(ownerName)
		if !ownerResolved {
			ownerUnresolved = true
			summary.OwnerNotFound = append(summary.OwnerNotFound, ownerName)
		}
	}

	rawTier := strings.TrimSpace(row.Tier)
	tier, tierOK := NormalizeTier(rawTier)
	invalidTier := rawTier != "" && !tierOK
	if invalidTier {
		summary.InvalidTier = append(summary.InvalidTier, rawTier)
	}

	changes := buildChangeSet(contact, ownerID, ownerResolved, tier, tierOK)
	if len(changes) == 0 {
		summary.Skipped++
		reason := SkipNoDifference
		switch {
		case ownerUnresolved:
			reason = SkipOwnerUnresolved
		case invalidTier:
			reason = SkipInvalidTier
		}
		summary.SkipReasons = append(summary.SkipReasons, SkipDetail{
			Line:      row.Line,
			ContactID: contact.ID,
			Reason:    reason,
			Current:   Snapshot{OwnerID: contact.AssignedOwnerID, Tier: string(contact.Tier)},
			Incoming:  Snapshot{OwnerID: ownerID, Tier: rawTier},
		})
		return nil
	}

	if _, ok := changes[types.FieldAssignedOwnerID]; ok {
		summary.WouldChangeOwner++
	}
	if _, ok := changes[types.FieldTier]; ok {
		summary.WouldChangeTier++
	}
	summary.Details = append(summary.Details, RowChange{
		Line:      row.Line,
		ContactID: contact.ID,
		Email:     contact.Email,
		Changes:   changes,
	})
	*staged = append(*staged, types.UpdateOp{ContactID: contact.ID, Changes: changes})
	return nil
}
