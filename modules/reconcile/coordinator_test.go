package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/rosterops/console/modules/roster/domain/types"
	"github.com/rosterops/console/modules/roster/infrastructure/persistence"
)

const testTenant = "t1"

func seedStore(t *testing.T) (*persistence.RosterMemoryStore, types.Owner) {
	t.Helper()
	st := persistence.NewRosterMemoryStore()
	owner := st.SeedOwner(testTenant, types.Owner{Name: "Smith", Role: "sales"})
	return st, owner
}

func seedContact(t *testing.T, st *persistence.RosterMemoryStore, c types.Contact) types.Contact {
	t.Helper()
	created, err := st.CreateContact(context.Background(), testTenant, c)
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	return created
}

func TestRun_DryRunThenExecute(t *testing.T) {
	st, owner := seedStore(t)
	seedContact(t, st, types.Contact{Email: "a@x.com", LastName: "Doe", FirstName: "Ann", Tier: types.Tier2})

	payload := []byte("email,owner_name,tier\na@x.com,Smith,1\n")
	coord := NewCoordinator(st, nil)

	summary, state, err := coord.Run(context.Background(), testTenant, payload, KindCSV, true)
	if err != nil || state != StateReported {
		t.Fatalf("dry run: state=%s err=%v", state, err)
	}
	if summary.Mode != ModeDryRun || summary.Received != 1 || summary.Matched != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	if summary.Updated != 0 || summary.WouldChangeOwner != 1 || summary.WouldChangeTier != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	if len(summary.Details) != 1 || summary.Details[0].Changes[types.FieldTier] != string(types.Tier1) {
		t.Fatalf("details=%+v", summary.Details)
	}

	// dry run touched nothing
	got, _, _ := st.FindByEmail(context.Background(), testTenant, "a@x.com")
	if got.Tier != types.Tier2 || got.AssignedOwnerID != "" {
		t.Fatalf("dry run mutated store: %+v", got)
	}

	summary, state, err = coord.Run(context.Background(), testTenant, payload, KindCSV, false)
	if err != nil || state != StateReported {
		t.Fatalf("execute: state=%s err=%v", state, err)
	}
	if summary.Mode != ModeExecute || summary.Updated != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	got, _, _ = st.FindByEmail(context.Background(), testTenant, "a@x.com")
	if got.Tier != types.Tier1 || got.AssignedOwnerID != owner.ID {
		t.Fatalf("execute did not apply: %+v", got)
	}
}

func TestRun_ExecuteIsIdempotent(t *testing.T) {
	st, _ := seedStore(t)
	seedContact(t, st, types.Contact{Email: "a@x.com", LastName: "Doe", FirstName: "Ann", Tier: types.Tier2})

	payload := []byte("email,owner_name,tier\na@x.com,Smith,1\n")
	coord := NewCoordinator(st, nil)

	if _, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Updated != 0 || summary.Skipped != 1 {
		t.Fatalf("second run summary=%+v", summary)
	}
	if len(summary.SkipReasons) != 1 || summary.SkipReasons[0].Reason != SkipNoDifference {
		t.Fatalf("skip_reasons=%+v", summary.SkipReasons)
	}
}

func TestRun_EmailTakesPrecedenceOverNames(t *testing.T) {
	st, _ := seedStore(t)
	byEmail := seedContact(t, st, types.Contact{Email: "a@x.com", LastName: "Other", FirstName: "Name", Tier: types.Tier2})
	seedContact(t, st, types.Contact{LastName: "Doe", FirstName: "Ann", Tier: types.Tier2})

	// names point at the second contact, email at the first
	payload := []byte("email,last_name,first_name,tier\na@x.com,Doe,Ann,1\n")
	coord := NewCoordinator(st, nil)

	summary, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(summary.Details) != 1 || summary.Details[0].ContactID != byEmail.ID {
		t.Fatalf("details=%+v", summary.Details)
	}
}

func TestRun_AmbiguousNamesNeverResolved(t *testing.T) {
	st, _ := seedStore(t)
	seedContact(t, st, types.Contact{LastName: "Doe", FirstName: "Ann", Tier: types.Tier1})
	seedContact(t, st, types.Contact{LastName: "Doe", FirstName: "Ann", Tier: types.Tier2})

	payload := []byte("last_name,first_name,tier\nDoe,Ann,1\n")
	coord := NewCoordinator(st, nil)

	summary, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if summary.Matched != 0 || summary.Skipped != 1 || summary.Updated != 0 {
		t.Fatalf("summary=%+v", summary)
	}
	if len(summary.AmbiguousMatch) != 1 || summary.AmbiguousMatch[0].Count != 2 {
		t.Fatalf("ambiguous=%+v", summary.AmbiguousMatch)
	}
}

func TestRun_NotFoundReasons(t *testing.T) {
	st, _ := seedStore(t)

	// empty email plus an incomplete name pair
	payload := []byte("email,last_name,first_name\n,Doe,\n")
	coord := NewCoordinator(st, nil)

	summary, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(summary.NotFound) != 1 || summary.NotFound[0].Reason != reasonNameIncomplete {
		t.Fatalf("not_found=%+v", summary.NotFound)
	}

	payload = []byte("email\nnobody@x.com\n")
	summary, _, err = coord.Run(context.Background(), testTenant, payload, KindCSV, true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(summary.NotFound) != 1 || summary.NotFound[0].Key != "email:nobody@x.com" {
		t.Fatalf("not_found=%+v", summary.NotFound)
	}
}

func TestRun_SkipReasonPriority(t *testing.T) {
	st, _ := seedStore(t)
	seedContact(t, st, types.Contact{Email: "a@x.com", LastName: "Doe", FirstName: "Ann", Tier: types.Tier2})

	// unknown owner and invalid tier on the same row: owner wins
	payload := []byte("email,owner_name,tier\na@x.com,Nobody,9\n")
	coord := NewCoordinator(st, nil)

	summary, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if summary.Updated != 0 || summary.Skipped != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	if summary.SkipReasons[0].Reason != SkipOwnerUnresolved {
		t.Fatalf("reason=%q", summary.SkipReasons[0].Reason)
	}
	if len(summary.OwnerNotFound) != 1 || summary.OwnerNotFound[0] != "Nobody" {
		t.Fatalf("owner_not_found=%+v", summary.OwnerNotFound)
	}
	if len(summary.InvalidTier) != 1 || summary.InvalidTier[0] != "9" {
		t.Fatalf("invalid_tier=%+v", summary.InvalidTier)
	}

	// invalid tier alone, owner column absent
	payload = []byte("email,tier\na@x.com,9\n")
	summary, _, err = coord.Run(context.Background(), testTenant, payload, KindCSV, false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if summary.SkipReasons[0].Reason != SkipInvalidTier {
		t.Fatalf("reason=%q", summary.SkipReasons[0].Reason)
	}
}

func TestRun_AliasResolution(t *testing.T) {
	st := persistence.NewRosterMemoryStore()
	owner := st.SeedOwner(testTenant, types.Owner{Name: "山田", Role: "sales"})
	seedContact(t, st, types.Contact{Email: "a@x.com", LastName: "佐藤", FirstName: "健", Tier: types.Tier1})

	coord := NewCoordinator(st, AliasTable{"yamada": "山田"})
	payload := []byte("email,owner_name\na@x.com,yamada\n")

	summary, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if summary.Updated != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	got, _, _ := st.FindByEmail(context.Background(), testTenant, "a@x.com")
	if got.AssignedOwnerID != owner.ID {
		t.Fatalf("owner=%q want %q", got.AssignedOwnerID, owner.ID)
	}
}

func TestRun_Truncation(t *testing.T) {
	st, _ := seedStore(t)
	coord := &Coordinator{store: st, maxRows: 2}

	payload := []byte("email\na@x.com\nb@x.com\nc@x.com\n")
	summary, _, err := coord.Run(context.Background(), testTenant, payload, KindCSV, true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !summary.Truncated || summary.Received != 3 {
		t.Fatalf("summary=%+v", summary)
	}
	// only the first two rows were processed
	if summary.Skipped != 2 {
		t.Fatalf("skipped=%d", summary.Skipped)
	}
}

func TestRun_ExecuteIsAllOrNothing(t *testing.T) {
	st, _ := seedStore(t)
	seedContact(t, st, types.Contact{Email: "a@x.com", LastName: "Doe", FirstName: "Ann", Tier: types.Tier2})
	second := seedContact(t, st, types.Contact{Email: "b@x.com", LastName: "Roe", FirstName: "Bob", Tier: types.Tier2})
	st.FailOnContactID = second.ID

	payload := []byte("email,tier\na@x.com,1\nb@x.com,1\n")
	coord := NewCoordinator(st, nil)

	_, state, err := coord.Run(context.Background(), testTenant, payload, KindCSV, false)
	if !errors.Is(err, ErrBatchApply) || state != StateFailed {
		t.Fatalf("state=%s err=%v", state, err)
	}

	// the first op must not have leaked through
	got, _, _ := st.FindByEmail(context.Background(), testTenant, "a@x.com")
	if got.Tier != types.Tier2 {
		t.Fatalf("partial apply leaked: %+v", got)
	}
}

func TestRun_MalformedPayloadIsFatal(t *testing.T) {
	st, _ := seedStore(t)
	coord := NewCoordinator(st, nil)

	_, state, err := coord.Run(context.Background(), testTenant, []byte("{broken"), KindJSON, true)
	if !errors.Is(err, ErrMalformedInput) || state != StateFailed {
		t.Fatalf("state=%s err=%v", state, err)
	}
}
