package server

import (
	"context"
	"testing"
	"time"
)

func TestSIDTTLFromEnv(t *testing.T) {
	t.Setenv("SID_TTL_HOURS", "")
	if got := sidTTLFromEnv(); got != 24*14*time.Hour {
		t.Fatalf("ttl=%v", got)
	}
	t.Setenv("SID_TTL_HOURS", "12")
	if got := sidTTLFromEnv(); got != 12*time.Hour {
		t.Fatalf("ttl=%v", got)
	}
	t.Setenv("SID_TTL_HOURS", "nope")
	if got := sidTTLFromEnv(); got != 24*14*time.Hour {
		t.Fatalf("ttl=%v", got)
	}
}

func TestMemorySessionStore_Lifecycle(t *testing.T) {
	s := newMemorySessionStore()

	sid, err := s.Create(context.Background(), "t1", "p1", time.Now().Add(time.Hour), "127.0.0.1", "ua")
	if err != nil {
		t.Fatal(err)
	}

	sess, ok, err := s.Lookup(context.Background(), sid)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if sess.TenantID != "t1" || sess.PrincipalID != "p1" {
		t.Fatalf("sess=%+v", sess)
	}

	if _, ok, _ := s.Lookup(context.Background(), "nope"); ok {
		t.Fatal("unknown sid resolved")
	}

	if err := s.Revoke(context.Background(), sid); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Lookup(context.Background(), sid); ok {
		t.Fatal("revoked sid resolved")
	}
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	s := newMemorySessionStore()
	sid, err := s.Create(context.Background(), "t1", "p1", time.Now().Add(-time.Minute), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Lookup(context.Background(), sid); ok {
		t.Fatal("expired sid resolved")
	}
}

func TestMemoryPrincipalStore_Upsert(t *testing.T) {
	s := newMemoryPrincipalStore()

	p, err := s.UpsertFromIdentity(context.Background(), "t1", "op@example.invalid", "tenant-admin", "ident1")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" || p.Status != "active" || p.IdentityID != "ident1" {
		t.Fatalf("p=%+v", p)
	}

	again, err := s.UpsertFromIdentity(context.Background(), "t1", "op@example.invalid", "tenant-admin", "ident1")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != p.ID {
		t.Fatalf("upsert created a new principal: %q vs %q", again.ID, p.ID)
	}

	if _, err := s.UpsertFromIdentity(context.Background(), "t1", "op@example.invalid", "tenant-admin", "other"); err == nil {
		t.Fatal("expected identity mismatch error")
	}

	got, ok, err := s.GetByID(context.Background(), "t1", p.ID)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.Email != "op@example.invalid" {
		t.Fatalf("got=%+v", got)
	}
	if _, ok, _ := s.GetByID(context.Background(), "t2", p.ID); ok {
		t.Fatal("cross-tenant principal resolved")
	}
}
