package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sidCookieName = "sid"

var sidRandReader io.Reader = rand.Reader

type Session struct {
	TenantID    string
	PrincipalID string
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

type sessionStore interface {
	Create(ctx context.Context, tenantID string, principalID string, expiresAt time.Time, ip string, userAgent string) (sid string, err error)
	Lookup(ctx context.Context, sid string) (Session, bool, error)
	Revoke(ctx context.Context, sid string) error
}

type principalStore interface {
	UpsertFromIdentity(ctx context.Context, tenantID string, email string, roleSlug string, identityID string) (Principal, error)
	GetByID(ctx context.Context, tenantID string, principalID string) (Principal, bool, error)
}

func sidTTLFromEnv() time.Duration {
	const defaultHours = 24 * 14

	v := os.Getenv("SID_TTL_HOURS")
	if v == "" {
		return time.Hour * defaultHours
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return time.Hour * defaultHours
	}
	return time.Hour * time.Duration(n)
}

// newSID returns the cookie value and the sha256 stored at rest; the
// raw token never touches the database.
func newSID() (sid string, tokenSha256 []byte, err error) {
	var b [32]byte
	if _, err := sidRandReader.Read(b[:]); err != nil {
		return "", nil, err
	}
	sid = base64.RawURLEncoding.EncodeToString(b[:])
	sum := sha256.Sum256([]byte(sid))
	return sid, sum[:], nil
}

func readSID(r *http.Request) (string, bool) {
	c, err := r.Cookie(sidCookieName)
	if err != nil {
		return "", false
	}
	if c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func setSIDCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSIDCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type memoryPrincipalStore struct {
	mu    sync.Mutex
	byKey map[string]Principal
	byID  map[string]Principal
}

func newMemoryPrincipalStore() *memoryPrincipalStore {
	return &memoryPrincipalStore{
		byKey: map[string]Principal{},
		byID:  map[string]Principal{},
	}
}

func (s *memoryPrincipalStore) UpsertFromIdentity(_ context.Context, tenantID string, email string, roleSlug string, identityID string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantID + "|" + email
	if p, ok := s.byKey[key]; ok {
		if p.Status != "active" {
			return Principal{}, errors.New("server: principal is not active")
		}
		if p.IdentityID != "" && p.IdentityID != identityID {
			return Principal{}, errors.New("server: principal identity mismatch")
		}
		if p.IdentityID == "" {
			p.IdentityID = identityID
			s.byKey[key] = p
			s.byID[p.ID] = p
		}
		return p, nil
	}

	var idb [16]byte
	if _, err := sidRandReader.Read(idb[:]); err != nil {
		return Principal{}, err
	}
	p := Principal{
		ID:         base64.RawURLEncoding.EncodeToString(idb[:]),
		TenantID:   tenantID,
		RoleSlug:   roleSlug,
		Status:     "active",
		Email:      email,
		IdentityID: identityID,
	}
	s.byKey[key] = p
	s.byID[p.ID] = p
	return p, nil
}

func (s *memoryPrincipalStore) GetByID(_ context.Context, tenantID string, principalID string) (Principal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[principalID]
	if !ok {
		return Principal{}, false, nil
	}
	if p.TenantID != tenantID {
		return Principal{}, false, nil
	}
	return p, true, nil
}

type memorySessionStore struct {
	mu    sync.Mutex
	bySID map[string]Session
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{
		bySID: map[string]Session{},
	}
}

func (s *memorySessionStore) Create(_ context.Context, tenantID string, principalID string, expiresAt time.Time, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid, _, err := newSID()
	if err != nil {
		return "", err
	}
	s.bySID[sid] = Session{
		TenantID:    tenantID,
		PrincipalID: principalID,
		ExpiresAt:   expiresAt,
	}
	return sid, nil
}

func (s *memorySessionStore) Lookup(_ context.Context, sid string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.bySID[sid]
	if !ok {
		return Session{}, false, nil
	}
	if v.RevokedAt != nil {
		return Session{}, false, nil
	}
	if time.Now().After(v.ExpiresAt) {
		return Session{}, false, nil
	}
	return v, true, nil
}

func (s *memorySessionStore) Revoke(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bySID, sid)
	return nil
}

type queryExecer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgPrincipalStore struct {
	q queryExecer
}

func newPrincipalStore(pool *pgxpool.Pool) principalStore {
	if pool == nil {
		return newMemoryPrincipalStore()
	}
	return &pgPrincipalStore{q: pool}
}

func (s *pgPrincipalStore) UpsertFromIdentity(ctx context.Context, tenantID string, email string, roleSlug string, identityID string) (Principal, error) {
	var p Principal
	p.Email = email
	p.TenantID = tenantID
	p.RoleSlug = roleSlug
	p.Status = "active"
	p.IdentityID = identityID

	err := s.q.QueryRow(ctx, `
INSERT INTO iam.principals (tenant_id, email, role_slug, status, identity_id)
VALUES ($1, $2, $3, 'active', $4::uuid)
ON CONFLICT (tenant_id, email) DO UPDATE SET
  identity_id = COALESCE(iam.principals.identity_id, EXCLUDED.identity_id),
  updated_at = now()
RETURNING id::text, role_slug, status, COALESCE(identity_id::text, '');
`, tenantID, email, roleSlug, identityID).Scan(&p.ID, &p.RoleSlug, &p.Status, &p.IdentityID)
	if err != nil {
		return Principal{}, err
	}
	if p.Status != "active" {
		return Principal{}, errors.New("server: principal is not active")
	}
	if p.IdentityID != identityID {
		return Principal{}, errors.New("server: principal identity mismatch")
	}
	return p, nil
}

func (s *pgPrincipalStore) GetByID(ctx context.Context, tenantID string, principalID string) (Principal, bool, error) {
	var p Principal
	err := s.q.QueryRow(ctx, `
SELECT id::text, tenant_id::text, email, role_slug, status
FROM iam.principals
WHERE tenant_id = $1 AND id = $2;
`, tenantID, principalID).Scan(&p.ID, &p.TenantID, &p.Email, &p.RoleSlug, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, false, nil
		}
		return Principal{}, false, err
	}
	return p, true, nil
}

type pgSessionStore struct {
	q queryExecer
}

func newSessionStore(pool *pgxpool.Pool) sessionStore {
	if pool == nil {
		return newMemorySessionStore()
	}
	return &pgSessionStore{q: pool}
}

func (s *pgSessionStore) Create(ctx context.Context, tenantID string, principalID string, expiresAt time.Time, ip string, userAgent string) (string, error) {
	sid, tokenSha256, err := newSID()
	if err != nil {
		return "", err
	}
	_, err = s.q.Exec(ctx, `
INSERT INTO iam.sessions (token_sha256, tenant_id, principal_id, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6);
`, tokenSha256, tenantID, principalID, expiresAt, ip, userAgent)
	if err != nil {
		return "", err
	}
	return sid, nil
}

func (s *pgSessionStore) Lookup(ctx context.Context, sid string) (Session, bool, error) {
	sum := sha256.Sum256([]byte(sid))
	var out Session
	var revokedAt *time.Time
	err := s.q.QueryRow(ctx, `
SELECT tenant_id::text, principal_id::text, expires_at, revoked_at
FROM iam.sessions
WHERE token_sha256 = $1;
`, sum[:]).Scan(&out.TenantID, &out.PrincipalID, &out.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	out.RevokedAt = revokedAt
	if out.RevokedAt != nil {
		return Session{}, false, nil
	}
	if time.Now().After(out.ExpiresAt) {
		return Session{}, false, nil
	}
	return out, true, nil
}

func (s *pgSessionStore) Revoke(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(sid))
	_, err := s.q.Exec(ctx, `DELETE FROM iam.sessions WHERE token_sha256 = $1;`, sum[:])
	return err
}
