package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rosterops/console/internal/routing"
	"github.com/rosterops/console/modules/reconcile"
	"github.com/rosterops/console/modules/roster/infrastructure/persistence"
	"github.com/rosterops/console/pkg/authz"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	TenancyResolver  TenancyResolver
	IdentityProvider identityProvider
	RosterStore      RosterStore
	AliasTable       reconcile.AliasTable
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	rosterStore := opts.RosterStore
	tenancyResolver := opts.TenancyResolver
	identityProvider := opts.IdentityProvider

	var pgPool *pgxpool.Pool
	if rosterStore == nil {
		dsn := dbDSNFromEnv()
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return nil, err
		}
		pgPool = pool
		rosterStore = persistence.NewRosterPGStore(pgPool)
	}

	aliases := opts.AliasTable
	if aliases == nil {
		table, err := loadAliasTableFromEnv()
		if err != nil {
			return nil, err
		}
		aliases = table
	}

	authorizer, err := loadAuthorizer()
	if err != nil {
		return nil, err
	}

	if tenancyResolver == nil {
		if pgPool == nil {
			return nil, errors.New("server: missing tenancy resolver (set HandlerOptions.TenancyResolver or use default PG stores)")
		}
		tenancyResolver = newTenancyDBResolver(pgPool)
	}

	principals := newPrincipalStore(pgPool)
	sessions := newSessionStore(pgPool)
	ownerCache := newOwnerRosterCache(rosterStore, ownerCacheTTLFromEnv())

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/iam/api/sessions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ := currentTenant(r.Context())

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_json", "invalid json")
			return
		}
		email := strings.TrimSpace(req.Email)
		password := req.Password
		if email == "" || strings.TrimSpace(password) == "" {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_form", "email and password required")
			return
		}

		provider := identityProvider
		if provider == nil {
			p, err := newIdentityProviderFromEnv()
			if err != nil {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "identity_provider_error", "identity provider error")
				return
			}
			provider = p
		}

		ident, err := provider.AuthenticatePassword(r.Context(), tenant, email, password)
		if err != nil {
			if errors.Is(err, errInvalidCredentials) {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_credentials", "invalid credentials")
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "identity_error", "identity error")
			return
		}

		roleSlug := strings.TrimSpace(strings.ToLower(ident.RoleSlug))
		if roleSlug == "" {
			roleSlug = authz.RoleTenantViewer
		}
		if roleSlug != authz.RoleTenantAdmin && roleSlug != authz.RoleTenantViewer {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_identity_role", "invalid identity role")
			return
		}

		p, err := principals.UpsertFromIdentity(r.Context(), tenant.ID, ident.Email, roleSlug, ident.IdentityID)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "principal_error", "principal error")
			return
		}

		expiresAt := time.Now().Add(sidTTLFromEnv())
		sid, err := sessions.Create(r.Context(), tenant.ID, p.ID, expiresAt, r.RemoteAddr, r.UserAgent())
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "session_error", "session error")
			return
		}
		setSIDCookie(w, sid)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNoContent)
	}))

	router.Handle(routing.RouteClassAuthn, http.MethodPost, "/logout", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sid, ok := readSID(r); ok {
			_ = sessions.Revoke(r.Context(), sid)
		}
		clearSIDCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/roster/api/contacts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleContactsAPI(w, r, rosterStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/roster/api/contacts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleContactsAPI(w, r, rosterStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/roster/api/contacts:by-email", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleContactByEmailAPI(w, r, rosterStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/roster/api/contacts/update", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleContactUpdateAPI(w, r, rosterStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/roster/api/contacts:reconcile", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleReconcileAPI(w, r, rosterStore, ownerCache, aliases)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/roster/api/owners", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleOwnersAPI(w, r, rosterStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/roster/api/meetings", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleMeetingsAPI(w, r, rosterStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/roster/api/meetings", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleMeetingsAPI(w, r, rosterStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/roster/api/dashboard", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDashboardAPI(w, r, rosterStore, ownerCache)
	}))

	guarded := withTenantAndSession(classifier, tenancyResolver, principals, sessions, withAuthz(classifier, authorizer, router))
	return guarded, nil
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("server: failed to build handler: " + err.Error()))
	}
	return h
}

func defaultAllowlistPath() (string, error) {
	path := "config/routing/allowlist.yaml"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: allowlist not found")
}

func loadAliasTableFromEnv() (reconcile.AliasTable, error) {
	path := os.Getenv("ALIASES_PATH")
	if path == "" {
		p := "config/aliases.yaml"
		for i := 0; i < 8; i++ {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
			p = filepath.Join("..", p)
		}
	}
	if path == "" {
		// no alias table configured; direct owner-name matching still works
		return reconcile.AliasTable{}, nil
	}
	return reconcile.LoadAliasTable(path)
}

func withTenantAndSession(classifier *routing.Classifier, tenants TenancyResolver, principals principalStore, sessions sessionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		tenantDomain := effectiveHost(r)
		t, ok, err := tenants.ResolveTenant(r.Context(), tenantDomain)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_resolve_error", "tenant resolve error")
			return
		}
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		r = r.WithContext(withTenant(r.Context(), t))

		if path == "/iam/api/sessions" && r.Method == http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		sid, ok := readSID(r)
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}

		sess, ok, err := sessions.Lookup(r.Context(), sid)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "session_lookup_error", "session lookup error")
			return
		}
		if !ok || sess.TenantID != t.ID {
			clearSIDCookie(w)
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}

		p, ok, err := principals.GetByID(r.Context(), t.ID, sess.PrincipalID)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "principal_lookup_error", "principal lookup error")
			return
		}
		if !ok || p.Status != "active" {
			clearSIDCookie(w)
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		r = r.WithContext(withPrincipal(r.Context(), p))

		next.ServeHTTP(w, r)
	})
}
