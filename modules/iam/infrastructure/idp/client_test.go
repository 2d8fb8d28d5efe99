package idp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New("ftp://localhost:4433"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New("http://"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New("http://localhost:4433"); err != nil {
		t.Fatal(err)
	}
}

func TestClient_LoginPassword_Success(t *testing.T) {
	var gotIdentifier string
	var gotWhoamiToken string

	mux := http.NewServeMux()
	mux.HandleFunc("/self-service/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method=%s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(b, &req); err != nil {
			t.Fatal(err)
		}
		gotIdentifier, _ = req["identifier"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"session_token": "st1"})
	})
	mux.HandleFunc("/sessions/whoami", func(w http.ResponseWriter, r *http.Request) {
		gotWhoamiToken = r.Header.Get("X-Session-Token")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"identity": map[string]any{
				"id": "ident1",
				"traits": map[string]any{
					"tenant_id": "t1",
					"email":     "a@example.invalid",
				},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	ident, err := c.LoginPassword(context.Background(), "t1:a@example.invalid", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if gotIdentifier != "t1:a@example.invalid" {
		t.Fatalf("identifier=%q", gotIdentifier)
	}
	if gotWhoamiToken != "st1" {
		t.Fatalf("whoami token=%q", gotWhoamiToken)
	}
	if ident.ID != "ident1" {
		t.Fatalf("identity=%+v", ident)
	}
}

func TestClient_LoginPassword_BadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/self-service/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad credentials"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.LoginPassword(context.Background(), "t1:a@example.invalid", "nope")
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err=%v", err)
	}
	if he.Error() == "" {
		t.Fatal("empty error string")
	}
}
