package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
)

// rewriteTransport points the fixed platform token URL at a local test
// server.
type rewriteTransport struct{ target *url.URL }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestAuth(t *testing.T, handler http.HandlerFunc, refreshToken string) *Auth {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	client := &http.Client{Transport: rewriteTransport{target: target}, Timeout: time.Second}
	return New(afero.Clients["hubspace"], refreshToken, client)
}

func TestTokenRefreshGrant(t *testing.T) {
	var (
		calls    int
		gotGrant string
		gotToken string
		gotID    string
	)
	a := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotGrant = r.PostForm.Get("grant_type")
		gotToken = r.PostForm.Get("refresh_token")
		gotID = r.PostForm.Get("client_id")
		fmt.Fprint(w, `{"access_token":"access-1","refresh_token":"refresh-2","expires_in":120}`)
	}, "refresh-1")

	token, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "access-1" {
		t.Fatalf("unexpected access token %q", token)
	}
	if gotGrant != "refresh_token" || gotToken != "refresh-1" || gotID != "hubspace_android" {
		t.Fatalf("unexpected grant form: %q %q %q", gotGrant, gotToken, gotID)
	}
	// The rotated refresh token replaces the seed.
	if a.RefreshToken() != "refresh-2" {
		t.Fatalf("expected rotated refresh token, got %q", a.RefreshToken())
	}

	// A second call inside the expiry window reuses the cached token.
	if _, err := a.Token(context.Background()); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single grant call, got %d", calls)
	}
}

func TestTokenRenewsAfterExpiry(t *testing.T) {
	var calls int
	a := newTestAuth(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprintf(w, `{"access_token":"access-%d","refresh_token":"r","expires_in":60}`, calls)
	}, "seed")

	now := time.Unix(1700000000, 0)
	a.now = func() time.Time { return now }

	first, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	// 60s lifetime minus the renewal skew has passed.
	now = now.Add(45 * time.Second)
	second, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected a renewed token after expiry")
	}
	if calls != 2 {
		t.Fatalf("expected 2 grant calls, got %d", calls)
	}
}

func TestTokenRejectedCredentials(t *testing.T) {
	a := newTestAuth(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}, "stale")

	_, err := a.Token(context.Background())
	if !errors.Is(err, afero.ErrInvalidAuth) {
		t.Fatalf("expected ErrInvalidAuth, got %v", err)
	}
}

func TestTokenRejectedWithNonJSONBody(t *testing.T) {
	// Proxies in front of the token endpoint answer 401 with HTML; that must
	// still read as rejected credentials, not a decode failure.
	a := newTestAuth(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "<html><body>401 Unauthorized</body></html>")
	}, "stale")

	_, err := a.Token(context.Background())
	if !errors.Is(err, afero.ErrInvalidAuth) {
		t.Fatalf("expected ErrInvalidAuth, got %v", err)
	}
}

func TestTokenWithoutRefreshToken(t *testing.T) {
	a := New(afero.Clients["hubspace"], "", &http.Client{Timeout: time.Second})
	_, err := a.Token(context.Background())
	if !errors.Is(err, afero.ErrInvalidAuth) {
		t.Fatalf("expected ErrInvalidAuth, got %v", err)
	}
}

func TestTokenDataValid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cases := []struct {
		name string
		data TokenData
		want bool
	}{
		{name: "fresh", data: TokenData{AccessToken: "a", Expiry: now.Add(time.Minute)}, want: true},
		{name: "inside skew", data: TokenData{AccessToken: "a", Expiry: now.Add(10 * time.Second)}, want: false},
		{name: "expired", data: TokenData{AccessToken: "a", Expiry: now.Add(-time.Minute)}, want: false},
		{name: "empty", data: TokenData{Expiry: now.Add(time.Minute)}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.data.Valid(now); got != tc.want {
				t.Fatalf("Valid = %v, want %v", got, tc.want)
			}
		})
	}
}
