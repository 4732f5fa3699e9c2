// Package auth supplies bearer tokens for the Afero API via the platform
// OpenID token endpoint. Sessions are bootstrapped from a refresh token;
// interactive login is handled outside this process.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
)

// expirySkew renews tokens slightly early so in-flight requests never carry
// a token that dies mid-call.
const expirySkew = 30 * time.Second

// TokenData is the session material produced by a token grant. Callers may
// persist RefreshToken between process runs.
type TokenData struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Valid reports whether the access token can still be used.
func (t TokenData) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.Expiry.Add(-expirySkew))
}

// Auth implements afero.TokenSource using the refresh-token grant.
type Auth struct {
	httpClient *http.Client
	info       afero.ClientInfo
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	token TokenData
}

// New builds an Auth seeded with a refresh token. The httpClient may be nil.
func New(info afero.ClientInfo, refreshToken string, httpClient *http.Client) *Auth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Auth{
		httpClient: httpClient,
		info:       info,
		logger:     slog.Default(),
		now:        time.Now,
		token:      TokenData{RefreshToken: refreshToken},
	}
}

// WithLogger attaches a component logger.
func (a *Auth) WithLogger(logger *slog.Logger) *Auth {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// SetTokenData replaces the current session material.
func (a *Auth) SetTokenData(data TokenData) {
	a.mu.Lock()
	a.token = data
	a.mu.Unlock()
}

// RefreshToken returns the refresh token of the current session so callers
// can persist it.
func (a *Auth) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token.RefreshToken
}

// Token returns a bearer token, renewing it through the token endpoint when
// the cached one expired. Credential rejection maps to afero.ErrInvalidAuth.
func (a *Auth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token.Valid(a.now()) {
		return a.token.AccessToken, nil
	}
	if a.token.RefreshToken == "" {
		return "", fmt.Errorf("no refresh token available: %w", afero.ErrInvalidAuth)
	}

	a.logger.Debug("renewing access token")
	data, err := a.refresh(ctx, a.token.RefreshToken)
	if err != nil {
		return "", err
	}
	a.token = data
	return a.token.AccessToken, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

func (a *Auth) refresh(ctx context.Context, refreshToken string) (TokenData, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {a.info.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.info.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return TokenData{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", a.info.UserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return TokenData{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenData{}, err
	}

	// Check the status before decoding: rejections can arrive with non-JSON
	// bodies from proxies, and those must still map to ErrInvalidAuth.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		var oidcErr tokenResponse
		_ = json.Unmarshal(body, &oidcErr)
		a.logger.Warn("token refresh rejected", "status", resp.StatusCode, "code", oidcErr.Error)
		return TokenData{}, fmt.Errorf("token refresh rejected (%s): %w", oidcErr.Error, afero.ErrInvalidAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return TokenData{}, &afero.StatusError{StatusCode: resp.StatusCode, URL: a.info.TokenURL()}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return TokenData{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return TokenData{}, fmt.Errorf("token response missing access_token: %w", afero.ErrInvalidAuth)
	}
	return TokenData{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		Expiry:       a.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}

// Static is a fixed-token source for tests and short-lived tooling.
type Static string

// Token returns the fixed token.
func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}
