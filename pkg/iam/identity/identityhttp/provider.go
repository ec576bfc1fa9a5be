// Package identityhttp talks to the external identity provider over its
// JSON HTTP API. Admin operations authenticate with the service key and are
// unavailable when none is configured.
package identityhttp

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// Provider implements identity.Gateway over HTTP.
type Provider struct {
	endpoint   string
	httpClient *http.Client
	opts       *options
}

var _ identity.Gateway = (*Provider)(nil)

// New builds a provider for the API rooted at endpoint.
func New(endpoint string, opts ...Option) *Provider {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	client := o.httpClient
	if client == nil {
		client = &http.Client{
			Timeout: o.timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: o.timeout}).DialContext,
				ResponseHeaderTimeout: o.timeout,
				IdleConnTimeout:       defaultIdleConnTimeout,
				MaxIdleConnsPerHost:   10,
			},
		}
	}

	return &Provider{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: client,
		opts:       o,
	}
}

// ============================================================================
// Wire types
// ============================================================================

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

func (u *userResponse) toIdentity() *identity.Identity {
	return &identity.Identity{
		ID:          kernel.UserID(u.ID),
		Email:       u.Email,
		ConfirmedAt: u.ConfirmedAt,
	}
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`
}

func (t *tokenResponse) toSession() *identity.Session {
	s := &identity.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	if t.User != nil && t.User.ID != "" {
		s.User = t.User.toIdentity()
	}
	return s
}

// ============================================================================
// identity.Gateway
// ============================================================================

func (p *Provider) SendInvite(ctx context.Context, email, redirectURL string) (*identity.Identity, error) {
	if p.opts.serviceKey == "" {
		return nil, identity.ErrCapabilityUnavailable("send_invite")
	}

	var user userResponse
	err := p.doJSON(ctx, requestConfig{
		method: http.MethodPost,
		path:   "/invite",
		body: map[string]string{
			"email":       email,
			"redirect_to": redirectURL,
		},
		bearer: p.opts.serviceKey,
	}, &user)
	if err != nil {
		return nil, translate("send_invite", err)
	}
	if user.ID == "" {
		return nil, identity.ErrProviderError().WithDetail("operation", "send_invite").WithDetail("reason", "response without user id")
	}
	return user.toIdentity(), nil
}

func (p *Provider) ExchangeAuthCode(ctx context.Context, code string) (*identity.Session, error) {
	if code == "" {
		return nil, identity.ErrInvalidRequest("empty authorization code")
	}
	return p.token(ctx, "authorization_code", map[string]string{"auth_code": code})
}

// EstablishSession validates the access token against the provider and falls
// back to a refresh grant when it has been rejected.
func (p *Provider) EstablishSession(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error) {
	if accessToken == "" && refreshToken == "" {
		return nil, identity.ErrInvalidRequest("no tokens")
	}

	if accessToken != "" {
		user, err := p.fetchUser(ctx, accessToken)
		if err == nil {
			return &identity.Session{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				User:         user.toIdentity(),
			}, nil
		}
		if status := statusOf(err); refreshToken == "" || (status != http.StatusUnauthorized && status != http.StatusForbidden) {
			return nil, translate("establish_session", err)
		}
		logx.WithContext(ctx).Debug("identityhttp: access token rejected, trying refresh grant")
	}

	return p.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (p *Provider) token(ctx context.Context, grant string, body map[string]string) (*identity.Session, error) {
	var tok tokenResponse
	err := p.doJSON(ctx, requestConfig{
		method: http.MethodPost,
		path:   "/token",
		query:  url.Values{"grant_type": []string{grant}},
		body:   body,
	}, &tok)
	if err != nil {
		return nil, translate(grant, err)
	}
	if tok.AccessToken == "" {
		return nil, identity.ErrProviderError().WithDetail("operation", grant).WithDetail("reason", "response without access token")
	}
	return tok.toSession(), nil
}

func (p *Provider) fetchUser(ctx context.Context, accessToken string) (*userResponse, error) {
	var user userResponse
	err := p.doJSON(ctx, requestConfig{
		method:     http.MethodGet,
		path:       "/user",
		bearer:     accessToken,
		idempotent: true,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser returns (nil, nil) when the provider no longer accepts the session.
func (p *Provider) CurrentUser(ctx context.Context, session *identity.Session) (*identity.Identity, error) {
	if session == nil || session.AccessToken == "" {
		return nil, nil
	}

	user, err := p.fetchUser(ctx, session.AccessToken)
	if err != nil {
		switch statusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return nil, nil
		}
		return nil, translate("current_user", err)
	}
	if user.ID == "" {
		return nil, nil
	}
	return user.toIdentity(), nil
}

func (p *Provider) SetPassword(ctx context.Context, userID kernel.UserID, password string) error {
	if p.opts.serviceKey == "" {
		return identity.ErrCapabilityUnavailable("set_password")
	}

	err := p.doJSON(ctx, requestConfig{
		method:     http.MethodPut,
		path:       "/admin/users/%s",
		pathParams: []string{userID.String()},
		body:       map[string]string{"password": password},
		bearer:     p.opts.serviceKey,
		idempotent: true,
	}, nil)
	if err != nil {
		return translate("set_password", err).WithDetail("user_id", userID)
	}
	return nil
}

func (p *Provider) InvalidateAllSessions(ctx context.Context, userID kernel.UserID) error {
	if p.opts.serviceKey == "" {
		return identity.ErrCapabilityUnavailable("invalidate_all_sessions")
	}

	err := p.doJSON(ctx, requestConfig{
		method:      http.MethodPost,
		path:        "/admin/users/%s/logout",
		pathParams:  []string{userID.String()},
		query:       url.Values{"scope": []string{"global"}},
		bearer:      p.opts.serviceKey,
		expectCodes: []int{http.StatusOK, http.StatusNoContent},
		idempotent:  true,
	}, nil)
	if err != nil {
		return translate("invalidate_all_sessions", err).WithDetail("user_id", userID)
	}
	return nil
}

// SignOut ends the session. When the provider already rejects the access
// token but a refresh token was supplied, the refresh token is redeemed and
// the resulting session is logged out, so it cannot mint new access tokens.
// A refresh token the provider rejects counts as signed out.
func (p *Provider) SignOut(ctx context.Context, session *identity.Session) error {
	if session == nil {
		return nil
	}

	if session.AccessToken != "" {
		err := p.logout(ctx, session.AccessToken)
		if err == nil {
			return nil
		}
		if !rejected(err) {
			return translate("sign_out", err)
		}
	}
	if session.RefreshToken == "" {
		return nil
	}

	fresh, err := p.token(ctx, "refresh_token", map[string]string{"refresh_token": session.RefreshToken})
	if err != nil {
		if errx.HasCode(err, identity.CodeInvalidCredentials) || errx.HasCode(err, identity.CodeInvalidRequest) {
			return nil
		}
		return err
	}
	if err := p.logout(ctx, fresh.AccessToken); err != nil && !rejected(err) {
		return translate("sign_out", err)
	}
	return nil
}

func (p *Provider) logout(ctx context.Context, accessToken string) error {
	return p.doJSON(ctx, requestConfig{
		method:      http.MethodPost,
		path:        "/logout",
		bearer:      accessToken,
		expectCodes: []int{http.StatusOK, http.StatusNoContent},
		idempotent:  true,
	}, nil)
}

// rejected reports whether the provider no longer recognizes the token.
func rejected(err error) bool {
	switch statusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
