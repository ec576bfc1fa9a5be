// Package identitymem is an in-process identity provider for local
// development and tests. Access tokens are HS256 JWTs signed with the same
// secret the auth middleware verifies, so sessions it issues work end to end.
package identitymem

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const defaultCodeTTL = 24 * time.Hour

// Mailer delivers the invite email. notifx.Client satisfies it.
type Mailer interface {
	SendTemplate(ctx context.Context, name string, data any, to ...string) error
}

type user struct {
	id           kernel.UserID
	email        string
	passwordHash []byte
	confirmedAt  *time.Time
}

type session struct {
	id      string
	userID  kernel.UserID
	refresh string
}

type oneTimeCode struct {
	userID    kernel.UserID
	expiresAt time.Time
}

// Provider implements identity.Gateway in memory.
type Provider struct {
	mu       sync.Mutex
	users    map[kernel.UserID]*user
	byEmail  map[string]kernel.UserID
	sessions map[string]*session
	refresh  map[string]string // refresh token -> session id
	codes    map[string]oneTimeCode

	tokens  *auth.JWTService
	mailer  Mailer
	codeTTL time.Duration
	now     func() time.Time
}

var _ identity.Gateway = (*Provider)(nil)

// Option configures the Provider.
type Option func(*Provider)

// WithMailer sends invite emails through m. Without it invite links are only logged.
func WithMailer(m Mailer) Option {
	return func(p *Provider) { p.mailer = m }
}

// WithCodeTTL sets how long one-time codes stay valid.
func WithCodeTTL(d time.Duration) Option {
	return func(p *Provider) { p.codeTTL = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func New(tokens *auth.JWTService, opts ...Option) *Provider {
	p := &Provider{
		users:    make(map[kernel.UserID]*user),
		byEmail:  make(map[string]kernel.UserID),
		sessions: make(map[string]*session),
		refresh:  make(map[string]string),
		codes:    make(map[string]oneTimeCode),
		tokens:   tokens,
		codeTTL:  defaultCodeTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *user) toIdentity() *identity.Identity {
	return &identity.Identity{ID: u.id, Email: u.email, ConfirmedAt: u.confirmedAt}
}

// ============================================================================
// identity.Gateway
// ============================================================================

// SendInvite creates the identity if needed and mails a link carrying a one-time code.
func (p *Provider) SendInvite(ctx context.Context, email, redirectURL string) (*identity.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, identity.ErrInvalidRequest("empty email")
	}

	link, err := url.Parse(redirectURL)
	if err != nil || redirectURL == "" {
		return nil, identity.ErrInvalidRequest("invalid redirect url")
	}

	p.mu.Lock()
	u := p.ensureUserLocked(email)
	code := p.issueCodeLocked(u.id)
	expiresAt := p.codes[code].expiresAt
	ident := u.toIdentity()
	p.mu.Unlock()

	q := link.Query()
	q.Set("code", code)
	link.RawQuery = q.Encode()

	if p.mailer == nil {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"email": email,
			"link":  link.String(),
		}).Info("identitymem: invite link (no mailer configured)")
		return ident, nil
	}

	err = p.mailer.SendTemplate(ctx, notifx.TemplateInvitation, notifx.InvitationData{
		Email:     email,
		AcceptURL: link.String(),
		ExpiresAt: expiresAt.UTC().Format(time.RFC1123),
	}, email)
	if err != nil {
		p.mu.Lock()
		delete(p.codes, code)
		p.mu.Unlock()
		return nil, identity.ErrProviderError().WithCause(err).WithDetail("operation", "send_invite")
	}
	return ident, nil
}

// ExchangeAuthCode consumes a one-time code and opens a session for its user.
func (p *Provider) ExchangeAuthCode(_ context.Context, code string) (*identity.Session, error) {
	if code == "" {
		return nil, identity.ErrInvalidRequest("empty authorization code")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.codes[code]
	if !ok {
		return nil, identity.ErrInvalidCredentials().WithDetail("reason", "unknown code")
	}
	delete(p.codes, code)

	now := p.now()
	if now.After(c.expiresAt) {
		return nil, identity.ErrInvalidCredentials().WithDetail("reason", "code expired")
	}

	u, ok := p.users[c.userID]
	if !ok {
		return nil, identity.ErrUserNotFound(c.userID)
	}
	if u.confirmedAt == nil {
		confirmed := now.UTC()
		u.confirmedAt = &confirmed
	}
	return p.openSessionLocked(u)
}

// EstablishSession accepts a live access token, or rotates the refresh token
// when the access token is no longer usable.
func (p *Provider) EstablishSession(_ context.Context, accessToken, refreshToken string) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if accessToken != "" {
		if s, u := p.lookupLocked(accessToken); s != nil {
			return &identity.Session{
				AccessToken:  accessToken,
				RefreshToken: s.refresh,
				User:         u.toIdentity(),
			}, nil
		}
	}

	if refreshToken == "" {
		return nil, identity.ErrInvalidCredentials()
	}

	sid, ok := p.refresh[refreshToken]
	if !ok {
		return nil, identity.ErrInvalidCredentials().WithDetail("reason", "unknown refresh token")
	}
	s := p.sessions[sid]
	u, ok := p.users[s.userID]
	if !ok {
		return nil, identity.ErrUserNotFound(s.userID)
	}

	delete(p.refresh, refreshToken)
	s.refresh = uuid.NewString()
	p.refresh[s.refresh] = s.id

	return p.sessionFor(u, s)
}

// CurrentUser returns (nil, nil) for unknown, expired or revoked sessions.
func (p *Provider) CurrentUser(_ context.Context, sess *identity.Session) (*identity.Identity, error) {
	if sess == nil || sess.AccessToken == "" {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, u := p.lookupLocked(sess.AccessToken)
	if u == nil {
		return nil, nil
	}
	return u.toIdentity(), nil
}

func (p *Provider) SetPassword(_ context.Context, userID kernel.UserID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return identity.ErrInvalidRequest("unusable password").WithCause(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[userID]
	if !ok {
		return identity.ErrUserNotFound(userID)
	}
	u.passwordHash = hash
	return nil
}

// InvalidateAllSessions drops every session of userID, including refresh tokens.
func (p *Provider) InvalidateAllSessions(_ context.Context, userID kernel.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.users[userID]; !ok {
		return identity.ErrUserNotFound(userID)
	}
	for id, s := range p.sessions {
		if s.userID == userID {
			p.dropSessionLocked(id)
		}
	}
	return nil
}

// SignOut ends one session. The refresh token is revoked as well, even when
// the access token has expired or been tampered with. Unknown sessions are ignored.
func (p *Provider) SignOut(_ context.Context, sess *identity.Session) error {
	if sess == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if sess.AccessToken != "" {
		if claims, err := p.tokens.ValidateAccessToken(sess.AccessToken); err == nil {
			p.dropSessionLocked(claims.SessionID)
		}
	}
	if sid, ok := p.refresh[sess.RefreshToken]; ok && sess.RefreshToken != "" {
		p.dropSessionLocked(sid)
	}
	return nil
}

// ============================================================================
// Development helpers
// ============================================================================

// CreateUser registers a confirmed identity with a password.
func (p *Provider) CreateUser(_ context.Context, email, password string) (*identity.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, identity.ErrInvalidRequest("empty email")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, identity.ErrInvalidRequest("unusable password").WithCause(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u := p.ensureUserLocked(email)
	u.passwordHash = hash
	if u.confirmedAt == nil {
		confirmed := p.now().UTC()
		u.confirmedAt = &confirmed
	}
	return u.toIdentity(), nil
}

// IssueRecoveryCode returns a one-time code for a password-recovery callback.
func (p *Provider) IssueRecoveryCode(_ context.Context, email string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.byEmail[normalizeEmail(email)]
	if !ok {
		return "", identity.ErrRegistry.New(identity.CodeUserNotFound).WithDetail("email", email)
	}
	return p.issueCodeLocked(id), nil
}

// SignInWithPassword opens a session for valid credentials.
func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, identity.ErrInvalidCredentials()
	}
	u := p.users[id]
	if len(u.passwordHash) == 0 || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return nil, identity.ErrInvalidCredentials()
	}
	return p.openSessionLocked(u)
}

// ============================================================================
// Internals (callers hold p.mu)
// ============================================================================

func (p *Provider) ensureUserLocked(email string) *user {
	if id, ok := p.byEmail[email]; ok {
		return p.users[id]
	}
	u := &user{id: kernel.NewRandomUserID(), email: email}
	p.users[u.id] = u
	p.byEmail[email] = u.id
	return u
}

func (p *Provider) issueCodeLocked(userID kernel.UserID) string {
	code := uuid.NewString()
	p.codes[code] = oneTimeCode{userID: userID, expiresAt: p.now().Add(p.codeTTL)}
	return code
}

func (p *Provider) openSessionLocked(u *user) (*identity.Session, error) {
	s := &session{id: uuid.NewString(), userID: u.id, refresh: uuid.NewString()}
	p.sessions[s.id] = s
	p.refresh[s.refresh] = s.id
	return p.sessionFor(u, s)
}

func (p *Provider) sessionFor(u *user, s *session) (*identity.Session, error) {
	access, expiresAt, err := p.tokens.GenerateAccessToken(u.id, u.email, s.id)
	if err != nil {
		return nil, identity.ErrProviderError().WithCause(err)
	}
	return &identity.Session{
		AccessToken:  access,
		RefreshToken: s.refresh,
		ExpiresAt:    expiresAt.UTC(),
		User:         u.toIdentity(),
	}, nil
}

func (p *Provider) lookupLocked(accessToken string) (*session, *user) {
	claims, err := p.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, nil
	}
	s, ok := p.sessions[claims.SessionID]
	if !ok || s.userID != claims.UserID {
		return nil, nil
	}
	u, ok := p.users[s.userID]
	if !ok {
		return nil, nil
	}
	return s, u
}

func (p *Provider) dropSessionLocked(id string) {
	s, ok := p.sessions[id]
	if !ok {
		return
	}
	delete(p.refresh, s.refresh)
	delete(p.sessions, id)
}
