package kernel

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is the authenticated caller, injected into each request by the
// auth middleware.
type AuthContext struct {
	UserID    UserID `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id,omitempty"`

	// Role is resolved from the profile store, not from the token.
	Role Role `json:"role,omitempty"`

	// AccessToken and RefreshToken are the raw credentials the caller presented.
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
}

// IsValid reports whether the context identifies a user
func (ac *AuthContext) IsValid() bool {
	return ac != nil && !ac.UserID.IsEmpty()
}

// IsAdmin reports whether the caller holds the admin role
func (ac *AuthContext) IsAdmin() bool {
	return ac != nil && ac.Role == RoleAdmin
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey stores *AuthContext in fiber locals
	AuthContextKey ContextKey = "auth"

	// RequestIDKey stores the request id
	RequestIDKey ContextKey = "request_id"
)
