package auth

import (
	"fmt"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
)

// JWTService signs and verifies HS256 access tokens.
type JWTService struct {
	secretKey      []byte
	accessTokenTTL time.Duration
	issuer         string
}

// NewJWTService builds a service. An empty issuer disables the issuer check.
func NewJWTService(secretKey string, accessTokenTTL time.Duration, issuer string) *JWTService {
	if accessTokenTTL == 0 {
		accessTokenTTL = time.Hour
	}

	return &JWTService{
		secretKey:      []byte(secretKey),
		accessTokenTTL: accessTokenTTL,
		issuer:         issuer,
	}
}

// JWTClaims follows the layout identity providers commonly use: the user id
// in "sub", the session in "session_id".
type JWTClaims struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a token for userID bound to sessionID.
func (j *JWTService) GenerateAccessToken(userID kernel.UserID, email, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.accessTokenTTL)

	claims := JWTClaims{
		Email:     email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, ErrTokenGenerationFailed().WithCause(err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken verifies the signature and expiry and returns the claims.
func (j *JWTService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrTokenValidationFailed().WithCause(err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenValidationFailed().WithDetail("reason", "invalid claims")
	}
	if claims.Subject == "" {
		return nil, ErrTokenValidationFailed().WithDetail("reason", "missing subject")
	}

	out := &TokenClaims{
		UserID:    kernel.UserID(claims.Subject),
		Email:     claims.Email,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
