package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/golang-jwt/jwt/v4"
)

// --------------------------------------------------------------------------
// Requirements
// --------------------------------------------------------------------------

// Requirement is the authorization a method demands from the caller
type Requirement string

const (
	// None allows anonymous calls
	None Requirement = "none"
	// Any requires a valid token bound to an account or a system
	Any Requirement = "any"
	// Account requires a token bound to an account
	Account Requirement = "account"
	// System requires a token bound to a system, any role
	System Requirement = "system"
	// SystemAdmin requires a token bound to a system with the admin role
	SystemAdmin Requirement = "system:admin"
)

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session is the identity established by a verified token
type Session struct {
	AccountID string
	SystemID  string
	Role      string
	// Support accounts may act on every system
	Support bool
	// Token is the raw token, forwarded on nested calls
	Token string
}

// Check reports whether s satisfies req. A nil session only satisfies None.
func Check(s *Session, req Requirement) error {
	switch req {
	case None, "":
		return nil
	}
	if s == nil {
		return errs.New(errs.Auth, "auth", "method requires %s authorization, no token given", req)
	}
	switch req {
	case Any:
		if s.AccountID == "" && s.SystemID == "" {
			return errs.New(errs.Auth, "auth", "token is not bound to an account or system")
		}
	case Account:
		if s.AccountID == "" {
			return errs.New(errs.Auth, "auth", "token is not bound to an account")
		}
	case System:
		if s.SystemID == "" {
			return errs.New(errs.Auth, "auth", "token is not bound to a system")
		}
		if s.AccountID != "" && s.Role == "" && !s.Support {
			return errs.New(errs.Auth, "auth", "account has no role on the system")
		}
	case SystemAdmin:
		if s.SystemID == "" {
			return errs.New(errs.Auth, "auth", "token is not bound to a system")
		}
		if s.Role != "admin" && !s.Support {
			return errs.New(errs.Auth, "auth", "role %q is not sufficient, admin required", s.Role)
		}
	default:
		return errs.New(errs.Auth, "auth", "unknown requirement %q", req)
	}
	return nil
}

type sessionKey struct{}

// WithSession attaches s to ctx
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached by the rpc layer, nil for
// anonymous calls
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// --------------------------------------------------------------------------
// Tokens
// --------------------------------------------------------------------------

// Claims is the JWT payload of a session token
type Claims struct {
	AccountID string `json:"account_id,omitempty"`
	SystemID  string `json:"system_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Support   bool   `json:"support,omitempty"`
	jwt.RegisteredClaims
}

// RoleResolver returns the current role of an account on a system, "" when
// the account has none
type RoleResolver interface {
	ResolveRole(accountID, systemID string) (string, error)
}

// Authority issues and verifies HS256 session tokens
type Authority struct {
	secret []byte
	ttl    time.Duration
	issuer string
	roles  RoleResolver
}

// NewAuthority creates an authority. ttl 0 issues tokens without expiry.
func NewAuthority(secret []byte, ttl time.Duration) *Authority {
	return &Authority{secret: secret, ttl: ttl, issuer: "dctl"}
}

// SetRoleResolver makes Authorize take the role of account tokens from r
// instead of the token claims, so revoked roles take effect immediately.
// Must be called before the authority is used.
func (a *Authority) SetRoleResolver(r RoleResolver) {
	a.roles = r
}

// Issue signs a token for s
func (a *Authority) Issue(s Session) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: s.AccountID,
		SystemID:  s.SystemID,
		Role:      s.Role,
		Support:   s.Support,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   a.issuer,
			Subject:  s.AccountID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if a.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "auth.Issue", err)
	}
	return token, nil
}

// Verify parses and verifies token
func (a *Authority) Verify(token string) (*Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errs.New(errs.Auth, "auth.Verify", "token expired")
		}
		return nil, errs.Wrap(errs.Auth, "auth.Verify", err)
	}
	return &Session{
		AccountID: claims.AccountID,
		SystemID:  claims.SystemID,
		Role:      claims.Role,
		Support:   claims.Support,
		Token:     token,
	}, nil
}

// Authorize verifies token (if any) and checks it against req. For None a
// missing or invalid token yields a nil session and no error.
func (a *Authority) Authorize(token string, req Requirement) (*Session, error) {
	if token == "" {
		return nil, Check(nil, req)
	}
	s, err := a.Verify(token)
	if err == nil {
		err = a.resolveRole(s)
	}
	if err != nil {
		if req == None || req == "" {
			return nil, nil
		}
		return nil, err
	}
	return s, Check(s, req)
}

func (a *Authority) resolveRole(s *Session) error {
	if a.roles == nil || s.AccountID == "" || s.SystemID == "" {
		return nil
	}
	role, err := a.roles.ResolveRole(s.AccountID, s.SystemID)
	if err != nil {
		return err
	}
	s.Role = role
	return nil
}
