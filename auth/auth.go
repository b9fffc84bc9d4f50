// auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/remote"
	"golang.org/x/crypto/bcrypt"
)

const (
	HeaderToken = "X-Lumi-Token"
	// LocalsKey is where Middleware stores the principal.
	LocalsKey = "principal"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims are the JWT claims of a principal. The subject is the uid.
type Claims struct {
	Anonymous bool   `json:"anon,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) principal() *domain.Principal {
	return &domain.Principal{
		UID:         c.Subject,
		IsAnonymous: c.Anonymous,
		Email:       c.Email,
		DisplayName: c.Name,
	}
}

// Authenticator checks bearer tokens signed with a shared secret and the
// shared guest password.
type Authenticator struct {
	secret       []byte
	passwordHash []byte
	now          func() time.Time
}

// New returns an Authenticator. An empty secret disables bearer tokens, an
// empty hash disables the guest password.
func New(secret, passwordHash string) *Authenticator {
	return &Authenticator{
		secret:       []byte(secret),
		passwordHash: []byte(passwordHash),
		now:          time.Now,
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IssueToken signs a token for p valid for ttl.
func (a *Authenticator) IssueToken(p domain.Principal, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	if p.UID == "" {
		return "", &domain.ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	now := a.now()
	claims := Claims{
		Anonymous: p.IsAnonymous,
		Email:     p.Email,
		Name:      p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies a bearer token.
func (a *Authenticator) ParseToken(token string) (*domain.Principal, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("%w: bearer tokens disabled", ErrUnauthenticated)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.principal(), nil
}

// CheckPassword verifies the shared guest password.
func (a *Authenticator) CheckPassword(password string) error {
	if len(a.passwordHash) == 0 {
		return fmt.Errorf("%w: guest password disabled", ErrUnauthenticated)
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return fmt.Errorf("%w: wrong password", ErrUnauthenticated)
	}
	return nil
}

// Authenticate resolves a request's credentials. A bearer token wins over
// the password; the password alone yields a guest, returned as nil.
func (a *Authenticator) Authenticate(bearer, password string) (*domain.Principal, error) {
	if bearer != "" {
		return a.ParseToken(bearer)
	}
	if password != "" {
		if err := a.CheckPassword(password); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: no credentials", ErrUnauthenticated)
}

// Middleware authenticates the request and stores the principal for
// PrincipalFrom.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		bearer := ""
		if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
			bearer = strings.TrimPrefix(h, "Bearer ")
		} else if q := c.Query("token"); q != "" {
			bearer = q
		}
		p, err := a.Authenticate(bearer, c.Get(HeaderToken))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(LocalsKey, p)
		return c.Next()
	}
}

// PrincipalFrom returns the principal Middleware stored; nil is a guest.
func PrincipalFrom(c *fiber.Ctx) *domain.Principal {
	return FromLocals(c.Locals(LocalsKey))
}

// FromLocals converts a value stored under LocalsKey.
func FromLocals(v any) *domain.Principal {
	p, _ := v.(*domain.Principal)
	return p
}

// Authorize lets everyone touch the public namespace and a principal its
// own.
func Authorize(p *domain.Principal, path string) error {
	if remote.Within(path, domain.PublicNamespace) {
		return nil
	}
	if p != nil && p.UID != "" && remote.Within(path, domain.Namespace(p)) {
		return nil
	}
	return fmt.Errorf("%w: %s", remote.ErrPermissionDenied, path)
}

// PrincipalFromToken reads the principal out of a token without verifying
// it. Clients use it to learn their namespace; servers must use ParseToken.
func PrincipalFromToken(token string) (*domain.Principal, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims.principal(), nil
}
