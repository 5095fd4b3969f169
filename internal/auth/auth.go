// Package auth resolves the calling user from an incoming request.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reveal-service/internal/models"
)

var (
	// ErrNoCredentials means the request carried no identity at all.
	ErrNoCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials means an identity was presented but rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Authenticator extracts the caller identity from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (models.Caller, error)
}

// New returns the authenticator for mode ("jwt" or "gateway").
func New(mode, secret string) (Authenticator, error) {
	switch mode {
	case "jwt":
		return NewJWTAuthenticator(secret), nil
	case "gateway":
		return GatewayAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

// Claims is the token payload issued for a user.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HMAC-signed bearer tokens.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (models.Caller, error) {
	token := bearerToken(r)
	if token == "" {
		return models.Caller{}, ErrNoCredentials
	}
	return a.Parse(token)
}

// Parse validates a raw token string.
func (a *JWTAuthenticator) Parse(raw string) (models.Caller, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return models.Caller{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject == "" {
		return models.Caller{}, fmt.Errorf("%w: token has no subject", ErrInvalidCredentials)
	}
	return models.Caller{ID: claims.Subject, DisplayName: claims.Name, PhotoURL: claims.Picture}, nil
}

// Issue signs a token for caller valid for ttl.
func (a *JWTAuthenticator) Issue(caller models.Caller, ttl time.Duration) (string, error) {
	claims := Claims{
		Name:    caller.DisplayName,
		Picture: caller.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Browsers cannot set headers on websocket upgrades, so a token query parameter is accepted too.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderUserPhoto = "X-User-Photo"
)

// GatewayAuthenticator trusts identity headers set by an upstream gateway.
type GatewayAuthenticator struct{}

func (GatewayAuthenticator) Authenticate(r *http.Request) (models.Caller, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return models.Caller{}, ErrNoCredentials
	}
	return models.Caller{
		ID:          id,
		DisplayName: r.Header.Get(HeaderUserName),
		PhotoURL:    r.Header.Get(HeaderUserPhoto),
	}, nil
}
