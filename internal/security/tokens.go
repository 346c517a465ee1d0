package security

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenMalformed is returned for tokens that cannot be parsed or carry unusable claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalidSignature is returned when the signature does not verify against the public key.
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	// ErrTokenExpired is returned when the token's exp is not in the future.
	ErrTokenExpired = errors.New("token expired")
)

// TokenKind tags a token as the access or refresh half of a session pair.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the wire format of both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string  `json:"roles"`
	Kind  TokenKind `json:"type"`
}

// IssuedToken is a freshly signed token together with the values the caller needs to
// track it (revocation key and expiry).
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenCodec creates and decodes signed session tokens.
type TokenCodec struct {
	keys       *KeyPair
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for iat/exp and for expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec returns a codec that signs with keys.Private and verifies with keys.Public.
// A TTL of zero yields tokens that are already expired when decoded.
func NewTokenCodec(keys *KeyPair, issuer, audience string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		keys:       keys,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccessTTL is the lifetime of access tokens.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the lifetime of refresh tokens and the refresh cookie max-age.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// Create signs a token of the given kind for subject carrying roles. Roles are stored sorted
// so both halves of a pair serialize identically.
func (c *TokenCodec) Create(kind TokenKind, subject string, roles []string) (IssuedToken, error) {
	var ttl time.Duration
	switch kind {
	case KindAccess:
		ttl = c.accessTTL
	case KindRefresh:
		ttl = c.refreshTTL
	default:
		return IssuedToken{}, fmt.Errorf("unknown token kind %q", kind)
	}
	if subject == "" {
		return IssuedToken{}, errors.New("token subject is empty")
	}
	sorted := slices.Clone(roles)
	slices.Sort(sorted)
	if sorted == nil {
		sorted = []string{}
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Roles: sorted,
		Kind:  kind,
	}
	token, err := jwt.NewWithClaims(c.keys.Method, claims).SignedString(c.keys.Private)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, ID: id, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// Decode verifies signature, expiry, issuer and audience and returns the claims.
// It does not consult revocation state.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.keys.Public, nil
	},
		jwt.WithValidMethods([]string{c.keys.Method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
