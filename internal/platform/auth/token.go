package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenRevoked = errors.New("token has been revoked")
	ErrRoleMismatch = errors.New("role not permitted")
)

type Claims struct {
	jwt.RegisteredClaims
	Role        Role  `json:"role"`
	PrincipalID int64 `json:"pid"`
}

type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
}

const defaultTokenTTL = 12 * time.Hour

// Tokens mints and resolves HS256 bearer tokens.
type Tokens struct {
	cfg     TokenConfig
	revoked RevocationList
	now     func() time.Time
}

// NewTokens builds a token service. revoked may be nil.
func NewTokens(cfg TokenConfig, revoked RevocationList) *Tokens {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTokenTTL
	}
	return &Tokens{cfg: cfg, revoked: revoked, now: time.Now}
}

// Issue signs a token for p and returns it with its expiry.
func (t *Tokens) Issue(p Principal) (string, time.Time, error) {
	if !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("issue token: unknown role %q", p.Role)
	}

	now := t.now()
	exp := now.Add(t.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(p.ID, 10),
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:        p.Role,
		PrincipalID: p.ID,
	}
	if t.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{t.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Resolve validates token and returns its principal. When required is not
// empty the principal's role must be one of them.
func (t *Tokens) Resolve(ctx context.Context, token string, required ...Role) (Principal, error) {
	claims, err := t.parse(token)
	if err != nil {
		return Principal{}, err
	}

	if t.revoked != nil {
		revoked, err := t.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Principal{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Principal{}, ErrTokenRevoked
		}
	}

	p := Principal{ID: claims.PrincipalID, Role: claims.Role, JTI: claims.ID}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	if len(required) > 0 && !p.Is(required...) {
		return Principal{}, ErrRoleMismatch
	}
	return p, nil
}

// Revoke blacklists the token p was resolved from until its natural expiry.
func (t *Tokens) Revoke(ctx context.Context, p Principal) error {
	if t.revoked == nil || p.JTI == "" {
		return nil
	}
	return t.revoked.Revoke(ctx, p.JTI, p.ExpiresAt)
}

func (t *Tokens) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(t.now),
	}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}
	if t.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
