package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer = "retailgate"

	// maxIssuedAtSkew tolerates small clock drift between issuer and verifier.
	maxIssuedAtSkew = 5 * time.Second
)

// Claims carries the caller identity and branch context in a bearer token.
type Claims struct {
	Role        string   `json:"role"`
	BranchID    string   `json:"branch_id"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Principal builds the request principal from validated claims.
func (c *Claims) Principal() Principal {
	return NewPrincipal(c.Subject, c.Role, c.BranchID, c.Permissions)
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithIssuer overrides the expected token issuer.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			v.issuer = issuer
		}
	}
}

// WithClock injects the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// Verifier signs and validates HS256 bearer tokens with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier returns a verifier for secret. An empty secret is rejected.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	v := &Verifier{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// GenerateToken signs a token for the user acting from branchID.
func (v *Verifier) GenerateToken(userID, role, branchID string, permissions []string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return "", fmt.Errorf("%w: branch id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidInput)
	}

	now := v.now()
	claims := Claims{
		Role:        strings.TrimSpace(role),
		BranchID:    branchID,
		Permissions: dedupe(permissions),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the signature and required claims of token.
func (v *Verifier) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := v.validateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims.Permissions = dedupe(claims.Permissions)
	return claims, nil
}

func (v *Verifier) validateClaims(claims *Claims) error {
	if claims.Issuer != v.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.BranchID) == "" {
		return errors.New("branch_id missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := v.now()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.IssuedAt.Time.After(now.Add(maxIssuedAtSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
