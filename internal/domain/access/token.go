package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/trip-expense/internal/domain/entity"
)

type claims struct {
	Role     Kind   `json:"role"`
	TripCode string `json:"tripCode,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens for privileged roles
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer; now defaults to time.Now
func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

// IssueAuditor returns a signed auditor role
func (i *TokenIssuer) IssueAuditor() (Auditor, error) {
	token, err := i.sign(claims{Role: KindAuditor})
	if err != nil {
		return Auditor{}, err
	}
	return Auditor{Token: token}, nil
}

// IssueLeader returns a signed leader role scoped to tripCode
func (i *TokenIssuer) IssueLeader(tripCode, name string) (Leader, error) {
	token, err := i.sign(claims{Role: KindLeader, TripCode: tripCode, Name: name})
	if err != nil {
		return Leader{}, err
	}
	return Leader{Token: token, Trip: tripCode, Name: name}, nil
}

func (i *TokenIssuer) sign(c claims) (string, error) {
	now := i.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   string(c.Role),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns the role it carries.
// Every failure wraps entity.ErrAuth.
func (i *TokenIssuer) Parse(token string) (Role, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", entity.ErrAuth)
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", entity.ErrAuth)
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrAuth, err)
	}

	switch c.Role {
	case KindAuditor:
		return Auditor{Token: token}, nil
	case KindLeader:
		if c.TripCode == "" {
			return nil, fmt.Errorf("%w: leader token without trip", entity.ErrAuth)
		}
		return Leader{Token: token, Trip: c.TripCode, Name: c.Name}, nil
	}
	return nil, fmt.Errorf("%w: unexpected role %q", entity.ErrAuth, c.Role)
}
