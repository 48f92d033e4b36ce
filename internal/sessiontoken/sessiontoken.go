// Package sessiontoken issues and validates the signed session credential the
// gateway returns after a successful quorum. The token is the gateway's only
// memory of a login: stateless, shared-secret signed, never revoked.
package sessiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ciphera/internal/quorum"
	dErrors "ciphera/pkg/domain-errors"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = time.Hour

// Claims is the signed payload: subject identity, the nodes that voted for
// it, the aggregated profile, and standard expiring-bearer-token timestamps.
type Claims struct {
	Subject string                    `json:"user"`
	Nodes   []string                  `json:"nodes"`
	Profile *quorum.AggregatedProfile `json:"profile,omitempty"`
	Metrics *quorum.Metrics           `json:"metrics,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs session claims with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a session token for the given quorum outcome, valid from now
// until now+ttl.
func (i *Issuer) Issue(now time.Time, subject string, nodes []string, profile *quorum.AggregatedProfile, metrics *quorum.Metrics) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Subject: subject,
		Nodes:   nodes,
		Profile: profile,
		Metrics: metrics,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign session token")
	}
	return signed, nil
}

// Validate parses and verifies a session token.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token claims")
	}
	return claims, nil
}
