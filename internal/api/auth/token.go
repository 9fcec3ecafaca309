package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mfigueiredo/person-registry/config"
)

// Claims carried by issued access tokens. The subject is the person's
// numeric identifier; Name is the display name shown by clients.
type Claims struct {
	PersonID int64  `json:"person_id"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateAccessToken issues a signed HMAC-SHA256 token for the given person,
// valid for the configured TTL (one hour by default).
func GenerateAccessToken(personID int64, name string, cfg config.JWTConfig) (token string, expiresAt time.Time, err error) {
	if cfg.SecretKey == "" {
		return "", time.Time{}, fmt.Errorf("JWT secret key is not configured")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now()
	expiresAt = now.Add(ttl)
	claims := Claims{
		PersonID: personID,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(personID, 10),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}
