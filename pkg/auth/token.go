package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintAccessToken issues a signed JWT for the provided payload. A ttl of zero
// uses the configured expiration.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	if cfg.Secret == "" {
		return "", pkgerrors.New(pkgerrors.CodeConfig, "jwt secret is required")
	}
	if cfg.Issuer == "" {
		return "", pkgerrors.New(pkgerrors.CodeConfig, "jwt issuer is required")
	}
	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "jwt subject is required")
	}
	if !payload.Role.IsValid() {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", payload.Role)
	}
	if ttl <= 0 {
		ttl = cfg.Expiration()
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := AccessTokenClaims{
		Role: payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign jwt")
	}
	return signed, nil
}

// ParseAccessToken validates the JWT string and returns typed claims.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "jwt secret is required")
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", claims.Role)
	}
	return claims, nil
}
