// Package auth extracts the authenticated principal a rate-limit decision
// keys on. rategate is not the authentication authority: a missing or
// invalid token simply means the caller is treated as anonymous.
package auth

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"rategate/pkg/errors"
)

// Principal identifies an authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

// Config represents verifier configuration
type Config struct {
	// Secret for HS256/HS512 validation
	Secret string `yaml:"secret"`
	// PublicKey in PEM form for RS256/RS512 validation
	PublicKey string `yaml:"publicKey"`
	// SigningMethod is the signing algorithm (HS256, RS256, ...)
	SigningMethod string `yaml:"signingMethod"`
	// SubjectClaim is the claim containing the subject
	SubjectClaim string `yaml:"subjectClaim"`
	// RoleClaim is the claim containing the caller's role
	RoleClaim string `yaml:"roleClaim"`
}

// Verifier parses bearer tokens into Principals.
type Verifier struct {
	config *Config
	key    interface{}
	logger *slog.Logger
}

// NewVerifier creates a Verifier from static key material.
func NewVerifier(config *Config, logger *slog.Logger) (*Verifier, error) {
	if config.SigningMethod == "" {
		if config.Secret != "" {
			config.SigningMethod = "HS256"
		} else {
			config.SigningMethod = "RS256"
		}
	}
	if config.SubjectClaim == "" {
		config.SubjectClaim = "sub"
	}
	if config.RoleClaim == "" {
		config.RoleClaim = "role"
	}

	v := &Verifier{
		config: config,
		logger: logger.With("component", "auth"),
	}

	switch {
	case strings.HasPrefix(config.SigningMethod, "HS"):
		if config.Secret == "" {
			return nil, errors.NewError(errors.ErrorTypeInternal, "HMAC signing requires secret")
		}
		v.key = []byte(config.Secret)
	case strings.HasPrefix(config.SigningMethod, "RS"):
		if config.PublicKey == "" {
			return nil, errors.NewError(errors.ErrorTypeInternal, "RSA signing requires publicKey")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(config.PublicKey))
		if err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse RSA public key").WithCause(err)
		}
		v.key = key
	default:
		return nil, errors.NewError(errors.ErrorTypeInternal, "unsupported signing method").
			WithDetail("method", config.SigningMethod)
	}

	return v, nil
}

// FromAuthorization parses an Authorization header value. It returns nil for
// an absent, malformed or invalid token; the caller is then anonymous.
func (v *Verifier) FromAuthorization(header string) *Principal {
	token := extractBearer(header)
	if token == "" {
		return nil
	}

	principal, err := v.verify(token)
	if err != nil {
		v.logger.Debug("treating caller as anonymous", "error", err)
		return nil
	}
	return principal
}

func (v *Verifier) verify(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != v.config.SigningMethod {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return v.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.NewError(errors.ErrorTypeUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewError(errors.ErrorTypeUnauthorized, "unexpected claims type")
	}

	principal := &Principal{}
	if subject, ok := claims[v.config.SubjectClaim].(string); ok {
		principal.Subject = subject
	}
	if role, ok := claims[v.config.RoleClaim].(string); ok {
		principal.Role = role
	}

	if principal.Subject == "" {
		return nil, errors.NewError(errors.ErrorTypeUnauthorized, "token has no subject")
	}
	return principal, nil
}

// extractBearer extracts the token from a "Bearer <token>" header value.
func extractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
