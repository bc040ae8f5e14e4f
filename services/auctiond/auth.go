package auctiond

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"nhbmarket/crypto"
	"nhbmarket/observability/logging"
)

type callerKey struct{}

// CallerFrom returns the authenticated caller attached by Authenticator.
func CallerFrom(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(callerKey{}).([20]byte)
	return caller, ok
}

// Authenticator verifies HS256 bearer tokens. The token subject names the
// calling account.
type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
	logger *slog.Logger
}

// NewAuthenticator builds an authenticator from cfg.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	skew := cfg.ClockSkew.Duration
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret: []byte(strings.TrimSpace(cfg.Secret)),
		issuer: strings.TrimSpace(cfg.Issuer),
		skew:   skew,
		logger: logger,
	}
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		caller, err := a.Verify(tokenString)
		if err != nil {
			a.logger.Warn("token validation failed",
				slog.String("component", "auctiond"),
				logging.MaskField("authorization", tokenString),
				slog.Any("error", err))
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify validates tokenString and returns the subject address.
func (a *Authenticator) Verify(tokenString string) ([20]byte, error) {
	var zero [20]byte
	if len(a.secret) == 0 {
		return zero, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.skew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return zero, err
	}
	if !token.Valid {
		return zero, errors.New("token invalid")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return zero, err
	}
	if strings.TrimSpace(subject) == "" {
		return zero, errors.New("token subject required")
	}
	return crypto.ParseAddress(subject)
}

// IssueToken signs a token for subject valid for ttl. Operators use it to mint
// credentials; tests use it to authenticate requests.
func (a *Authenticator) IssueToken(subject [20]byte, ttl time.Duration, now time.Time) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret not configured")
	}
	claims := jwt.RegisteredClaims{
		Subject:   crypto.FormatAddress(subject),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if a.issuer != "" {
		claims.Issuer = a.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
