package transport

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid bearer token")

// identityResolver decides who the caller is. With a secret configured only
// a verified bearer token counts; otherwise the identity named in the body is
// trusted as is.
type identityResolver struct {
	secret []byte
}

func newIdentityResolver(secret string) *identityResolver {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &identityResolver{}
	}
	return &identityResolver{secret: []byte(secret)}
}

func (i *identityResolver) verifies() bool {
	return len(i.secret) > 0
}

func (i *identityResolver) resolve(r *http.Request, bodyIdentity string) (string, error) {
	if !i.verifies() {
		return strings.TrimSpace(bodyIdentity), nil
	}

	token := bearerToken(r)
	if token == "" {
		return "", nil
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errInvalidToken
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// origin is the caller address after RealIP has run, without the port.
func origin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
