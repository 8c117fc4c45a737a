// Package tokencookie reads the Google credential cookies set by the
// Classboard auth flow. It is exported so sibling services embedding the
// dashboard can gate requests on the same cookies.
package tokencookie

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Cookie names shared with the auth flow.
const (
	AccessTokenCookie   = "google_access_token"
	RefreshTokenCookie  = "google_refresh_token"
	IDTokenCookie       = "google_id_token"
	StateCookie         = "oauth_state"
	LegacySessionCookie = "user_session"
)

// DefaultContextKey is where GinMiddleware stores the bearer token.
const DefaultContextKey = "google_access_token"

// Sentinel errors exposed by the package.
var (
	ErrNoIDToken      = errors.New("tokencookie.missing_id_token")
	ErrMalformedToken = errors.New("tokencookie.malformed_id_token")
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

// Credentials is the cookie-held credential set for one browser session.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// FromRequest extracts the credential cookies. The access token may also
// arrive as an Authorization bearer header.
func FromRequest(request *http.Request) Credentials {
	credentials := Credentials{
		AccessToken:  cookieValue(request, AccessTokenCookie),
		RefreshToken: cookieValue(request, RefreshTokenCookie),
		IDToken:      cookieValue(request, IDTokenCookie),
	}
	if credentials.AccessToken == "" {
		header := request.Header.Get("Authorization")
		if after, found := strings.CutPrefix(header, "Bearer "); found {
			credentials.AccessToken = strings.TrimSpace(after)
		}
	}
	return credentials
}

// HasAccessToken reports whether a non-empty access token is present.
func (credentials Credentials) HasAccessToken() bool {
	return strings.TrimSpace(credentials.AccessToken) != ""
}

// IdentityHint is the display identity decoded from the id-token cookie.
// The claims are NOT verified; use this for rendering and cheap expiry
// checks only, never as an authentication proof.
type IdentityHint struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	ExpiresAt     time.Time
}

// DecodeIdentityHint decodes the id-token claims without verifying the
// signature.
func DecodeIdentityHint(rawIDToken string) (IdentityHint, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return IdentityHint{}, ErrNoIDToken
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(rawIDToken, claims); err != nil {
		return IdentityHint{}, ErrMalformedToken
	}

	hint := IdentityHint{
		Subject: stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		hint.EmailVerified = verified
	}
	if expiry, err := claims.GetExpirationTime(); err == nil && expiry != nil {
		hint.ExpiresAt = expiry.Time
	}
	return hint, nil
}

// StaleWithoutRefresh reports whether the id token has expired and no
// refresh token exists, meaning a profile fetch is guaranteed to 401.
func (credentials Credentials) StaleWithoutRefresh(clock Clock) bool {
	if credentials.RefreshToken != "" {
		return false
	}
	hint, err := DecodeIdentityHint(credentials.IDToken)
	if err != nil {
		return false
	}
	if hint.ExpiresAt.IsZero() {
		return false
	}
	if clock == nil {
		clock = SystemClock()
	}
	return clock.Now().After(hint.ExpiresAt)
}

// GinMiddleware aborts with 401 when no usable access token is present and
// otherwise stores the token under DefaultContextKey.
func GinMiddleware() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		credentials := FromRequest(contextGin.Request)
		if !credentials.HasAccessToken() {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Access token not found. Please authenticate first.",
			})
			return
		}
		contextGin.Set(DefaultContextKey, credentials.AccessToken)
		contextGin.Next()
	}
}

// TokenFromContext returns the bearer token stored by GinMiddleware.
func TokenFromContext(contextGin *gin.Context) string {
	value, found := contextGin.Get(DefaultContextKey)
	if !found {
		return ""
	}
	token, _ := value.(string)
	return token
}

func cookieValue(request *http.Request, name string) string {
	cookie, err := request.Cookie(name)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
