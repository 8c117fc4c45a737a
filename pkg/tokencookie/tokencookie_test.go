package tokencookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

func mintIDToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":            "sub-1",
		"email":          "user@school.org",
		"email_verified": true,
		"name":           "Test User",
		"picture":        "https://example.com/p.png",
		"exp":            expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("mint id token: %v", err)
	}
	return token
}

func TestFromRequestReadsCookiesAndBearerHeader(t *testing.T) {
	t.Parallel()

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "access"})
	request.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "refresh"})
	request.AddCookie(&http.Cookie{Name: IDTokenCookie, Value: "idtok"})

	credentials := FromRequest(request)
	if credentials.AccessToken != "access" || credentials.RefreshToken != "refresh" || credentials.IDToken != "idtok" {
		t.Fatalf("unexpected credentials: %+v", credentials)
	}
	if !credentials.HasAccessToken() {
		t.Fatalf("expected access token present")
	}

	headerOnly := httptest.NewRequest(http.MethodGet, "/", nil)
	headerOnly.Header.Set("Authorization", "Bearer header-token")
	if got := FromRequest(headerOnly).AccessToken; got != "header-token" {
		t.Fatalf("expected bearer header fallback, got %q", got)
	}
}

func TestDecodeIdentityHint(t *testing.T) {
	t.Parallel()

	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	hint, err := DecodeIdentityHint(mintIDToken(t, expiresAt))
	if err != nil {
		t.Fatalf("decode hint: %v", err)
	}
	if hint.Email != "user@school.org" || !hint.EmailVerified || hint.Subject != "sub-1" {
		t.Fatalf("unexpected hint: %+v", hint)
	}
	if !hint.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expiry %v, got %v", expiresAt, hint.ExpiresAt)
	}

	if _, err := DecodeIdentityHint(""); err != ErrNoIDToken {
		t.Fatalf("expected ErrNoIDToken, got %v", err)
	}
	if _, err := DecodeIdentityHint("not-a-jwt"); err != ErrMalformedToken {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestStaleWithoutRefresh(t *testing.T) {
	t.Parallel()

	reference := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expired := mintIDToken(t, reference.Add(-time.Minute))
	clock := fixedClock{timestamp: reference}

	stale := Credentials{AccessToken: "a", IDToken: expired}
	if !stale.StaleWithoutRefresh(clock) {
		t.Fatalf("expected stale without refresh token")
	}

	withRefresh := Credentials{AccessToken: "a", RefreshToken: "r", IDToken: expired}
	if withRefresh.StaleWithoutRefresh(clock) {
		t.Fatalf("refresh token must suppress the stale fast path")
	}

	fresh := Credentials{AccessToken: "a", IDToken: mintIDToken(t, reference.Add(time.Hour))}
	if fresh.StaleWithoutRefresh(clock) {
		t.Fatalf("unexpired id token must not be stale")
	}

	noToken := Credentials{AccessToken: "a"}
	if noToken.StaleWithoutRefresh(clock) {
		t.Fatalf("missing id token yields no staleness signal")
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/protected", GinMiddleware(), func(contextGin *gin.Context) {
		contextGin.String(http.StatusOK, TokenFromContext(contextGin))
	})

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", missing.Code)
	}

	authed := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/protected", nil)
	request.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	router.ServeHTTP(authed, request)
	if authed.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.Code)
	}
	if authed.Body.String() != "cookie-token" {
		t.Fatalf("expected token in context, got %q", authed.Body.String())
	}
}
