package authflow

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classboard/pkg/tokencookie"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// FlowDeps bundles the collaborators of the auth-flow handlers. Tests
// substitute fakes; production wiring comes from NewFlowDeps.
type FlowDeps struct {
	Exchanger CodeExchanger
	Prober    AccessProber
	Identity  IdentityFetcher
	Revoker   TokenRevoker
	Logger    *zap.Logger
	Metrics   MetricsRecorder
	Clock     Clock
}

// NewFlowDeps wires the production collaborators for the given config.
func NewFlowDeps(configuration FlowConfig) FlowDeps {
	return FlowDeps{
		Exchanger: oauthExchanger{oauthConfig: configuration.OAuthConfig()},
		Prober:    classroomProber{},
		Identity:  userinfoFetcher{},
		Revoker:   googleRevoker{},
	}
}

func (deps FlowDeps) withDefaults() FlowDeps {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = NewSystemClock()
	}
	return deps
}

// MountAuthRoutes registers /auth/start, /auth/callback, and /auth/logout.
func MountAuthRoutes(router gin.IRouter, configuration FlowConfig, deps FlowDeps) {
	configuration = configuration.withDefaults()
	deps = deps.withDefaults()

	router.GET("/auth/start", handleStart(configuration, deps))
	router.GET("/auth/callback", handleCallback(configuration, deps))
	router.POST("/auth/logout", handleLogoutJSON(configuration, deps))
	router.GET("/auth/logout", handleLogoutRedirect(configuration, deps))
}

func handleStart(configuration FlowConfig, deps FlowDeps) gin.HandlerFunc {
	oauthConfig := configuration.OAuthConfig()
	return func(contextGin *gin.Context) {
		returnURL := sanitizeReturnURL(contextGin.Query("returnUrl"), configuration.DefaultReturnURL)

		stateToken, tokenErr := newStateToken()
		if tokenErr != nil {
			deps.Logger.Error("state token generation failed",
				zap.String("code", "auth.start.state_token"),
				zap.Error(tokenErr))
			redirectError(contextGin, configuration, CodeAuthInitFailed, messageAuthInitFailed)
			return
		}
		stateParam, encodeErr := encodeState(statePayload{State: stateToken, ReturnURL: returnURL})
		if encodeErr != nil {
			deps.Logger.Error("state encoding failed",
				zap.String("code", "auth.start.state_encode"),
				zap.Error(encodeErr))
			redirectError(contextGin, configuration, CodeAuthInitFailed, messageAuthInitFailed)
			return
		}

		authURL := oauthConfig.AuthCodeURL(stateParam,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
			oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		)

		writeStateCookie(contextGin, configuration, stateToken)
		deps.Metrics.Increment(MetricStart)
		contextGin.Redirect(http.StatusFound, authURL)
	}
}

func handleCallback(configuration FlowConfig, deps FlowDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		// The callback must never surface a raw failure to the browser.
		defer func() {
			if recovered := recover(); recovered != nil {
				deps.Logger.Error("callback panicked",
					zap.String("code", "auth.callback.panic"),
					zap.Any("panic", recovered))
				failCallback(contextGin, configuration, deps, CodeCallbackFailed, messageCallbackFailed)
			}
		}()

		if providerError := contextGin.Query("error"); providerError != "" {
			message := contextGin.Query("error_description")
			if message == "" {
				message = messageOAuthError
			}
			deps.Logger.Warn("provider reported an error",
				zap.String("code", "auth.callback.oauth_error"),
				zap.String("provider_error", providerError))
			failCallback(contextGin, configuration, deps, providerError, message)
			return
		}

		code := contextGin.Query("code")
		if code == "" {
			failCallback(contextGin, configuration, deps, CodeNoCode, messageNoCode)
			return
		}

		cookieToken := cookieValue(contextGin, tokencookie.StateCookie)
		payload, stateErr := verifyState(contextGin.Query("state"), cookieToken)
		if stateErr != nil {
			deps.Logger.Warn("state verification failed",
				zap.String("code", "auth.callback.state_mismatch"),
				zap.Error(stateErr))
			failCallback(contextGin, configuration, deps, CodeStateMismatch, messageStateMismatch)
			return
		}

		token, exchangeErr := deps.Exchanger.Exchange(contextGin.Request.Context(), code)
		if exchangeErr != nil || token == nil || token.AccessToken == "" {
			deps.Logger.Error("code exchange failed",
				zap.String("code", "auth.callback.exchange"),
				zap.Error(exchangeErr))
			failCallback(contextGin, configuration, deps, CodeCallbackFailed, messageCallbackFailed)
			return
		}

		if probeErr := deps.Prober.ProbeAccess(contextGin.Request.Context(), token.AccessToken); probeErr != nil {
			deps.Logger.Warn("classroom access probe failed",
				zap.String("code", "auth.callback.no_classroom_access"),
				zap.Error(probeErr))
			failCallback(contextGin, configuration, deps, CodeNoClassroomAccess, messageNoClassroomAccess)
			return
		}

		identity, identityErr := deps.Identity.FetchIdentity(contextGin.Request.Context(), token.AccessToken)
		if identityErr != nil || identity.EmailAddress == "" || !identity.VerifiedEmail {
			deps.Logger.Warn("identity fetch or verification failed",
				zap.String("code", "auth.callback.user_info"),
				zap.Error(identityErr))
			failCallback(contextGin, configuration, deps, CodeUserInfoFailed, messageUserInfoFailed)
			return
		}

		writeCredentialCookies(contextGin, configuration, token, deps.Clock.Now())
		clearCookie(contextGin, configuration, tokencookie.StateCookie)

		deps.Metrics.Increment(MetricCallbackSuccess)
		deps.Logger.Info("sign-in completed",
			zap.String("code", "auth.callback.success"),
			zap.String("user_id", identity.ID))
		contextGin.Redirect(http.StatusFound, appendQueryParam(payload.ReturnURL, "auth", "success"))
	}
}

func handleLogoutJSON(configuration FlowConfig, deps FlowDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		success := performLogout(contextGin, configuration, deps)
		if success {
			contextGin.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": false, "message": "Failed to log out"})
	}
}

func handleLogoutRedirect(configuration FlowConfig, deps FlowDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		marker := "success"
		if !performLogout(contextGin, configuration, deps) {
			marker = "error"
		}
		contextGin.Redirect(http.StatusFound, appendQueryParam(configuration.DefaultReturnURL, "logout", marker))
	}
}

// performLogout revokes the access token upstream on a best-effort basis and
// clears every auth cookie. Revocation failure is logged, never fatal.
func performLogout(contextGin *gin.Context, configuration FlowConfig, deps FlowDeps) (success bool) {
	success = true
	defer func() {
		if recovered := recover(); recovered != nil {
			deps.Logger.Error("logout panicked",
				zap.String("code", "auth.logout.panic"),
				zap.Any("panic", recovered))
			deps.Metrics.Increment(MetricLogoutFailure)
			success = false
		}
	}()
	defer clearAuthCookies(contextGin, configuration)

	credentials := tokencookie.FromRequest(contextGin.Request)
	if credentials.HasAccessToken() {
		if revokeErr := deps.Revoker.Revoke(contextGin.Request.Context(), credentials.AccessToken); revokeErr != nil {
			deps.Logger.Warn("token revocation failed",
				zap.String("code", "auth.logout.revoke"),
				zap.Error(revokeErr))
			deps.Metrics.Increment(MetricLogoutFailure)
			return true
		}
	}
	deps.Metrics.Increment(MetricLogoutSuccess)
	return true
}

func failCallback(contextGin *gin.Context, configuration FlowConfig, deps FlowDeps, code string, message string) {
	deps.Metrics.Increment(MetricCallbackFailure(code))
	redirectError(contextGin, configuration, code, message)
}

// redirectError sends the browser to the error page with a machine-readable
// code and a human message; raw errors never reach the caller.
func redirectError(contextGin *gin.Context, configuration FlowConfig, code string, message string) {
	if contextGin.IsAborted() {
		return
	}
	values := url.Values{}
	values.Set("error", code)
	values.Set("message", message)
	contextGin.Redirect(http.StatusFound, configuration.ErrorPagePath+"?"+values.Encode())
}

// sanitizeReturnURL keeps redirects on-site: only rooted paths are accepted.
func sanitizeReturnURL(raw string, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return fallback
	}
	return raw
}

func appendQueryParam(target string, key string, value string) string {
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	return target + separator + key + "=" + url.QueryEscape(value)
}

func cookieValue(contextGin *gin.Context, name string) string {
	cookie, err := contextGin.Request.Cookie(name)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}
