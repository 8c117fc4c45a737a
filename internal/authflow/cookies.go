package authflow

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classboard/pkg/tokencookie"
	"golang.org/x/oauth2"
)

// writeStateCookie stores the CSRF token for the 10-minute callback window.
// Unlike the credential cookies this one is HTTP-only.
func writeStateCookie(contextGin *gin.Context, configuration FlowConfig, stateToken string) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     tokencookie.StateCookie,
		Value:    stateToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   int(configuration.StateTTL.Seconds()),
		Secure:   configuration.SecureCookies,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

// writeCredentialCookies persists the exchanged credential set. The access,
// refresh, and id token cookies are deliberately readable by client script;
// the dashboard frontend inspects them directly.
func writeCredentialCookies(contextGin *gin.Context, configuration FlowConfig, token *oauth2.Token, now time.Time) {
	accessMaxAge := int(configuration.AccessTokenTTL.Seconds())
	if !token.Expiry.IsZero() {
		if remaining := int(token.Expiry.Sub(now).Seconds()); remaining > 0 {
			accessMaxAge = remaining
		}
	}
	writeCredentialCookie(contextGin, configuration, tokencookie.AccessTokenCookie, token.AccessToken, accessMaxAge)

	if token.RefreshToken != "" {
		writeCredentialCookie(contextGin, configuration, tokencookie.RefreshTokenCookie, token.RefreshToken, int(configuration.RefreshTokenTTL.Seconds()))
	}
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		writeCredentialCookie(contextGin, configuration, tokencookie.IDTokenCookie, rawIDToken, int(configuration.IDTokenTTL.Seconds()))
	}
}

func writeCredentialCookie(contextGin *gin.Context, configuration FlowConfig, name string, value string, maxAge int) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   maxAge,
		Secure:   configuration.SecureCookies,
		HttpOnly: false,
		SameSite: configuration.SameSiteMode,
	})
}

// clearAuthCookies removes every cookie the flow may have written.
func clearAuthCookies(contextGin *gin.Context, configuration FlowConfig) {
	names := []string{
		tokencookie.AccessTokenCookie,
		tokencookie.RefreshTokenCookie,
		tokencookie.IDTokenCookie,
		tokencookie.LegacySessionCookie,
		tokencookie.StateCookie,
	}
	for _, name := range names {
		clearCookie(contextGin, configuration, name)
	}
}

func clearCookie(contextGin *gin.Context, configuration FlowConfig, name string) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   configuration.SecureCookies,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}
