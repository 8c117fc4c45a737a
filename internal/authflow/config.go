package authflow

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes is the fixed scope list requested from Google: course, roster,
// coursework, and submission reads for both teacher and student views, plus
// profile and email.
var Scopes = []string{
	"https://www.googleapis.com/auth/classroom.courses.readonly",
	"https://www.googleapis.com/auth/classroom.rosters.readonly",
	"https://www.googleapis.com/auth/classroom.coursework.me.readonly",
	"https://www.googleapis.com/auth/classroom.coursework.students.readonly",
	"https://www.googleapis.com/auth/classroom.student-submissions.me.readonly",
	"https://www.googleapis.com/auth/classroom.student-submissions.students.readonly",
	"https://www.googleapis.com/auth/classroom.profile.emails",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
}

// FlowConfig configures the authorization-code flow and its cookies.
type FlowConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
	CookieDomain       string
	SecureCookies      bool
	SameSiteMode       http.SameSite
	StateTTL           time.Duration
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	IDTokenTTL         time.Duration
	ErrorPagePath      string
	DefaultReturnURL   string
}

// Default TTLs and paths applied by withDefaults.
const (
	DefaultStateTTL        = 10 * time.Minute
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultIDTokenTTL      = time.Hour
	DefaultErrorPagePath   = "/auth/error"
)

func (configuration FlowConfig) withDefaults() FlowConfig {
	if configuration.StateTTL <= 0 {
		configuration.StateTTL = DefaultStateTTL
	}
	if configuration.AccessTokenTTL <= 0 {
		configuration.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if configuration.RefreshTokenTTL <= 0 {
		configuration.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if configuration.IDTokenTTL <= 0 {
		configuration.IDTokenTTL = DefaultIDTokenTTL
	}
	if configuration.ErrorPagePath == "" {
		configuration.ErrorPagePath = DefaultErrorPagePath
	}
	if configuration.DefaultReturnURL == "" {
		configuration.DefaultReturnURL = "/"
	}
	if configuration.SameSiteMode == 0 {
		configuration.SameSiteMode = http.SameSiteLaxMode
	}
	return configuration
}

// OAuthConfig builds the oauth2 configuration for Google's endpoints.
func (configuration FlowConfig) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     configuration.GoogleClientID,
		ClientSecret: configuration.GoogleClientSecret,
		RedirectURL:  configuration.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}
