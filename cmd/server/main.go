package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classboard/internal/authflow"
	"github.com/mprlab/classboard/internal/session"
	"github.com/mprlab/classboard/internal/web"
	"github.com/mprlab/classboard/pkg/tokencookie"
	webassets "github.com/mprlab/classboard/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "classboard",
		Short:   "Google Classroom dashboard backend: OAuth sign-in, read-only Classroom mirrors, and aggregated views",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth client secret")
	rootCmd.Flags().String("redirect_url", "", "OAuth redirect URL registered for this deployment")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().Bool("secure_cookies", true, "Mark auth cookies Secure (disable only for local HTTP)")
	rootCmd.Flags().String("default_return_url", "/", "Where the browser lands after sign-in when no returnUrl is given")
	rootCmd.Flags().Duration("state_ttl", authflow.DefaultStateTTL, "CSRF state cookie lifetime")
	rootCmd.Flags().Duration("access_token_ttl", authflow.DefaultAccessTokenTTL, "Fallback access-token cookie lifetime")
	rootCmd.Flags().Duration("refresh_token_ttl", authflow.DefaultRefreshTokenTTL, "Refresh-token cookie lifetime")
	rootCmd.Flags().Duration("id_token_ttl", authflow.DefaultIDTokenTTL, "Id-token cookie lifetime")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin dashboard frontends")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")

	for _, name := range []string{
		"listen_addr", "google_client_id", "google_client_secret", "redirect_url",
		"cookie_domain", "secure_cookies", "default_return_url", "state_ttl",
		"access_token_ttl", "refresh_token_ttl", "id_token_ttl",
		"enable_cors", "cors_allowed_origins",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingGoogleClientID     = "config.missing_google_client_id"
	configCodeMissingGoogleClientSecret = "config.missing_google_client_secret"
	configCodeMissingRedirectURL        = "config.missing_redirect_url"
	configCodeInvalidTTL                = "config.invalid_ttl"
	configCodeUninitializedServerConf   = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	flowConfig, loadErr := LoadFlowConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, flowConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadFlowConfig validates the viper-backed settings into a FlowConfig.
func LoadFlowConfig() (authflow.FlowConfig, error) {
	googleClientID := viper.GetString("google_client_id")
	if googleClientID == "" {
		return authflow.FlowConfig{}, configError(configCodeMissingGoogleClientID, "google_client_id must be provided")
	}

	googleClientSecret := viper.GetString("google_client_secret")
	if googleClientSecret == "" {
		return authflow.FlowConfig{}, configError(configCodeMissingGoogleClientSecret, "google_client_secret must be provided")
	}

	redirectURL := viper.GetString("redirect_url")
	if redirectURL == "" {
		return authflow.FlowConfig{}, configError(configCodeMissingRedirectURL, "redirect_url must be provided")
	}

	for _, ttlFlag := range []string{"state_ttl", "access_token_ttl", "refresh_token_ttl", "id_token_ttl"} {
		if viper.GetDuration(ttlFlag) <= 0 {
			return authflow.FlowConfig{}, configError(configCodeInvalidTTL, ttlFlag+" must be greater than zero")
		}
	}

	sameSiteMode := http.SameSiteLaxMode
	if viper.GetBool("enable_cors") {
		sameSiteMode = http.SameSiteNoneMode
	}

	return authflow.FlowConfig{
		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		RedirectURL:        redirectURL,
		CookieDomain:       viper.GetString("cookie_domain"),
		SecureCookies:      viper.GetBool("secure_cookies"),
		SameSiteMode:       sameSiteMode,
		StateTTL:           viper.GetDuration("state_ttl"),
		AccessTokenTTL:     viper.GetDuration("access_token_ttl"),
		RefreshTokenTTL:    viper.GetDuration("refresh_token_ttl"),
		IDTokenTTL:         viper.GetDuration("id_token_ttl"),
		DefaultReturnURL:   viper.GetString("default_return_url"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	flowConfig, ok := contextValue.(authflow.FlowConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/static/dashboard.js", func(contextGin *gin.Context) {
		web.ServeEmbeddedStaticJS(contextGin, webassets.FS, "dashboard.js")
	})
	router.GET("/static/config.js", func(contextGin *gin.Context) {
		web.ServeBootstrapConfig(contextGin, web.BootstrapConfig{
			GoogleClientID: flowConfig.GoogleClientID,
		})
	})
	router.GET("/auth/error", handleAuthErrorPage)

	metricsRecorder := authflow.NewCounterMetrics()
	flowDeps := authflow.NewFlowDeps(flowConfig)
	flowDeps.Logger = logger
	flowDeps.Metrics = metricsRecorder
	authflow.MountAuthRoutes(router, flowConfig, flowDeps)

	fetcher := session.NewClassroomFetcher(logger)
	resolver := session.NewResolver(fetcher, fetcher, session.WithLogger(logger))
	web.MountAPIRoutes(router, web.APIDeps{
		Resolver: resolver,
		Logger:   logger,
		Clock:    tokencookie.SystemClock(),
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// handleAuthErrorPage is the landing target of failed sign-ins. It echoes
// the machine-readable code and human message the flow placed in the query.
func handleAuthErrorPage(contextGin *gin.Context) {
	code := contextGin.Query("error")
	if code == "" {
		code = "unknown_error"
	}
	message := contextGin.Query("message")
	if message == "" {
		message = "Authentication failed. Please try again."
	}
	contextGin.JSON(http.StatusOK, gin.H{"success": false, "error": code, "message": message})
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
