package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	webassets "github.com/mprlab/classboard/web"
	"go.uber.org/zap"
)

func TestServeEmbeddedStaticJS(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/dashboard.js", func(contextGin *gin.Context) {
		ServeEmbeddedStaticJS(contextGin, webassets.FS, "dashboard.js")
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/dashboard.js", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); !strings.Contains(contentType, "javascript") {
		t.Fatalf("unexpected content type %q", contentType)
	}

	missRouter := gin.New()
	missRouter.GET("/missing.js", func(contextGin *gin.Context) {
		ServeEmbeddedStaticJS(contextGin, webassets.FS, "missing.js")
	})
	missRecorder := httptest.NewRecorder()
	missRouter.ServeHTTP(missRecorder, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if missRecorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing asset, got %d", missRecorder.Code)
	}
}

func TestConfigureCORS(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	middleware, err := ConfigureCORS(zap.NewNop(), []string{"http://localhost:3000"})
	if err != nil {
		t.Fatalf("configure cors: %v", err)
	}
	router := gin.New()
	router.Use(middleware)
	router.GET("/resource", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	request.Header.Set("Origin", "http://localhost:3000")
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
}

func TestConfigureCORSRejectsUnsafeConfigurations(t *testing.T) {
	t.Parallel()

	if _, err := ConfigureCORS(nil, nil); err == nil {
		t.Fatalf("expected error for empty origin list")
	}
	if _, err := ConfigureCORS(nil, []string{"*"}); err == nil {
		t.Fatalf("expected error for wildcard origin")
	}
	if _, err := ConfigureCORS(nil, []string{"ftp://example.com"}); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if _, err := ConfigureCORS(nil, []string{"https://example.com/app"}); err == nil {
		t.Fatalf("expected error for origin with path")
	}
}

func TestServeBootstrapConfig(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/config.js", func(contextGin *gin.Context) {
		ServeBootstrapConfig(contextGin, BootstrapConfig{GoogleClientID: "client-123"})
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/config.js", nil)
	request.Host = "dash.example.com"
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "__CLASSBOARD_CONFIG") {
		t.Fatalf("expected config global in body: %s", body)
	}
	if !strings.Contains(body, "client-123") || !strings.Contains(body, "dash.example.com") {
		t.Fatalf("expected client id and host in body: %s", body)
	}
}
