package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agrimesh-platform/edge-gateway/pkg/errors"
)

type fieldRequest struct {
	FieldID string `json:"fieldId" binding:"required,field_id"`
	Label   string `json:"label" binding:"omitempty,safe_string"`
}

func bindTestRouter(t *testing.T, captured **errors.AppError) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	InitValidator()

	router := gin.New()
	router.POST("/fields", func(c *gin.Context) {
		var body fieldRequest
		if appErr := BindAndValidate(c, &body); appErr != nil {
			*captured = appErr
			AbortWithAppError(c, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"fieldId": body.FieldID})
	})
	return router
}

func TestBindAndValidateValid(t *testing.T) {
	var captured *errors.AppError
	router := bindTestRouter(t, &captured)

	req := httptest.NewRequest(http.MethodPost, "/fields", strings.NewReader(`{"fieldId":"FLD-001","label":"North paddock"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d (err: %+v)", w.Code, captured)
	}
}

func TestBindAndValidateFieldIDFormat(t *testing.T) {
	var captured *errors.AppError
	router := bindTestRouter(t, &captured)

	req := httptest.NewRequest(http.MethodPost, "/fields", strings.NewReader(`{"fieldId":"PLOT-9"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if captured == nil {
		t.Fatal("Expected a captured validation error")
	}
	if captured.Code != errors.CodeValidationError {
		t.Errorf("Expected code %q, got %q", errors.CodeValidationError, captured.Code)
	}
	msg, ok := captured.Details["fieldId"]
	if !ok {
		t.Fatalf("Expected a fieldId detail, got %v", captured.Details)
	}
	if !strings.Contains(msg, "field ID") {
		t.Errorf("Expected field ID format hint, got %q", msg)
	}
}

func TestBindAndValidateMissingRequired(t *testing.T) {
	var captured *errors.AppError
	router := bindTestRouter(t, &captured)

	req := httptest.NewRequest(http.MethodPost, "/fields", strings.NewReader(`{"label":"bare"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if msg := captured.Details["fieldId"]; msg != "is required" {
		t.Errorf("Expected required message for fieldId, got %q", msg)
	}
}

func TestBindAndValidateMalformedJSON(t *testing.T) {
	var captured *errors.AppError
	router := bindTestRouter(t, &captured)

	req := httptest.NewRequest(http.MethodPost, "/fields", strings.NewReader(`{"fieldId":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if captured.Code != errors.CodeBadRequest {
		t.Errorf("Expected code %q, got %q", errors.CodeBadRequest, captured.Code)
	}
}

func TestValidateStruct(t *testing.T) {
	InitValidator()

	type farmQuery struct {
		FarmID string `json:"farmId" validate:"required,farm_id"`
	}

	if appErr := ValidateStruct(&farmQuery{FarmID: "FARM-0042"}); appErr != nil {
		t.Errorf("Expected valid farm ID to pass, got %+v", appErr)
	}

	appErr := ValidateStruct(&farmQuery{FarmID: "42"})
	if appErr == nil {
		t.Fatal("Expected a validation error")
	}
	if _, ok := appErr.Details["farmId"]; !ok {
		t.Errorf("Expected farmId detail keyed by JSON tag, got %v", appErr.Details)
	}
}

func TestCallerKeyValidator(t *testing.T) {
	InitValidator()

	type callerQuery struct {
		CallerKey string `json:"callerKey" validate:"required,caller_key"`
	}

	// API keys and client IPs are the two forms the middleware derives
	for _, key := range []string{"api-key-1234", "10.40.2.17", "2001:db8::1"} {
		if appErr := ValidateStruct(&callerQuery{CallerKey: key}); appErr != nil {
			t.Errorf("Expected caller key %q to pass, got %+v", key, appErr)
		}
	}

	if appErr := ValidateStruct(&callerQuery{CallerKey: "key with spaces"}); appErr == nil {
		t.Error("Expected a validation error for a caller key with spaces")
	}
}

func TestValidatePathParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	InitValidator()

	router := gin.New()
	router.GET("/fields/:fieldId", func(c *gin.Context) {
		if appErr := ValidatePathParam(c, "fieldId", "field_id"); appErr != nil {
			AbortWithAppError(c, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"fieldId": c.Param("fieldId")})
	})

	req := httptest.NewRequest(http.MethodGet, "/fields/FLD-001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for valid field ID, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/fields/bogus", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid field ID, got %d", w.Code)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"null bytes removed", "ab\x00c", "abc"},
		{"whitespace trimmed", "  hello  ", "hello"},
		{"clean passthrough", "FLD-001", "FLD-001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeString(tt.input); got != tt.want {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInputSanitizerCleansQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	router := gin.New()
	router.Use(InputSanitizer())
	router.GET("/test", func(c *gin.Context) {
		seen = c.Query("q")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test?q=%00abc%20", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if seen != "abc" {
		t.Errorf("Expected sanitized query value abc, got %q", seen)
	}
}

func TestContentTypeRequiresJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ContentType())
	router.POST("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("plain text"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status 415 for text/plain, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for application/json, got %d", w.Code)
	}

	// Empty bodies pass without a content type
	req = httptest.NewRequest(http.MethodPost, "/test", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for empty body, got %d", w.Code)
	}
}
