package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

const testSecret = "test-secret"

func TestAuth(t *testing.T) {
	t.Parallel()

	token, err := IssueToken(testSecret, "user-1", "acme", []string{"chat"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	noTenant, err := IssueToken(testSecret, "user-2", "", nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	expired, err := IssueToken(testSecret, "user-1", "acme", nil, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	forged, err := IssueToken("other-secret", "user-1", "acme", nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	longTenant, err := IssueToken(testSecret, "user-1", strings.Repeat("t", 65), nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantTenant string
	}{
		{name: "bearer header", header: "Bearer " + token, wantStatus: http.StatusOK, wantTenant: "acme"},
		{name: "query token", query: "?access_token=" + token, wantStatus: http.StatusOK, wantTenant: "acme"},
		{name: "default tenant", header: "Bearer " + noTenant, wantStatus: http.StatusOK, wantTenant: DefaultTenant},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + forged, wantStatus: http.StatusUnauthorized},
		{name: "tenant too long", header: "Bearer " + longTenant, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var gotTenant string
			h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTenant = GetTenantID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotTenant != tt.wantTenant {
				t.Errorf("tenant = %q, want %q", gotTenant, tt.wantTenant)
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	t.Parallel()
	token, _ := IssueToken(testSecret, "user-1", "acme", []string{"leads:read"}, time.Hour)

	h := Auth(testSecret)(RequireScope("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestLogging_KeepsFlusher(t *testing.T) {
	t.Parallel()
	var flushable bool
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		if GetCorrelationID(r.Context()) != "abc" {
			t.Errorf("correlation id = %q, want abc", GetCorrelationID(r.Context()))
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !flushable {
		t.Error("wrapped writer does not implement http.Flusher")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != "abc" {
		t.Errorf("X-Correlation-ID = %q, want abc", got)
	}
}

func TestLogging_RecordsCallerIdentity(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	token, _ := IssueToken(testSecret, "user-1", "acme", nil, time.Hour)

	h := Logging(&logger.Logger{Logger: zap.New(core)})(
		Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Correlation-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("request log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant_id"] != "acme" || fields["user_id"] != "user-1" || fields["correlation_id"] != "abc" {
		t.Errorf("log fields = %v", fields)
	}
}

func TestValidateTurnContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"ok", "I run a cafe", false},
		{"blank", "   ", true},
		{"too long", strings.Repeat("a", MaxTurnLength+1), true},
		{"bad utf8", string([]byte{0xff, 0xfe}), true},
	}
	for _, tt := range tests {
		if err := ValidateTurnContent(tt.content); (err != nil) != tt.wantErr {
			t.Errorf("ValidateTurnContent(%s) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateMetadata(t *testing.T) {
	t.Parallel()
	if err := ValidateMetadata(map[string]string{"channel": "web"}); err != nil {
		t.Errorf("ValidateMetadata() error = %v", err)
	}
	if err := ValidateMetadata(map[string]string{"k": strings.Repeat("v", 600)}); err == nil {
		t.Error("ValidateMetadata() accepted an oversized value")
	}
}
