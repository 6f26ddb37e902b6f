package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filings-rag-be/internal/bootstrap"
	"filings-rag-be/internal/config"
	"filings-rag-be/internal/controller"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/pkg/metrics"
	"filings-rag-be/internal/service"
	"filings-rag-be/pkg/rag/ragtest"
	"filings-rag-be/pkg/session"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T, authRequired bool) *fiber.App {
	t.Helper()
	deps := ragtest.Deps(nil, ragtest.Generator{})
	reg, err := session.NewRegistry(session.DefaultConfig(), bootstrap.NewBuilder(deps))
	require.NoError(t, err)

	log := logger.NewNopLogger()
	m := metrics.New()
	svc := service.NewQueryService(reg, m, log)
	container := &bootstrap.Container{
		Logger:          log,
		Metrics:         m,
		Registry:        reg,
		QueryService:    svc,
		QueryController: controller.NewQueryController(svc, log),
	}
	cfg := &config.Config{App: config.AppConfig{
		Port:               "0",
		CorsAllowedOrigins: "*",
		JWTSecret:          testSecret,
		AuthRequired:       authRequired,
	}}
	return New(cfg, container).GetApp()
}

func call(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAskAndSessionLifecycle(t *testing.T) {
	app := newTestApp(t, false)

	code, env := call(t, app, http.MethodPost, "/api/query/v1/ask", `{"question":"What was revenue?"}`, "Authorization", bearer(t, "alice"))
	require.Equal(t, http.StatusOK, code, env.Message)
	var res session.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "answer to What was revenue?", res.Answer)
	assert.Equal(t, "alice", res.SessionInfo.UserID)
	id := res.SessionInfo.SessionID
	auth := bearer(t, "alice")

	code, _ = call(t, app, http.MethodPost, "/api/query/v1/sessions/"+id+"/feedback", `{"score":0.8}`, "Authorization", auth)
	assert.Equal(t, http.StatusOK, code)

	code, env = call(t, app, http.MethodPut, "/api/query/v1/sessions/"+id+"/preferences", `{"preferences":{"detail_level":"high"}}`, "Authorization", auth)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "detail_level")

	code, env = call(t, app, http.MethodGet, "/api/query/v1/sessions/"+id, "", "Authorization", auth)
	require.Equal(t, http.StatusOK, code)
	var sum session.Summary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, 1, sum.ConversationLength)

	code, env = call(t, app, http.MethodGet, "/api/query/v1/sessions", "", "Authorization", auth)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), id)

	code, _ = call(t, app, http.MethodDelete, "/api/query/v1/sessions/"+id, "", "Authorization", auth)
	assert.Equal(t, http.StatusOK, code)

	// Nothing left to attach feedback to.
	code, env = call(t, app, http.MethodPost, "/api/query/v1/sessions/"+id+"/feedback", `{"score":0.8}`, "Authorization", auth)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
}

func TestSessionsBelongToTheirSubject(t *testing.T) {
	app := newTestApp(t, true)
	alice, mallory := bearer(t, "alice"), bearer(t, "mallory")

	code, env := call(t, app, http.MethodPost, "/api/query/v1/ask", `{"question":"What was revenue?"}`, "Authorization", alice)
	require.Equal(t, http.StatusOK, code, env.Message)
	var res session.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	id := res.SessionInfo.SessionID

	denied := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"ask", http.MethodPost, "/api/query/v1/ask", `{"question":"q","session_id":"` + id + `"}`},
		{"summary", http.MethodGet, "/api/query/v1/sessions/" + id, ""},
		{"reset", http.MethodDelete, "/api/query/v1/sessions/" + id, ""},
		{"feedback", http.MethodPost, "/api/query/v1/sessions/" + id + "/feedback", `{"score":0.1}`},
		{"preferences", http.MethodPut, "/api/query/v1/sessions/" + id + "/preferences", `{"preferences":{"x":1}}`},
	}
	for _, tt := range denied {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call(t, app, tt.method, tt.path, tt.body, "Authorization", mallory)
			assert.Equal(t, http.StatusNotFound, code)
			assert.False(t, env.Success)
		})
	}

	code, env = call(t, app, http.MethodGet, "/api/query/v1/sessions/"+id, "", "Authorization", alice)
	require.Equal(t, http.StatusOK, code)
	var sum session.Summary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, 1, sum.ConversationLength)
	assert.NotContains(t, sum.Preferences, "x")
}

func TestErrorStatuses(t *testing.T) {
	app := newTestApp(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing question", http.MethodPost, "/api/query/v1/ask", `{}`, http.StatusBadRequest},
		{"blank question", http.MethodPost, "/api/query/v1/ask", `{"question":"   "}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/query/v1/ask", `{`, http.StatusBadRequest},
		{"invalid session id", http.MethodPost, "/api/query/v1/ask", `{"question":"q","session_id":"../etc"}`, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/query/v1/sessions/nobody_20250101", "", http.StatusNotFound},
		{"feedback out of range", http.MethodPost, "/api/query/v1/sessions/x/feedback", `{"score":1.5}`, http.StatusBadRequest},
		{"feedback missing score", http.MethodPost, "/api/query/v1/sessions/x/feedback", `{}`, http.StatusBadRequest},
		{"stream without upgrade", http.MethodGet, "/api/query/v1/stream", "", http.StatusUpgradeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
			assert.False(t, env.Success)
		})
	}
}

func TestRequiredAuth(t *testing.T) {
	app := newTestApp(t, true)

	code, _ := call(t, app, http.MethodPost, "/api/query/v1/ask", `{"question":"q"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, app, http.MethodPost, "/api/query/v1/ask", `{"question":"q"}`, "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, app, http.MethodPost, "/api/query/v1/ask", `{"question":"q"}`, "Authorization", bearer(t, "bob"))
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, false)

	code, env := call(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	_, _ = call(t, app, http.MethodPost, "/api/query/v1/ask", `{"question":"What was revenue?","user_id":"carol"}`)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rag_invocations_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "rag_node_duration_seconds")
}
