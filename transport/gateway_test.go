package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/chatagent/metrics"
)

func newTestGateway(t *testing.T, agent *fakeAgent, cfg GatewayConfig, opts ...GatewayOption) *httptest.Server {
	t.Helper()
	g := NewHTTPGateway(agent, nil, cfg, opts...)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestGatewayHealth(t *testing.T) {
	srv := newTestGateway(t, &fakeAgent{}, GatewayConfig{APIToken: "secret"})
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestGatewayChat(t *testing.T) {
	agent := &fakeAgent{reply: func(text string) string { return strings.Repeat("y", MaxMessageLength+1) }}
	srv := newTestGateway(t, agent, GatewayConfig{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u1", "message": "hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"u1:hello"}, agent.messages())
	assert.Len(t, body["response"], MaxMessageLength+1)
	assert.Len(t, body["chunks"], 2)
}

func TestGatewayChatCommands(t *testing.T) {
	agent := &fakeAgent{}
	srv := newTestGateway(t, agent, GatewayConfig{})

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u1", "message": "/clear"}`)
	assert.Equal(t, ClearedReply, body["response"])
	assert.Empty(t, agent.messages(), "commands never reach the agent")

	_, body = doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u1", "message": "/stats"}`)
	assert.Contains(t, body["response"], "Model: claude-test")
}

func TestGatewayValidation(t *testing.T) {
	srv := newTestGateway(t, &fakeAgent{}, GatewayConfig{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "user_id and message are required", body["error"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid JSON body")

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/clear", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewayAuth(t *testing.T) {
	srv := newTestGateway(t, &fakeAgent{}, GatewayConfig{APIToken: "secret"})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/stats", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/stats", "secret", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "claude-test", body["model"])
	assert.Equal(t, 2.0, body["total_users"])
	assert.Equal(t, 7.0, body["total_messages"])
}

func TestGatewayClear(t *testing.T) {
	agent := &fakeAgent{}
	srv := newTestGateway(t, agent, GatewayConfig{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/clear", "", `{"user_id": "u9"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ClearedReply, body["response"])
	assert.Equal(t, []string{"u9"}, agent.cleared)
}

func TestGatewayRateLimit(t *testing.T) {
	srv := newTestGateway(t, &fakeAgent{}, GatewayConfig{RateLimit: 0.001, RateBurst: 1})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u1", "message": "one"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u1", "message": "two"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, RateLimitReply, body["error"])
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u2", "message": "one"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayMetrics(t *testing.T) {
	m := metrics.New()
	srv := newTestGateway(t, &fakeAgent{}, GatewayConfig{}, WithGatewayMetrics(m))

	doJSON(t, http.MethodPost, srv.URL+"/api/chat", "", `{"user_id": "u1", "message": "hi"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `chatagent_http_requests_total{method="POST",route="/api/chat",status="200"} 1`)
}
