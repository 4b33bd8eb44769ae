package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicepact/voicepact/pkg/config"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Crypto: config.CryptoConfig{
			MasterKey:     "test-master-key",
			Salt:          "test-salt",
			WebhookSecret: "test-webhook-secret",
		},
	}
	srv, err := New(cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Migrate())
	return srv, srv.MountRoutes()
}

func getJSON(t *testing.T, handler http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	var body map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr.Code, body
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	var body map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr.Code, body
}

func TestServerHealthEndpoints(t *testing.T) {
	_, handler := newTestServer(t)

	code, body := getJSON(t, handler, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])

	code, body = getJSON(t, handler, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])
}

func TestServerReadiness(t *testing.T) {
	_, handler := newTestServer(t)

	code, body := getJSON(t, handler, "/readyz")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	components := body["components"].(map[string]any)
	db := components["database"].(map[string]any)
	assert.Equal(t, "up", db["status"])

	sessions := components["sessions"].(map[string]any)
	assert.Equal(t, "up", sessions["status"])

	gw := components["gateway"].(map[string]any)
	assert.Equal(t, "up", gw["status"])
	assert.Equal(t, "closed", gw["sms_circuit"])
}

func TestServerContractLifecycleAcrossRoutes(t *testing.T) {
	_, handler := newTestServer(t)

	code, body := postJSON(t, handler, "/api/v1/contracts", map[string]any{
		"transcript": "I am selling 100 bags of maize at KES 500 per bag",
		"terms":      map[string]any{"product": "Maize", "total_amount": 50000},
		"parties": []map[string]any{
			{"phone": "+254700111222", "role": "seller"},
			{"phone": "+254700333444", "role": "buyer"},
		},
	})
	require.Equal(t, http.StatusCreated, code, "body: %v", body)
	c := body["contract"].(map[string]any)
	contractID := c["id"].(string)
	require.NotEmpty(t, contractID)

	code, body = getJSON(t, handler, "/api/v1/contracts/"+contractID+"/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", body["status"])

	for _, phone := range []string{"+254700111222", "+254700333444"} {
		code, _ = postJSON(t, handler, "/api/v1/contracts/"+contractID+"/confirm", map[string]any{
			"phone":    phone,
			"decision": "confirm",
		})
		require.Equal(t, http.StatusOK, code)
	}

	code, body = getJSON(t, handler, "/api/v1/contracts/"+contractID+"/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "confirmed", body["status"])

	code, _ = postJSON(t, handler, "/api/v1/contracts/"+contractID+"/transition", map[string]any{
		"status": "active",
		"actor":  "+254700111222",
	})
	require.Equal(t, http.StatusOK, code)

	// Every step above lands in the audit trail through the server's
	// event fan.
	code, body = getJSON(t, handler, "/api/v1/audit/events?contractId="+contractID)
	require.Equal(t, http.StatusOK, code)
	events := body["events"].([]any)
	require.NotEmpty(t, events)
	actions := make(map[string]bool)
	for _, e := range events {
		actions[e.(map[string]any)["action"].(string)] = true
	}
	assert.True(t, actions["contract_created"])
	assert.True(t, actions["signature_confirm"])
	assert.True(t, actions["status_change"])
}

func TestServerVoiceExtractMounted(t *testing.T) {
	_, handler := newTestServer(t)

	code, body := postJSON(t, handler, "/api/v1/voice/extract", map[string]any{
		"transcript": "Selling 50 bags of beans at KES 300 per bag, total KES 15,000.",
	})
	require.Equal(t, http.StatusOK, code)
	terms := body["terms"].(map[string]any)
	assert.Equal(t, "Beans", terms["product"])
}

func TestServerUSSDMounted(t *testing.T) {
	_, handler := newTestServer(t)

	form := "sessionId=sess-1&phoneNumber=%2B254700111222&text="
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ussd/", bytes.NewBufferString(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "VoicePact")
}

func TestOpenDatabaseRejectsUnknownDriver(t *testing.T) {
	_, err := OpenDatabase(config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestServerCryptoConfigRequired(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
	}
	_, err := New(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%v", err), "crypto service")
}
