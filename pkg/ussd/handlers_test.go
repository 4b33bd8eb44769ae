package ussd

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postCallback(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallbackHandler(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.engine)

	rec := postCallback(t, router, url.Values{
		"sessionId":   {"ATUid_1"},
		"serviceCode": {"*384*96#"},
		"phoneNumber": {"+254700111222"},
		"text":        {""},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "CON Welcome to VoicePact"))
}

func TestCallbackHandler_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.engine)

	rec := postCallback(t, router, url.Values{"text": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
