package contract

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *Store) {
	t.Helper()
	store := newTestStore(t)
	return NewRouter(store, NewRenderer()), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_CreateAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/", maizeRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Contract     Contract `json:"contract"`
		Summary      string   `json:"summary"`
		Completeness float64  `json:"completeness"`
		Warnings     []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Regexp(t, `^AG-\d{6}-[0-9A-F]{6}$`, created.Contract.ID)
	assert.Contains(t, created.Summary, "Maize")
	assert.NotEmpty(t, created.Warnings)

	rec = doJSON(t, router, http.MethodGet, "/"+created.Contract.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Contract
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.Contract.ID, got.ID)
	assert.Len(t, got.Parties, 2)
}

func TestHandlers_CreateValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	req := maizeRequest()
	req.Parties = req.Parties[:1]

	rec := doJSON(t, router, http.MethodPost, "/", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 2 parties")
}

func TestHandlers_GetUnknownContract(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/AG-250115-AB12CD", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_ConfirmFlow(t *testing.T) {
	router, store := newTestRouter(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	rec := doJSON(t, router, http.MethodPost, "/"+id+"/confirm",
		map[string]string{"phone": "+254700111222"})
	require.Equal(t, http.StatusOK, rec.Code)

	var first SignatureResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.QuorumReached)

	rec = doJSON(t, router, http.MethodPost, "/"+id+"/confirm",
		map[string]string{"phone": "+254700333444"})
	require.Equal(t, http.StatusOK, rec.Code)

	var second SignatureResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.QuorumReached)

	rec = doJSON(t, router, http.MethodGet, "/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusConfirmed, report.Status)
	assert.Equal(t, 2, report.Signed)
}

func TestHandlers_ConfirmRequiresPhone(t *testing.T) {
	router, store := newTestRouter(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/"+result.Contract.ID+"/confirm",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_ConfirmUnknownPhone(t *testing.T) {
	router, store := newTestRouter(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/"+result.Contract.ID+"/confirm",
		map[string]string{"phone": "+254799999999"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_TransitionConflict(t *testing.T) {
	router, store := newTestRouter(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/"+result.Contract.ID+"/transition",
		map[string]string{"status": "completed", "actor": "operator"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var tErr TransitionError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tErr))
	assert.Equal(t, "CONTRACT_INVALID_TRANSITION", tErr.Code)
}

func TestHandlers_Verify(t *testing.T) {
	router, store := newTestRouter(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	rec := doJSON(t, router, http.MethodGet, "/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)

	require.NoError(t, store.db.Model(&Record{}).Where("id = ?", id).
		Update("transcript", "tampered").Error)

	rec = doJSON(t, router, http.MethodGet, "/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":false`)
}

func TestHandlers_Text(t *testing.T) {
	router, store := newTestRouter(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/"+result.Contract.ID+"/text", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["text"], "AGRICULTURAL SUPPLY CONTRACT")
	assert.Contains(t, body["summary"], "Maize")
}

func TestHandlers_List(t *testing.T) {
	router, store := newTestRouter(t)

	_, err := store.Create(maizeRequest())
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/?phone=%2B254700111222", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Contracts []Contract `json:"contracts"`
		Size      int        `json:"size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Size)
}

func TestHandlers_Delete(t *testing.T) {
	router, store := newTestRouter(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	rec := doJSON(t, router, http.MethodDelete, "/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
