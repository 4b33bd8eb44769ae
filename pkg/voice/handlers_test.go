package voice

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voicepact/voicepact/pkg/contract"
	vcrypto "github.com/voicepact/voicepact/pkg/crypto"
)

func newTestService(t *testing.T, notifier func(string)) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	svc, err := vcrypto.NewService(&vcrypto.Config{
		MasterKey:     "test-master-key",
		Salt:          "test-salt",
		WebhookSecret: "test-webhook-secret",
	})
	require.NoError(t, err)

	contracts := contract.NewStore(db, svc)
	require.NoError(t, contracts.AutoMigrate())
	return NewService(contracts, contract.NewRenderer(), notifier, nil)
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

func TestHandlers_Extract(t *testing.T) {
	router := NewRouter(newTestService(t, nil))

	rec := doJSON(t, router, http.MethodPost, "/extract", map[string]string{
		"transcript": maizeTranscript,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Terms           Terms   `json:"terms"`
		ConfidenceScore float64 `json:"confidenceScore"`
		WordCount       int     `json:"wordCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Maize", got.Terms.Product)
	assert.InDelta(t, 1.0, got.ConfidenceScore, 0.01)
	assert.Greater(t, got.WordCount, 20)
}

func TestHandlers_ExtractRequiresTranscript(t *testing.T) {
	router := NewRouter(newTestService(t, nil))
	rec := doJSON(t, router, http.MethodPost, "/extract", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_ProcessMintsContract(t *testing.T) {
	var notified string
	svc := newTestService(t, func(id string) { notified = id })
	router := NewRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/process", map[string]any{
		"transcript": maizeTranscript,
		"parties": []map[string]string{
			{"phone": "+254700111222", "role": "seller"},
			{"phone": "+254700333444", "role": "buyer"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Contract contract.Contract `json:"contract"`
		Summary  string            `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Regexp(t, `^AG-\d{6}-[0-9A-F]{6}$`, created.Contract.ID)
	assert.Contains(t, created.Summary, "Maize")
	assert.Equal(t, created.Contract.ID, notified)

	// Stored terms came from extraction, not from the caller.
	stored, err := svc.contracts.Get(created.Contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maize", stored.Terms["product"])
}

func TestHandlers_ProcessRejectsSingleParty(t *testing.T) {
	router := NewRouter(newTestService(t, nil))

	rec := doJSON(t, router, http.MethodPost, "/process", map[string]any{
		"transcript": maizeTranscript,
		"parties": []map[string]string{
			{"phone": "+254700111222", "role": "seller"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
