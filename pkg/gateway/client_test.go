package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = serverURL
	cfg.Username = "sandbox"
	cfg.APIKey = "test-key"
	cfg.SenderID = "VOICEPACT"
	cfg.HTTPTimeout = 2 * time.Second
	return NewClient(cfg, nil)
}

func TestClient_SendSMS(t *testing.T) {
	var gotForm struct {
		to, message, from, apiKey string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/version1/messaging", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm.to = r.PostFormValue("to")
		gotForm.message = r.PostFormValue("message")
		gotForm.from = r.PostFormValue("from")
		gotForm.apiKey = r.Header.Get("apiKey")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Recipients":[
			{"number":"+254700111222","messageId":"ATXid_1","status":"Success","cost":"KES 0.80"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.SendSMS(context.Background(), "hello", []string{"0700111222"})
	require.NoError(t, err)

	assert.Equal(t, "ATXid_1", result.MessageID)
	assert.Equal(t, "Success", result.Status)
	assert.Equal(t, []string{"+254700111222"}, result.Recipients)
	assert.Equal(t, "+254700111222", gotForm.to)
	assert.Equal(t, "hello", gotForm.message)
	assert.Equal(t, "VOICEPACT", gotForm.from)
	assert.Equal(t, "test-key", gotForm.apiKey)
}

func TestClient_SendSMS_Validation(t *testing.T) {
	client := newTestClient("http://gateway.invalid")

	_, err := client.SendSMS(context.Background(), "hello", nil)
	assert.Error(t, err)

	_, err = client.SendSMS(context.Background(), "", []string{"+254700111222"})
	assert.Error(t, err)
}

func TestClient_SendSMS_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Recipients":[{"messageId":"ATXid_2","status":"Success"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.SendSMS(context.Background(), "hello", []string{"+254700111222"})
	require.NoError(t, err)
	assert.Equal(t, "ATXid_2", result.MessageID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SendSMS_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SendSMS(context.Background(), "hello", []string{"+254700111222"})

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusUnauthorized, gerr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_MobileCheckout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mobile/checkout/request", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "VoicePact", r.PostFormValue("productName"))
		assert.Equal(t, "10000.00", r.PostFormValue("amount"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactionId":"ATPid_1","status":"PendingConfirmation","description":"Waiting"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.MobileCheckout(context.Background(), "+254700111222", 10000, "KES")
	require.NoError(t, err)
	assert.Equal(t, "ATPid_1", result.TransactionID)
	assert.Equal(t, "PendingConfirmation", result.Status)
}

func TestClient_MobileTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mobile/b2c/request", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entries":[{"transactionId":"ATPid_2","status":"Queued"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.MobileTransfer(context.Background(), "+254700111222", 40000, "KES")
	require.NoError(t, err)
	assert.Equal(t, "ATPid_2", result.TransactionID)
	assert.Equal(t, "Queued", result.Status)
}

func TestClient_Health(t *testing.T) {
	client := newTestClient("http://gateway.invalid")

	health := client.Health()
	assert.Equal(t, "closed", health["sms_circuit"])
	assert.Equal(t, "closed", health["voice_circuit"])
	assert.Equal(t, "closed", health["payment_circuit"])
}

func TestClient_FormatPhoneNumber(t *testing.T) {
	client := newTestClient("http://gateway.invalid")

	assert.Equal(t, "+254700111222", client.FormatPhoneNumber("0700111222"))
	assert.Equal(t, "+254700111222", client.FormatPhoneNumber("+254700111222"))
	assert.Equal(t, "+254700111222", client.FormatPhoneNumber("254700111222"))
	assert.Equal(t, "+254700111222", client.FormatPhoneNumber("700111222"))
}

func TestClient_ValidatePhoneNumber(t *testing.T) {
	client := newTestClient("http://gateway.invalid")

	assert.True(t, client.ValidatePhoneNumber("+254700111222"))
	assert.False(t, client.ValidatePhoneNumber("0700111222"))
	assert.False(t, client.ValidatePhoneNumber("+12345"))
}
