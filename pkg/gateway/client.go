package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Error reports a failed gateway call. Retryable errors (timeouts, 5xx,
// 429) are retried before being surfaced.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Op, e.Message)
}

func (e *Error) retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// SMSResult is the outcome of an SMS dispatch.
type SMSResult struct {
	MessageID  string   `json:"messageId"`
	Recipients []string `json:"recipients"`
	Status     string   `json:"status"`
	Cost       string   `json:"cost,omitempty"`
}

// PaymentResult is the outcome of a mobile-money request. The final state
// arrives later on the payment webhook; Status here is only the initial
// gateway acknowledgement.
type PaymentResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Description   string `json:"description,omitempty"`
}

// VoiceResult is the outcome of an outbound call request.
type VoiceResult struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// Client talks to the SMS/voice/mobile-money gateway. Each upstream
// service has its own circuit breaker so an SMS outage does not block
// payments.
type Client struct {
	cfg  *Config
	http *http.Client
	log  *zap.Logger

	smsBreaker     *CircuitBreaker
	voiceBreaker   *CircuitBreaker
	paymentBreaker *CircuitBreaker
}

// NewClient creates a gateway client.
func NewClient(cfg *Config, log *zap.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:            cfg,
		http:           &http.Client{Timeout: cfg.HTTPTimeout},
		log:            log,
		smsBreaker:     NewCircuitBreaker(),
		voiceBreaker:   NewCircuitBreaker(),
		paymentBreaker: NewCircuitBreaker(),
	}
}

// SendSMS delivers one message to the recipients. Phone numbers are
// normalized to international form before dispatch.
func (c *Client) SendSMS(ctx context.Context, message string, recipients []string) (*SMSResult, error) {
	if len(recipients) == 0 {
		return nil, &Error{Op: "send sms", Message: "no recipients"}
	}
	if message == "" {
		return nil, &Error{Op: "send sms", Message: "empty message"}
	}

	normalized := make([]string, len(recipients))
	for i, r := range recipients {
		normalized[i] = c.FormatPhoneNumber(r)
	}

	form := url.Values{
		"username": {c.cfg.Username},
		"to":       {strings.Join(normalized, ",")},
		"message":  {message},
	}
	if c.cfg.SenderID != "" {
		form.Set("from", c.cfg.SenderID)
	}

	var payload struct {
		SMSMessageData struct {
			Recipients []struct {
				Number    string `json:"number"`
				MessageID string `json:"messageId"`
				Status    string `json:"status"`
				Cost      string `json:"cost"`
			} `json:"Recipients"`
		} `json:"SMSMessageData"`
	}
	err := c.smsBreaker.Call(func() error {
		return c.postForm(ctx, "send sms", "/version1/messaging", form, &payload)
	})
	if err != nil {
		return nil, err
	}

	result := &SMSResult{Recipients: normalized, Status: "sent"}
	if len(payload.SMSMessageData.Recipients) > 0 {
		first := payload.SMSMessageData.Recipients[0]
		result.MessageID = first.MessageID
		result.Cost = first.Cost
		if first.Status != "" {
			result.Status = first.Status
		}
	}
	c.log.Info("sms dispatched",
		zap.Int("recipients", len(normalized)),
		zap.String("message_id", result.MessageID))
	return result, nil
}

// MakeVoiceCall places an outbound call to the recipients.
func (c *Client) MakeVoiceCall(ctx context.Context, recipients []string, from string) (*VoiceResult, error) {
	if len(recipients) == 0 {
		return nil, &Error{Op: "voice call", Message: "no recipients"}
	}
	if from == "" {
		from = c.cfg.VoiceNumber
	}

	normalized := make([]string, len(recipients))
	for i, r := range recipients {
		normalized[i] = c.FormatPhoneNumber(r)
	}

	form := url.Values{
		"username": {c.cfg.Username},
		"from":     {from},
		"to":       {strings.Join(normalized, ",")},
	}

	var payload struct {
		Entries []struct {
			SessionID string `json:"sessionId"`
			Status    string `json:"status"`
		} `json:"entries"`
	}
	err := c.voiceBreaker.Call(func() error {
		return c.postForm(ctx, "voice call", "/call", form, &payload)
	})
	if err != nil {
		return nil, err
	}

	result := &VoiceResult{Status: "queued"}
	if len(payload.Entries) > 0 {
		result.SessionID = payload.Entries[0].SessionID
		result.Status = payload.Entries[0].Status
	}
	return result, nil
}

// MobileCheckout initiates a customer-to-business charge. The customer
// approves on their handset; the outcome arrives on the payment webhook.
func (c *Client) MobileCheckout(ctx context.Context, phoneNumber string, amount float64, currency string) (*PaymentResult, error) {
	if currency == "" {
		currency = "KES"
	}
	form := url.Values{
		"username":     {c.cfg.Username},
		"productName":  {c.cfg.PaymentProduct},
		"phoneNumber":  {c.FormatPhoneNumber(phoneNumber)},
		"currencyCode": {currency},
		"amount":       {fmt.Sprintf("%.2f", amount)},
	}

	var payload struct {
		TransactionID string `json:"transactionId"`
		Status        string `json:"status"`
		Description   string `json:"description"`
	}
	err := c.paymentBreaker.Call(func() error {
		return c.postForm(ctx, "mobile checkout", "/mobile/checkout/request", form, &payload)
	})
	if err != nil {
		return nil, err
	}
	return &PaymentResult{
		TransactionID: payload.TransactionID,
		Status:        payload.Status,
		Description:   payload.Description,
	}, nil
}

// MobileTransfer initiates a business-to-customer disbursement, used for
// escrow release and refunds.
func (c *Client) MobileTransfer(ctx context.Context, phoneNumber string, amount float64, currency string) (*PaymentResult, error) {
	if currency == "" {
		currency = "KES"
	}
	form := url.Values{
		"username":     {c.cfg.Username},
		"productName":  {c.cfg.PaymentProduct},
		"phoneNumber":  {c.FormatPhoneNumber(phoneNumber)},
		"currencyCode": {currency},
		"amount":       {fmt.Sprintf("%.2f", amount)},
	}

	var payload struct {
		Entries []struct {
			TransactionID string `json:"transactionId"`
			Status        string `json:"status"`
		} `json:"entries"`
	}
	err := c.paymentBreaker.Call(func() error {
		return c.postForm(ctx, "mobile transfer", "/mobile/b2c/request", form, &payload)
	})
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{Status: "queued"}
	if len(payload.Entries) > 0 {
		result.TransactionID = payload.Entries[0].TransactionID
		result.Status = payload.Entries[0].Status
	}
	return result, nil
}

// Health reports the per-service breaker states. The readiness endpoint
// surfaces these without failing the whole check.
func (c *Client) Health() map[string]string {
	return map[string]string{
		"sms_circuit":     string(c.smsBreaker.State()),
		"voice_circuit":   string(c.voiceBreaker.State()),
		"payment_circuit": string(c.paymentBreaker.State()),
	}
}

// postForm issues one form-encoded request with retry on transient
// failures. Permanent (4xx) errors are returned immediately.
func (c *Client) postForm(ctx context.Context, op, path string, form url.Values, out any) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(&Error{Op: op, Message: err.Error()})
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("apiKey", c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return &Error{Op: op, Message: err.Error()}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &Error{Op: op, Message: err.Error()}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			gerr := &Error{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
			if !gerr.retryable() {
				return backoff.Permanent(gerr)
			}
			return gerr
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return backoff.Permanent(&Error{Op: op, Message: "decode response: " + err.Error()})
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newRetryPolicy(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		c.log.Warn("gateway request failed", zap.String("op", op), zap.Error(err))
		return err
	}
	return nil
}

func newRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 45 * time.Second
	return policy
}

// ValidatePhoneNumber checks for international form with 10 to 15 digits.
func (c *Client) ValidatePhoneNumber(phoneNumber string) bool {
	if !strings.HasPrefix(phoneNumber, "+") {
		return false
	}
	digits := digitsOnly(phoneNumber)
	return len(digits) >= 10 && len(digits) <= 15
}

// FormatPhoneNumber normalizes a local or international number to
// +<country><subscriber> form.
func (c *Client) FormatPhoneNumber(phoneNumber string) string {
	digits := digitsOnly(phoneNumber)
	switch {
	case strings.HasPrefix(digits, c.cfg.CountryCode):
		return "+" + digits
	case strings.HasPrefix(digits, "0"):
		return "+" + c.cfg.CountryCode + digits[1:]
	default:
		return "+" + c.cfg.CountryCode + digits
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
