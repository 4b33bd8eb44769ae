package sms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmationSMS(t *testing.T) {
	got := ConfirmationSMS("AG-250115-AB12CD", map[string]any{
		"product":           "Maize",
		"quantity":          float64(100),
		"unit":              "bags",
		"total_amount":      float64(50000),
		"currency":          "KES",
		"delivery_deadline": "2025-02-01",
	})

	want := "VoicePact Contract Summary:\n" +
		"ID: AG-250115-AB12CD\n" +
		"Product: Maize (100 bags)\n" +
		"Total: KES 50,000.00, Due: 2025-02-01\n" +
		"Reply YES-AG-250115-AB12CD to confirm or NO-AG-250115-AB12CD to decline"
	assert.Equal(t, want, got)
}

func TestConfirmationSMS_SparseTerms(t *testing.T) {
	got := ConfirmationSMS("VC-250115-AB12CD", map[string]any{})

	assert.Contains(t, got, "Product: Product (Items)")
	assert.Contains(t, got, "Total: Amount TBD\n")
	assert.NotContains(t, got, "Due:")
}

func TestPaymentSMS(t *testing.T) {
	got := PaymentSMS("AG-250115-AB12CD", 50000, "KES", "received")

	want := "VoicePact Payment Received:\n" +
		"Contract: AG-250115-AB12CD\n" +
		"Amount: KES 50,000.00\n" +
		"Status: Processing\n" +
		"You will receive confirmation shortly."
	assert.Equal(t, want, got)
}

func TestDeliverySMS(t *testing.T) {
	got := DeliverySMS("AG-250115-AB12CD", "full")

	want := "VoicePact Delivery Alert:\n" +
		"Contract: AG-250115-AB12CD\n" +
		"Type: Full delivery claimed\n" +
		"Please inspect and reply:\n" +
		"ACCEPT-AG-250115-AB12CD or DISPUTE-AG-250115-AB12CD"
	assert.Equal(t, want, got)
}
