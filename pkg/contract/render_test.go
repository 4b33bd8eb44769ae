package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixtureContract() *Contract {
	return &Contract{
		ID:     "AG-250115-AB12CD",
		Type:   TypeAgriculturalSupply,
		Status: StatusPending,
		Terms: map[string]any{
			"product":           "Maize",
			"quantity":          float64(100),
			"unit":              "bags",
			"unit_price":        float64(500),
			"total_amount":      float64(50000),
			"currency":          "KES",
			"delivery_location": "Nakuru depot",
			"delivery_deadline": "2025-02-01",
			"upfront_payment":   float64(10000),
		},
		ContractHash: "deadbeef",
		Currency:     "KES",
		Parties: []Party{
			{PhoneNumber: "+254700111222", Role: RoleSeller, Name: "Wanjiku"},
			{PhoneNumber: "+254700333444", Role: RoleBuyer, Name: "Omondi"},
		},
		CreatedAt: "2025-01-15T10:30:00Z",
		ExpiresAt: "2025-01-17T10:30:00Z",
	}
}

func TestRender_Agricultural(t *testing.T) {
	text := NewRenderer().Render(fixtureContract())

	assert.True(t, strings.HasPrefix(text, "AGRICULTURAL SUPPLY CONTRACT"))
	assert.Contains(t, text, "Contract ID: AG-250115-AB12CD")
	assert.Contains(t, text, "Date: January 15, 2025")
	assert.Contains(t, text, "Seller: Wanjiku")
	assert.Contains(t, text, "Buyer: Omondi")
	assert.Contains(t, text, "Quantity: 100 bags")
	assert.Contains(t, text, "Unit Price: KES 500.00 per bag")
	assert.Contains(t, text, "Total Value: KES 50,000.00")
	assert.Contains(t, text, "Upfront Payment: KES 10,000.00")
	assert.Contains(t, text, "Balance: KES 40,000.00")
	assert.Contains(t, text, "Location: Nakuru depot")
	assert.Contains(t, text, "Hash: deadbeef")
}

func TestRender_Service(t *testing.T) {
	c := fixtureContract()
	c.Type = TypeServiceAgreement
	c.Terms["product"] = "Borehole drilling"

	text := NewRenderer().Render(c)
	assert.True(t, strings.HasPrefix(text, "SERVICE AGREEMENT CONTRACT"))
	assert.Contains(t, text, "Service Provider: Wanjiku")
	assert.Contains(t, text, "Client: Omondi")
	assert.Contains(t, text, "Service Description: Borehole drilling")
}

func TestRender_Goods(t *testing.T) {
	c := fixtureContract()
	c.Type = TypeGoodsPurchase

	text := NewRenderer().Render(c)
	assert.True(t, strings.HasPrefix(text, "GOODS PURCHASE CONTRACT"))
	assert.Contains(t, text, "Total Value: KES 50,000.00")
}

func TestRender_UnknownTypeUsesAgriculturalTemplate(t *testing.T) {
	c := fixtureContract()
	c.Type = TypeOther

	text := NewRenderer().Render(c)
	assert.True(t, strings.HasPrefix(text, "AGRICULTURAL SUPPLY CONTRACT"))
}

func TestRender_MissingTermsUsePlaceholders(t *testing.T) {
	c := fixtureContract()
	c.Terms = map[string]any{}

	text := NewRenderer().Render(c)
	assert.Contains(t, text, "Product: Agricultural Product")
	assert.Contains(t, text, "Location: To be determined")
	assert.Contains(t, text, "Deadline: To be agreed")
	assert.Contains(t, text, "Quality: As per industry standards")
}

func TestSummary(t *testing.T) {
	got := NewRenderer().Summary(fixtureContract())

	want := "Contract AG-250115-AB12CD: Maize (100 bags) - KES 50,000.00, Due: 2025-02-01. " +
		"Between +254700111222 and +254700333444."
	assert.Equal(t, want, got)
}

func TestCompleteness(t *testing.T) {
	assert.Equal(t, 1.0, Completeness(map[string]any{
		"product": "Maize", "quantity": float64(100), "unit": "bags",
		"total_amount": float64(50000), "currency": "KES",
		"delivery_location": "Nakuru", "delivery_deadline": "2025-02-01",
	}))
	assert.Equal(t, 0.0, Completeness(map[string]any{}))
	assert.InDelta(t, 2.0/7.0, Completeness(map[string]any{
		"product": "Maize", "currency": "KES",
	}), 1e-9)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.00", Money(0))
	assert.Equal(t, "500.00", Money(500))
	assert.Equal(t, "50,000.00", Money(50000))
	assert.Equal(t, "1,234,567.89", Money(1234567.89))
	assert.Equal(t, "-1,000.00", Money(-1000))
}
