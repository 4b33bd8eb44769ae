package sms

import (
	"fmt"

	"github.com/voicepact/voicepact/pkg/contract"
)

// ConfirmationSMS builds the contract summary message that asks each party
// to reply YES-<id> or NO-<id>.
func ConfirmationSMS(contractID string, terms map[string]any) string {
	product := termString(terms, "product", "Product")
	quantity := termDisplay(terms, "quantity")
	unit := termString(terms, "unit", "")
	total, hasTotal := termFloat(terms, "total_amount")
	currency := termString(terms, "currency", "KES")
	deadline := termString(terms, "delivery_deadline", "")

	quantityStr := "Items"
	if quantity != "" && unit != "" {
		quantityStr = quantity + " " + unit
	}
	amountStr := "Amount TBD"
	if hasTotal {
		amountStr = currency + " " + contract.Money(total)
	}
	dateStr := ""
	if deadline != "" {
		dateStr = ", Due: " + deadline
	}

	return fmt.Sprintf(
		"VoicePact Contract Summary:\nID: %s\nProduct: %s (%s)\nTotal: %s%s\nReply YES-%s to confirm or NO-%s to decline",
		contractID, product, quantityStr, amountStr, dateStr, contractID, contractID)
}

// PaymentSMS builds a payment progress notification.
func PaymentSMS(contractID string, amount float64, currency, action string) string {
	if currency == "" {
		currency = "KES"
	}
	if action == "" {
		action = "received"
	}
	return fmt.Sprintf(
		"VoicePact Payment %s:\nContract: %s\nAmount: %s %s\nStatus: Processing\nYou will receive confirmation shortly.",
		titleCase(action), contractID, currency, contract.Money(amount))
}

// DeliverySMS builds the delivery-claimed alert that asks the counterparty
// to reply ACCEPT-<id> or DISPUTE-<id>.
func DeliverySMS(contractID, deliveryType string) string {
	if deliveryType == "" {
		deliveryType = "full"
	}
	return fmt.Sprintf(
		"VoicePact Delivery Alert:\nContract: %s\nType: %s delivery claimed\nPlease inspect and reply:\nACCEPT-%s or DISPUTE-%s",
		contractID, titleCase(deliveryType), contractID, contractID)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	upper := s[0]
	if upper >= 'a' && upper <= 'z' {
		upper -= 'a' - 'A'
	}
	return string(upper) + s[1:]
}

func termString(terms map[string]any, key, fallback string) string {
	if v, ok := terms[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func termFloat(terms map[string]any, key string) (float64, bool) {
	switch v := terms[key].(type) {
	case float64:
		return v, v != 0
	case int:
		return float64(v), v != 0
	}
	return 0, false
}

func termDisplay(terms map[string]any, key string) string {
	switch v := terms[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
