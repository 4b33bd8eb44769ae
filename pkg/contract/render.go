package contract

import (
	"fmt"
	"strings"
	"time"
)

// Renderer turns a contract into the human-readable document text that is
// attached to SMS notifications and served over the API.
type Renderer struct{}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// Render produces the full document text for c, choosing the template by
// contract type. Unknown types fall back to the agricultural template.
func (r *Renderer) Render(c *Contract) string {
	switch c.Type {
	case TypeServiceAgreement:
		return r.renderService(c)
	case TypeGoodsPurchase:
		return r.renderGoods(c)
	default:
		return r.renderAgricultural(c)
	}
}

func (r *Renderer) renderAgricultural(c *Contract) string {
	buyer := findParty(c.Parties, RoleBuyer)
	seller := findParty(c.Parties, RoleSeller)

	product := termString(c.Terms, "product", "Agricultural Product")
	quantity := termDisplay(c.Terms, "quantity")
	unit := termString(c.Terms, "unit", "units")
	unitPrice := termFloat(c.Terms, "unit_price")
	total := termFloat(c.Terms, "total_amount")
	currency := termString(c.Terms, "currency", "KES")
	location := termString(c.Terms, "delivery_location", "To be determined")
	deadline := termString(c.Terms, "delivery_deadline", "To be agreed")
	quality := termString(c.Terms, "quality_requirements", "As per industry standards")
	upfront := termFloat(c.Terms, "upfront_payment")
	schedule := termString(c.Terms, "payment_terms", "Upon delivery")

	var b strings.Builder
	fmt.Fprintf(&b, "AGRICULTURAL SUPPLY CONTRACT\n\n")
	fmt.Fprintf(&b, "Contract ID: %s\n", c.ID)
	fmt.Fprintf(&b, "Date: %s\n\n", displayDate(c.CreatedAt))
	fmt.Fprintf(&b, "PARTIES:\n")
	fmt.Fprintf(&b, "Seller: %s\nPhone: %s\n\n", partyName(seller, "Seller"), partyPhone(seller))
	fmt.Fprintf(&b, "Buyer: %s\nPhone: %s\n\n", partyName(buyer, "Buyer"), partyPhone(buyer))
	fmt.Fprintf(&b, "PRODUCT DETAILS:\n")
	fmt.Fprintf(&b, "Product: %s\n", product)
	fmt.Fprintf(&b, "Quantity: %s %s\n", quantity, unit)
	fmt.Fprintf(&b, "Unit Price: %s %s per %s\n", currency, Money(unitPrice), singular(unit))
	fmt.Fprintf(&b, "Total Value: %s %s\n\n", currency, Money(total))
	fmt.Fprintf(&b, "DELIVERY TERMS:\n")
	fmt.Fprintf(&b, "Location: %s\n", location)
	fmt.Fprintf(&b, "Deadline: %s\n", deadline)
	fmt.Fprintf(&b, "Quality: %s\n\n", quality)
	fmt.Fprintf(&b, "PAYMENT TERMS:\n")
	fmt.Fprintf(&b, "Total Amount: %s %s\n", currency, Money(total))
	fmt.Fprintf(&b, "Upfront Payment: %s %s\n", currency, Money(upfront))
	fmt.Fprintf(&b, "Balance: %s %s\n", currency, Money(total-upfront))
	fmt.Fprintf(&b, "Payment Schedule: %s\n\n", schedule)
	fmt.Fprintf(&b, "TERMS AND CONDITIONS:\n")
	fmt.Fprintf(&b, "1. The seller agrees to deliver the specified product in the agreed quantity and quality.\n")
	fmt.Fprintf(&b, "2. The buyer agrees to make payment according to the schedule outlined above.\n")
	fmt.Fprintf(&b, "3. Quality inspection will be conducted upon delivery.\n")
	fmt.Fprintf(&b, "4. Any disputes will be resolved through mediation.\n")
	fmt.Fprintf(&b, "5. This contract is legally binding upon confirmation by both parties.\n\n")
	fmt.Fprintf(&b, "CONTRACT INTEGRITY:\n")
	fmt.Fprintf(&b, "Hash: %s\n", c.ContractHash)
	fmt.Fprintf(&b, "Valid Until: %s\n\n", displayDateTime(c.ExpiresAt))
	fmt.Fprintf(&b, "VOICE RECORD:\n")
	fmt.Fprintf(&b, "This contract is based on voice agreement recorded on %s.\n", displayDate(c.CreatedAt))
	fmt.Fprintf(&b, "Transcript available upon request.\n")
	return strings.TrimSpace(b.String())
}

func (r *Renderer) renderService(c *Contract) string {
	provider := findParty(c.Parties, RoleSeller)
	client := findParty(c.Parties, RoleBuyer)

	var b strings.Builder
	fmt.Fprintf(&b, "SERVICE AGREEMENT CONTRACT\n\n")
	fmt.Fprintf(&b, "Contract ID: %s\n", c.ID)
	fmt.Fprintf(&b, "Date: %s\n\n", displayDate(c.CreatedAt))
	fmt.Fprintf(&b, "Service Provider: %s\n", partyName(provider, "Provider"))
	fmt.Fprintf(&b, "Client: %s\n\n", partyName(client, "Client"))
	fmt.Fprintf(&b, "Service Description: %s\n", termString(c.Terms, "product", "Professional Services"))
	fmt.Fprintf(&b, "Total Value: %s %s\n", termString(c.Terms, "currency", "KES"), Money(termFloat(c.Terms, "total_amount")))
	fmt.Fprintf(&b, "Payment Terms: %s\n\n", termString(c.Terms, "payment_terms", "As agreed"))
	fmt.Fprintf(&b, "This contract confirms the agreement for services as recorded in voice conversation.\n\n")
	fmt.Fprintf(&b, "Contract Hash: %s\n", c.ContractHash)
	return strings.TrimSpace(b.String())
}

func (r *Renderer) renderGoods(c *Contract) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOODS PURCHASE CONTRACT\n\n")
	fmt.Fprintf(&b, "Contract ID: %s\n", c.ID)
	fmt.Fprintf(&b, "Date: %s\n\n", displayDate(c.CreatedAt))
	fmt.Fprintf(&b, "Product: %s\n", termString(c.Terms, "product", "Goods"))
	fmt.Fprintf(&b, "Quantity: %s %s\n", termDisplay(c.Terms, "quantity"), termString(c.Terms, "unit", "units"))
	fmt.Fprintf(&b, "Total Value: %s %s\n\n", termString(c.Terms, "currency", "KES"), Money(termFloat(c.Terms, "total_amount")))
	fmt.Fprintf(&b, "Delivery: %s\n", termString(c.Terms, "delivery_location", "TBD"))
	fmt.Fprintf(&b, "Deadline: %s\n\n", termString(c.Terms, "delivery_deadline", "TBD"))
	fmt.Fprintf(&b, "Contract Hash: %s\n", c.ContractHash)
	return strings.TrimSpace(b.String())
}

// Summary produces the one-line digest used in notifications and USSD
// detail screens.
func (r *Renderer) Summary(c *Contract) string {
	product := termString(c.Terms, "product", "Product")
	quantity := termDisplay(c.Terms, "quantity")
	unit := termString(c.Terms, "unit", "")
	total := termFloat(c.Terms, "total_amount")
	currency := termString(c.Terms, "currency", "KES")
	deadline := termString(c.Terms, "delivery_deadline", "")

	quantityText := ""
	if quantity != "" && unit != "" {
		quantityText = fmt.Sprintf("(%s %s) ", quantity, unit)
	}
	deadlineText := ""
	if deadline != "" {
		deadlineText = ", Due: " + deadline
	}

	buyer := findParty(c.Parties, RoleBuyer)
	seller := findParty(c.Parties, RoleSeller)
	return fmt.Sprintf("Contract %s: %s %s- %s %s%s. Between %s and %s.",
		c.ID, product, quantityText, currency, Money(total), deadlineText,
		partyPhoneOr(seller, "Seller"), partyPhoneOr(buyer, "Buyer"))
}

// Completeness scores how many of the required term fields are filled, in
// [0, 1].
func Completeness(terms map[string]any) float64 {
	filled := 0
	for _, f := range RequiredTerms {
		if v, ok := terms[f]; ok && v != nil && v != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(RequiredTerms))
}

// Money formats an amount with thousands separators and two decimals, e.g.
// 50000 -> "50,000.00".
func Money(amount float64) string {
	s := fmt.Sprintf("%.2f", amount)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	b.WriteString(frac)
	return b.String()
}

func findParty(parties []Party, role PartyRole) *Party {
	for i := range parties {
		if parties[i].Role == role {
			return &parties[i]
		}
	}
	return nil
}

func partyName(p *Party, fallback string) string {
	if p == nil {
		return fallback
	}
	if p.Name != "" {
		return p.Name
	}
	if p.PhoneNumber != "" {
		return p.PhoneNumber
	}
	return fallback
}

func partyPhone(p *Party) string {
	if p == nil || p.PhoneNumber == "" {
		return "N/A"
	}
	return p.PhoneNumber
}

func partyPhoneOr(p *Party, fallback string) string {
	if p == nil || p.PhoneNumber == "" {
		return fallback
	}
	return p.PhoneNumber
}

func singular(unit string) string {
	if strings.HasSuffix(unit, "s") {
		return strings.TrimSuffix(unit, "s")
	}
	return unit
}

// termDisplay renders a term value for document text without trailing
// float noise for whole numbers.
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

func displayDate(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Format("January 2, 2006")
}

func displayDateTime(rfc3339 string) string {
	if rfc3339 == "" {
		return "N/A"
	}
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Format("January 2, 2006 at 3:04 PM")
}
