// Package voice extracts structured contract terms from call transcripts.
// Transcription itself happens upstream; this package starts from text.
package voice

import (
	"regexp"
	"strconv"
	"strings"
)

// Terms is the best-effort structured reading of a negotiation transcript.
// Zero values mean the transcript never mentioned the field.
type Terms struct {
	Product             string  `json:"product,omitempty"`
	Quantity            string  `json:"quantity,omitempty"`
	Unit                string  `json:"unit,omitempty"`
	UnitPrice           float64 `json:"unit_price,omitempty"`
	TotalAmount         float64 `json:"total_amount,omitempty"`
	Currency            string  `json:"currency"`
	DeliveryLocation    string  `json:"delivery_location,omitempty"`
	DeliveryDeadline    string  `json:"delivery_deadline,omitempty"`
	QualityRequirements string  `json:"quality_requirements,omitempty"`
	UpfrontPayment      float64 `json:"upfront_payment,omitempty"`
	PaymentTerms        string  `json:"payment_terms,omitempty"`
}

// Map renders the terms in the shape the contract store consumes. Absent
// fields are omitted so completeness scoring sees only what was said.
func (t *Terms) Map() map[string]any {
	m := map[string]any{"currency": t.Currency}
	if t.Product != "" {
		m["product"] = t.Product
	}
	if t.Quantity != "" {
		m["quantity"] = t.Quantity
	}
	if t.Unit != "" {
		m["unit"] = t.Unit
	}
	if t.UnitPrice > 0 {
		m["unit_price"] = t.UnitPrice
	}
	if t.TotalAmount > 0 {
		m["total_amount"] = t.TotalAmount
	}
	if t.DeliveryLocation != "" {
		m["delivery_location"] = t.DeliveryLocation
	}
	if t.DeliveryDeadline != "" {
		m["delivery_deadline"] = t.DeliveryDeadline
	}
	if t.QualityRequirements != "" {
		m["quality_requirements"] = t.QualityRequirements
	}
	if t.UpfrontPayment > 0 {
		m["upfront_payment"] = t.UpfrontPayment
	}
	if t.PaymentTerms != "" {
		m["payment_terms"] = t.PaymentTerms
	}
	return m
}

var (
	productPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:\w+\s*)?(?:bags?|sacks?)\s+(?:of\s+)?(\w+)`),
		regexp.MustCompile(`selling\s+(\w+(?:\s+\w+)?)`),
	}

	quantityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:,\d{3})*)\s+(?:bags?|sacks?|units?)`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s+(?:tons?|kg|kilos?)`),
		regexp.MustCompile(`quantity.*?(\d+(?:,\d{3})*)`),
	}

	unitWords = []string{"bags", "sacks", "tons", "kg", "kilos", "units", "pieces"}

	unitPricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:kes|ksh)\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:per\s+bag|each)`),
		regexp.MustCompile(`(\d+(?:,\d{3})*)\s*(?:per\s+bag|each)`),
		regexp.MustCompile(`price.*?(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	}

	totalAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`total.*?(?:kes|ksh)\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`(?:kes|ksh)\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\s*total`),
		regexp.MustCompile(`that'?s\s+(?:kes|ksh)?\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	}

	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`deliver(?:y|ed)?\s+(?:to|at)\s+([^,.]+?)(?:\s+(?:by|before)\s|[,.]|$)`),
		regexp.MustCompile(`(?:warehouse|store|farm)\s+(?:at|in)\s+([^,.]+?)(?:\s+(?:by|before)\s|[,.]|$)`),
	}

	monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december`

	deadlineMonthDay = regexp.MustCompile(`(?:by|before)\s+(` + monthAlternation + `)\s+(\d{1,2})(?:st|nd|rd|th)?`)
	deadlineDayMonth = regexp.MustCompile(`(?:by|before)\s+(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthAlternation + `)`)
	deadlineLoose    = []*regexp.Regexp{
		regexp.MustCompile(`deadline.*?(\w+\s+\d{1,2})`),
		regexp.MustCompile(`deliver.*?(` + monthAlternation + `)\s+(\d{1,2})`),
	}

	qualityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`grade\s+(\w+)`),
		regexp.MustCompile(`quality.*?([\w\s]+(?:test|standard|grade))`),
	}

	upfrontPercent = regexp.MustCompile(`(\d+)%\s+(?:upfront|advance|deposit)`)
	upfrontAmounts = []*regexp.Regexp{
		regexp.MustCompile(`(?:upfront|advance)\s+(?:payment\s+)?(?:of\s+)?(?:kes|ksh)?\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`pay.*?(\d+(?:,\d{3})*)\s*(?:upfront|advance)`),
	}

	paymentTermsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`pay(?:ment)?\s+(?:within\s+)?(\d+\s+(?:days?|hours?))`),
		regexp.MustCompile(`(?:balance|remaining).*?(\d+\s+(?:days?|hours?))`),
		regexp.MustCompile(`(?:on|upon)\s+(delivery|completion|inspection)`),
	}
)

// Extract picks contract terms out of a transcript. It never fails; fields
// that cannot be recognized stay empty and the caller decides whether the
// result is complete enough.
func Extract(transcript string) *Terms {
	text := strings.ToLower(transcript)

	t := &Terms{Currency: extractCurrency(text)}
	t.Product = extractProduct(text)
	t.Quantity = extractQuantity(text)
	t.Unit = extractUnit(text)
	t.UnitPrice = firstAmount(text, unitPricePatterns)
	t.TotalAmount = firstAmount(text, totalAmountPatterns)
	t.DeliveryLocation = extractLocation(text)
	t.DeliveryDeadline = extractDeadline(text)
	t.QualityRequirements = extractQuality(text)
	t.UpfrontPayment = extractUpfront(text, t.TotalAmount)
	t.PaymentTerms = extractPaymentTerms(text)
	return t
}

// Confidence scores how much of a complete agreement the transcript covers,
// in [0, 1]. Prices weigh more than logistics.
func Confidence(t *Terms) float64 {
	const maxScore = 8.0
	score := 0.0
	if t.Product != "" {
		score++
	}
	if t.Quantity != "" {
		score++
	}
	if t.UnitPrice > 0 || t.TotalAmount > 0 {
		score += 1.5
	}
	if t.Currency != "" {
		score += 0.5
	}
	if t.DeliveryLocation != "" {
		score++
	}
	if t.DeliveryDeadline != "" {
		score++
	}
	if t.QualityRequirements != "" {
		score++
	}
	if t.PaymentTerms != "" || t.UpfrontPayment > 0 {
		score++
	}
	if score > maxScore {
		score = maxScore
	}
	return score / maxScore
}

func extractProduct(text string) string {
	for _, re := range productPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			product := m[1]
			if len(product) > 2 {
				return titleCase(product)
			}
		}
	}
	return ""
}

func extractQuantity(text string) string {
	for _, re := range quantityPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.ReplaceAll(m[1], ",", "")
		}
	}
	return ""
}

func extractUnit(text string) string {
	for _, unit := range unitWords {
		if strings.Contains(text, unit) || strings.Contains(text, strings.TrimSuffix(unit, "s")) {
			if strings.HasSuffix(unit, "s") {
				return unit
			}
			return unit + "s"
		}
	}
	return ""
}

func extractCurrency(text string) string {
	switch {
	case strings.Contains(text, "kes") || strings.Contains(text, "ksh") || strings.Contains(text, "shilling"):
		return "KES"
	case strings.Contains(text, "usd") || strings.Contains(text, "dollar"):
		return "USD"
	case strings.Contains(text, "eur"):
		return "EUR"
	}
	return "KES"
}

func extractLocation(text string) string {
	for _, re := range locationPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			location := strings.TrimSpace(m[1])
			if len(location) > 3 {
				return titleCase(location)
			}
		}
	}
	return ""
}

func extractDeadline(text string) string {
	if m := deadlineMonthDay.FindStringSubmatch(text); m != nil {
		return titleCase(m[1]) + " " + m[2]
	}
	if m := deadlineDayMonth.FindStringSubmatch(text); m != nil {
		return titleCase(m[2]) + " " + m[1]
	}
	for _, re := range deadlineLoose {
		if m := re.FindStringSubmatch(text); m != nil {
			if len(m) == 3 {
				return titleCase(m[1]) + " " + m[2]
			}
			return titleCase(m[1])
		}
	}
	return ""
}

func extractQuality(text string) string {
	for _, re := range qualityPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			quality := strings.TrimSpace(m[1])
			if len(quality) > 2 {
				return titleCase(quality)
			}
		}
	}
	return ""
}

func extractUpfront(text string, total float64) float64 {
	if m := upfrontPercent.FindStringSubmatch(text); m != nil {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err == nil && total > 0 {
			return pct / 100 * total
		}
	}
	for _, re := range upfrontAmounts {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := parseAmount(m[1]); v > 0 {
				return v
			}
		}
	}
	return 0
}

func extractPaymentTerms(text string) string {
	for _, re := range paymentTermsPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return titleCase(m[1])
		}
	}
	return ""
}

func firstAmount(text string, patterns []*regexp.Regexp) float64 {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := parseAmount(m[1]); v > 0 {
				return v
			}
		}
	}
	return 0
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
