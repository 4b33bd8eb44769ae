package contract

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// typePrefixes maps contract types to their human-scannable ID prefix.
// Unknown types fall back to VC.
var typePrefixes = map[Type]string{
	TypeAgriculturalSupply: "AG",
	TypeServiceAgreement:   "SV",
	TypeGoodsPurchase:      "GP",
	TypeLogistics:          "LG",
}

// NewContractID allocates an ID of the form <PREFIX>-<YYMMDD>-<6 HEX>.
// The 24-bit random suffix makes IDs probabilistically unique only; callers
// must verify-before-insert.
func NewContractID(contractType Type, now time.Time) (string, error) {
	prefix, ok := typePrefixes[contractType]
	if !ok {
		prefix = "VC"
	}

	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate contract id: %w", err)
	}

	return fmt.Sprintf("%s-%s-%s",
		prefix,
		now.UTC().Format("060102"),
		strings.ToUpper(hex.EncodeToString(suffix)),
	), nil
}

// NormalizeContractID upper-cases an ID received over a lossy channel
// (SMS keypads tend to lower-case).
func NormalizeContractID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
