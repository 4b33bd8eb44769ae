// Package crypto implements the integrity layer for contracts: deterministic
// content hashing, per-party Ed25519 key derivation and signing, HMAC webhook
// and audit-trail signatures, and daily SMS confirmation codes.
//
// Every verify operation uses constant-time comparison.
package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/pbkdf2"
)

// signedTimestampLayout is the second-granularity timestamp embedded in
// signed contract messages and audit signatures.
const signedTimestampLayout = "2006-01-02T15:04:05"

// verifyWindow is the bucket width used by windowed signature verification.
const verifyWindow = 10 * time.Minute

// Error is returned for key derivation and signing failures. It is fatal to
// the specific operation, never to the process.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Service performs all hash and signature operations. Construct one at
// process start and pass it by reference; it holds no mutable state.
type Service struct {
	cfg *Config
	now func() time.Time
}

// NewService creates a crypto service from the given config.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MasterKey == "" {
		return nil, &Error{Op: "init", Err: fmt.Errorf("master key is required")}
	}
	if cfg.Salt == "" {
		return nil, &Error{Op: "init", Err: fmt.Errorf("KDF salt is required")}
	}
	if cfg.KDFIterations < 100000 {
		cfg.KDFIterations = 100000
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// CanonicalTerms serializes a terms mapping into a canonical string: keys
// sorted lexicographically, joined as key=value pairs. Any permutation of the
// input map yields the same output.
func CanonicalTerms(terms map[string]any) string {
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, terms[k])
	}
	b.WriteByte(']')
	return b.String()
}

// ContractHash computes the content-addressed hash over transcript and terms.
// The terms mapping is canonicalized first, so key order never changes the
// digest. Returns a hex-encoded 256-bit digest.
func (s *Service) ContractHash(transcript string, terms map[string]any) string {
	return s.HashContent(transcript + ":" + CanonicalTerms(terms))
}

// HashContent hashes an already-canonical content string.
func (s *Service) HashContent(content string) string {
	if s.cfg.HashAlgorithm == HashSHA256 {
		sum := sha256.Sum256([]byte(content))
		return hex.EncodeToString(sum[:])
	}
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ValidateIntegrity recomputes the hash of the current content and compares
// it to the stored hash in constant time.
func (s *Service) ValidateIntegrity(storedHash, transcript string, terms map[string]any) bool {
	current := s.ContractHash(transcript, terms)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(current)) == 1
}

// deriveSigningKey derives a deterministic Ed25519 private key for a phone
// number. The same phone number always yields the same key pair; no per-party
// key is ever persisted.
func (s *Service) deriveSigningKey(phoneNumber string) ed25519.PrivateKey {
	material := []byte(s.cfg.MasterKey + ":" + phoneNumber)
	seed := pbkdf2.Key(material, []byte(s.cfg.Salt), s.cfg.KDFIterations, ed25519.SeedSize, sha256.New)
	return ed25519.NewKeyFromSeed(seed)
}

// PublicKey returns the derived Ed25519 public key for a phone number,
// base64-encoded.
func (s *Service) PublicKey(phoneNumber string) string {
	priv := s.deriveSigningKey(phoneNumber)
	return base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey))
}

// SignContract signs contractData on behalf of a phone number. The signed
// message embeds a timestamp aligned to the current 10-minute bucket so that
// windowed verification can reconstruct it. Returns a base64 signature.
func (s *Service) SignContract(contractData, phoneNumber string) (string, error) {
	priv := s.deriveSigningKey(phoneNumber)
	ts := s.now().UTC().Truncate(verifyWindow).Format(signedTimestampLayout)
	message := contractData + ":" + phoneNumber + ":" + ts
	sig := ed25519.Sign(priv, []byte(message))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySignature checks a contract signature by re-deriving the signer's key
// and trying the current and two previous 10-minute timestamp buckets.
//
// Known weak point: the signed message embeds a timestamp, so verification
// must guess it. A signature created near the edge of a bucket stops
// verifying once the window slides past it (roughly 20-30 minutes after
// signing). This replicates the upstream contract; a nonce-based scheme would
// remove the guesswork.
func (s *Service) VerifySignature(contractData, phoneNumber, signature string) bool {
	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	priv := s.deriveSigningKey(phoneNumber)
	pub := priv.Public().(ed25519.PublicKey)

	bucket := s.now().UTC().Truncate(verifyWindow)
	for w := 0; w < 3; w++ {
		ts := bucket.Add(-time.Duration(w) * verifyWindow).Format(signedTimestampLayout)
		message := contractData + ":" + phoneNumber + ":" + ts
		if ed25519.Verify(pub, []byte(message), sigBytes) {
			return true
		}
	}
	return false
}

// SMSConfirmationCode derives a 6-digit numeric code from the contract,
// phone number and current calendar date. The date inclusion gives the code
// an implicit same-day expiry with no TTL store.
func (s *Service) SMSConfirmationCode(contractID, phoneNumber string) string {
	content := contractID + ":" + phoneNumber + ":" + s.now().UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(content))
	hexHash := hex.EncodeToString(sum[:])

	n, _ := strconv.ParseUint(hexHash[:8], 16, 64)
	return fmt.Sprintf("%06d", n%1000000)
}

// VerifySMSConfirmation checks a code against today's expected value in
// constant time.
func (s *Service) VerifySMSConfirmation(contractID, phoneNumber, code string) bool {
	expected := s.SMSConfirmationCode(contractID, phoneNumber)
	return subtle.ConstantTimeCompare([]byte(code), []byte(expected)) == 1
}

// VerificationCode derives a short human-readable daily code for a contract,
// prefixed VC-.
func (s *Service) VerificationCode(contractID string) string {
	content := contractID + ":" + s.now().UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(content))
	return "VC-" + strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// PaymentReference derives a stable uppercase reference for a payment from
// the contract, amount and payer phone.
func (s *Service) PaymentReference(contractID string, amount float64, phoneNumber string) string {
	content := fmt.Sprintf("%s:%v:%s", contractID, amount, phoneNumber)
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(content))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// WebhookSignature computes the HMAC-SHA256 signature of a raw webhook
// payload, hex-encoded with the sha256= prefix.
func (s *Service) WebhookSignature(payload string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a webhook signature in constant time.
// An empty secret or signature always fails.
func (s *Service) VerifyWebhookSignature(payload, signature string) bool {
	if s.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	expected := s.WebhookSignature(payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// AuditSignature signs an audit-trail entry with the master key. The
// timestamp is embedded in the returned token (timestamp:hash) so that
// verification replays it exactly instead of searching a window. This is
// intentionally a different policy from contract-signature verification.
func (s *Service) AuditSignature(action, contractID, actor string, data map[string]any) string {
	ts := s.now().UTC().Format(signedTimestampLayout)
	return ts + ":" + s.auditHMAC(action, contractID, actor, ts, data)
}

// VerifyAuditSignature checks an audit token against its embedded timestamp
// in constant time.
func (s *Service) VerifyAuditSignature(token, action, contractID, actor string, data map[string]any) bool {
	// The timestamp itself contains colons, so split on the last one.
	i := strings.LastIndex(token, ":")
	if i < 0 {
		return false
	}
	ts, sigHash := token[:i], token[i+1:]
	expected := s.auditHMAC(action, contractID, actor, ts, data)
	return subtle.ConstantTimeCompare([]byte(sigHash), []byte(expected)) == 1
}

func (s *Service) auditHMAC(action, contractID, actor, timestamp string, data map[string]any) string {
	content := action + ":" + contractID + ":" + actor + ":" + timestamp + ":" + CanonicalTerms(data)
	mac := hmac.New(sha256.New, []byte(s.cfg.MasterKey))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
