package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const codePrefix = "MFP"

// CodeGenerator issues the opaque code bound to a payment id. The code is what the QR
// image encodes; rendering the image is left to clients.
type CodeGenerator struct {
	secret string
}

// NewCodeGenerator creates a generator signing codes with secret
func NewCodeGenerator(secret string) *CodeGenerator {
	return &CodeGenerator{secret: secret}
}

// Generate returns the code for a payment id
func (g *CodeGenerator) Generate(paymentID int64) (string, error) {
	if paymentID <= 0 {
		return "", fmt.Errorf("invalid payment id: %d", paymentID)
	}
	if g.secret == "" {
		return "", fmt.Errorf("code signing secret is empty")
	}
	id := strconv.FormatInt(paymentID, 10)
	return fmt.Sprintf("%s-%s-%s", codePrefix, id, GenerateHMAC(id, g.secret)[:20]), nil
}

// Parse verifies a code and returns the payment id it was issued for
func (g *CodeGenerator) Parse(code string) (int64, error) {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || parts[0] != codePrefix {
		return 0, fmt.Errorf("malformed payment code")
	}
	expected := GenerateHMAC(parts[1], g.secret)[:20]
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return 0, fmt.Errorf("payment code signature mismatch")
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid payment id in code: %w", err)
	}
	return id, nil
}

// GenerateHMAC returns the hex HMAC-SHA256 of data
func GenerateHMAC(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
