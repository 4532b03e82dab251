package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of a signed body: outbound notifications
// and inbound settlement callbacks.
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// HMACSignatureService signs notification bodies so receivers can check
// they came from this service, and verifies callbacks from the provider.
type HMACSignatureService struct{}

func NewHMACSignatureService() *HMACSignatureService { return &HMACSignatureService{} }

// Sign returns "sha256=<hex>" of the HMAC-SHA256 of payload.
func (HMACSignatureService) Sign(secretKey, payload string) string {
	return signaturePrefix + hex.EncodeToString(digest(secretKey, payload))
}

// Verify accepts the signature with or without its "sha256=" prefix.
// Hex is matched case-insensitively; the MAC comparison is constant time.
func (HMACSignatureService) Verify(secretKey, payload, signature string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, digest(secretKey, payload))
}

func digest(secretKey, payload string) []byte {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
