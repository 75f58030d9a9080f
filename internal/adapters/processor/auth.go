package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// CalculateSignature computes the HMAC-SHA256 signature North-style APIs
// expect: HMAC-SHA256(endpoint || payload, EPIKey), hex-encoded.
func CalculateSignature(epiKey, endpoint string, payloadBytes []byte) string {
	concat := append([]byte(endpoint), payloadBytes...)
	h := hmac.New(sha256.New, []byte(epiKey))
	h.Write(concat)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature checks an inbound HMAC signature (used for webhook
// verification) in constant time.
func ValidateSignature(epiKey, endpoint string, payloadBytes []byte, signature string) bool {
	expected := CalculateSignature(epiKey, endpoint, payloadBytes)
	return hmac.Equal([]byte(expected), []byte(signature))
}
