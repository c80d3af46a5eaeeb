package entity

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainQueuePayload = "bizsync/queue-payload/v1"
	DomainRecord       = "bizsync/record/v1"
)

// Digest computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func Digest(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
