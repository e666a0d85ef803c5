package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainService = "zugdienste/service/v1"
	DomainTrain   = "zugdienste/train/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash identifies the exact bytes a record was extracted from.
// A change to either the service file or its train file changes the hash,
// so the store can tell a re-extraction from an unchanged re-scan.
func ContentHash(service, train []byte) string {
	h := sha256.New()
	h.Write([]byte(hashWithDomain(DomainService, service)))
	h.Write([]byte(hashWithDomain(DomainTrain, train)))
	return hex.EncodeToString(h.Sum(nil))
}
