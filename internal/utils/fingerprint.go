package utils

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// DeviceFingerprint derives a stable, non-reversible device identifier from
// the observable environment traits. The same trait set always yields the
// same fingerprint, so a respondent can be re-associated across restarts
// without storing anything personally identifying.
func DeviceFingerprint(traits ...string) string {
	h := sha3.Sum256([]byte(strings.Join(traits, "\x1f")))
	return hex.EncodeToString(h[:16])
}
