package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint derives the stable identity of one finding. Identical
// (seed, ruleKey, filePath, message, line) inputs must hash identically
// across processes; the new/pre-existing diff depends on it.
func Fingerprint(seed, ruleKey, filePath, message string, line *int) string {
	lineText := "-"
	if line != nil {
		lineText = strconv.Itoa(*line)
	}

	h := sha256.New()
	h.Write([]byte(strings.Join([]string{seed, ruleKey, filePath, lineText, message}, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}
