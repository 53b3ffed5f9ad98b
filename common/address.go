package common

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/mynextid/zk-kyc/models"
)

// NormalizeSubject validates a chain address and lowercases it. Every
// comparison and query boundary goes through here.
func NormalizeSubject(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty subject", models.ErrSubjectBinding)
	}
	if !ethcommon.IsHexAddress(s) {
		return "", fmt.Errorf("%w: subject %q is not a chain address", models.ErrValidation, s)
	}
	return strings.ToLower(ethcommon.HexToAddress(s).Hex()), nil
}

// SameSubject compares two addresses case-insensitively
func SameSubject(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
