package models

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// NormalizeAddress validates a 0x-prefixed 20-byte hex address and returns
// its lowercase form.
func NormalizeAddress(raw string) (string, error) {
	if !addressPattern.MatchString(raw) || !common.IsHexAddress(raw) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(raw), nil
}

func IsValidAddress(raw string) bool {
	return addressPattern.MatchString(raw)
}

// SameAddress compares two addresses case-insensitively. Malformed input
// never matches.
func SameAddress(a, b string) bool {
	if !IsValidAddress(a) || !IsValidAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
