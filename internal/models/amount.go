package models

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"strings"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

// Verification amounts are 0.001000 .. 0.001999 of the native currency,
// expressed with six decimals.
const (
	amountDecimals    = 6
	amountBaseMicro   = 1000
	amountSpreadMicro = 1000
)

var weiPerEther = decimal.NewFromBigInt(big.NewInt(params.Ether), 0)

// RandomVerificationAmount returns a fresh amount for a verification attempt.
func RandomVerificationAmount() string {
	micro := int64(amountBaseMicro + rand.IntN(amountSpreadMicro))
	return decimal.New(micro, -amountDecimals).StringFixed(amountDecimals)
}

// ParseAmountToWei converts a decimal amount (e.g. "0.001234") to wei.
// Digits past the 18th decimal are truncated.
func ParseAmountToWei(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || strings.ContainsAny(amount, "+-eE") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if strings.HasPrefix(amount, ".") {
		amount = "0" + amount
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return d.Mul(weiPerEther).BigInt(), nil
}

// FormatWei renders a wei amount in whole currency units for logs.
func FormatWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerEther).StringFixed(amountDecimals + 3)
}
