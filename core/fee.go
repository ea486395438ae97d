package core

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var bpsDenominator = uint256.NewInt(MaxFeeRateBps)

// ComputeFee returns max(fixedBaseFee, floor(amount*feeRateBps/10000)). The
// product is taken in 256 bits so it cannot overflow.
func ComputeFee(amount uint64, feeRateBps uint16, fixedBaseFee uint64) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(feeRateBps)))
	percentage := product.Div(product, bpsDenominator)
	if !percentage.IsUint64() {
		// only reachable with feeRateBps above 10000
		return ^uint64(0)
	}
	if fee := percentage.Uint64(); fee > fixedBaseFee {
		return fee
	}
	return fixedBaseFee
}

func ValidateFeeRate(feeRateBps uint16) error {
	if feeRateBps > MaxFeeRateBps {
		return fmt.Errorf("core: fee rate %d bps exceeds %d", feeRateBps, MaxFeeRateBps)
	}
	return nil
}

// checkedAdd returns a+b or an error when the sum wraps.
func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("core: amount overflow adding %d and %d", a, b)
	}
	return sum, nil
}

// FormatAmount renders a smallest-unit amount with the given number of
// decimals, e.g. FormatAmount(1_500_000, 6) == "1.5".
func FormatAmount(amount uint64, decimals int32) string {
	value := decimal.NewFromBigInt(uint256.NewInt(amount).ToBig(), -decimals)
	return value.String()
}
