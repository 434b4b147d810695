package domain

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// MaxGasMultiplier bounds the configurable buffer.
const MaxGasMultiplier = 10.0

// ApplyGasBuffer returns floor(estimate × multiplier) using exact rational
// arithmetic. The multiplier is taken as the shortest decimal that round-trips
// its float64 value, so 1.2 is applied as 12/10 and 1.00005 as 100005/100000.
// The result is never below the estimate.
func ApplyGasBuffer(estimate uint64, multiplier float64) (uint64, error) {
	if math.IsNaN(multiplier) || multiplier < 1 || multiplier > MaxGasMultiplier {
		return 0, fmt.Errorf("gas multiplier %v out of range [1, %v]", multiplier, MaxGasMultiplier)
	}

	m, ok := new(big.Rat).SetString(strconv.FormatFloat(multiplier, 'f', -1, 64))
	if !ok {
		return 0, fmt.Errorf("gas multiplier %v is not a decimal", multiplier)
	}

	product := new(big.Rat).SetInt(new(big.Int).SetUint64(estimate))
	product.Mul(product, m)
	limit := new(big.Int).Quo(product.Num(), product.Denom())

	if !limit.IsUint64() {
		return 0, fmt.Errorf("buffered gas limit for estimate %d overflows", estimate)
	}
	return max(limit.Uint64(), estimate), nil
}

// deploymentCost returns gasPrice × gasLimit in wei.
func deploymentCost(gasPrice *big.Int, gasLimit uint64) *big.Int {
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
}
