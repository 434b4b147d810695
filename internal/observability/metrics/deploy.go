package metrics

import (
	"math/big"
	"time"
)

// StageCompleted records the outcome and duration of a pipeline stage.
func StageCompleted(stage, status string, took time.Duration) {
	if !enabled {
		return
	}
	stageTotal.WithLabelValues(stage, status).Inc()
	stageDuration.WithLabelValues(stage).Observe(took.Seconds())
}

// Warning records a non-fatal finding.
func Warning(kind string) {
	if !enabled {
		return
	}
	warningsTotal.WithLabelValues(kind).Inc()
}

// DeploymentResult records the final status of a deployment.
func DeploymentResult(contract, chainID, status string) {
	if !enabled {
		return
	}
	deploymentTotal.WithLabelValues(contract, chainID, status).Inc()
}

// GasBudget records the gas estimate, applied limit and price.
func GasBudget(estimate, limit uint64, price *big.Int) {
	if !enabled {
		return
	}
	gasEstimate.Set(float64(estimate))
	gasLimit.Set(float64(limit))
	if price != nil {
		gasPriceWei.Set(toFloat(price))
		deploymentCostWei.Set(toFloat(new(big.Int).Mul(price, new(big.Int).SetUint64(limit))))
	}
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
