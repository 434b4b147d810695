// Package metrics provides Prometheus instrumentation for the deployer.
// A deploy is a short-lived process, so metrics are pushed to a Pushgateway
// at exit instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	enabled     bool
	serviceName string
	registry    *prometheus.Registry

	// Pipeline metrics
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	warningsTotal *prometheus.CounterVec

	// Deployment metrics
	deploymentTotal   *prometheus.CounterVec
	gasEstimate       prometheus.Gauge
	gasLimit          prometheus.Gauge
	gasPriceWei       prometheus.Gauge
	deploymentCostWei prometheus.Gauge
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	stageTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_stage_total",
			Help: "Pipeline stages run, by outcome",
		},
		[]string{"stage", "status"},
	)

	stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deploy_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	warningsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_warnings_total",
			Help: "Non-fatal findings raised during a deployment",
		},
		[]string{"kind"},
	)

	deploymentTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployment_total",
			Help: "Deployments attempted, by final status",
		},
		[]string{"contract", "chain_id", "status"},
	)

	gasEstimate = factory.NewGauge(prometheus.GaugeOpts{
		Name: "deploy_gas_estimate",
		Help: "Estimated gas for the deployment transaction",
	})
	gasLimit = factory.NewGauge(prometheus.GaugeOpts{
		Name: "deploy_gas_limit",
		Help: "Gas limit applied after the safety buffer",
	})
	gasPriceWei = factory.NewGauge(prometheus.GaugeOpts{
		Name: "deploy_gas_price_wei",
		Help: "Gas price of the deployment transaction",
	})
	deploymentCostWei = factory.NewGauge(prometheus.GaugeOpts{
		Name: "deploy_cost_wei",
		Help: "Maximum cost of the deployment transaction (gas price x gas limit)",
	})
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name, used as the push job.
func ServiceName() string {
	return serviceName
}

// Gatherer returns the registry backing the metrics, or nil when disabled.
func Gatherer() prometheus.Gatherer {
	if !enabled {
		return nil
	}
	return registry
}

// PushGrouping returns the Pushgateway grouping key for a chain. Grouping
// labels must not repeat metric labels, so the chain goes in "instance".
func PushGrouping(chainID string) map[string]string {
	return map[string]string{"instance": "chain-" + chainID}
}

// Push sends the collected metrics to a Pushgateway.
func Push(ctx context.Context, gatewayURL string, grouping map[string]string) error {
	if !enabled || gatewayURL == "" {
		return nil
	}

	pusher := push.New(gatewayURL, serviceName).Gatherer(registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
