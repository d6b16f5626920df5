package scheduler

import (
	"context"
	"time"

	"algoportfolio/internal/ports"
)

// ProviderHealthJob periodically probes the market data provider so outages
// show up in the logs before a user hits them.
type ProviderHealthJob struct {
	market  ports.MarketData
	log     ports.Logger
	timeout time.Duration
}

// NewProviderHealthJob creates a health probe for the given provider.
func NewProviderHealthJob(market ports.MarketData, log ports.Logger) *ProviderHealthJob {
	return &ProviderHealthJob{
		market:  market,
		log:     log,
		timeout: 30 * time.Second,
	}
}

func (j *ProviderHealthJob) Name() string { return "provider-health" }

func (j *ProviderHealthJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if !j.market.HealthCheck(ctx) {
		j.log.Warn(ctx, "Market data provider health check failed", map[string]interface{}{
			"provider": j.market.Name(),
		})
		return nil
	}
	j.log.Debug(ctx, "Market data provider healthy", map[string]interface{}{
		"provider": j.market.Name(),
	})
	return nil
}
