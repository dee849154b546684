package metrics

import (
	"context"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

// SubdomainLister is the read side of the reconciler
type SubdomainLister interface {
	List(ctx context.Context) ([]*types.SubdomainInfo, error)
}

// Collector periodically refreshes inventory gauges from live provider state
type Collector struct {
	lister   SubdomainLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(lister SubdomainLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Collector{
		lister:   lister,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	infos, err := c.lister.List(ctx)
	if err != nil {
		log.Logger.Warn().Err(err).Str("component", "metrics").Msg("failed to collect subdomain metrics")
		return
	}

	Observe(infos)
}

// Observe sets inventory gauges from a list of active subdomains
func Observe(infos []*types.SubdomainInfo) {
	SubdomainsActive.Set(float64(len(infos)))

	CertificateDaysLeft.Reset()
	for _, info := range infos {
		if info.CertStatus.Exists {
			CertificateDaysLeft.WithLabelValues(info.FullDomain).Set(float64(info.CertStatus.DaysLeft))
		}
	}
}
