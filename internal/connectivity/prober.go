package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Prober periodically checks that the remote service answers HTTP and feeds
// the result into a Monitor. Any HTTP response counts as reachable.
type Prober struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	client   *http.Client
}

// NewProber creates a prober for url
func NewProber(monitor *Monitor, url string, interval, timeout time.Duration) *Prober {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true

	return &Prober{
		monitor:  monitor,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout, Transport: transport},
	}
}

// Check probes once and updates the monitor
func (p *Prober) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	if ctx.Err() != nil {
		return p.monitor.Online()
	}
	p.monitor.Set(online)
	return online
}

// Run probes immediately and then every interval until ctx is done
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.client.CloseIdleConnections()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Prober) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		log.Error().Err(err).Str("url", p.url).Msg("Invalid probe URL")
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Str("url", p.url).Msg("Probe failed")
		}
		return false
	}
	resp.Body.Close()
	return true
}
