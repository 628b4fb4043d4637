package connectivity

import (
	"context"
	"log"
	"os"
	"time"
)

// DefaultProbeTimeout bounds a single reachability check
const DefaultProbeTimeout = 5 * time.Second

// Pinger is anything that can check that the remote store answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober feeds a Gate from periodic pings
type Prober struct {
	gate    *Gate
	pinger  Pinger
	timeout time.Duration
	logger  *log.Logger
}

// NewProber creates a prober. A zero timeout uses DefaultProbeTimeout.
func NewProber(gate *Gate, pinger Pinger, timeout time.Duration, logger *log.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	return &Prober{gate: gate, pinger: pinger, timeout: timeout, logger: logger}
}

// Probe pings once, updates the gate and returns the new state
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	if err != nil && p.gate.Online() {
		p.logger.Printf("probe failed: %v", err)
	}

	online := err == nil
	p.gate.Set(online)
	return online
}
