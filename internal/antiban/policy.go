// Package antiban pauses every campaign bound to a channel account when the
// account's recent send failure rate suggests the messaging network is
// starting to restrict it.
package antiban

import (
	"time"

	"github.com/ignite/prospect-cadence/internal/config"
)

// Verdict is the outcome of evaluating an account's recent sends.
type Verdict int

const (
	// Insufficient means too few sends in the window to judge.
	Insufficient Verdict = iota
	Healthy
	// Trip means the failure rate exceeded the policy maximum.
	Trip
)

func (v Verdict) String() string {
	switch v {
	case Healthy:
		return "healthy"
	case Trip:
		return "trip"
	default:
		return "insufficient"
	}
}

// Policy is the circuit breaker configuration.
type Policy struct {
	Window         time.Duration
	MinSamples     int
	MaxFailureRate float64
}

// DefaultPolicy trips at more than 20% failures over at least 10 sends in
// the last hour.
var DefaultPolicy = Policy{
	Window:         time.Hour,
	MinSamples:     10,
	MaxFailureRate: 0.20,
}

// PolicyFromConfig builds a policy from cfg. Configuration may lower the
// sample floor or the failure ceiling but never loosen either past the
// default, and the window stays at one hour.
func PolicyFromConfig(cfg config.AntiBanConfig) Policy {
	p := DefaultPolicy
	if cfg.MinSamples > 0 {
		p.MinSamples = min(cfg.MinSamples, DefaultPolicy.MinSamples)
	}
	if cfg.MaxFailureRate > 0 {
		p.MaxFailureRate = min(cfg.MaxFailureRate, DefaultPolicy.MaxFailureRate)
	}
	return p
}

// Evaluate classifies total and failed send counts from the window. The
// failure rate must strictly exceed MaxFailureRate to trip.
func (p Policy) Evaluate(total, failed int) Verdict {
	if total < p.MinSamples || total <= 0 {
		return Insufficient
	}
	if FailureRate(total, failed) > p.MaxFailureRate {
		return Trip
	}
	return Healthy
}

// FailureRate returns failed/total, or 0 when nothing was sent.
func FailureRate(total, failed int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
