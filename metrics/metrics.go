package metrics

import "time"

// Metric names recorded by the flows.
const (
	Transfers          = "transfers"
	ConsolidationSteps = "consolidation_steps"
	Settlements        = "settlements"
	Attestation        = "attestation"
	Transfer           = "transfer"
	Settle             = "settle"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Outcome is the label value for err.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
