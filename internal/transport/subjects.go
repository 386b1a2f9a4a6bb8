package transport

import "fmt"

// Well-known subjects for the sequencer backbone. A single Sequencer
// instance owns the ingress queue group and the egress fan-out subject;
// every connected strategy gets its own request/reply subject keyed by
// connection id.
const (
	IngressSubject   = "sequencer.ingress"
	IngressQueue     = "sequencer"
	EgressSubject    = "sequencer.egress"
	strategySubjectF = "sequencer.strategy.%s"
)

// StrategySubject returns the synchronous request/reply subject the
// Sequencer uses to round-trip a message to the strategy identified by
// connectionID. It is opened on CONNECT and retired on DISCONNECT.
func StrategySubject(connectionID string) string {
	return fmt.Sprintf(strategySubjectF, connectionID)
}
