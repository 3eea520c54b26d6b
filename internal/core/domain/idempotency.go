package domain

import (
	"time"
)

// ProcessedEvent marks an inbound event as handled. A second delivery of the
// same EventID short-circuits to the stored Result without re-running side
// effects. Written once, never updated; pruning is an operational concern.
type ProcessedEvent struct {
	EventID     string
	EventType   EventType
	ProcessedAt time.Time
	Result      []byte
}
