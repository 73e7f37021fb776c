package ensemble

import (
	"time"

	"github.com/google/uuid"
)

// Priority classifies an envelope for dispatcher lane selection and
// backpressure/dispatcher heuristics. The zero value is PriorityNormal.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
)

// Metadata carries everything about a delivery that is not the payload
// itself: routing hints, correlation, retry bookkeeping.
type Metadata struct {
	TypeTag       string
	Attempt       int
	CorrelationID string
	CausationID   string
	Priority      Priority
	TTL           time.Duration
	DedupID       string
	IsRequest     bool
	IsResponse    bool
}

// Envelope is the unit of delivery between a sender and a receiver PID.
type Envelope struct {
	ID        string
	Sender    *PID
	Receiver  *PID
	Payload   interface{}
	Metadata  Metadata
	Timestamp time.Time
}

// NewEnvelope builds an envelope with a fresh id and current timestamp.
func NewEnvelope(receiver *PID, payload interface{}) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Receiver:  receiver,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// WithSender returns the envelope, with Sender set, for chaining at call sites.
func (e *Envelope) WithSender(sender *PID) *Envelope {
	e.Sender = sender
	return e
}

// Expired reports whether the envelope's TTL (if any) has elapsed.
func (e *Envelope) Expired() bool {
	if e.Metadata.TTL <= 0 {
		return false
	}
	return time.Since(e.Timestamp) > e.Metadata.TTL
}

// DeliveryState tracks an envelope's progress through a MessageStore.
type DeliveryState int

const (
	DeliveryPending DeliveryState = iota
	DeliverySent
	DeliveryDelivered
	DeliveryAcknowledged
	DeliveryFailed
	DeliveryRetrying
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliverySent:
		return "sent"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryAcknowledged:
		return "acknowledged"
	case DeliveryFailed:
		return "failed"
	case DeliveryRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}
