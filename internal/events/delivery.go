// Package events holds the delivery contract shared by the Kafka and
// in-memory transports: at-least-once, ordered per partition key, no
// global ordering.
package events

import (
	"context"
	"errors"
)

// TraceHeader carries the trace id across the transport.
const TraceHeader = "X-Trace-Id"

// Message is one delivery of a published payload.
type Message struct {
	Topic   string
	Key     string // partition key, the account id for ledger events
	Value   []byte
	TraceID string
}

// Handler processes one message. A nil return acknowledges it. A
// permanent error acknowledges it too (redelivery cannot help); any other
// error asks the transport to redeliver.
type Handler func(ctx context.Context, msg Message) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
