package audit

import (
	"context"
	"time"

	"retailgate.org/internal/access"
)

// Record is an immutable account of one access decision.
type Record struct {
	ID               string                  `json:"id"`
	Timestamp        time.Time               `json:"timestamp"`
	UserID           string                  `json:"user_id"`
	BranchID         string                  `json:"branch_id"`
	Operation        access.Operation        `json:"operation"`
	ResourceType     access.ResourceType     `json:"resource_type"`
	AccessGranted    bool                    `json:"access_granted"`
	RestrictionLevel access.RestrictionLevel `json:"restriction_level"`
	Reason           string                  `json:"reason,omitempty"`
	Metadata         map[string]any          `json:"metadata,omitempty"`
}

// Sink persists audit records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Multi fans a record out to every sink and returns the first error.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, rec Record) error {
		var first error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Write(ctx, rec); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
