package flow

import "time"

// Outcome classifies how a call attempt record was closed.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// AttemptMetrics is one record per call, updated across retries.
// The record is opened when the call enters the engine and closed
// (EndTime/Duration set) when the engine returns.
type AttemptMetrics struct {
	CallID       string        `json:"call_id"`
	Provider     string        `json:"provider"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration,omitempty"`
	Outcome      Outcome       `json:"outcome"`
	RetryCount   int           `json:"retry_count"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// ProviderHealth is the breaker-and-history derived health of one provider.
type ProviderHealth struct {
	IsHealthy   bool    `json:"is_healthy"`
	FailureRate float64 `json:"failure_rate"`
}

// LoadSnapshot describes engine load at a point in time.
type LoadSnapshot struct {
	ActiveCalls     int           `json:"active_calls"`
	QueuedCalls     int           `json:"queued_calls"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}
