package model

import "time"

// HealthState is the coordinator's view of one broker's liveness.
type HealthState string

const (
	StateHealthy    HealthState = "HEALTHY"
	StateFailed     HealthState = "FAILED"
	StateFailedOver HealthState = "FAILED_OVER"
	StateRecovered  HealthState = "RECOVERED"
)

// HealthRecord tracks probe history for one broker. FailCount resets on the
// first successful probe after a failure episode.
type HealthRecord struct {
	Status      HealthState `json:"status"`
	FailCount   int         `json:"failCount"`
	LastCheck   *time.Time  `json:"lastCheck"`
	LastSuccess *time.Time  `json:"lastSuccess"`
	FailedAt    *time.Time  `json:"failedAt"`
}

// FailoverEvent is one entry in the coordinator's append-only failover log.
type FailoverEvent struct {
	ID           string    `json:"id"`
	FailedNode   string    `json:"failedNode"`
	PromotedNode string    `json:"promotedNode"`
	Timestamp    time.Time `json:"timestamp"`
}
