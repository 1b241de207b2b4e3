package model

import (
	"encoding/json"
	"time"
)

// Wire types for the broker HTTP surface. The coordinator's client and the
// broker's handlers share these so the two sides cannot drift.

// ReplicaTarget names one replica the primary must fan out to.
type ReplicaTarget struct {
	Node string `json:"node"`
	URL  string `json:"url"`
}

// ReplicationResult reports the outcome of one replica write. A failed
// replica write degrades the produce, it does not fail it.
type ReplicationResult struct {
	Node   string `json:"node"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	ReplicationSuccess = "success"
	ReplicationFailed  = "failed"
)

// StoreRequest is the primary-path write: store locally, then replicate.
type StoreRequest struct {
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	ReplicateTo []ReplicaTarget `json:"replicateTo"`
}

type StoreResponse struct {
	Success            bool                `json:"success"`
	Node               string              `json:"node"`
	Role               Role                `json:"role"`
	Key                string              `json:"key"`
	ReplicatedTo       []string            `json:"replicatedTo"`
	ReplicationResults []ReplicationResult `json:"replicationResults"`
}

// ReplicateRequest is the replica-path write issued by a primary.
type ReplicateRequest struct {
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	PrimaryNode string          `json:"primaryNode"`
}

type ReplicateResponse struct {
	Success bool   `json:"success"`
	Node    string `json:"node"`
	Role    Role   `json:"role"`
	Key     string `json:"key"`
}

type FetchResponse struct {
	Success   bool            `json:"success"`
	Node      string          `json:"node"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Role      Role            `json:"role"`
	ReplicaOf string          `json:"replicaOf,omitempty"`
}

type BrokerHealthResponse struct {
	Status       string    `json:"status"`
	Node         string    `json:"node"`
	MessageCount int       `json:"messageCount"`
	Timestamp    time.Time `json:"timestamp"`
}

type PromoteResponse struct {
	Success bool   `json:"success"`
	Node    string `json:"node"`
	Message string `json:"message"`
}

type MessagesResponse struct {
	Node         string                  `json:"node"`
	MessageCount int                     `json:"messageCount"`
	Messages     map[string]MessageEntry `json:"messages"`
}

// AuditSummary counts audit records by classification.
type AuditSummary struct {
	StoredAsPrimary   int `json:"storedAsPrimary"`
	StoredAsReplica   int `json:"storedAsReplica"`
	PromotedToPrimary int `json:"promotedToPrimary"`
}

type AuditLogResponse struct {
	Node            string        `json:"node"`
	Summary         AuditSummary  `json:"summary"`
	StoredAsPrimary []AuditRecord `json:"storedAsPrimary"`
	StoredAsReplica []AuditRecord `json:"storedAsReplica"`
}

// ErrorResponse is the JSON error envelope both services use.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Key     string `json:"key,omitempty"`
}
