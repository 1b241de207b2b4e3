package model

import (
	"encoding/json"
	"time"
)

// BrokerNode identifies a broker in the static topology. Registration order
// matters: the failover controller walks this list clockwise when selecting
// a promotion target.
type BrokerNode struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Role tags a stored message entry on a broker.
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// MessageEntry is a broker-local record for one key. Last writer wins on key
// collision within a node.
type MessageEntry struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Role      Role            `json:"role"`
	ReplicaOf string          `json:"replicaOf,omitempty"`
}

// AuditKind classifies a broker audit record.
type AuditKind string

const (
	AuditStoredAsPrimary   AuditKind = "stored_as_primary"
	AuditStoredAsReplica   AuditKind = "stored_as_replica"
	AuditPromotedToPrimary AuditKind = "promoted_to_primary"
)

// AuditRecord is one entry in a broker's append-only audit log.
type AuditRecord struct {
	Kind      AuditKind `json:"kind"`
	Key       string    `json:"key,omitempty"`
	ReplicaOf string    `json:"replicaOf,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
