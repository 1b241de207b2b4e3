package coordinator

import (
	"encoding/json"
	"time"

	"github.com/keymq/keymq/internal/model"
)

// Wire types for the coordinator HTTP surface.

type ProduceRequest struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

type ProduceResponse struct {
	Success            bool                      `json:"success"`
	Key                string                    `json:"key"`
	KeyHash            uint32                    `json:"keyHash"`
	Primary            string                    `json:"primary"`
	Replicas           []string                  `json:"replicas"`
	ReplicationResults []model.ReplicationResult `json:"replicationResults"`
}

type ConsumeResponse struct {
	Success   bool            `json:"success"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Role      model.Role      `json:"role"`
	ServedBy  string          `json:"servedBy"`
	Source    string          `json:"source"`
	Failover  bool            `json:"failover"`
}

type RingNodeInfo struct {
	URL              string  `json:"url"`
	VirtualNodeCount int     `json:"virtualNodeCount"`
	RingCoverage     float64 `json:"ringCoverage"`
}

type RingResponse struct {
	TotalNodes        int                     `json:"totalNodes"`
	VirtualNodeCount  int                     `json:"virtualNodeCount"`
	TotalVirtualNodes int                     `json:"totalVirtualNodes"`
	HashSpace         string                  `json:"hashSpace"`
	Nodes             map[string]RingNodeInfo `json:"nodes"`
}

type RouteResponse struct {
	Key            string   `json:"key"`
	KeyHash        uint32   `json:"keyHash"`
	Primary        string   `json:"primary"`
	PrimaryURL     string   `json:"primaryUrl"`
	Replicas       []string `json:"replicas"`
	ReplicaURLs    []string `json:"replicaUrls"`
	FailoverActive bool     `json:"failoverActive"`
}

type FailoverStatusResponse struct {
	TotalFailovers   int                   `json:"totalFailovers"`
	ActivePromotions map[string]string     `json:"activePromotions"`
	Events           []model.FailoverEvent `json:"events"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}
