package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokerNodes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []BrokerEndpoint
		wantErr bool
	}{
		{
			name: "two brokers",
			raw:  "node-a=http://node-a:5000,node-b=http://node-b:5000",
			want: []BrokerEndpoint{
				{Name: "node-a", URL: "http://node-a:5000"},
				{Name: "node-b", URL: "http://node-b:5000"},
			},
		},
		{
			name: "whitespace and trailing slash trimmed",
			raw:  " node-a = http://node-a:5000/ ",
			want: []BrokerEndpoint{{Name: "node-a", URL: "http://node-a:5000"}},
		},
		{
			name: "trailing comma tolerated",
			raw:  "node-a=http://node-a:5000,",
			want: []BrokerEndpoint{{Name: "node-a", URL: "http://node-a:5000"}},
		},
		{name: "empty", raw: "", wantErr: true},
		{name: "missing url", raw: "node-a", wantErr: true},
		{name: "missing name", raw: "=http://node-a:5000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBrokerNodes(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadCoordinator_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_NODES", "node-a=http://node-a:5000,node-b=http://node-b:5000,node-c=http://node-c:5000")
	t.Setenv("REPLICATION_FACTOR", "2")
	t.Setenv("SERVER_PORT", "7100")

	cfg, err := LoadCoordinator("")
	require.NoError(t, err)

	assert.Len(t, cfg.Brokers, 3)
	assert.Equal(t, 2, cfg.Replication.Factor)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, 150, cfg.Ring.VirtualNodes)
}

func TestLoadCoordinator_RequiresBrokers(t *testing.T) {
	t.Setenv("BROKER_NODES", "")

	_, err := LoadCoordinator("")
	assert.Error(t, err)
}

func TestLoadCoordinator_RejectsBadReplicationFactor(t *testing.T) {
	t.Setenv("BROKER_NODES", "node-a=http://node-a:5000")
	t.Setenv("REPLICATION_FACTOR", "0")

	_, err := LoadCoordinator("")
	assert.Error(t, err)
}

func TestLoadBroker_Defaults(t *testing.T) {
	t.Setenv("NODE_ID", "node-a")

	cfg, err := LoadBroker("")
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.Server.NodeID)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.False(t, cfg.Gossip.Enabled)
}

func TestCoordinatorValidate_DuplicateBroker(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.Brokers = []BrokerEndpoint{
		{Name: "node-a", URL: "http://node-a:5000"},
		{Name: "node-a", URL: "http://other:5000"},
	}
	assert.Error(t, cfg.Validate())
}

func TestBrokerNodesPreserveOrder(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.Brokers = []BrokerEndpoint{
		{Name: "node-c", URL: "http://node-c:5000"},
		{Name: "node-a", URL: "http://node-a:5000"},
	}
	nodes := cfg.BrokerNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "node-c", nodes[0].Name)
	assert.Equal(t, "node-a", nodes[1].Name)
}
