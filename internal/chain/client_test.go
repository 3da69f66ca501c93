package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func poolOf(urls ...string) *Client {
	clients := make([]*RPCClient, len(urls))
	for i, u := range urls {
		clients[i] = &RPCClient{URL: u, active: true, metrics: &RPCMetrics{}}
	}
	return &Client{rpcClients: clients, logger: zap.NewNop()}
}

func TestGetNextClientRoundRobin(t *testing.T) {
	c := poolOf("a", "b", "c")

	seen := []string{
		c.getNextClient().URL,
		c.getNextClient().URL,
		c.getNextClient().URL,
		c.getNextClient().URL,
	}
	assert.Equal(t, []string{"b", "c", "a", "b"}, seen)
}

func TestGetNextClientSkipsInactive(t *testing.T) {
	c := poolOf("a", "b", "c")
	c.rpcClients[1].setActive(false)

	for i := 0; i < 4; i++ {
		client := c.getNextClient()
		require.NotNil(t, client)
		assert.NotEqual(t, "b", client.URL)
	}
}

func TestGetNextClientAllInactive(t *testing.T) {
	c := poolOf("a", "b")
	c.rpcClients[0].setActive(false)
	c.rpcClients[1].setActive(false)

	assert.Nil(t, c.getNextClient())
	assert.False(t, c.hasActiveClients())
}

func TestNewClientRejectsEmptyList(t *testing.T) {
	_, err := NewClient(nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestTokenAccountRowUnknownDecimals(t *testing.T) {
	row := tokenAccountRow("MintA", "ata-a", 1_500_000, 6, true)
	assert.Equal(t, 1.5, row.UIAmount)
	assert.Equal(t, uint8(6), row.Decimals)

	// Unknown decimals must not let the raw base-unit amount pass as the
	// ui balance.
	row = tokenAccountRow("MintB", "ata-b", 1_500_000, 0, false)
	assert.Equal(t, uint64(1_500_000), row.Amount)
	assert.Equal(t, 0.0, row.UIAmount)
	assert.Equal(t, uint8(0), row.Decimals)
}

func TestUIAmount(t *testing.T) {
	assert.Equal(t, 1.5, uiAmount(1_500_000, 6))
	assert.Equal(t, 2.0, uiAmount(2_000_000_000, 9))
	assert.Equal(t, 7.0, uiAmount(7, 0))
}
