package tokenlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const listBody = `[
	{"address":"So11111111111111111111111111111111111111112","name":"Wrapped SOL","symbol":"SOL","decimals":9,"logoURI":"https://img/sol.png","tags":["verified"]},
	{"address":"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn","name":"Jito Staked SOL","symbol":"JitoSOL","decimals":9,"tags":["verified","lst"]}
]`

func TestRegistryRefreshAndLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listBody))
	}))
	defer server.Close()

	reg := NewRegistry(server.URL, time.Minute, zap.NewNop())
	require.NoError(t, reg.Refresh(context.Background()))

	meta, ok := reg.Lookup("So11111111111111111111111111111111111111112")
	require.True(t, ok)
	assert.Equal(t, "SOL", meta.Symbol)
	assert.False(t, meta.LST)

	meta, ok = reg.Lookup("J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn")
	require.True(t, ok)
	assert.True(t, meta.LST, "lst tag must set the LST flag")

	_, ok = reg.Lookup("UnknownMint")
	assert.False(t, ok)

	dec, ok := reg.Decimals("So11111111111111111111111111111111111111112")
	require.True(t, ok)
	assert.Equal(t, uint8(9), dec)

	assert.Len(t, reg.Listed(), 2)
	assert.Len(t, reg.Mints(), 2)
}

func TestRegistryWrappedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokens":` + listBody + `}`))
	}))
	defer server.Close()

	reg := NewRegistry(server.URL, time.Minute, zap.NewNop())
	require.NoError(t, reg.Refresh(context.Background()))
	assert.Len(t, reg.Listed(), 2)
}

func TestRegistryHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	reg := NewRegistry(server.URL, time.Minute, zap.NewNop())
	assert.Error(t, reg.Refresh(context.Background()))
}
