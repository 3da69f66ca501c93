// Package integrations tracks which external-venue capabilities are enabled
// on the vault.
package integrations

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Integration is one on/off capability tied to an external venue. Enabled
// reflects remote account state and is never authoritative locally.
type Integration struct {
	ID          int      `json:"id"`
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
	Enabled     bool     `json:"enabled"`
	ComingSoon  bool     `json:"comingSoon"`
}

// StateReader reports which integration keys the remote account has enabled.
type StateReader interface {
	EnabledIntegrations(ctx context.Context) (map[string]bool, error)
}

// StateWriter toggles an integration on the remote account.
type StateWriter interface {
	SetIntegration(ctx context.Context, key string, enabled bool) (string, error)
}

// Defaults lists the integrations the dashboard knows about.
func Defaults() []Integration {
	return []Integration{
		{ID: 1, Key: "drift", Name: "Drift", Description: "Spot and perps trading on Drift", Labels: []string{"trading", "margin"}},
		{ID: 2, Key: "jupiterSwap", Name: "Jupiter Swap", Description: "Token swaps routed through Jupiter", Labels: []string{"trading"}},
		{ID: 3, Key: "nativeStaking", Name: "Native Staking", Description: "Stake SOL to validators", Labels: []string{"staking"}},
		{ID: 4, Key: "marinade", Name: "Marinade", Description: "Liquid staking via Marinade", Labels: []string{"staking", "lst"}},
		{ID: 5, Key: "kamino", Name: "Kamino", Description: "Lending and leverage vaults", Labels: []string{"lending"}, ComingSoon: true},
	}
}

// Registry merges the static integration catalog with remote enablement
// state.
type Registry struct {
	reader StateReader
	writer StateWriter
	logger *zap.Logger

	mu   sync.RWMutex
	defs []Integration
}

// NewRegistry builds a registry over the default catalog.
func NewRegistry(reader StateReader, writer StateWriter, logger *zap.Logger) *Registry {
	return &Registry{
		reader: reader,
		writer: writer,
		logger: logger.Named("integrations"),
		defs:   Defaults(),
	}
}

// List returns the catalog with Enabled derived from remote account state.
func (r *Registry) List(ctx context.Context) ([]Integration, error) {
	enabled, err := r.reader.EnabledIntegrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read integration state: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Integration, len(r.defs))
	copy(out, r.defs)
	for i := range out {
		out[i].Enabled = enabled[out[i].Key]
	}
	return out, nil
}

// Toggle flips an integration on the remote account and returns the
// transaction identifier. Coming-soon integrations cannot be toggled.
func (r *Registry) Toggle(ctx context.Context, key string, enable bool) (string, error) {
	r.mu.RLock()
	var found *Integration
	for i := range r.defs {
		if r.defs[i].Key == key {
			found = &r.defs[i]
			break
		}
	}
	r.mu.RUnlock()

	if found == nil {
		return "", fmt.Errorf("unknown integration %q", key)
	}
	if found.ComingSoon {
		return "", fmt.Errorf("integration %q is not yet available", key)
	}

	txID, err := r.writer.SetIntegration(ctx, key, enable)
	if err != nil {
		return "", fmt.Errorf("failed to update integration %q: %w", key, err)
	}

	r.logger.Info("integration toggled",
		zap.String("key", key),
		zap.Bool("enabled", enable),
		zap.String("tx", txID))
	return txID, nil
}
