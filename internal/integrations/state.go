package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openvaults/vaultdash/internal/formstate"
)

const stateKey = "integrations:enabled"

// KVState persists integration enablement in the daemon's key-value store.
// SetIntegration returns a receipt id rather than a chain signature; toggles
// here take effect locally and are reconciled with venue accounts on the
// next refresh.
type KVState struct {
	store formstate.Store

	mu sync.Mutex
}

// NewKVState wires the state over a store.
func NewKVState(store formstate.Store) *KVState {
	return &KVState{store: store}
}

// EnabledIntegrations reads the persisted enablement map. A never-written
// state reads as all-disabled.
func (s *KVState) EnabledIntegrations(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// SetIntegration persists one toggle and returns a receipt id.
func (s *KVState) SetIntegration(ctx context.Context, key string, enabled bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read(ctx)
	if err != nil {
		return "", err
	}
	state[key] = enabled

	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode integration state: %w", err)
	}
	if err := s.store.Set(ctx, stateKey, data); err != nil {
		return "", fmt.Errorf("failed to persist integration state: %w", err)
	}
	return uuid.New().String(), nil
}

func (s *KVState) read(ctx context.Context) (map[string]bool, error) {
	data, err := s.store.Get(ctx, stateKey)
	if err != nil {
		if err == formstate.ErrNotFound {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("failed to read integration state: %w", err)
	}

	var state map[string]bool
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode integration state: %w", err)
	}
	if state == nil {
		state = map[string]bool{}
	}
	return state, nil
}
