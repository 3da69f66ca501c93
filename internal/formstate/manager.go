package formstate

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

const keyPrefix = "formstate:"

// Known form names.
const (
	FormSwap  = "swap"
	FormSpot  = "spot"
	FormPerps = "perps"
)

// DefaultAllowLists declares, per form, which fields survive a reload.
// Anything not listed here never reaches the store: transient confirmation
// flags and one-off inputs stay session-local.
func DefaultAllowLists() map[string][]string {
	return map[string][]string{
		FormSwap:  {"slippage", "dexes", "onlyDirectRoutes", "maxAccounts", "versionedTx", "exactMode"},
		FormSpot:  {"market", "orderType", "postOnly", "reduceOnly"},
		FormPerps: {"market", "orderType", "leverage", "reduceOnly"},
	}
}

// Manager saves and restores form state through a Store, filtering every
// read and write to the form's allow-list. There is no schema versioning:
// unknown stored fields are dropped on load, missing fields fall back to the
// form's declared defaults at the call site.
type Manager struct {
	store      Store
	allowLists map[string][]string
	logger     *zap.Logger
}

// NewManager wires a manager over the given store. Nil allowLists selects
// the defaults.
func NewManager(store Store, allowLists map[string][]string, logger *zap.Logger) *Manager {
	if allowLists == nil {
		allowLists = DefaultAllowLists()
	}
	return &Manager{
		store:      store,
		allowLists: allowLists,
		logger:     logger.Named("formstate"),
	}
}

// Save overwrites the stored blob for form with the allow-listed subset of
// fields.
func (m *Manager) Save(ctx context.Context, form string, fields map[string]any) error {
	allowed, ok := m.allowLists[form]
	if !ok {
		return fmt.Errorf("unknown form %q", form)
	}

	filtered := filterFields(fields, allowed)
	data, err := json.Marshal(filtered)
	if err != nil {
		return fmt.Errorf("failed to encode form state: %w", err)
	}

	if err := m.store.Set(ctx, keyPrefix+form, data); err != nil {
		return fmt.Errorf("failed to persist form state: %w", err)
	}

	m.logger.Debug("form state saved",
		zap.String("form", form),
		zap.Int("fields", len(filtered)))
	return nil
}

// Load returns the persisted allow-listed fields for form. A never-saved
// form loads as an empty map. Stored fields that have since left the
// allow-list are dropped silently.
func (m *Manager) Load(ctx context.Context, form string) (map[string]any, error) {
	allowed, ok := m.allowLists[form]
	if !ok {
		return nil, fmt.Errorf("unknown form %q", form)
	}

	data, err := m.store.Get(ctx, keyPrefix+form)
	if err != nil {
		if err == ErrNotFound {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read form state: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		// A corrupt blob behaves like a missing one rather than
		// blocking the form.
		m.logger.Warn("discarding unreadable form state",
			zap.String("form", form),
			zap.Error(err))
		return map[string]any{}, nil
	}

	return filterFields(fields, allowed), nil
}

// Reset removes the stored state for form.
func (m *Manager) Reset(ctx context.Context, form string) error {
	if _, ok := m.allowLists[form]; !ok {
		return fmt.Errorf("unknown form %q", form)
	}
	return m.store.Delete(ctx, keyPrefix+form)
}

// Forms lists the form names this manager persists.
func (m *Manager) Forms() []string {
	names := make([]string, 0, len(m.allowLists))
	for name := range m.allowLists {
		names = append(names, name)
	}
	return names
}

func filterFields(fields map[string]any, allowed []string) map[string]any {
	out := make(map[string]any, len(allowed))
	for _, name := range allowed {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}
