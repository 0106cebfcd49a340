// Package storetest provides an in-memory store for tests of packages that persist
// state.
package storetest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/store"
)

// Memory is a store.Store kept in process memory. It applies the same defaults and
// validation as the sqlite repository.
type Memory struct {
	mu          sync.Mutex
	settings    map[string]string
	overrides   map[string]struct{}
	transitions []store.Transition
	writeErr    error
}

var _ store.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		settings:  make(map[string]string),
		overrides: make(map[string]struct{}),
	}
}

// FailWrites makes every subsequent mutation return err; nil restores normal behaviour.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *Memory) SavedProfile() (profile.Profile, bool, error) {
	code, ok := m.getInt(store.KeySavedProfile)
	if !ok {
		return profile.Default, false, nil
	}
	return profile.FromCode(code), true, nil
}

func (m *Memory) SetSavedProfile(p profile.Profile) error {
	if !p.IsValid() {
		return errors.New().WithData(store.ErrInvalidProfile, p.String())
	}
	return m.put(store.KeySavedProfile, strconv.Itoa(p.Code()))
}

func (m *Memory) PreviousProfile() (profile.Profile, error) {
	code, ok := m.getInt(store.KeyPreviousProfile)
	if !ok {
		return profile.Default, nil
	}
	return profile.FromCode(code), nil
}

func (m *Memory) SetPreviousProfile(p profile.Profile) error {
	if p == profile.BatterySaver {
		return errors.New().WithData(store.ErrInvalidProfile, p.String())
	}
	return m.put(store.KeyPreviousProfile, strconv.Itoa(p.Code()))
}

func (m *Memory) GlobalFeature() (bool, error) {
	value, ok := m.getInt(store.KeyFeatureGlobal)
	return ok && value != 0, nil
}

func (m *Memory) SetGlobalFeature(enabled bool) error {
	return m.put(store.KeyFeatureGlobal, strconv.Itoa(flag(enabled)))
}

func (m *Memory) AppOverrides() (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	apps := make(map[string]struct{}, len(m.overrides))
	for app := range m.overrides {
		apps[app] = struct{}{}
	}
	return apps, nil
}

func (m *Memory) SetAppOverride(app string, enabled bool) error {
	app = strings.TrimSpace(app)
	if app == "" {
		return errors.New().New(store.ErrInvalidApp)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return errors.New().Wrap(store.ErrStorageAccess, m.writeErr)
	}
	if enabled {
		m.overrides[app] = struct{}{}
	} else {
		delete(m.overrides, app)
	}
	return nil
}

func (m *Memory) BootTime() (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.settings[store.KeyBootTime]
	if !ok {
		return 0, false, nil
	}
	bootTime, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, errors.New().Wrap(store.ErrCorruptValue, err)
	}
	return bootTime, true, nil
}

func (m *Memory) SetBootTime(bootTime uint64) error {
	return m.put(store.KeyBootTime, strconv.FormatUint(bootTime, 10))
}

func (m *Memory) RecordTransition(_ context.Context, t store.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return errors.New().Wrap(store.ErrStorageAccess, m.writeErr)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *Memory) Transitions(_ context.Context, limit int) ([]store.Transition, error) {
	if limit <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidArgument, "limit must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.Transition
	for i := len(m.transitions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.transitions[i])
	}
	return out, nil
}

func (*Memory) Close() error {
	return nil
}

func (m *Memory) getInt(key string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.settings[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (m *Memory) put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return errors.New().Wrap(store.ErrStorageAccess, m.writeErr)
	}
	m.settings[key] = value
	return nil
}

func flag(enabled bool) int {
	if enabled {
		return 1
	}
	return 0
}
