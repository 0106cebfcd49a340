package power

import (
	"context"

	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/store"
)

// Writer accesses the control interfaces.
type Writer interface {
	Read(path string) (int, bool)
	WriteIfChanged(path string, value int) error
}

// Store is the part of the persisted state the coordinator owns.
type Store interface {
	SavedProfile() (profile.Profile, bool, error)
	SetSavedProfile(p profile.Profile) error
	PreviousProfile() (profile.Profile, error)
	SetPreviousProfile(p profile.Profile) error
	RecordTransition(ctx context.Context, t store.Transition) error
}

// Subscription is a registered callback that can be released.
type Subscription interface {
	Close() error
}

// PowerSaveSignal is the externally owned power-save toggle. Other agents may flip it
// at any time. Subscribe calls the handler from another goroutine after each change;
// deliveries may repeat or carry a value that is already stale.
type PowerSaveSignal interface {
	Enabled() bool
	Set(enabled bool) error
	Subscribe(handler func(enabled bool)) (Subscription, error)
}

type ChargingSource interface {
	IsCharging() bool
}

// Observer is refreshed after every apply.
type Observer interface {
	ProfileChanged(p profile.Profile, available bool)
}

// Indicator is the persistent "performance active" notice.
type Indicator interface {
	RaiseIndicator()
	CancelIndicator()
}

// FeatureOverride receives the sampling override tied to Performance.
type FeatureOverride interface {
	SetOverride(enabled bool)
}

type nopObserver struct{}

func (nopObserver) ProfileChanged(profile.Profile, bool) {}

type nopIndicator struct{}

func (nopIndicator) RaiseIndicator()  {}
func (nopIndicator) CancelIndicator() {}

type nopFeature struct{}

func (nopFeature) SetOverride(bool) {}
