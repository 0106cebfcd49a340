package store

import (
	"context"
	"time"

	"codeberg.org/mutker/perfctl/internal/profile"
)

// Keys of the settings table.
const (
	KeySavedProfile    = "saved_profile"
	KeyPreviousProfile = "previous_profile"
	KeyFeatureGlobal   = "feature_global"
	KeyBootTime        = "boot_time"
)

// Store persists the profile and feature state across restarts and reboots.
// Reads of absent keys return the documented defaults: Default for profiles,
// false for the global feature flag, an empty override set.
type Store interface {
	// SavedProfile returns the last explicitly applied profile. ok is false before
	// the first apply on this device.
	SavedProfile() (p profile.Profile, ok bool, err error)
	SetSavedProfile(p profile.Profile) error

	// PreviousProfile is the profile to restore when battery saver is switched off
	// externally. It is never BatterySaver.
	PreviousProfile() (profile.Profile, error)
	SetPreviousProfile(p profile.Profile) error

	GlobalFeature() (bool, error)
	SetGlobalFeature(enabled bool) error

	AppOverrides() (map[string]struct{}, error)
	SetAppOverride(app string, enabled bool) error

	BootTime() (bootTime uint64, ok bool, err error)
	SetBootTime(bootTime uint64) error

	RecordTransition(ctx context.Context, t Transition) error
	Transitions(ctx context.Context, limit int) ([]Transition, error)

	Close() error
}

// Trigger names what caused a profile transition.
type Trigger string

const (
	TriggerActivate     Trigger = "activate"
	TriggerUser         Trigger = "user"
	TriggerBatterySaver Trigger = "battery_saver"
	TriggerRestore      Trigger = "restore"
)

// Transition is a journal entry for a successful profile apply.
type Transition struct {
	Timestamp time.Time
	From      profile.Profile
	To        profile.Profile
	Trigger   Trigger
}
