// Package profile defines the power profiles mirrored to the thermal control interface
// and the pure transitions between them.
package profile

import "strings"

// Profile is an operating mode. Its value is the code written to the control interface;
// codes are a contract with the thermal driver and must never be renumbered.
type Profile int

const (
	Unknown      Profile = -1
	Default      Profile = 0
	BatterySaver Profile = 1
	Performance  Profile = 6
)

type descriptor struct {
	name            string
	performanceFlag int
	next            Profile
}

var profiles = map[Profile]descriptor{
	Default:      {name: "default", performanceFlag: 1, next: BatterySaver},
	BatterySaver: {name: "battery_saver", performanceFlag: 0, next: Performance},
	Performance:  {name: "performance", performanceFlag: 2, next: Default},
}

var unknown = descriptor{name: "unknown", performanceFlag: 1, next: Default}

func (p Profile) describe() descriptor {
	if d, ok := profiles[p]; ok {
		return d
	}

	return unknown
}

// Next returns the successor of p in the user-visible cycle.
func Next(p Profile) Profile {
	return p.describe().next
}

// FromCode maps a control interface value to its profile, or Unknown.
func FromCode(code int) Profile {
	if _, ok := profiles[Profile(code)]; ok {
		return Profile(code)
	}

	return Unknown
}

// Code returns the value written to the control interface.
func (p Profile) Code() int {
	if !p.IsValid() {
		return int(Unknown)
	}

	return int(p)
}

// PerformanceFlag returns the value of the system-wide performance-active property.
func (p Profile) PerformanceFlag() int {
	return p.describe().performanceFlag
}

// IsValid reports whether p may be applied or persisted.
func (p Profile) IsValid() bool {
	_, ok := profiles[p]
	return ok
}

func (p Profile) String() string {
	return p.describe().name
}

// Parse maps a profile name back to the profile, or Unknown.
func Parse(name string) Profile {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range All() {
		if p.String() == name {
			return p
		}
	}

	return Unknown
}

// All returns the valid profiles in cycle order starting at Default.
func All() []Profile {
	return []Profile{Default, BatterySaver, Performance}
}
