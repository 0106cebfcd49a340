package profile_test

import (
	"testing"

	"codeberg.org/mutker/perfctl/internal/profile"
	"github.com/stretchr/testify/assert"
)

func TestCycle(t *testing.T) {
	assert.Equal(t, profile.BatterySaver, profile.Next(profile.Default))
	assert.Equal(t, profile.Performance, profile.Next(profile.BatterySaver))
	assert.Equal(t, profile.Default, profile.Next(profile.Performance))
	assert.Equal(t, profile.Default, profile.Next(profile.Unknown))

	for _, p := range profile.All() {
		assert.Equal(t, p, profile.Next(profile.Next(profile.Next(p))), p.String())
	}
}

func TestFromCode(t *testing.T) {
	tests := []struct {
		code int
		want profile.Profile
	}{
		{0, profile.Default},
		{1, profile.BatterySaver},
		{6, profile.Performance},
		{-1, profile.Unknown},
		{2, profile.Unknown},
		{19, profile.Unknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, profile.FromCode(tt.code), "code %d", tt.code)
	}
}

func TestCodesAreStable(t *testing.T) {
	assert.Equal(t, 0, profile.Default.Code())
	assert.Equal(t, 1, profile.BatterySaver.Code())
	assert.Equal(t, 6, profile.Performance.Code())
	assert.Equal(t, -1, profile.Unknown.Code())
	assert.Equal(t, -1, profile.Profile(42).Code())

	seen := map[int]profile.Profile{}
	for _, p := range profile.All() {
		_, dup := seen[p.Code()]
		assert.False(t, dup, "code %d reused", p.Code())
		seen[p.Code()] = p
		assert.Equal(t, p, profile.FromCode(p.Code()))
	}
}

func TestPerformanceFlag(t *testing.T) {
	assert.Equal(t, 1, profile.Default.PerformanceFlag())
	assert.Equal(t, 0, profile.BatterySaver.PerformanceFlag())
	assert.Equal(t, 2, profile.Performance.PerformanceFlag())
	assert.Equal(t, 1, profile.Unknown.PerformanceFlag())
}

func TestNamesRoundTrip(t *testing.T) {
	for _, p := range profile.All() {
		assert.True(t, p.IsValid())
		assert.Equal(t, p, profile.Parse(p.String()))
	}

	assert.False(t, profile.Unknown.IsValid())
	assert.Equal(t, "unknown", profile.Unknown.String())
	assert.Equal(t, profile.Unknown, profile.Parse("game"))
	assert.Equal(t, profile.Performance, profile.Parse(" Performance "))
}
