package power

import (
	"strings"

	"codeberg.org/mutker/perfctl/internal/logger"
	"github.com/spf13/afero"
)

// SupplyStatus reports charging from the power_supply class status files.
type SupplyStatus struct {
	fs     afero.Fs
	glob   string
	logger logger.Logger
}

var _ ChargingSource = (*SupplyStatus)(nil)

func NewSupplyStatus(fs afero.Fs, glob string, log logger.Logger) *SupplyStatus {
	return &SupplyStatus{fs: fs, glob: glob, logger: log}
}

// IsCharging is true when any supply reports Charging or Full. Read failures count as
// not charging.
func (s *SupplyStatus) IsCharging() bool {
	matches, err := afero.Glob(s.fs, s.glob)
	if err != nil {
		s.logger.Debug().Err(err).Str("glob", s.glob).Msg("Invalid charging glob")
		return false
	}

	for _, path := range matches {
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(data)) {
		case "Charging", "Full":
			return true
		}
	}

	return false
}
