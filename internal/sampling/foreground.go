package sampling

import (
	"bytes"
	"context"
	"strconv"

	"codeberg.org/mutker/perfctl/internal/errors"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/afero"
)

// Sampler returns the identity of the foreground application.
type Sampler interface {
	Foreground(ctx context.Context) (string, error)
}

// ProcessSampler resolves the PID published by the compositor to a process name.
type ProcessSampler struct {
	fs      afero.Fs
	pidPath string
}

var _ Sampler = (*ProcessSampler)(nil)

func NewProcessSampler(fs afero.Fs, pidPath string) *ProcessSampler {
	return &ProcessSampler{fs: fs, pidPath: pidPath}
}

func (s *ProcessSampler) Foreground(ctx context.Context) (string, error) {
	errFactory := errors.New()

	data, err := afero.ReadFile(s.fs, s.pidPath)
	if err != nil {
		return "", errFactory.Wrap(ErrForegroundFailed, err)
	}

	pid, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 32)
	if err != nil || pid <= 0 {
		return "", errFactory.WithData(ErrForegroundFailed, struct {
			Path  string
			Value string
		}{Path: s.pidPath, Value: string(bytes.TrimSpace(data))})
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", errFactory.Wrap(ErrForegroundFailed, err)
	}

	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return "", errFactory.Wrap(ErrForegroundFailed, err)
	}

	return name, nil
}
