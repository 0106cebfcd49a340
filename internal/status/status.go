// Package status publishes the daemon state as a YAML document for UI collaborators.
// Every update bumps Revision, which readers use as the refresh notification.
package status

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/profile"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	ErrWriteFailed = errors.ErrorCode("status_write_failed")
	ErrReadFailed  = errors.ErrorCode("status_read_failed")
	ErrDecode      = errors.ErrorCode("status_decode_failed")

	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// Document is the published state.
type Document struct {
	Profile           string    `yaml:"profile"`
	Code              int       `yaml:"code"`
	Available         bool      `yaml:"available"`
	PerformanceActive bool      `yaml:"performance_active"`
	FeatureGlobal     bool      `yaml:"feature_global"`
	Revision          uint64    `yaml:"revision"`
	UpdatedAt         time.Time `yaml:"updated_at"`
}

type Publisher struct {
	fs     afero.Fs
	path   string
	logger logger.Logger

	mu  sync.Mutex
	doc Document
}

func NewPublisher(fs afero.Fs, path string, log logger.Logger) *Publisher {
	return &Publisher{
		fs:     fs,
		path:   path,
		logger: log,
		doc: Document{
			Profile: profile.Unknown.String(),
			Code:    profile.Unknown.Code(),
		},
	}
}

// ProfileChanged records the applied profile and whether profiles are managed at all.
func (p *Publisher) ProfileChanged(prof profile.Profile, available bool) {
	p.update(func(d *Document) {
		d.Profile = prof.String()
		d.Code = prof.Code()
		d.Available = available
	})
}

// RaiseIndicator marks Performance as active.
func (p *Publisher) RaiseIndicator() {
	p.update(func(d *Document) { d.PerformanceActive = true })
}

func (p *Publisher) CancelIndicator() {
	p.update(func(d *Document) { d.PerformanceActive = false })
}

func (p *Publisher) FeatureChanged(global bool) {
	p.update(func(d *Document) { d.FeatureGlobal = global })
}

// Snapshot returns the last published document.
func (p *Publisher) Snapshot() Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

func (p *Publisher) update(fn func(*Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(&p.doc)
	p.doc.Revision++
	p.doc.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	if err := p.write(p.doc); err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("Failed to publish status")
	}
}

// write replaces the document atomically so readers never see a partial file.
func (p *Publisher) write(doc Document) error {
	errFactory := errors.New()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	if err := p.fs.MkdirAll(filepath.Dir(p.path), defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	tmp := p.path + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, data, defaultFilePerm); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	if err := p.fs.Rename(tmp, p.path); err != nil {
		_ = p.fs.Remove(tmp)
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// Read loads a published document.
func Read(fs afero.Fs, path string) (Document, error) {
	errFactory := errors.New()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, errFactory.Wrap(errors.ErrNotRunning, err)
		}
		return Document{}, errFactory.Wrap(ErrReadFailed, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, errFactory.Wrap(ErrDecode, err)
	}

	// The name and the code are written together and must agree.
	if profile.Parse(doc.Profile).Code() != doc.Code {
		return Document{}, errFactory.WithData(ErrDecode, struct {
			Profile string
			Code    int
		}{Profile: doc.Profile, Code: doc.Code})
	}

	return doc, nil
}
