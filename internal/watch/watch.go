// Package watch delivers content changes of single files using inotify.
package watch

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

const (
	ErrWatchFailed = errors.ErrorCode("watch_failed")
	ErrInvalidPath = errors.ErrorCode("watch_invalid_path")
)

// Handler receives the new content of a watched file.
type Handler func(content []byte)

// Subscription is an active watch on one file.
type Subscription struct {
	watcher *fsnotify.Watcher
	fs      afero.Fs
	path    string
	handler Handler
	logger  logger.Logger

	last    []byte
	present bool
	dedupe  bool

	closeOnce sync.Once
	done      chan struct{}
}

// File watches path and calls handler from a dedicated goroutine whenever the file's
// content differs from what was last seen. The content at subscription time is the
// baseline and is not delivered. The parent directory is watched so that files which
// are replaced by rename or created later are still followed.
func File(fs afero.Fs, path string, handler Handler, log logger.Logger) (*Subscription, error) {
	return subscribe(fs, path, handler, true, log)
}

// Writes is like File but calls handler after every write, even when the content is
// unchanged. Callers that also write the file use it and compare the content with
// their own state.
func Writes(fs afero.Fs, path string, handler Handler, log logger.Logger) (*Subscription, error) {
	return subscribe(fs, path, handler, false, log)
}

func subscribe(fs afero.Fs, path string, handler Handler, dedupe bool, log logger.Logger) (*Subscription, error) {
	errFactory := errors.New()

	if path == "" || handler == nil {
		return nil, errFactory.WithData(ErrInvalidPath, path)
	}

	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errFactory.Wrap(ErrWatchFailed, err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, errFactory.Wrap(ErrWatchFailed, err).WithData(struct {
			Path  string
			Error string
		}{Path: path, Error: err.Error()})
	}

	s := &Subscription{
		watcher: watcher,
		fs:      fs,
		path:    path,
		handler: handler,
		logger:  log,
		dedupe:  dedupe,
		done:    make(chan struct{}),
	}

	if data, err := afero.ReadFile(fs, path); err == nil {
		s.last = data
		s.present = true
	}

	go s.run()

	log.Debug().Str("path", path).Msg("Watching file")

	return s, nil
}

func (s *Subscription) run() {
	defer close(s.done)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.deliver()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Watch error")
		}
	}
}

func (s *Subscription) deliver() {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Str("path", s.path).Msg("Failed to read watched file")
		}
		return
	}

	// Writers that truncate first produce an empty intermediate event.
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}

	if s.dedupe && s.present && bytes.Equal(data, s.last) {
		return
	}
	s.last = data
	s.present = true

	s.handler(data)
}

// Close stops the watch and waits until no handler is running. It is safe to call
// more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
		<-s.done
		s.logger.Debug().Str("path", s.path).Msg("Stopped watching file")
	})

	if err != nil {
		return errors.New().Wrap(ErrWatchFailed, err)
	}
	return nil
}
