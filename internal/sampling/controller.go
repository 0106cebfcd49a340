package sampling

import (
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
)

// FlagWriter writes the sampling control interface.
type FlagWriter interface {
	WriteFlag(path string, enabled bool) error
}

// Store is the persisted feature state.
type Store interface {
	GlobalFeature() (bool, error)
	SetGlobalFeature(enabled bool) error
	AppOverrides() (map[string]struct{}, error)
	SetAppOverride(app string, enabled bool) error
}

// Notifier is told when the global switch changes.
type Notifier interface {
	FeatureChanged(global bool)
}

type ScreenEvent int

const (
	ScreenOff ScreenEvent = iota
	ScreenOn
	UserPresent
)

func (e ScreenEvent) String() string {
	switch e {
	case ScreenOff:
		return "off"
	case ScreenOn:
		return "on"
	case UserPresent:
		return "present"
	default:
		return "unknown"
	}
}

// ParseScreenEvent reads the content of the screen state file.
func ParseScreenEvent(s string) (ScreenEvent, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return ScreenOff, true
	case "on":
		return ScreenOn, true
	case "present":
		return UserPresent, true
	default:
		return ScreenOff, false
	}
}

type ControllerConfig struct {
	Path     string
	Interval time.Duration
}

// Controller owns the sampling flag lifecycle. The monitor runs only while the screen
// is on and something is enabled.
type Controller struct {
	path     string
	writer   FlagWriter
	store    Store
	notifier Notifier
	monitor  *Monitor
	logger   logger.Logger

	// lifecycle serializes operations that start or stop the monitor. It is never
	// taken by Reconcile, so stopping the monitor cannot deadlock on it.
	lifecycle sync.Mutex

	mu       sync.Mutex
	screenOn bool
	lastApp  string
}

func NewController(cfg ControllerConfig, writer FlagWriter, store Store, sampler Sampler, notifier Notifier, log logger.Logger) (*Controller, error) {
	errFactory := errors.New()

	switch {
	case cfg.Path == "":
		return nil, errFactory.WithData(errors.ErrInvalidPath, "sampling")
	case cfg.Interval <= 0:
		return nil, errFactory.WithData(ErrInvalidInterval, cfg.Interval.String())
	case writer == nil:
		return nil, errFactory.WithData(ErrMissingDep, "writer")
	case store == nil:
		return nil, errFactory.WithData(ErrMissingDep, "store")
	case sampler == nil:
		return nil, errFactory.WithData(ErrMissingDep, "sampler")
	}

	c := &Controller{
		path:     cfg.Path,
		writer:   writer,
		store:    store,
		notifier: notifier,
		logger:   log,
		screenOn: true,
	}
	c.monitor = NewMonitor(sampler, c, cfg.Interval, log.With("monitor"))

	return c, nil
}

// Start begins managing the flag with the current screen state.
func (c *Controller) Start(screenOn bool) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	c.screenOn = screenOn
	c.mu.Unlock()

	c.evaluate(false)
}

// Shutdown stops the monitor. The flag is cleared unless something still wants it.
func (c *Controller) Shutdown() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.monitor.Stop()

	global, overrides := c.featureState()
	if !global && len(overrides) == 0 {
		c.writeFlag(false)
	}
}

// Reconcile converges the flag for app. Called by the monitor.
func (c *Controller) Reconcile(app string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.screenOn {
		return nil
	}

	global, err := c.store.GlobalFeature()
	if err != nil {
		return errors.New().Wrap(ErrReconcileFailed, err)
	}
	overrides, err := c.store.AppOverrides()
	if err != nil {
		return errors.New().Wrap(ErrReconcileFailed, err)
	}

	c.lastApp = app
	desired := Resolve(global, overrides, app)

	c.logger.Debug().Str("app", app).Bool("enabled", desired).Msg("Foreground application changed")

	return c.writer.WriteFlag(c.path, desired)
}

// SetOverride follows the Performance profile: entering it enables the global switch,
// leaving it disables the switch.
func (c *Controller) SetOverride(enabled bool) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.setGlobal(enabled)
}

// ToggleGlobal flips the global switch.
func (c *Controller) ToggleGlobal() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	global, err := c.store.GlobalFeature()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read global sampling state")
		return
	}

	c.setGlobal(!global)
}

// SetAppOverride adds or removes app from the override set.
func (c *Controller) SetAppOverride(app string, enabled bool) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if err := c.store.SetAppOverride(app, enabled); err != nil {
		return err
	}

	c.logger.Info().Str("app", app).Bool("enabled", enabled).Msg("Application override changed")

	c.monitor.Refresh()
	c.evaluate(false)

	return nil
}

// Refresh re-reads the persisted state, for changes made by another process.
func (c *Controller) Refresh() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.monitor.Refresh()
	c.evaluate(false)
}

// HandleScreenEvent follows the display lifecycle. While the screen is off the flag
// is forced off regardless of the resolved state.
func (c *Controller) HandleScreenEvent(ev ScreenEvent) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.logger.Debug().Str("event", ev.String()).Msg("Screen event")

	if ev == ScreenOff {
		c.mu.Lock()
		c.screenOn = false
		c.mu.Unlock()

		c.monitor.Stop()
		c.writeFlag(false)
		return
	}

	c.mu.Lock()
	c.screenOn = true
	c.mu.Unlock()

	c.evaluate(true)
}

// BootCompleted restores the flag from the global switch after a reboot. A screen that
// is off keeps the flag at 0.
func (c *Controller) BootCompleted() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	global, _ := c.featureState()

	c.mu.Lock()
	desired := c.screenOn && global
	c.mu.Unlock()

	c.writeFlag(desired)
	c.evaluate(false)
}

// Running reports whether the foreground monitor is polling.
func (c *Controller) Running() bool {
	return c.monitor.Running()
}

// setGlobal must be called with c.lifecycle held.
func (c *Controller) setGlobal(enabled bool) {
	global, err := c.store.GlobalFeature()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read global sampling state")
	}

	if err == nil && global == enabled {
		c.evaluate(false)
		return
	}

	if err := c.store.SetGlobalFeature(enabled); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist global sampling state")
	}

	c.logger.Info().Bool("enabled", enabled).Msg("Global sampling changed")

	overrides, err := c.store.AppOverrides()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read application overrides")
	}

	c.mu.Lock()
	desired := c.screenOn && Resolve(enabled, overrides, c.lastApp)
	c.mu.Unlock()
	c.writeFlag(desired)

	if c.notifier != nil {
		c.notifier.FeatureChanged(enabled)
	}

	c.evaluate(false)
}

// evaluate starts or stops the monitor to match the current state. restart forces a
// running monitor to re-sample immediately. Must be called with c.lifecycle held.
func (c *Controller) evaluate(restart bool) {
	global, overrides := c.featureState()

	c.mu.Lock()
	screenOn := c.screenOn
	c.mu.Unlock()

	if screenOn && (global || len(overrides) > 0) {
		if restart || !c.monitor.Running() {
			c.monitor.Start()
		}
		return
	}

	if c.monitor.Running() {
		c.monitor.Stop()
		c.writeFlag(false)
	}
}

func (c *Controller) featureState() (bool, AppSet) {
	global, err := c.store.GlobalFeature()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read global sampling state")
	}

	overrides, err := c.store.AppOverrides()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read application overrides")
	}

	return global, overrides
}

func (c *Controller) writeFlag(enabled bool) {
	if err := c.writer.WriteFlag(c.path, enabled); err != nil {
		c.logger.Warn().Err(err).Bool("enabled", enabled).Msg("Failed to write sampling flag")
	}
}
