// Package power coordinates the thermal profile with user clicks, the external
// power-save signal and reboot recovery.
package power

import (
	"context"
	"sync"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/store"
)

type Config struct {
	// Enabled is the administrative switch. A disabled coordinator never writes.
	Enabled      bool
	ProfilePath  string
	PropertyPath string
}

// Deps are the collaborators of a Coordinator. Observer, Indicator and Feature are
// optional.
type Deps struct {
	Writer    Writer
	Store     Store
	PowerSave PowerSaveSignal
	Charging  ChargingSource
	Observer  Observer
	Indicator Indicator
	Feature   FeatureOverride
}

// State is what was last published to the observer.
type State struct {
	Profile   profile.Profile
	Available bool
}

// Coordinator is the single owner of the profile control interface. All state changes
// run under one lock, so user clicks and battery-saver reconciliation are serialized.
type Coordinator struct {
	cfg    Config
	deps   Deps
	logger logger.Logger

	mu     sync.Mutex
	active bool
	sub    Subscription
	state  State
	// signal is the power-save value the coordinator last wrote or reconciled.
	signal bool
}

func New(cfg Config, deps Deps, log logger.Logger) (*Coordinator, error) {
	errFactory := errors.New()

	switch {
	case deps.Writer == nil:
		return nil, errFactory.WithData(ErrMissingDep, "writer")
	case deps.Store == nil:
		return nil, errFactory.WithData(ErrMissingDep, "store")
	case deps.PowerSave == nil:
		return nil, errFactory.WithData(ErrMissingDep, "power_save")
	case deps.Charging == nil:
		return nil, errFactory.WithData(ErrMissingDep, "charging")
	}
	if cfg.Enabled && (cfg.ProfilePath == "" || cfg.PropertyPath == "") {
		return nil, errFactory.WithData(errors.ErrInvalidPath, "profile")
	}

	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Indicator == nil {
		deps.Indicator = nopIndicator{}
	}
	if deps.Feature == nil {
		deps.Feature = nopFeature{}
	}

	return &Coordinator{
		cfg:    cfg,
		deps:   deps,
		logger: log,
		state:  State{Profile: profile.Unknown},
	}, nil
}

// Activate brings hardware in line with the persisted profile. It is called when the
// daemon starts and again after a reboot has been detected.
func (c *Coordinator) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		c.logger.Info().Msg("Power profiles disabled")
		c.publish(profile.Unknown, false)
		return nil
	}

	c.active = true
	if err := c.subscribe(); err != nil {
		c.logger.Warn().Err(err).Msg("Battery saver reconciliation unavailable")
	}

	current := c.read()

	saved, ok, err := c.deps.Store.SavedProfile()
	if err != nil {
		// Without the saved profile only an unreadable driver is worth correcting.
		c.logger.Warn().Err(err).Msg("Failed to read saved profile")
		if current == profile.Unknown {
			return c.apply(ctx, profile.Default, store.TriggerActivate)
		}
		c.refresh(current)
		return nil
	}

	switch {
	case !ok:
		c.logger.Info().Msg("No saved profile, applying default")
		return c.apply(ctx, profile.Default, store.TriggerActivate)

	case saved.IsValid() && saved != current:
		c.logger.Info().
			Str("saved", saved.String()).
			Str("hardware", current.String()).
			Msg("Restoring saved profile")
		return c.apply(ctx, saved, store.TriggerRestore)

	case current == profile.Unknown:
		return c.apply(ctx, profile.Default, store.TriggerActivate)

	default:
		c.refresh(current)
		return nil
	}
}

// Deactivate releases the battery saver subscription. Safe to call repeatedly.
func (c *Coordinator) Deactivate() {
	c.mu.Lock()
	c.active = false
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	// Closing waits for an in-flight callback, which needs the lock.
	if sub != nil {
		if err := sub.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to release power-save subscription")
		}
	}
}

// OnUserToggle advances the hardware profile to its successor.
func (c *Coordinator) OnUserToggle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		c.logger.Warn().Msg("Ignoring toggle, power profiles are disabled")
		return errors.New().New(ErrProfilesOff)
	}

	current := c.read()
	next := profile.Next(current)

	c.logger.Debug().
		Str("from", current.String()).
		Str("to", next.String()).
		Msg("User toggle")

	return c.apply(ctx, next, store.TriggerUser)
}

// ApplyProfile writes p and runs its side effects. The control interface write is
// all-or-nothing: on failure nothing else changes.
func (c *Coordinator) ApplyProfile(ctx context.Context, p profile.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return errors.New().New(ErrProfilesOff)
	}

	return c.apply(ctx, p, store.TriggerUser)
}

// Current reads the profile from hardware.
func (c *Coordinator) Current() profile.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return profile.Unknown
	}
	return c.read()
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) read() profile.Profile {
	code, ok := c.deps.Writer.Read(c.cfg.ProfilePath)
	if !ok {
		return profile.Unknown
	}
	return profile.FromCode(code)
}

// apply must be called with c.mu held.
func (c *Coordinator) apply(ctx context.Context, p profile.Profile, trigger store.Trigger) error {
	errFactory := errors.New()

	if !p.IsValid() {
		return errFactory.WithData(errors.ErrInvalidArgument, p.String())
	}

	prev := c.read()

	if err := c.deps.Writer.WriteIfChanged(c.cfg.ProfilePath, p.Code()); err != nil {
		c.logger.Error().Err(err).Str("profile", p.String()).Msg("Failed to apply profile")
		return errFactory.Wrap(ErrApplyProfile, err)
	}

	if err := c.deps.Writer.WriteIfChanged(c.cfg.PropertyPath, p.PerformanceFlag()); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to set performance-active property")
	}

	c.sideEffects(p, prev)

	if err := c.deps.Store.SetSavedProfile(p); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist profile")
	}

	if err := c.deps.Store.RecordTransition(ctx, store.Transition{
		From:    prev,
		To:      p,
		Trigger: trigger,
	}); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to record transition")
	}

	c.logger.Info().
		Str("from", prev.String()).
		Str("to", p.String()).
		Str("trigger", string(trigger)).
		Msg("Profile applied")

	c.publish(p, true)

	return nil
}

func (c *Coordinator) sideEffects(p, prev profile.Profile) {
	switch p {
	case profile.BatterySaver:
		if prev != profile.BatterySaver {
			if err := c.deps.Store.SetPreviousProfile(prev); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to remember previous profile")
			}
		}
		// Charging takes precedence over the battery-saving intent.
		c.setPowerSave(!c.deps.Charging.IsCharging())
		c.deps.Indicator.CancelIndicator()
		c.deps.Feature.SetOverride(false)

	case profile.Performance:
		c.setPowerSave(false)
		c.deps.Indicator.RaiseIndicator()
		c.deps.Feature.SetOverride(true)

	default:
		c.setPowerSave(false)
		c.deps.Indicator.CancelIndicator()
		c.deps.Feature.SetOverride(false)
	}
}

// setPowerSave must be called with c.mu held.
func (c *Coordinator) setPowerSave(enabled bool) {
	if c.deps.PowerSave.Enabled() == enabled {
		c.signal = enabled
		return
	}

	if err := c.deps.PowerSave.Set(enabled); err != nil {
		c.logger.Warn().Err(err).Bool("enabled", enabled).Msg("Failed to toggle power save")
		c.signal = c.deps.PowerSave.Enabled()
		return
	}

	c.signal = enabled
}

// refresh publishes a profile that is already in effect.
func (c *Coordinator) refresh(p profile.Profile) {
	if p == profile.Performance {
		c.deps.Indicator.RaiseIndicator()
	} else {
		c.deps.Indicator.CancelIndicator()
	}
	c.publish(p, true)
}

func (c *Coordinator) publish(p profile.Profile, available bool) {
	c.state = State{Profile: p, Available: available}
	c.deps.Observer.ProfileChanged(p, available)
}
