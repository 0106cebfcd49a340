package power

import (
	"context"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/store"
)

// subscribe registers for power-save changes once. Must be called with c.mu held.
func (c *Coordinator) subscribe() error {
	if c.sub != nil {
		return nil
	}

	sub, err := c.deps.PowerSave.Subscribe(c.onPowerSave)
	if err != nil {
		return errors.New().Wrap(ErrSubscribe, err)
	}
	c.sub = sub
	c.signal = c.deps.PowerSave.Enabled()

	return nil
}

// onPowerSave reacts to a change notification. The delivered value may be stale, so
// the signal is read again under the lock and compared with the value the coordinator
// last accounted for. Echoes of its own writes match and are ignored.
func (c *Coordinator) onPowerSave(bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	enabled := c.deps.PowerSave.Enabled()
	if enabled == c.signal {
		return
	}
	c.signal = enabled

	if err := c.reconcile(context.Background(), enabled); err != nil {
		c.logger.Warn().Err(err).Bool("power_save", enabled).Msg("Battery saver reconciliation failed")
	}
}

// reconcile decides whether an external power-save change moves the profile. Every
// branch only acts when the target differs from hardware, so repeated or reordered
// deliveries are harmless. Must be called with c.mu held.
func (c *Coordinator) reconcile(ctx context.Context, enabled bool) error {
	current := c.read()

	if enabled {
		// Performance is never pre-empted and charging suppresses battery saver.
		if current == profile.Performance || current == profile.BatterySaver {
			return nil
		}
		if c.deps.Charging.IsCharging() {
			c.logger.Debug().Msg("Power save enabled while charging, keeping profile")
			return nil
		}
		return c.apply(ctx, profile.BatterySaver, store.TriggerBatterySaver)
	}

	if current != profile.BatterySaver {
		return nil
	}

	target := profile.Default
	prev, err := c.deps.Store.PreviousProfile()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read previous profile, restoring default")
	} else if prev.IsValid() && prev != profile.BatterySaver {
		target = prev
	}

	return c.apply(ctx, target, store.TriggerBatterySaver)
}
