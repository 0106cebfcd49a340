package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"codeberg.org/mutker/perfctl/internal/config"
	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/pid"
	"codeberg.org/mutker/perfctl/internal/power"
	"codeberg.org/mutker/perfctl/internal/sampling"
	"codeberg.org/mutker/perfctl/internal/status"
	"codeberg.org/mutker/perfctl/internal/store"
	"codeberg.org/mutker/perfctl/internal/sysfs"
	"codeberg.org/mutker/perfctl/internal/watch"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

const runtimeDirPerm = 0o755

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.IsDebug(), cfg.IsVerbose(), logger.IsService())
	logger.Debug().Str("action", string(cfg.Action)).Msg("Config loaded")
}

func main() {
	var err error

	switch cfg.Action {
	case config.ActionToggle:
		err = pid.Signal(cfg.PID.Path, unix.SIGUSR1)
	case config.ActionToggleFeature:
		err = pid.Signal(cfg.PID.Path, unix.SIGUSR2)
	case config.ActionStatus:
		err = printStatus()
	case config.ActionHistory:
		err = printHistory()
	case config.ActionAppOverride:
		err = setAppOverride()
	default:
		err = run()
	}

	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("perfctl failed")
		}
		logger.Fatal().Err(err).Msg("perfctl failed")
	}
}

func run() error {
	lock, err := pid.Acquire(cfg.PID.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	fs := afero.NewOsFs()
	for _, path := range []string{cfg.Profile.PropertyPath, cfg.PowerSave.Path, cfg.Screen.Path, cfg.Status.Path} {
		if err := fs.MkdirAll(filepath.Dir(path), runtimeDirPerm); err != nil {
			return errors.New().Wrap(errors.ErrInitApp, err)
		}
	}

	repo, err := store.Open(store.Config{
		DBPath:          cfg.Store.Path,
		BackupOnMigrate: true,
	}, logger.New("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close state store")
		}
	}()

	writer := sysfs.NewWriter(fs, logger.New("sysfs"))
	publisher := status.NewPublisher(fs, cfg.Status.Path, logger.New("status"))

	ctrl, err := sampling.NewController(sampling.ControllerConfig{
		Path:     cfg.Sampling.Path,
		Interval: cfg.Sampling.Interval,
	}, writer, repo, sampling.NewProcessSampler(fs, cfg.Sampling.ForegroundPath), publisher, logger.New("sampling"))
	if err != nil {
		return err
	}

	coord, err := power.New(power.Config{
		Enabled:      cfg.Profile.Enabled,
		ProfilePath:  cfg.Profile.Path,
		PropertyPath: cfg.Profile.PropertyPath,
	}, power.Deps{
		Writer:    writer,
		Store:     repo,
		PowerSave: power.NewFileSignal(fs, cfg.PowerSave.Path, writer, logger.New("power_save")),
		Charging:  power.NewSupplyStatus(fs, cfg.Charging.Glob, logger.New("charging")),
		Observer:  publisher,
		Indicator: publisher,
		Feature:   ctrl,
	}, logger.New("power"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	global, err := repo.GlobalFeature()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read global sampling state")
	}
	publisher.FeatureChanged(global)

	ctrl.Start(screenOn(fs))
	defer ctrl.Shutdown()

	rebooted := detectBoot(ctx, repo)

	if err := coord.Activate(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to activate power profiles")
	}
	defer coord.Deactivate()

	if rebooted {
		logger.Info().Msg("Boot detected, restoring sampling state")
		ctrl.BootCompleted()
	}

	screenSub, err := watch.File(fs, cfg.Screen.Path, func(content []byte) {
		ev, ok := sampling.ParseScreenEvent(string(content))
		if !ok {
			logger.Debug().Str("content", string(content)).Msg("Ignoring unknown screen state")
			return
		}
		ctrl.HandleScreenEvent(ev)
	}, logger.New("screen"))
	if err != nil {
		logger.Warn().Err(err).Msg("Screen state unavailable, sampling stays on")
	} else {
		defer screenSub.Close()
	}

	logger.Info().
		Bool("profiles", cfg.Profile.Enabled).
		Dur("interval", cfg.Sampling.Interval).
		Msg("perfctl running")

	return loop(ctx, coord, ctrl)
}

func loop(ctx context.Context, coord *power.Coordinator, ctrl *sampling.Controller) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(sigs)

	// Handlers run off the signal goroutine so delivery is never stalled by device I/O.
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigs:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info().Msg("Received termination signal.")
				return nil

			case syscall.SIGUSR1:
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := coord.OnUserToggle(ctx); err != nil {
						logger.Warn().Err(err).Msg("profile toggle failed")
					}
				}()

			case syscall.SIGUSR2:
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctrl.ToggleGlobal()
				}()

			case syscall.SIGHUP:
				logger.Debug().Msg("Reloading application overrides")
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctrl.Refresh()
				}()
			}
		}
	}
}

// detectBoot compares the host boot time with the one seen by the previous run.
func detectBoot(ctx context.Context, repo store.Store) bool {
	bootTime, err := host.BootTimeWithContext(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read boot time")
		return false
	}

	last, ok, err := repo.BootTime()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read last boot time")
	}

	if err := repo.SetBootTime(bootTime); err != nil {
		logger.Warn().Err(err).Msg("failed to persist boot time")
	}

	return ok && last != bootTime
}

// screenOn reads the initial screen state. A missing file means no display manager
// reports it, so the screen is assumed on.
func screenOn(fs afero.Fs) bool {
	data, err := afero.ReadFile(fs, cfg.Screen.Path)
	if err != nil {
		return true
	}

	ev, ok := sampling.ParseScreenEvent(string(data))
	return !ok || ev != sampling.ScreenOff
}

func printStatus() error {
	doc, err := status.Read(afero.NewOsFs(), cfg.Status.Path)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	fmt.Print(string(out))

	return nil
}

func printHistory() error {
	repo, err := store.Open(store.Config{DBPath: cfg.Store.Path}, logger.New("store"))
	if err != nil {
		return err
	}
	defer repo.Close()

	transitions, err := repo.Transitions(context.Background(), cfg.History)
	if err != nil {
		return err
	}

	for _, t := range transitions {
		fmt.Printf("%s  %-13s -> %-13s  %s\n",
			t.Timestamp.Format("2006-01-02 15:04:05"), t.From, t.To, t.Trigger)
	}

	return nil
}

func setAppOverride() error {
	app, enabled, err := config.ParseAppOverride(cfg.AppOverride)
	if err != nil {
		return err
	}

	repo, err := store.Open(store.Config{DBPath: cfg.Store.Path}, logger.New("store"))
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.SetAppOverride(app, enabled); err != nil {
		return err
	}

	if err := pid.Signal(cfg.PID.Path, unix.SIGHUP); err != nil {
		if errors.HasCode(err, errors.ErrNotRunning) {
			logger.Info().Msg("Daemon not running, override applies on next start")
			return nil
		}
		return err
	}

	return nil
}
