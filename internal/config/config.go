package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel       = LogLevelWarning
	DefaultPollInterval   = time.Second
	DefaultProfilePath    = "/sys/class/thermal/thermal_message/sconfig"
	DefaultPropertyPath   = "/run/perfctl/perf_mode_active"
	DefaultFeaturePath    = "/sys/devices/virtual/touch/touch_dev/bump_sample_rate"
	DefaultForegroundPath = "/run/perfctl/foreground.pid"
	DefaultPowerSavePath  = "/run/perfctl/power_save"
	DefaultChargingGlob   = "/sys/class/power_supply/*/status"
	DefaultScreenPath     = "/run/perfctl/screen"
	DefaultStatusPath     = "/run/perfctl/status.yaml"
	DefaultStorePath      = "/var/lib/perfctl/state.db"
	DefaultPIDPath        = "/run/perfctl/perfctl.pid"
	DefaultHistoryLimit   = 10

	defaultEnvPrefix  = "PERFCTL"
	defaultConfigName = "perfctl"
	defaultConfigDir  = "/etc"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Sampling  SamplingConfig  `mapstructure:"sampling"`
	PowerSave PowerSaveConfig `mapstructure:"power_save"`
	Charging  ChargingConfig  `mapstructure:"charging"`
	Screen    ScreenConfig    `mapstructure:"screen"`
	Status    StatusConfig    `mapstructure:"status"`
	Store     StoreConfig     `mapstructure:"store"`
	PID       PIDConfig       `mapstructure:"pid"`

	// Invocation, only settable from the command line.
	Action      Action `mapstructure:"-"`
	History     int    `mapstructure:"-"`
	AppOverride string `mapstructure:"-"`
}

type ProfileConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Path         string `mapstructure:"path"`
	PropertyPath string `mapstructure:"property_path"`
}

type SamplingConfig struct {
	Path           string        `mapstructure:"path"`
	ForegroundPath string        `mapstructure:"foreground_pid_path"`
	Interval       time.Duration `mapstructure:"interval"`
}

type PowerSaveConfig struct {
	Path string `mapstructure:"path"`
}

type ChargingConfig struct {
	Glob string `mapstructure:"glob"`
}

type ScreenConfig struct {
	Path string `mapstructure:"path"`
}

type StatusConfig struct {
	Path string `mapstructure:"path"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type PIDConfig struct {
	Path string `mapstructure:"path"`
}

// flagBindings maps configuration keys to command line flag names.
var flagBindings = map[string]string{
	"log_level":                    "log-level",
	"profile.enabled":              "profiles",
	"profile.path":                 "profile-path",
	"profile.property_path":        "property-path",
	"sampling.path":                "sampling-path",
	"sampling.foreground_pid_path": "foreground-pid-path",
	"sampling.interval":            "interval",
	"power_save.path":              "power-save-path",
	"charging.glob":                "charging-glob",
	"screen.path":                  "screen-path",
	"status.path":                  "status-path",
	"store.path":                   "store-path",
	"pid.path":                     "pid-path",
}

// Load reads configuration from defaults, the TOML config file, the environment and args,
// in increasing order of precedence. args excludes the program name.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if configPath == "" {
		configPath, _ = fs.GetString("config")
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	for key, name := range flagBindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if debug, _ := fs.GetBool("debug"); debug {
		cfg.LogLevel = LogLevelDebug.String()
	} else if verbose, _ := fs.GetBool("verbose"); verbose {
		cfg.LogLevel = LogLevelInfo.String()
	}

	if err := applyAction(fs, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("perfctl", pflag.ContinueOnError)

	fs.String("config", "", "Path to the TOML configuration file")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("log-level", DefaultLogLevel.String(), "Log level (debug, info, warning, error)")

	fs.Bool("profiles", true, "Enable power profile management")
	fs.String("profile-path", DefaultProfilePath, "Profile control interface")
	fs.String("property-path", DefaultPropertyPath, "Performance-active property file")
	fs.String("sampling-path", DefaultFeaturePath, "Touch sampling control interface")
	fs.String("foreground-pid-path", DefaultForegroundPath, "File holding the foreground application PID")
	fs.Duration("interval", DefaultPollInterval, "Foreground application poll interval")
	fs.String("power-save-path", DefaultPowerSavePath, "Power-save signal file")
	fs.String("charging-glob", DefaultChargingGlob, "Glob of power supply status files")
	fs.String("screen-path", DefaultScreenPath, "Screen state file")
	fs.String("status-path", DefaultStatusPath, "Status document written for UI collaborators")
	fs.String("store-path", DefaultStorePath, "Persisted state database")
	fs.String("pid-path", DefaultPIDPath, "PID file of the running daemon")

	fs.Bool("toggle", false, "Cycle the power profile of the running daemon")
	fs.Bool("toggle-feature", false, "Toggle global touch sampling on the running daemon")
	fs.Bool("status", false, "Print the daemon status and exit")
	fs.Int("history", 0, "Print the last N profile transitions and exit")
	fs.String("app-override", "", "Set a per-application override, as name=on or name=off")

	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel.String())
	v.SetDefault("profile.enabled", true)
	v.SetDefault("profile.path", DefaultProfilePath)
	v.SetDefault("profile.property_path", DefaultPropertyPath)
	v.SetDefault("sampling.path", DefaultFeaturePath)
	v.SetDefault("sampling.foreground_pid_path", DefaultForegroundPath)
	v.SetDefault("sampling.interval", DefaultPollInterval)
	v.SetDefault("power_save.path", DefaultPowerSavePath)
	v.SetDefault("charging.glob", DefaultChargingGlob)
	v.SetDefault("screen.path", DefaultScreenPath)
	v.SetDefault("status.path", DefaultStatusPath)
	v.SetDefault("store.path", DefaultStorePath)
	v.SetDefault("pid.path", DefaultPIDPath)
}

func applyAction(fs *pflag.FlagSet, cfg *Config) error {
	cfg.Action = ActionRun

	if toggle, _ := fs.GetBool("toggle"); toggle {
		cfg.Action = ActionToggle
	}
	if toggle, _ := fs.GetBool("toggle-feature"); toggle {
		cfg.Action = ActionToggleFeature
	}
	if status, _ := fs.GetBool("status"); status {
		cfg.Action = ActionStatus
	}
	if fs.Changed("history") {
		cfg.Action = ActionHistory
		cfg.History, _ = fs.GetInt("history")
		if cfg.History <= 0 {
			cfg.History = DefaultHistoryLimit
		}
	}
	if fs.Changed("app-override") {
		cfg.Action = ActionAppOverride
		cfg.AppOverride, _ = fs.GetString("app-override")
	}

	return nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Sampling.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Sampling.Interval.String())
	}

	paths := map[string]string{
		"profile.path":                 c.Profile.Path,
		"profile.property_path":        c.Profile.PropertyPath,
		"sampling.path":                c.Sampling.Path,
		"sampling.foreground_pid_path": c.Sampling.ForegroundPath,
		"power_save.path":              c.PowerSave.Path,
		"screen.path":                  c.Screen.Path,
		"status.path":                  c.Status.Path,
		"store.path":                   c.Store.Path,
		"pid.path":                     c.PID.Path,
	}
	for key, path := range paths {
		if path == "" {
			return errFactory.WithData(errors.ErrInvalidPath, key)
		}
	}

	if c.Action == ActionAppOverride {
		if _, _, err := ParseAppOverride(c.AppOverride); err != nil {
			return err
		}
	}

	return nil
}

// IsDebug reports whether debug logging is configured.
func (c *Config) IsDebug() bool {
	return LogLevel(c.LogLevel) == LogLevelDebug
}

// IsVerbose reports whether informational logging is configured.
func (c *Config) IsVerbose() bool {
	return LogLevel(c.LogLevel) == LogLevelInfo
}

// ParseAppOverride splits "name=on" / "name=off" into its parts.
func ParseAppOverride(s string) (string, bool, error) {
	errFactory := errors.New()

	name, state, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", false, errFactory.WithData(ErrInvalidAppOverride, s)
	}

	switch strings.ToLower(strings.TrimSpace(state)) {
	case "on", "true", "1":
		return name, true, nil
	case "off", "false", "0":
		return name, false, nil
	default:
		return "", false, errFactory.WithData(ErrInvalidAppOverride, s)
	}
}
