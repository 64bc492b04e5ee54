package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mimic/internal/model"

	"github.com/spf13/viper"
)

var (
	ErrCountMismatch = errors.New("watch path count does not match dev path count")
	ErrPathNotFound  = errors.New("path not found")
	ErrOverlap       = errors.New("paths overlap")
	ErrNoPairs       = errors.New("no watch paths configured")
)

type Config struct {
	WatchRoot     string        `mapstructure:"watch_root"`
	WatchPaths    []string      `mapstructure:"watch_paths"`
	DevRoot       string        `mapstructure:"dev_root"`
	DevPaths      []string      `mapstructure:"dev_paths"`
	ExcludedPaths []string      `mapstructure:"excluded_paths"`
	IdleInterval  time.Duration `mapstructure:"idle_interval"`
	Debounce      time.Duration `mapstructure:"debounce_window"`
	RenameWindow  time.Duration `mapstructure:"rename_window"`
	RearmAttempts int           `mapstructure:"rearm_attempts"`
	RearmBackoff  time.Duration `mapstructure:"rearm_backoff"`
	DaemonPort    int           `mapstructure:"daemon_port"`
	DBPath        string        `mapstructure:"db_path"`
	LogFile       string        `mapstructure:"log_file"`
}

var Default = Config{
	ExcludedPaths: []string{},
	IdleInterval:  200 * time.Millisecond,
	Debounce:      time.Second,
	RenameWindow:  100 * time.Millisecond,
	RearmAttempts: 120,
	RearmBackoff:  30 * time.Second,
	DaemonPort:    9101,
	DBPath:        "mimic.db",
}

// Dir returns ~/.mimic, creating it when missing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	dir := filepath.Join(home, ".mimic")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	return dir, nil
}

// Load reads the configuration. An empty cfgFile means config.yaml in ~/.mimic;
// a missing default file is not an error, a missing explicit file is.
func Load(cfgFile string) (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	v.SetDefault("excluded_paths", Default.ExcludedPaths)
	v.SetDefault("idle_interval", Default.IdleInterval)
	v.SetDefault("debounce_window", Default.Debounce)
	v.SetDefault("rename_window", Default.RenameWindow)
	v.SetDefault("rearm_attempts", Default.RearmAttempts)
	v.SetDefault("rearm_backoff", Default.RearmBackoff)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", filepath.Join(configDir, Default.DBPath))
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("MIMIC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok || cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.WatchPaths = splitList(cfg.WatchPaths)
	cfg.DevPaths = splitList(cfg.DevPaths)
	cfg.ExcludedPaths = trimList(cfg.ExcludedPaths)

	return &cfg, nil
}

// Specs resolves the configured pairs into absolute WatchSpecs. All problems are
// reported together.
func (c *Config) Specs() ([]model.WatchSpec, error) {
	if len(c.WatchPaths) == 0 {
		return nil, ErrNoPairs
	}

	var errs []error
	if len(c.WatchPaths) != len(c.DevPaths) {
		errs = append(errs, fmt.Errorf("%w: %d watch, %d dev", ErrCountMismatch, len(c.WatchPaths), len(c.DevPaths)))
	}

	errs = append(errs, requireDir(c.WatchRoot), requireDir(c.DevRoot))

	watchPaths := resolve(c.WatchRoot, c.WatchPaths)
	devPaths := resolve(c.DevRoot, c.DevPaths)

	for _, p := range watchPaths {
		errs = append(errs, requireDir(p))
	}
	for _, p := range devPaths {
		errs = append(errs, requireDir(p))
	}

	errs = append(errs, checkOverlap(watchPaths, devPaths)...)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	specs := make([]model.WatchSpec, len(watchPaths))
	for i := range watchPaths {
		specs[i] = model.WatchSpec{
			WatchRoot:  watchPaths[i],
			DestRoot:   devPaths[i],
			Exclusions: append([]string(nil), c.ExcludedPaths...),
		}
	}

	return specs, nil
}

func resolve(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, filepath.Clean(p))
	}

	return out
}

func requireDir(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrPathNotFound)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrPathNotFound, path)
	}

	return nil
}

// checkOverlap rejects destinations nested in a watched tree (a mirror would
// feed its own notifications) and destinations shared between pairs.
func checkOverlap(watchPaths, devPaths []string) []error {
	var errs []error

	for i, dst := range devPaths {
		for _, src := range watchPaths {
			if within(dst, src) || within(src, dst) {
				errs = append(errs, fmt.Errorf("%w: dev path %s and watch path %s", ErrOverlap, dst, src))
			}
		}
		for _, other := range devPaths[i+1:] {
			if within(dst, other) || within(other, dst) {
				errs = append(errs, fmt.Errorf("%w: dev paths %s and %s", ErrOverlap, dst, other))
			}
		}
	}

	return errs
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Patterns may contain braces with commas, so they are only trimmed.
func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

// splitList accepts both YAML lists and the comma separated form used by
// environment variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}
