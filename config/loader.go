package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"
)

// Loader reads agent configuration from a YAML file, overlaid with
// SAM_-prefixed environment variables, with optional file-change hot
// reload. Grounded on the teacher's config.Loader (koanf-based), narrowed
// to the file+env sources this runtime uses and adapted to fsnotify for
// watching rather than koanf's provider-specific Watch hook, since plain
// files don't implement one.
type Loader struct {
	path     string
	k        *koanf.Koanf
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	onChange func(Config)
}

// NewLoader constructs a Loader for the YAML file at path. If a sibling
// .env file exists it is loaded into the process environment first
// (godotenv), matching the teacher's local-dev convenience behavior.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	_ = godotenv.Load()
	return &Loader{path: path, k: koanf.New("."), logger: logger}
}

// Load reads the file and environment overlay, decodes into a Config with
// defaults pre-populated, and validates it.
func (l *Loader) Load() (Config, []string, error) {
	k := koanf.New(".")

	defaults := Defaults()
	defaultsMap := map[string]interface{}{
		"worker_pool_size":                   defaults.WorkerPoolSize,
		"timeout_sweep_interval_ms":          defaults.TimeoutSweepIntervalMS,
		"llm_retry_max_attempts":             defaults.LLMRetryMaxAttempts,
		"default_peer_timeout_seconds":       defaults.DefaultPeerTimeoutSeconds,
		"discovery_publish_interval_seconds": defaults.DiscoveryPublishIntervalSeconds,
		"log_level":                          defaults.LogLevel,
		"log_format":                         defaults.LogFormat,
		"checkpoint_dialect":                 defaults.CheckpointDialect,
	}
	if err := k.Load(confmap.Provider(defaultsMap, "."), nil); err != nil {
		return Config{}, nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if l.path != "" {
		if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
			return Config{}, nil, fmt.Errorf("config: load %s: %w", l.path, err)
		}
	}

	if err := k.Load(env.Provider("SAM_", ".", normalizeEnvKey), nil); err != nil {
		return Config{}, nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}); err != nil {
		return Config{}, nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return Config{}, nil, err
	}

	l.k = k
	return cfg, warnings, nil
}

func normalizeEnvKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "SAM_"))
}

// Watch reloads the config file on change and invokes onChange with the
// newly validated Config. Reload failures are logged and the previous
// config keeps running, matching the teacher's fail-soft reload posture.
func (l *Loader) Watch(onChange func(Config)) error {
	if l.path == "" {
		return fmt.Errorf("config: cannot watch, no file path configured")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", l.path, err)
	}
	l.watcher = watcher
	l.onChange = onChange

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, warnings, err := l.Load()
				if err != nil {
					l.logger.Warn("config reload failed, keeping previous config", "error", err)
					continue
				}
				for _, w := range warnings {
					l.logger.Warn("config reload warning", "warning", w)
				}
				l.logger.Info("config reloaded", "path", l.path)
				l.onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if one is running.
func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
