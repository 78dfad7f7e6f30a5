// Package configloader reads the per-environment YAML configuration of an
// application once per process.
//
// The file for environment env and business unit bu lives at
// ./config/{env}/{bu}_config.yml relative to the working directory. New
// returns a process-wide Loader: the first successful call fixes which file
// is loaded and every later call gets that same Loader back, whatever
// arguments it passes. Code that prefers explicit dependency passing can call
// Load instead and hand the Config down.
package configloader

import (
	"fmt"
	"os"
	"sync"

	"github.com/aguerra09/reusable-components/internal/logging"
	rcerrors "github.com/aguerra09/reusable-components/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader is the process-wide configuration holder.
type Loader struct {
	env          string
	businessUnit string
	path         string
	cfg          Config
}

var (
	mu       sync.Mutex
	instance *Loader

	logger = logging.New(false, false).Named("config")
)

// New returns the process-wide Loader, loading the file for env and
// businessUnit on the first successful call. Once initialized, the arguments
// of later calls are ignored.
//
// If the first load fails the Loader stays uninitialized and the next call
// tries again with its own arguments.
func New(env, businessUnit string) (*Loader, error) {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		if env != instance.env || businessUnit != instance.businessUnit {
			logger.Debug("Config already loaded for desc_bu: %s and env: %s; ignoring desc_bu: %s and env: %s",
				instance.businessUnit, instance.env, businessUnit, env)
		}
		return instance, nil
	}

	cfg, err := Load(env, businessUnit)
	if err != nil {
		return nil, err
	}

	instance = &Loader{
		env:          env,
		businessUnit: businessUnit,
		path:         Path(env, businessUnit),
		cfg:          cfg,
	}
	return instance, nil
}

// Config returns the loaded configuration.
func (l *Loader) Config() Config {
	return l.cfg
}

// Env returns the environment the configuration was loaded for.
func (l *Loader) Env() string {
	return l.env
}

// BusinessUnit returns the business unit the configuration was loaded for.
func (l *Loader) BusinessUnit() string {
	return l.businessUnit
}

// Path returns the file the configuration was read from.
func (l *Loader) Path() string {
	return l.path
}

// Path returns the location of the configuration file for env and businessUnit.
func Path(env, businessUnit string) string {
	return fmt.Sprintf("./config/%s/%s_config.yml", env, businessUnit)
}

// Load reads the configuration for env and businessUnit without touching the
// process-wide Loader.
func Load(env, businessUnit string) (Config, error) {
	logger.Info("Reading the config file for desc_bu: %s and env: %s", businessUnit, env)

	cfg, err := LoadFile(Path(env, businessUnit))
	if err != nil {
		logger.Error("Failed to load the config for desc_bu: %s and env: %s: %v", businessUnit, env, err)
		return Config{}, err
	}

	logger.Info("Successfully loaded the config for desc_bu: %s and env: %s", businessUnit, env)
	return cfg, nil
}

// LoadFile reads and parses a YAML mapping from path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, rcerrors.ConfigLoadError{Path: path, Err: err}
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return Config{}, rcerrors.ConfigLoadError{
			Path: path,
			Err:  fmt.Errorf("invalid YAML syntax: %w", err),
		}
	}

	return Config{values: values}, nil
}
