package ecs

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config holds the world settings read from the environment.
type Config struct {
	// Capacity reserved for entity bookkeeping up front.
	InitialEntityCapacity int `env:"GW_INITIAL_ENTITY_CAPACITY" envDefault:"1024"`

	// How systems inside a stage run ("parallel", "sequential").
	ExecutionMode string `env:"GW_EXECUTION_MODE" envDefault:"parallel"`

	// Address of a statsd agent. Metrics are dropped when empty.
	StatsdAddress string `env:"GW_STATSD_ADDRESS"`

	// Tags attached to every metric.
	StatsdTags []string `env:"GW_STATSD_TAGS" envSeparator:","`
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse world config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate world config")
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.InitialEntityCapacity < 0 {
		return eris.New("initial entity capacity cannot be negative")
	}
	if ParseExecutionMode(cfg.ExecutionMode) == ExecutionUndefined {
		return eris.Errorf("invalid execution mode: %s (must be 'parallel' or 'sequential')", cfg.ExecutionMode)
	}
	return nil
}

func (cfg *Config) applyToOptions(opt *WorldOptions) {
	opt.InitialEntityCapacity = cfg.InitialEntityCapacity
	opt.ExecutionMode = ParseExecutionMode(cfg.ExecutionMode)
	opt.StatsdAddress = cfg.StatsdAddress
	opt.StatsdTags = cfg.StatsdTags
}

type WorldOptions struct {
	ID                    string          // Defaults to a random UUID
	Globals               *Globals        // Shared globals. A private table is created when nil
	InitialEntityCapacity int             // Capacity reserved for entity bookkeeping
	ExecutionMode         ExecutionMode   // How systems inside a stage run
	StatsdAddress         string          // Statsd agent address. Empty disables metrics
	StatsdTags            []string        // Tags attached to every metric
	Logger                *zerolog.Logger // Defaults to the global "ecs" logger
}

func newDefaultWorldOptions() WorldOptions {
	// Invalid on purpose so a missing env config is caught by validate.
	return WorldOptions{
		InitialEntityCapacity: -1,
		ExecutionMode:         ExecutionUndefined,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *WorldOptions) apply(newOpt WorldOptions) {
	if newOpt.ID != "" {
		opt.ID = newOpt.ID
	}
	if newOpt.Globals != nil {
		opt.Globals = newOpt.Globals
	}
	if newOpt.InitialEntityCapacity != 0 {
		opt.InitialEntityCapacity = newOpt.InitialEntityCapacity
	}
	if newOpt.ExecutionMode != ExecutionUndefined {
		opt.ExecutionMode = newOpt.ExecutionMode
	}
	if newOpt.StatsdAddress != "" {
		opt.StatsdAddress = newOpt.StatsdAddress
	}
	if newOpt.StatsdTags != nil {
		opt.StatsdTags = newOpt.StatsdTags
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
}

// validate checks that all required options are set and valid.
func (opt *WorldOptions) validate() error {
	if opt.ID == "" {
		return eris.New("world ID cannot be empty")
	}
	if opt.InitialEntityCapacity < 0 {
		return eris.New("initial entity capacity cannot be negative")
	}
	if opt.ExecutionMode == ExecutionUndefined {
		return eris.New("execution mode must be specified")
	}
	return nil
}

// ExecutionMode selects how the systems of a stage run.
type ExecutionMode uint8

const (
	ExecutionUndefined  ExecutionMode = iota // Used as the zero value
	ExecutionParallel                        // Systems of a stage run on their own goroutines
	ExecutionSequential                      // Systems of a stage run one after another
)

func (m ExecutionMode) String() string {
	switch m {
	case ExecutionParallel:
		return "parallel"
	case ExecutionSequential:
		return "sequential"
	case ExecutionUndefined:
		return "undefined"
	default:
		return "undefined"
	}
}

func ParseExecutionMode(s string) ExecutionMode {
	switch strings.ToLower(s) {
	case "parallel":
		return ExecutionParallel
	case "sequential":
		return ExecutionSequential
	default:
		return ExecutionUndefined
	}
}
