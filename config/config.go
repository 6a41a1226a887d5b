// Package config holds the settings of a gomemd library instance. Values come
// from defaults, an optional YAML file, GOMEMD_* environment variables and
// command line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"gomemd/backend"

	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFile          = "config-file"
	backendName         = "backend"
	backendOrder        = "backend-order"
	allowSimulated      = "allow-simulated"
	minDriverVersion    = "min-driver-version"
	processListCapacity = "enum.process-capacity"
	moduleListCapacity  = "enum.module-capacity"
	enumerationRetries  = "enum.retries"
	simFixture          = "sim.fixture"

	envPrefix = "GOMEMD"
)

const (
	DefaultProcessListCapacity = 4096
	DefaultModuleListCapacity  = 512
	DefaultEnumerationRetries  = 3
)

// Config is the library configuration.
type Config struct {
	// Backend names the backend to use. Empty means search BackendOrder.
	Backend string
	// BackendOrder is the search order when Backend is empty or fails.
	BackendOrder []string
	// AllowSimulated appends the simulated backend to the search order.
	AllowSimulated bool
	// MinDriverVersion is a version constraint (e.g. ">= 1.0") the driver must satisfy.
	MinDriverVersion string

	// ProcessListCapacity is the initial number of records requested from a process walk.
	ProcessListCapacity int
	// ModuleListCapacity is the initial number of records requested from a module walk.
	ModuleListCapacity int
	// EnumerationRetries bounds how often a walk is repeated with a larger buffer.
	EnumerationRetries int

	// SimFixture is a YAML fixture for the simulated backend.
	SimFixture string

	flags *pflag.FlagSet
	viper *viper.Viper
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BackendOrder:        []string{backend.PlatformDefault()},
		ProcessListCapacity: DefaultProcessListCapacity,
		ModuleListCapacity:  DefaultModuleListCapacity,
		EnumerationRetries:  DefaultEnumerationRetries,
	}
}

// New creates a configuration bound to its own viper instance and flag set.
func New() *Config {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	c := Default()
	c.viper = v
	c.flags = new(pflag.FlagSet)
	c.addFlags()
	return &c
}

func (c *Config) addFlags() {
	c.flags.String(configFile, "", "Path to a YAML configuration file")
	c.flags.String(backendName, "", "Backend to use (e.g. linux, windows, sim). Empty searches --backend-order")
	c.flags.StringSlice(backendOrder, []string{backend.PlatformDefault()}, "Backend search order")
	c.flags.Bool(allowSimulated, false, "Fall back to the simulated backend")
	c.flags.String(minDriverVersion, "", "Version constraint the driver must satisfy, e.g. \">= 1.0\"")
	c.flags.Int(processListCapacity, DefaultProcessListCapacity, "Initial process list buffer capacity")
	c.flags.Int(moduleListCapacity, DefaultModuleListCapacity, "Initial module list buffer capacity")
	c.flags.Int(enumerationRetries, DefaultEnumerationRetries, "Number of retries when an enumeration buffer is too small")
	c.flags.String(simFixture, "", "YAML fixture loaded by the simulated backend")
}

// Flags returns the flag set of the configuration.
func (c *Config) Flags() *pflag.FlagSet { return c.flags }

// MustViperize adds the flag set to the cobra command and binds the flags within viper.
func (c *Config) MustViperize(cmd *cobra.Command) {
	cmd.PersistentFlags().AddFlagSet(c.flags)
	if err := c.viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

// Init populates the configuration from viper, reading the config file first if one is set.
func (c *Config) Init() error {
	if c.viper == nil {
		return nil
	}
	if err := c.viper.BindPFlags(c.flags); err != nil {
		return err
	}

	if file := c.viper.GetString(configFile); file != "" {
		c.viper.SetConfigFile(file)
		if err := c.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	c.Backend = c.viper.GetString(backendName)
	c.BackendOrder = c.viper.GetStringSlice(backendOrder)
	c.AllowSimulated = c.viper.GetBool(allowSimulated)
	c.MinDriverVersion = c.viper.GetString(minDriverVersion)
	c.ProcessListCapacity = c.viper.GetInt(processListCapacity)
	c.ModuleListCapacity = c.viper.GetInt(moduleListCapacity)
	c.EnumerationRetries = c.viper.GetInt(enumerationRetries)
	c.SimFixture = c.viper.GetString(simFixture)

	return c.Validate()
}

// Validate checks the values of the configuration.
func (c *Config) Validate() error {
	if c.ProcessListCapacity <= 0 {
		return fmt.Errorf("%s must be positive, got %d", processListCapacity, c.ProcessListCapacity)
	}
	if c.ModuleListCapacity <= 0 {
		return fmt.Errorf("%s must be positive, got %d", moduleListCapacity, c.ModuleListCapacity)
	}
	if c.EnumerationRetries < 0 {
		return fmt.Errorf("%s must not be negative, got %d", enumerationRetries, c.EnumerationRetries)
	}
	if c.MinDriverVersion != "" {
		if _, err := goversion.NewConstraint(c.MinDriverVersion); err != nil {
			return fmt.Errorf("invalid %s: %w", minDriverVersion, err)
		}
	}
	return nil
}

// Candidates returns the backends to try, in order.
func (c *Config) Candidates() []string {
	order := c.BackendOrder
	if c.AllowSimulated {
		order = append(append([]string{}, order...), "sim")
	}
	return backend.Candidates(c.Backend, order)
}

// DriverVersionConstraint returns the parsed MinDriverVersion, or nil when unset.
func (c *Config) DriverVersionConstraint() (goversion.Constraints, error) {
	if c.MinDriverVersion == "" {
		return nil, nil
	}
	return goversion.NewConstraint(c.MinDriverVersion)
}
