// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level   string `yaml:"level"`
		Format  string `yaml:"format"`
		Verbose *bool  `yaml:"verbose"`
	}
	Host struct {
		SysFS string `yaml:"sysfs"`
	}

	// PowerCap selects which driver limit is applied
	PowerCap struct {
		Action string `yaml:"action"` // "min", "max" or "default"

		// Strict makes a failed write a non-zero exit; disabled by default
		Strict *bool `yaml:"strict"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Host     Host     `yaml:"host"`
		PowerCap PowerCap `yaml:"powercap"`
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	ActionMin     = "min"
	ActionMax     = "max"
	ActionDefault = "default"
)

const (
	// Flags
	LogLevelFlag   = "log.level"
	LogFormatFlag  = "log.format"
	LogVerboseFlag = "verbose"

	HostSysFSFlag = "host.sysfs"

	// action flags are mutually exclusive
	MinFlag     = "min"
	MaxFlag     = "max"
	DefaultFlag = "default"

	StrictFlag = "strict"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:   "info",
			Format:  "text",
			Verbose: ptr.To(false),
		},
		Host: Host{
			SysFS: "/sys",
		},
		PowerCap: PowerCap{
			Action: ActionMin,
			Strict: ptr.To(false),
		},
	}
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(SkipHostValidation); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		// ignored on purpose
		_ = file.Close()
	}()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	verbose := app.Flag(LogVerboseFlag, "Enable extra messages").Short('v').Default("false").Bool()

	// host; a plain string so that --help never touches the filesystem
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").String()

	// actions
	setMin := app.Flag(MinFlag, "Set power limits to minimum (default)").Bool()
	setMax := app.Flag(MaxFlag, "Set power limits to maximum").Bool()
	setDefault := app.Flag(DefaultFlag, "Restore driver default value").Bool()

	strict := app.Flag(StrictFlag, "Exit with a non-zero status when the power cap could not be written").Default("false").Bool()

	return func(cfg *Config) error {
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[LogVerboseFlag] {
			cfg.Log.Verbose = verbose
		}

		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		} else if ptr.Deref(cfg.Log.Verbose, false) {
			cfg.Log.Level = "debug"
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		action, err := actionFromFlags(flagsSet, *setMin, *setMax, *setDefault)
		if err != nil {
			return err
		}
		if action != "" {
			cfg.PowerCap.Action = action
		}

		if flagsSet[StrictFlag] {
			cfg.PowerCap.Strict = strict
		}

		cfg.sanitize()
		// an unreadable sysfs is reported by device discovery as a missing gpu
		return cfg.Validate(SkipHostValidation)
	}
}

// actionFromFlags returns the action selected on the command line or "" if
// none was given. Selecting more than one action is an error.
func actionFromFlags(flagsSet map[string]bool, setMin, setMax, setDefault bool) (string, error) {
	var selected []string
	for _, f := range []struct {
		name  string
		value bool
	}{
		{MinFlag, setMin},
		{MaxFlag, setMax},
		{DefaultFlag, setDefault},
	} {
		if flagsSet[f.name] && f.value {
			selected = append(selected, f.name)
		}
	}

	switch len(selected) {
	case 0:
		return "", nil
	case 1:
		return selected[0], nil
	default:
		return "", fmt.Errorf("only one of --%s, --%s, --%s may be given, got --%s",
			MinFlag, MaxFlag, DefaultFlag, strings.Join(selected, ", --"))
	}
}

// IsVerbose returns true if extra messages were requested
func (c *Config) IsVerbose() bool {
	return ptr.Deref(c.Log.Verbose, false)
}

// IsStrict returns true if write failures should change the exit status
func (c *Config) IsStrict() bool {
	return ptr.Deref(c.PowerCap.Strict, false)
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.PowerCap.Action = strings.ToLower(strings.TrimSpace(c.PowerCap.Action))
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // Validate host settings
		if _, skip := validationSkipped[SkipHostValidation]; !skip {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
		}
	}
	{ // power cap action
		switch c.PowerCap.Action {
		case ActionMin, ActionMax, ActionDefault:
		default:
			errs = append(errs, fmt.Sprintf("invalid power cap action %q: must be one of %s, %s, %s",
				c.PowerCap.Action, ActionMin, ActionMax, ActionDefault))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	_, err = f.ReadDir(1)
	if err != nil && err != io.EOF {
		return err
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{LogVerboseFlag, fmt.Sprintf("%v", ptr.Deref(c.Log.Verbose, false))},
		{HostSysFSFlag, c.Host.SysFS},
		{"powercap.action", c.PowerCap.Action},
		{StrictFlag, fmt.Sprintf("%v", ptr.Deref(c.PowerCap.Strict, false))},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
