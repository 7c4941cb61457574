// Package config loads the optional JSON defaults file for the
// reduction CLI and layers it under explicit command-line flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ridgetop-obs/astroreduce/internal/reduce"
)

// ReduceConfig holds the settable knobs of a reduction run. Field
// names mirror the command-line flags one to one, so a config file
// reads like a saved invocation:
//
//	{"darks": "cal/darks", "level": 1, "nonfinite": "propagate"}
//
// Every field is optional; nil means the file did not set it.
type ReduceConfig struct {
	Darks  *string `json:"darks,omitempty"`
	MDarks *string `json:"mdarks,omitempty"`
	Flats  *string `json:"flats,omitempty"`
	MFlats *string `json:"mflats,omitempty"`
	Lights *string `json:"lights,omitempty"`
	Out    *string `json:"out,omitempty"`

	Level   *int `json:"level,omitempty"`
	Workers *int `json:"workers,omitempty"`

	MissingMaster *string `json:"missing-master,omitempty"`
	NonFinite     *string `json:"nonfinite,omitempty"`

	DB      *string `json:"db,omitempty"`
	Report  *string `json:"report,omitempty"`
	LogFile *string `json:"logfile,omitempty"`
	Verbose *bool   `json:"verbose,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// Load reads a ReduceConfig from a JSON file. Fields omitted from the
// file stay nil, so partial configs are safe.
func Load(path string) (*ReduceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ReduceConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ReduceConfig) Validate() error {
	if c.Level != nil {
		if *c.Level < 0 || *c.Level > 2 {
			return fmt.Errorf("level must be 0, 1, or 2, got %d", *c.Level)
		}
	}

	if c.Workers != nil {
		if *c.Workers < 0 {
			return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
		}
	}

	if c.MissingMaster != nil {
		if _, err := reduce.ParseMissingMasterPolicy(*c.MissingMaster); err != nil {
			return err
		}
	}

	if c.NonFinite != nil {
		if _, err := reduce.ParseNonFinitePolicy(*c.NonFinite); err != nil {
			return err
		}
	}

	return nil
}

// Apply writes every set field into the matching flag of fs, skipping
// flags already given on the command line. Call it after fs.Parse so
// explicit flags win over the file.
func (c *ReduceConfig) Apply(fs *flag.FlagSet) error {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	for name, value := range c.values() {
		if explicit[name] {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("config: -%s: %w", name, err)
		}
	}
	return nil
}

// values maps the set fields to flag names and their string forms.
func (c *ReduceConfig) values() map[string]string {
	vals := make(map[string]string)
	str := func(name string, v *string) {
		if v != nil {
			vals[name] = *v
		}
	}
	str("darks", c.Darks)
	str("mdarks", c.MDarks)
	str("flats", c.Flats)
	str("mflats", c.MFlats)
	str("lights", c.Lights)
	str("out", c.Out)
	str("missing-master", c.MissingMaster)
	str("nonfinite", c.NonFinite)
	str("db", c.DB)
	str("report", c.Report)
	str("logfile", c.LogFile)
	if c.Level != nil {
		vals["level"] = strconv.Itoa(*c.Level)
	}
	if c.Workers != nil {
		vals["workers"] = strconv.Itoa(*c.Workers)
	}
	if c.Verbose != nil {
		vals["verbose"] = strconv.FormatBool(*c.Verbose)
	}
	return vals
}

// envFlags lists the string flags that AR_* environment variables may
// fill. Numeric and boolean knobs stay command-line and file only.
var envFlags = []string{
	"darks", "mdarks", "flats", "mflats", "lights", "out",
	"missing-master", "nonfinite", "db", "report", "logfile",
}

// EnvKey returns the environment variable that backs a flag,
// AR_MISSING_MASTER for -missing-master and so on.
func EnvKey(flagName string) string {
	return "AR_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// ApplyEnv fills any string flag still unset after the command line
// and the config file from its AR_* environment variable. Call it
// after Apply so both of those take precedence.
func ApplyEnv(fs *flag.FlagSet) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	for _, name := range envFlags {
		if set[name] || fs.Lookup(name) == nil {
			continue
		}
		v, ok := os.LookupEnv(EnvKey(name))
		if !ok {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("%s: %w", EnvKey(name), err)
		}
	}
	return nil
}
