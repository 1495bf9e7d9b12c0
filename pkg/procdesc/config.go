package procdesc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-procdesc-go/pkg/bytesize"
	"github.com/core-tools/hsu-procdesc-go/pkg/errors"
	"github.com/core-tools/hsu-procdesc-go/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInstanceCount = 1
	DefaultAutoRestart   = true
)

// Ecosystem is the file-level record: a list of process descriptors under "apps"
type Ecosystem struct {
	Apps []ProcessDescriptor `yaml:"apps"`

	// Directory of the file the ecosystem was loaded from, empty otherwise
	BaseDir string `yaml:"-"`
}

// Lookup returns a copy of the named descriptor
func (e *Ecosystem) Lookup(name string) (ProcessDescriptor, bool) {
	for _, app := range e.Apps {
		if app.Name == name {
			return app.Clone(), true
		}
	}
	return ProcessDescriptor{}, false
}

func (e *Ecosystem) Names() []string {
	names := make([]string, 0, len(e.Apps))
	for _, app := range e.Apps {
		names = append(names, app.Name)
	}
	return names
}

func (e *Ecosystem) Clone() *Ecosystem {
	out := &Ecosystem{
		Apps:    make([]ProcessDescriptor, 0, len(e.Apps)),
		BaseDir: e.BaseDir,
	}
	for _, app := range e.Apps {
		out.Apps = append(out.Apps, app.Clone())
	}
	return out
}

// ecosystemConfig is the decoded file before defaults and validation
type ecosystemConfig struct {
	Apps []descriptorConfig `yaml:"apps"`
}

// descriptorConfig mirrors ProcessDescriptor with pointers to tell unset from zero
type descriptorConfig struct {
	Name             string        `yaml:"name"`
	Script           string        `yaml:"script"`
	Instances        *int          `yaml:"instances"`
	AutoRestart      *bool         `yaml:"autorestart"`
	Watch            bool          `yaml:"watch"`
	MaxMemoryRestart bytesize.Size `yaml:"max_memory_restart"`
	Env              Environment   `yaml:"env"`
	ErrorFile        string        `yaml:"error_file"`
	OutFile          string        `yaml:"out_file"`
	LogFile          string        `yaml:"log_file"`
	Time             bool          `yaml:"time"`

	Environments map[string]Environment `yaml:"-"`
	unknownKeys  []string
}

var knownKeys = map[string]bool{
	"name": true, "script": true, "instances": true, "autorestart": true,
	"watch": true, "max_memory_restart": true, "env": true, "error_file": true,
	"out_file": true, "log_file": true, "time": true,
}

func (c *descriptorConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain descriptorConfig
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if knownKeys[key] {
			continue
		}
		if !strings.HasPrefix(key, envOverridePrefix) {
			c.unknownKeys = append(c.unknownKeys, key)
			continue
		}

		name := strings.TrimPrefix(key, envOverridePrefix)
		if name == "" {
			return fmt.Errorf("line %d: environment override %q has no name", node.Content[i].Line, key)
		}
		var env Environment
		if err := node.Content[i+1].Decode(&env); err != nil {
			return err
		}
		// a null override is kept as an empty one so it survives Marshal
		if env == nil {
			env = Environment{}
		}
		if c.Environments == nil {
			c.Environments = make(map[string]Environment)
		}
		c.Environments[name] = env
	}

	return nil
}

// LoadFromFile loads and validates process descriptors from a YAML or JSON file.
// Every failure is a ConfigError.
func LoadFromFile(filename string, logger logging.Logger) (*Ecosystem, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewConfigError(
			"failed to load process descriptors",
			errors.NewIOError("failed to read configuration file", err),
		).WithContext("filename", filename)
	}

	ecosystem, err := parse(data, logger)
	if err != nil {
		return nil, withFilename(err, filename)
	}

	if baseDir, err := filepath.Abs(filepath.Dir(filename)); err == nil {
		ecosystem.BaseDir = baseDir
	} else {
		logger.Warnf("Failed to resolve configuration directory of %s: %v", filename, err)
	}

	logger.Infof("Loaded %d process descriptors from %s", len(ecosystem.Apps), filename)
	return ecosystem, nil
}

// Load reads descriptors from r
func Load(r io.Reader, logger logging.Logger) (*Ecosystem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewConfigError(
			"failed to load process descriptors",
			errors.NewIOError("failed to read configuration", err),
		)
	}
	return parse(data, logger)
}

// ParseBytes decodes, defaults and validates descriptors held in memory
func ParseBytes(data []byte) (*Ecosystem, error) {
	return parse(data, logging.NewNopLogger())
}

func parse(data []byte, logger logging.Logger) (*Ecosystem, error) {
	var config ecosystemConfig
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, errors.NewConfigError("failed to parse descriptor configuration", err)
		}
	}

	setConfigDefaults(&config)

	ecosystem := &Ecosystem{Apps: make([]ProcessDescriptor, 0, len(config.Apps))}
	for _, app := range config.Apps {
		for _, key := range app.unknownKeys {
			logger.Warnf("Ignoring unsupported key %q in process descriptor %s", key, app.Name)
		}
		ecosystem.Apps = append(ecosystem.Apps, app.toDescriptor())
	}

	if err := ValidateEcosystem(ecosystem); err != nil {
		return nil, errors.NewConfigError("process descriptor validation failed", err)
	}

	logger.Debugf("Parsed process descriptors: %s", strings.Join(ecosystem.Names(), ", "))
	return ecosystem, nil
}

// setConfigDefaults applies default values to unset fields
func setConfigDefaults(config *ecosystemConfig) {
	for i := range config.Apps {
		app := &config.Apps[i]

		if app.Instances == nil {
			instances := DefaultInstanceCount
			app.Instances = &instances
		}

		// Restart on unexpected exit unless explicitly disabled
		if app.AutoRestart == nil {
			autoRestart := DefaultAutoRestart
			app.AutoRestart = &autoRestart
		}
	}
}

func (c descriptorConfig) toDescriptor() ProcessDescriptor {
	env := c.Env
	if len(env) == 0 {
		env = nil
	}

	return ProcessDescriptor{
		Name:                   c.Name,
		ExecutablePath:         c.Script,
		InstanceCount:          *c.Instances,
		AutoRestart:            *c.AutoRestart,
		WatchFilesystem:        c.Watch,
		MemoryRestartThreshold: c.MaxMemoryRestart,
		Environment:            env,
		LogPaths: LogPaths{
			ErrorFile:    c.ErrorFile,
			OutFile:      c.OutFile,
			CombinedFile: c.LogFile,
			Timestamps:   c.Time,
		},
		Environments: c.Environments,
	}
}

// Marshal writes the ecosystem in the same YAML shape the loader reads
func Marshal(ecosystem *Ecosystem) ([]byte, error) {
	if ecosystem == nil {
		return nil, errors.NewValidationError("ecosystem cannot be nil", nil)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(ecosystem); err != nil {
		return nil, errors.NewInternalError("failed to encode process descriptors", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.NewInternalError("failed to encode process descriptors", err)
	}
	return buf.Bytes(), nil
}

// MarshalJSON writes the ecosystem as JSON with the same keys as Marshal
func MarshalJSON(ecosystem *Ecosystem) ([]byte, error) {
	data, err := Marshal(ecosystem)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, errors.NewInternalError("failed to convert process descriptors", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode process descriptors as JSON", err)
	}
	return out, nil
}

func withFilename(err error, filename string) error {
	if de, ok := err.(*errors.DomainError); ok {
		return de.WithContext("filename", filename)
	}
	return errors.NewConfigError("failed to load process descriptors", err).WithContext("filename", filename)
}
