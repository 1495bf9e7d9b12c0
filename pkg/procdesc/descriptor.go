package procdesc

import (
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/core-tools/hsu-procdesc-go/pkg/bytesize"
	"github.com/core-tools/hsu-procdesc-go/pkg/errors"

	"gopkg.in/yaml.v3"
)

const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvPort        = "PORT"

	envOverridePrefix = "env_"
)

// LogPaths are the files the supervisor writes the child's output to
type LogPaths struct {
	ErrorFile    string `yaml:"error_file,omitempty" json:"error_file,omitempty"`
	OutFile      string `yaml:"out_file,omitempty" json:"out_file,omitempty"`
	CombinedFile string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	Timestamps   bool   `yaml:"time" json:"time"`
}

// ProcessDescriptor describes how one external process is launched and kept alive.
// It is loaded once and treated as read-only afterwards.
type ProcessDescriptor struct {
	Name                   string        `yaml:"name"`
	ExecutablePath         string        `yaml:"script"`
	InstanceCount          int           `yaml:"instances"`
	AutoRestart            bool          `yaml:"autorestart"`
	WatchFilesystem        bool          `yaml:"watch"`
	MemoryRestartThreshold bytesize.Size `yaml:"max_memory_restart,omitempty"`
	Environment            Environment   `yaml:"env,omitempty"`
	LogPaths               `yaml:",inline"`

	// Named overrides declared as env_<name>, e.g. env_production
	Environments map[string]Environment `yaml:"-"`
}

func (d ProcessDescriptor) MarshalYAML() (interface{}, error) {
	type plain ProcessDescriptor

	node := &yaml.Node{}
	if err := node.Encode(plain(d)); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(d.Environments))
	for name := range d.Environments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := &yaml.Node{}
		if err := value.Encode(d.Environments[name]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: envOverridePrefix + name},
			value,
		)
	}

	return node, nil
}

// Clone returns a deep copy so callers cannot change loaded configuration
func (d ProcessDescriptor) Clone() ProcessDescriptor {
	out := d
	out.Environment = d.Environment.Clone()
	if d.Environments != nil {
		out.Environments = make(map[string]Environment, len(d.Environments))
		for name, env := range d.Environments {
			out.Environments[name] = env.Clone()
		}
	}
	return out
}

// Port returns the PORT variable as an integer
func (d ProcessDescriptor) Port() (int, bool) {
	port, err := d.Environment.Int(EnvPort)
	if err != nil {
		return 0, false
	}
	return port, true
}

func (d ProcessDescriptor) DatabaseURL() (string, bool) {
	v, ok := d.Environment[EnvDatabaseURL]
	return v, ok
}

// EnvironmentFor returns the base environment overlaid with the named override.
// An empty name returns the base environment.
func (d ProcessDescriptor) EnvironmentFor(name string) (Environment, error) {
	if name == "" {
		return d.Environment.Clone(), nil
	}
	override, ok := d.Environments[name]
	if !ok {
		return nil, errors.NewConfigError("environment is not declared", nil).
			WithContext("process", d.Name).
			WithContext("environment", name)
	}
	return d.Environment.Merge(override), nil
}

// Environ overlays the descriptor environment on base (typically os.Environ())
// and returns the result in exec.Cmd.Env form
func (d ProcessDescriptor) Environ(base []string, envName string) ([]string, error) {
	env, err := d.EnvironmentFor(envName)
	if err != nil {
		return nil, err
	}
	return ParseEnviron(base).Merge(env).Environ(), nil
}

// ResolvePaths returns a copy with relative script and log paths joined to baseDir
func (d ProcessDescriptor) ResolvePaths(baseDir string) ProcessDescriptor {
	out := d.Clone()
	out.ExecutablePath = resolvePath(baseDir, d.ExecutablePath)
	out.ErrorFile = resolvePath(baseDir, d.ErrorFile)
	out.OutFile = resolvePath(baseDir, d.OutFile)
	out.CombinedFile = resolvePath(baseDir, d.CombinedFile)
	return out
}

func resolvePath(baseDir, path string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Redacted returns a copy with the password of DATABASE_URL masked
func (d ProcessDescriptor) Redacted() ProcessDescriptor {
	out := d.Clone()
	redactDatabaseURL(out.Environment)
	for _, env := range out.Environments {
		redactDatabaseURL(env)
	}
	return out
}

// dsnPassword matches the password of a key=value connection string such as
// "host=localhost user=blog password='s3 cret' dbname=blog"
var dsnPassword = regexp.MustCompile(`(^|\s)(password\s*=\s*)('(?:[^'\\]|\\.)*'|\S*)`)

func redactDatabaseURL(env Environment) {
	raw, ok := env[EnvDatabaseURL]
	if !ok {
		return
	}
	if !strings.Contains(raw, "://") {
		env[EnvDatabaseURL] = dsnPassword.ReplaceAllString(raw, "${1}${2}xxxxx")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		env[EnvDatabaseURL] = "xxxxx"
		return
	}
	env[EnvDatabaseURL] = u.Redacted()
}
