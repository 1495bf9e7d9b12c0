package procdesc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-procdesc-go/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Environment maps variable names to values injected into the child process.
// Values are kept as their literal text, so PORT: 8080 and PORT: "8080" load
// the same.
type Environment map[string]string

func (e *Environment) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*e = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: environment must be a mapping", node.Line)
	}

	env := make(Environment, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: environment variable %s must be a scalar", value.Line, key.Value)
		}
		if value.Tag == "!!null" {
			env[key.Value] = ""
			continue
		}
		env[key.Value] = value.Value
	}

	*e = env
	return nil
}

// MarshalYAML writes integers and booleans unquoted so the output matches
// hand-written descriptors
func (e Environment) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range e.Names() {
		value := e[key]
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: scalarTag(value), Value: value},
		)
	}
	return node, nil
}

func (e Environment) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e))
	for key, value := range e {
		switch scalarTag(value) {
		case "!!int":
			n, _ := strconv.ParseInt(value, 10, 64)
			out[key] = n
		case "!!bool":
			out[key] = value == "true"
		default:
			out[key] = value
		}
	}
	return json.Marshal(out)
}

func scalarTag(value string) string {
	if value == "true" || value == "false" {
		return "!!bool"
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil && strconv.FormatInt(n, 10) == value {
		return "!!int"
	}
	return "!!str"
}

// Names returns the variable names in sorted order
func (e Environment) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Int returns the named variable as an integer
func (e Environment) Int(name string) (int, error) {
	value, ok := e[name]
	if !ok {
		return 0, errors.NewConfigError("environment variable is not set", nil).WithContext("variable", name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.NewConfigError("environment variable is not an integer", err).WithContext("variable", name)
	}
	return n, nil
}

func (e Environment) Clone() Environment {
	if e == nil {
		return nil
	}
	out := make(Environment, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Merge returns a copy of e overlaid with other
func (e Environment) Merge(other Environment) Environment {
	out := e.Clone()
	if out == nil && len(other) > 0 {
		out = make(Environment, len(other))
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Environ renders the environment in os/exec "KEY=value" form, sorted by name
func (e Environment) Environ() []string {
	out := make([]string, 0, len(e))
	for _, name := range e.Names() {
		out = append(out, name+"="+e[name])
	}
	return out
}

// ParseEnviron builds an Environment from "KEY=value" entries such as os.Environ().
// Entries without "=" are ignored; later entries win.
func ParseEnviron(entries []string) Environment {
	env := make(Environment, len(entries))
	for _, entry := range entries {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = value
	}
	return env
}
