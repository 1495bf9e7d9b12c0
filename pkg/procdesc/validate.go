package procdesc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-procdesc-go/pkg/errors"

	"github.com/lib/pq"
)

// ValidateEcosystem validates every descriptor and checks that names are unique
func ValidateEcosystem(ecosystem *Ecosystem) error {
	if ecosystem == nil {
		return errors.NewValidationError("ecosystem cannot be nil", nil)
	}
	if len(ecosystem.Apps) == 0 {
		return errors.NewValidationError("no process descriptors declared", nil).WithContext("field", "apps")
	}

	seenNames := make(map[string]int)
	for i, app := range ecosystem.Apps {
		if err := ValidateDescriptor(app); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid process descriptor at index %d", i),
				err,
			).WithContext("process", app.Name)
		}

		if prevIndex, exists := seenNames[app.Name]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate process name '%s' found at indices %d and %d", app.Name, prevIndex, i),
				nil,
			).WithContext("field", "name")
		}
		seenNames[app.Name] = i
	}

	return nil
}

func ValidateDescriptor(d ProcessDescriptor) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.NewValidationError("process name is required", nil).WithContext("field", "name")
	}
	if strings.TrimSpace(d.ExecutablePath) == "" {
		return errors.NewValidationError("script path is required", nil).WithContext("field", "script")
	}
	if d.InstanceCount < 1 {
		return errors.NewValidationError(
			fmt.Sprintf("instances must be a positive integer, got %d", d.InstanceCount),
			nil,
		).WithContext("field", "instances")
	}

	if err := validateEnvironment("env", d.Environment); err != nil {
		return err
	}
	for name, env := range d.Environments {
		if err := validateEnvironment(envOverridePrefix+name, env); err != nil {
			return err
		}
	}

	return nil
}

func validateEnvironment(field string, env Environment) error {
	for _, name := range env.Names() {
		if name == "" || strings.ContainsAny(name, "=\x00") {
			return errors.NewValidationError(
				fmt.Sprintf("invalid environment variable name %q", name),
				nil,
			).WithContext("field", field)
		}
	}

	if value, ok := env[EnvPort]; ok {
		if err := validatePort(value); err != nil {
			return errors.NewValidationError("invalid PORT", err).WithContext("field", field+"."+EnvPort)
		}
	}

	if value, ok := env[EnvDatabaseURL]; ok {
		if err := validateDatabaseURL(value); err != nil {
			return errors.NewValidationError("invalid DATABASE_URL", err).WithContext("field", field+"."+EnvDatabaseURL)
		}
	}

	return nil
}

func validatePort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("port is not an integer: %q", value), err)
	}
	if port <= 0 || port > 65535 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid port number: %d", port),
			nil,
		).WithContext("valid_range", "1-65535")
	}
	return nil
}

// validateDatabaseURL checks PostgreSQL URLs; other schemes are passed through
func validateDatabaseURL(value string) error {
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "postgres://") && !strings.HasPrefix(lower, "postgresql://") {
		return nil
	}
	if _, err := pq.ParseURL(value); err != nil {
		return errors.NewValidationError("malformed PostgreSQL connection URL", err)
	}
	return nil
}
