package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the global validator instance.
var validate *validator.Validate

// dbusTransports are the address prefixes accepted for bus.address.
var dbusTransports = []string{"unix:", "tcp:", "nonce-tcp:", "unixexec:", "systemd:", "launchd:", "autolaunch:"}

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("env", validateEnvironment)
	_ = validate.RegisterValidation("bus_address", validateBusAddress)
	validate.RegisterStructValidation(validateBusConfig, BusConfig{})
	validate.RegisterStructValidation(validateRedisConfig, RedisConfig{})
	validate.RegisterStructValidation(validateRateLimitConfig, RateLimitConfig{})
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Has reports whether field (namespace suffix, e.g. "Bus.Address") failed.
func (e ValidationErrors) Has(field string) bool {
	for _, ce := range e {
		if strings.HasSuffix(ce.Field, field) {
			return true
		}
	}
	return false
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	details := make(ValidationErrors, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, ConfigError{
			Field:   fe.Namespace(),
			Message: formatValidationError(fe),
			Value:   fe.Value(),
		})
	}
	return details
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	case "env":
		return "must be one of [development staging production]"
	case "bus_address":
		return "must be a D-Bus address such as unix:path=/run/dbus/system_bus_socket"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateBusAddress accepts D-Bus server addresses, optionally ';'-separated.
func validateBusAddress(fl validator.FieldLevel) bool {
	return isBusAddress(fl.Field().String())
}

func isBusAddress(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	for _, part := range strings.Split(address, ";") {
		if part == "" {
			continue
		}
		ok := false
		for _, prefix := range dbusTransports {
			if strings.HasPrefix(part, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// validateBusConfig requires a usable address when the bus type is "address".
func validateBusConfig(sl validator.StructLevel) {
	bus := sl.Current().Interface().(BusConfig)
	if bus.Type != "address" {
		return
	}
	if bus.Address == "" {
		sl.ReportError(bus.Address, "Address", "address", "required", "")
		return
	}
	if !isBusAddress(bus.Address) {
		sl.ReportError(bus.Address, "Address", "address", "bus_address", "")
	}
}

// validateRedisConfig requires an address when the relay is enabled.
func validateRedisConfig(sl validator.StructLevel) {
	redis := sl.Current().Interface().(RedisConfig)
	if redis.Enabled && strings.TrimSpace(redis.Address) == "" {
		sl.ReportError(redis.Address, "Address", "address", "required", "")
	}
}

// validateRateLimitConfig requires a positive rate when throttling is on.
// A zero rate would lock every sender out after its first burst.
func validateRateLimitConfig(sl validator.StructLevel) {
	rl := sl.Current().Interface().(RateLimitConfig)
	if rl.Enabled && rl.PerSecond <= 0 {
		sl.ReportError(rl.PerSecond, "PerSecond", "per_second", "gt", "0")
	}
}
