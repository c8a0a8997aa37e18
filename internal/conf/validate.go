package conf

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tphakala/certmigrate/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validate.Struct(settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				ve.Errors = append(ve.Errors, describeFieldError(fe))
			}
		} else {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateDatabaseSettings("source", &settings.Source); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateDatabaseSettings("destination", &settings.Destination); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.dsn is required when telemetry is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateDatabaseSettings(section string, db *DatabaseSettings) error {
	switch db.Type {
	case DriverSQLite:
		if db.Path == "" {
			return fmt.Errorf("%s.path is required for sqlite", section)
		}
	case DriverMySQL:
		var missing []string
		if db.Host == "" {
			missing = append(missing, section+".host")
		}
		if db.Database == "" {
			missing = append(missing, section+".database")
		}
		if len(missing) > 0 {
			return fmt.Errorf("mysql requires %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Settings."))
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "email":
		return fmt.Sprintf("%s must be an email address", field)
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}
