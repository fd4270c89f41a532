// Package validation provides validation for pipeline definitions and
// configuration.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Field names in messages use
// the yaml tag of the field, so errors point at the key the user wrote.
//
// # Struct Tag Validation
//
//	type Job struct {
//	    ID    string `yaml:"id" validate:"required,identifier"`
//	    Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
//	}
//	err := validation.Validate(job)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("jobs[0].id", id).OneOf("jobs[0].when", when, []string{"success", "always"})
//	err := v.Validate()
package validation
